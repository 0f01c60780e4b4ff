// Package jenkins is a small client for the Jenkins JSON API: connection
// check, job listing, build status and console text.
package jenkins

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout = 15 * time.Second
	maxBodyBytes   = 8 << 20
	lastBuild      = "lastBuild"
)

var (
	ErrNotConfigured    = errors.New("Jenkins URL is not configured")
	ErrResponseTooLarge = errors.New("Jenkins response is too large")
)

// HTTPError is a non-2xx answer from Jenkins.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	status := strings.TrimSpace(e.Status)
	if status == "" {
		status = strconv.Itoa(e.StatusCode) + " " + http.StatusText(e.StatusCode)
	}
	return "Jenkins request failed: " + status
}

// RequestObserver is told about every finished request. outcome is the
// HTTP status code, or "error" when no response arrived.
type RequestObserver interface {
	ObserveJenkinsRequest(op, outcome string, elapsed time.Duration)
}

type Options struct {
	BaseURL            string
	User               string
	Token              string
	Timeout            time.Duration
	InsecureSkipVerify bool
	HTTPClient         *http.Client
	Observer           RequestObserver
}

type Client struct {
	base     *url.URL
	user     string
	token    string
	http     *http.Client
	observer RequestObserver
}

type Job struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Color  string `json:"color"`
	Status string `json:"status"`
}

type Build struct {
	Job       string `json:"job"`
	Number    int64  `json:"number"`
	Result    string `json:"result"`
	Building  bool   `json:"building"`
	Duration  int64  `json:"duration"`
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url"`
}

type Connection struct {
	Version  string `json:"version"`
	User     string `json:"user"`
	Mode     string `json:"mode"`
	JobCount int    `json:"job_count"`
}

func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, ErrNotConfigured
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse jenkins url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("jenkins url must be http or https: %q", raw)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		hc = &http.Client{Timeout: timeout, Transport: transport}
	}
	return &Client{
		base:     base,
		user:     strings.TrimSpace(opts.User),
		token:    opts.Token,
		http:     hc,
		observer: opts.Observer,
	}, nil
}

// TestConnection reads the server root and the caller's identity in parallel.
func (c *Client) TestConnection(ctx context.Context) (Connection, error) {
	var (
		conn     Connection
		rootBody []byte
		whoBody  []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, header, err := c.get(gctx, "connection", "/api/json", nil)
		if err != nil {
			return err
		}
		rootBody = body
		conn.Version = header.Get("X-Jenkins")
		return nil
	})
	g.Go(func() error {
		body, _, err := c.get(gctx, "whoami", "/whoAmI/api/json", nil)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
				return nil
			}
			return err
		}
		whoBody = body
		return nil
	})
	if err := g.Wait(); err != nil {
		return Connection{}, err
	}
	root := gjson.ParseBytes(rootBody)
	conn.Mode = root.Get("mode").String()
	conn.JobCount = int(root.Get("jobs.#").Int())
	if len(whoBody) > 0 {
		conn.User = gjson.GetBytes(whoBody, "name").String()
	}
	return conn, nil
}

func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	body, _, err := c.get(ctx, "list_jobs", "/api/json", url.Values{"tree": {"jobs[name,url,color]"}})
	if err != nil {
		return nil, err
	}
	items := gjson.GetBytes(body, "jobs").Array()
	jobs := make([]Job, 0, len(items))
	for _, item := range items {
		color := item.Get("color").String()
		jobs = append(jobs, Job{
			Name:   item.Get("name").String(),
			URL:    item.Get("url").String(),
			Color:  color,
			Status: StatusFromColor(color),
		})
	}
	return jobs, nil
}

// BuildStatus fetches one build. A blank build means the last build.
func (c *Client) BuildStatus(ctx context.Context, job, build string) (Build, error) {
	p, err := buildPath(job, build)
	if err != nil {
		return Build{}, err
	}
	body, _, err := c.get(ctx, "build_status", p+"/api/json", nil)
	if err != nil {
		return Build{}, err
	}
	r := gjson.ParseBytes(body)
	return Build{
		Job:       job,
		Number:    r.Get("number").Int(),
		Result:    r.Get("result").String(),
		Building:  r.Get("building").Bool(),
		Duration:  r.Get("duration").Int(),
		Timestamp: r.Get("timestamp").Int(),
		URL:       r.Get("url").String(),
	}, nil
}

func (c *Client) ConsoleLog(ctx context.Context, job, build string) (string, error) {
	p, err := buildPath(job, build)
	if err != nil {
		return "", err
	}
	body, _, err := c.get(ctx, "console_log", p+"/consoleText", nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// StatusFromColor maps a job's ball color to a readable state.
func StatusFromColor(color string) string {
	building := strings.HasSuffix(color, "_anime")
	base := strings.TrimSuffix(color, "_anime")
	var s string
	switch base {
	case "blue", "green":
		s = "success"
	case "red":
		s = "failed"
	case "yellow":
		s = "unstable"
	case "aborted":
		s = "aborted"
	case "disabled":
		s = "disabled"
	case "notbuilt", "grey":
		s = "not_built"
	default:
		s = "unknown"
	}
	if building {
		return "building"
	}
	return s
}

// buildPath turns "folder/job" into /job/folder/job/job/<build>.
func buildPath(job, build string) (string, error) {
	job = strings.Trim(strings.TrimSpace(job), "/")
	if job == "" {
		return "", errors.New("job is required")
	}
	var b strings.Builder
	for _, part := range strings.Split(job, "/") {
		if part == "" {
			continue
		}
		b.WriteString("/job/")
		b.WriteString(url.PathEscape(part))
	}
	build = strings.TrimSpace(build)
	if build == "" {
		build = lastBuild
	}
	b.WriteString("/")
	b.WriteString(url.PathEscape(build))
	return b.String(), nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, http.Header, error) {
	u := *c.base
	escaped := strings.TrimRight(c.base.EscapedPath(), "/") + path
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, nil, err
	}
	u.Path, u.RawPath = unescaped, escaped
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	if c.user != "" || c.token != "" {
		req.SetBasicAuth(c.user, c.token)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(op, "error", started)
		return nil, nil, fmt.Errorf("jenkins %s: %w", op, err)
	}
	defer resp.Body.Close()
	c.observe(op, strconv.Itoa(resp.StatusCode), started)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read jenkins %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxBodyBytes {
			body = body[:maxBodyBytes]
		}
		return nil, nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}
	if len(body) > maxBodyBytes {
		return nil, nil, fmt.Errorf("%w (%s over %d MiB)", ErrResponseTooLarge, op, maxBodyBytes>>20)
	}
	return body, resp.Header, nil
}

func (c *Client) observe(op, outcome string, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveJenkinsRequest(op, outcome, time.Since(started))
	}
}

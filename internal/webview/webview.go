// Package webview renders panel pages. Every render gets a fresh nonce, and
// the page's Content-Security-Policy only admits scripts carrying it.
package webview

import (
	"bytes"
	"crypto/rand"
	"embed"
	"fmt"
	"html/template"
	"math/big"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	nonceLength   = 32
	nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

type Page struct {
	ID    string
	Title string
}

// Document is a rendered page and the policy it must be served with.
type Document struct {
	Nonce string
	CSP   string
	HTML  []byte
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*template.Template{}
)

func Nonce() (string, error) {
	max := big.NewInt(int64(len(nonceAlphabet)))
	out := make([]byte, nonceLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = nonceAlphabet[n.Int64()]
	}
	return string(out), nil
}

func CSP(nonce string) string {
	return "default-src 'none'; style-src 'self' 'unsafe-inline'; script-src 'nonce-" + nonce + "'; connect-src 'self'"
}

// Render renders the panel template named after page.ID.
func Render(page Page) (Document, error) {
	tpl, err := lookup(page.ID)
	if err != nil {
		return Document{}, err
	}
	return execute(tpl, map[string]any{
		"ID":    page.ID,
		"Title": page.Title,
	})
}

// RenderIndex renders the landing page that links every panel.
func RenderIndex(pages []Page) (Document, error) {
	tpl, err := lookup("index")
	if err != nil {
		return Document{}, err
	}
	return execute(tpl, map[string]any{
		"ID":    "",
		"Title": "agentdock",
		"Pages": pages,
	})
}

// Has reports whether a template exists for the panel id.
func Has(id string) bool {
	_, err := lookup(id)
	return err == nil
}

func execute(tpl *template.Template, data map[string]any) (Document, error) {
	nonce, err := Nonce()
	if err != nil {
		return Document{}, fmt.Errorf("generate nonce: %w", err)
	}
	data["Nonce"] = nonce
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return Document{}, err
	}
	return Document{Nonce: nonce, CSP: CSP(nonce), HTML: buf.Bytes()}, nil
}

func lookup(id string) (*template.Template, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if tpl, ok := cache[id]; ok {
		return tpl, nil
	}
	name := "templates/" + id + ".html"
	if id == "" || id == "layout" {
		return nil, fmt.Errorf("no template for panel %q", id)
	}
	if _, err := templateFS.Open(name); err != nil {
		return nil, fmt.Errorf("no template for panel %q", id)
	}
	tpl, err := template.New(id).ParseFS(templateFS, "templates/layout.html", name)
	if err != nil {
		return nil, err
	}
	cache[id] = tpl
	return tpl, nil
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdock/internal/events"
)

func TestMetrics_RunCounters(t *testing.T) {
	m := New()
	m.RunStarted("jira")
	m.RunStarted("jira")
	m.RunFinished("jira", "success", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsStarted.WithLabelValues("jira")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsFinished.WithLabelValues("jira", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsActive.WithLabelValues("jira")))
}

func TestMetrics_JenkinsRequests(t *testing.T) {
	m := New()
	m.ObserveJenkinsRequest("list_jobs", "200", 30*time.Millisecond)
	m.ObserveJenkinsRequest("list_jobs", "401", 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jenkinsRequests.WithLabelValues("list_jobs", "401")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.jenkinsLatency))
}

func TestMetrics_SubscribeToBus(t *testing.T) {
	m := New()
	bus := events.New()
	stop := m.Subscribe(bus)
	defer stop()

	now := time.Now()
	bus.PublishRunStarted(events.RunStartedEvent{RunID: "r", PanelID: "coder", StartedAt: now})
	bus.PublishRunFinished(events.RunFinishedEvent{RunID: "r", PanelID: "coder", Status: "error", StartedAt: now, FinishedAt: now.Add(time.Second)})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.runsFinished.WithLabelValues("coder", "error")) == 1 &&
			testutil.ToFloat64(m.runsStarted.WithLabelValues("coder")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMetrics_HandlerServesExposition(t *testing.T) {
	m := New()
	m.RunStarted("jenkins")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agentdock_runs_started_total{panel="jenkins"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// find returns the metric in family name whose labels include all of want.
func find(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			return m
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return nil
}

func TestCollector_BusinessCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Login()
	c.Login()
	c.EntryMutation("create")
	c.EntryMutation("create")
	c.EntryMutation("delete")
	c.AIReply("fallback")
	c.SessionsSwept(3)
	c.SessionsSwept(0)

	assert.Equal(t, 2.0, find(t, reg, "chronicle_logins_total", nil).GetCounter().GetValue())
	assert.Equal(t, 2.0, find(t, reg, "chronicle_entry_mutations_total", map[string]string{"op": "create"}).GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, reg, "chronicle_entry_mutations_total", map[string]string{"op": "delete"}).GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, reg, "chronicle_ai_replies_total", map[string]string{"outcome": "fallback"}).GetCounter().GetValue())
	assert.Equal(t, 3.0, find(t, reg, "chronicle_sessions_swept_total", nil).GetCounter().GetValue())
}

func TestCollector_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveRequest(http.MethodGet, "/entries", http.StatusOK, 20*time.Millisecond)
	c.ObserveRequest(http.MethodGet, "/entries", http.StatusOK, 30*time.Millisecond)
	c.ObserveRequest(http.MethodGet, "/entries", http.StatusTooManyRequests, time.Millisecond)

	ok := find(t, reg, "chronicle_http_requests_total", map[string]string{"route": "/entries", "status": "200"})
	assert.Equal(t, 2.0, ok.GetCounter().GetValue())
	limited := find(t, reg, "chronicle_http_requests_total", map[string]string{"status": "429"})
	assert.Equal(t, 1.0, limited.GetCounter().GetValue())

	h := find(t, reg, "chronicle_http_request_duration_seconds", map[string]string{"method": "GET"}).GetHistogram()
	assert.Equal(t, uint64(3), h.GetSampleCount())
	assert.InDelta(t, 0.051, h.GetSampleSum(), 1e-9)
}

func TestHandler_ServesExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	RegisterRuntime(reg)
	c.Login()

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), "chronicle_logins_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewCollector_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}

package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/sessionguard"
)

type fakeSource struct {
	snapshot sessionguard.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() sessionguard.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                          { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := New(fakeSource{
		snapshot: sessionguard.MetricsSnapshot{
			Counters:   map[sessionguard.MetricID]uint64{},
			Histograms: map[sessionguard.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderCountersAndHistograms(t *testing.T) {
	exp := New(fakeSource{
		snapshot: sessionguard.MetricsSnapshot{
			Counters: map[sessionguard.MetricID]uint64{
				sessionguard.MetricRefreshReuseDetected: 7,
				sessionguard.MetricSelfServiceSend:      3,
			},
			Histograms: map[sessionguard.MetricID][]uint64{
				sessionguard.MetricSignInLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"sessionguard_refresh_reuse_detected_total 7",
		"sessionguard_selfservice_send_total 3",
		"sessionguard_signin_success_total 0",
		`sessionguard_signin_latency_seconds_bucket{le="0.005"} 1`,
		`sessionguard_signin_latency_seconds_bucket{le="+Inf"} 36`,
		"sessionguard_signin_latency_seconds_count 36",
		"sessionguard_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "sessionguard_refresh_latency_seconds") {
		t.Fatalf("histograms absent from the snapshot must not render, got:\n%s", out)
	}
}

func TestRenderFromEngine(t *testing.T) {
	var _ Source = (*sessionguard.Engine)(nil)
	if got := New(nil).Render(); got != "" {
		t.Fatalf("nil source must render nothing, got %q", got)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := New(fakeSource{
		snapshot: sessionguard.MetricsSnapshot{
			Counters:   map[sessionguard.MetricID]uint64{sessionguard.MetricSignInSuccess: 1},
			Histograms: map[sessionguard.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sessionguard_signin_success_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}

func BenchmarkRender(b *testing.B) {
	exp := New(fakeSource{
		snapshot: sessionguard.MetricsSnapshot{
			Counters: map[sessionguard.MetricID]uint64{
				sessionguard.MetricSignInSuccess:   1000,
				sessionguard.MetricSignInFailure:   40,
				sessionguard.MetricRefreshSuccess:  800,
				sessionguard.MetricRefreshFailure:  10,
				sessionguard.MetricSelfServiceSend: 20,
			},
			Histograms: map[sessionguard.MetricID][]uint64{
				sessionguard.MetricSignInLatency:  {10, 20, 30, 40, 50, 60, 70, 80},
				sessionguard.MetricRefreshLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}

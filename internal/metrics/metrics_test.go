package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesCounterAndHistogramSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.TaskRuns.WithLabelValues("attendance_poll", "ok").Inc()
	m.TaskDuration.WithLabelValues("attendance_poll").Observe(0.042)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	out := rec.Body.String()
	if !strings.Contains(out, `mms_task_runs_total{status="ok",task="attendance_poll"} 1`) {
		t.Fatalf("missing counter sample: %s", out)
	}
	if !strings.Contains(out, `mms_task_duration_seconds_count{task="attendance_poll"} 1`) {
		t.Fatalf("missing histogram count sample: %s", out)
	}
}

func TestEndMeetingFailuresByStage(t *testing.T) {
	m := Discard()
	m.EndMeetingFailures.WithLabelValues("plan").Inc()
	m.EndMeetingFailures.WithLabelValues("plan").Inc()

	if got := testutil.ToFloat64(m.EndMeetingFailures.WithLabelValues("plan")); got != 2 {
		t.Fatalf("expected 2 plan failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.EndMeetingFailures.WithLabelValues("meeting")); got != 0 {
		t.Fatalf("expected 0 meeting failures, got %v", got)
	}
}

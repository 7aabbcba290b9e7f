package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/ryadrakem/mms-V2/internal/metrics"
)

func TestEveryRunsImmediatelyAndRecordsStatus(t *testing.T) {
	m := metrics.Discard()
	r := NewRunner(zerolog.Nop(), m)

	var runs atomic.Int32
	task := r.Every("attendance_poll", time.Hour, true, func(context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("remote down")
		}
		return nil
	})
	deadline := time.Now().Add(time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	task.Stop()

	if runs.Load() != 1 {
		t.Fatalf("expected one immediate run, got %d", runs.Load())
	}
	if got := testutil.ToFloat64(m.TaskRuns.WithLabelValues("attendance_poll", "error")); got != 1 {
		t.Fatalf("expected one failed run recorded, got %v", got)
	}
}

func TestStopIsIdempotentAndHaltsTicks(t *testing.T) {
	r := NewRunner(zerolog.Nop(), nil)
	var runs atomic.Int32
	task := r.Every("timer_tick", 5*time.Millisecond, false, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	time.Sleep(30 * time.Millisecond)
	task.Stop()
	task.Stop()
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)

	if after == 0 {
		t.Fatalf("expected at least one tick")
	}
	if runs.Load() != after {
		t.Fatalf("task kept running after Stop")
	}

	var nilTask *Task
	nilTask.Stop()
}

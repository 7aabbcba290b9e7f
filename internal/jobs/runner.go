package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ryadrakem/mms-V2/internal/metrics"
)

// Runner starts named periodic tasks and records each run.
type Runner struct {
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewRunner(log zerolog.Logger, m *metrics.Metrics) *Runner {
	return &Runner{log: log.With().Str("module", "jobs").Logger(), metrics: m}
}

// Task is a running periodic task.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the task and waits for an in-flight run to return. It is
// safe to call more than once and on a nil Task.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
	<-t.done
}

// Every runs fn each interval until the task is stopped. With immediate set
// the first run happens right away.
func (r *Runner) Every(name string, interval time.Duration, immediate bool, fn func(context.Context) error) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		r.runEvery(ctx, name, interval, immediate, fn)
	}()
	return t
}

func (r *Runner) runEvery(ctx context.Context, name string, interval time.Duration, immediate bool, fn func(context.Context) error) {
	if immediate {
		r.runOnce(ctx, name, fn)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, name, fn)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, name string, fn func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := fn(ctx)
	dur := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
		r.log.Warn().Err(err).Str("task", name).Dur("duration", dur).Msg("task run failed")
	} else {
		r.log.Trace().Str("task", name).Dur("duration", dur).Msg("task run")
	}
	if r.metrics != nil {
		r.metrics.TaskRuns.WithLabelValues(name, status).Inc()
		r.metrics.TaskDuration.WithLabelValues(name).Observe(dur.Seconds())
	}
}

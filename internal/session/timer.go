package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ryadrakem/mms-V2/internal/jobs"
)

// Timer tracks wall clock time elapsed since a start instant and publishes
// it as HH:MM:SS on every tick.
type Timer struct {
	runner   *jobs.Runner
	interval time.Duration
	now      func() time.Time
	onTick   func(display string)

	// ctl serializes task changes; mu guards the instants read by ticks.
	ctl  sync.Mutex
	task *jobs.Task

	mu      sync.Mutex
	start   time.Time
	stopped time.Time
}

func NewTimer(runner *jobs.Runner, interval time.Duration, now func() time.Time, onTick func(string)) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Timer{runner: runner, interval: interval, now: now, onTick: onTick}
}

// Start begins ticking from the given instant. A nil or zero instant means
// now, so the duration starts at zero. A running timer is restarted.
func (t *Timer) Start(from *time.Time) {
	start := t.now()
	if from != nil && !from.IsZero() {
		start = *from
	}
	t.ctl.Lock()
	defer t.ctl.Unlock()
	t.mu.Lock()
	t.start = start
	t.stopped = time.Time{}
	t.mu.Unlock()
	t.run()
}

// Resume restarts ticking from the previous start instant.
func (t *Timer) Resume() {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	t.mu.Lock()
	if t.start.IsZero() {
		t.start = t.now()
	}
	t.stopped = time.Time{}
	t.mu.Unlock()
	t.run()
}

func (t *Timer) run() {
	t.task.Stop()
	t.task = t.runner.Every("timer_tick", t.interval, false, func(context.Context) error {
		if t.onTick != nil {
			t.onTick(t.Display())
		}
		return nil
	})
}

// Stop cancels the tick and freezes the elapsed value. Stopping a stopped
// timer does nothing.
func (t *Timer) Stop() {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	if t.task == nil {
		return
	}
	t.mu.Lock()
	t.stopped = t.now()
	t.mu.Unlock()
	t.task.Stop()
	t.task = nil
}

func (t *Timer) Running() bool {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	return t.task != nil
}

func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.start.IsZero() {
		return 0
	}
	end := t.stopped
	if end.IsZero() {
		end = t.now()
	}
	if d := end.Sub(t.start); d > 0 {
		return d
	}
	return 0
}

func (t *Timer) Display() string {
	return FormatElapsed(t.Elapsed())
}

// FormatElapsed renders d as zero padded HH:MM:SS. Hours are not capped.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// Hours converts whole elapsed seconds to fractional hours.
func Hours(d time.Duration) float64 {
	secs := math.Floor(d.Seconds())
	if secs < 0 {
		return 0
	}
	return secs / 3600
}

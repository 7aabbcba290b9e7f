package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ryadrakem/mms-V2/internal/jobs"
	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
)

// Fetcher loads the participants with the given ids.
type Fetcher func(ctx context.Context, ids []int64) ([]model.Participant, error)

// Poller refreshes the cached attendance of a fixed participant id list.
// A failed fetch keeps the previous cache.
type Poller struct {
	runner   *jobs.Runner
	interval time.Duration
	fetch    Fetcher
	log      zerolog.Logger

	ctl  sync.Mutex
	task *jobs.Task

	mu    sync.RWMutex
	cache []model.Participant
}

func NewPoller(runner *jobs.Runner, interval time.Duration, fetch Fetcher, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{runner: runner, interval: interval, fetch: fetch, log: log}
}

// Start fetches immediately, then every interval. The id list is captured
// here; restart the poller when it changes.
func (p *Poller) Start(ids []int64) {
	ids = slices.Clone(ids)
	p.ctl.Lock()
	defer p.ctl.Unlock()
	p.task.Stop()
	p.task = p.runner.Every("attendance_poll", p.interval, true, func(ctx context.Context) error {
		return p.refresh(ctx, ids)
	})
}

func (p *Poller) Stop() {
	p.ctl.Lock()
	defer p.ctl.Unlock()
	p.task.Stop()
	p.task = nil
}

func (p *Poller) refresh(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	fresh, err := p.fetch(ctx, ids)
	if err != nil {
		p.log.Warn().Err(err).Int("participants", len(ids)).Msg("attendance refresh failed")
		return err
	}
	p.Seed(fresh)
	return nil
}

// Seed replaces the cache wholesale.
func (p *Poller) Seed(ps []model.Participant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = slices.Clone(ps)
}

func (p *Poller) Participants() []model.Participant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.cache)
}

// ParticipantFetcher reads attendance through the record store.
func ParticipantFetcher(store recordstore.Store) Fetcher {
	return func(ctx context.Context, ids []int64) ([]model.Participant, error) {
		recs, err := store.Read(ctx, model.ModelParticipant, ids, []string{"name", "attendance_status", "user_id"})
		if err != nil {
			return nil, err
		}
		return decodeParticipants(recs), nil
	}
}

func decodeParticipants(recs []recordstore.Record) []model.Participant {
	out := make([]model.Participant, 0, len(recs))
	for _, r := range recs {
		status := model.AttendanceStatus(r.String("attendance_status"))
		if status == "" {
			status = model.AttendanceAwaiting
		}
		userID, _ := r.Ref("user_id")
		out = append(out, model.Participant{
			ID:         r.ID(),
			Name:       r.String("name"),
			Attendance: status,
			UserID:     userID,
		})
	}
	return out
}

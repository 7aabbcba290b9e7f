// Package session coordinates one live meeting session: its lifecycle, the
// elapsed time ticker, attendance polling, video placement and the video
// conference itself.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryadrakem/mms-V2/internal/jaas"
	"github.com/ryadrakem/mms-V2/internal/jobs"
	"github.com/ryadrakem/mms-V2/internal/metrics"
	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/notify"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
	"github.com/ryadrakem/mms-V2/internal/video"
)

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateActive
	StateEnding
	StateEnded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Navigator takes the user away from the session page.
type Navigator interface {
	NavigateBack(ctx context.Context, sessionID, planID int64) error
}

// Surface is the presentation layer hosting the session page.
type Surface interface {
	MoveVideo(ctx context.Context, sessionID int64, dock model.Dock) error
	ShowElapsed(sessionID int64, display string)
}

// TokenSource grants the room token used to join the conference.
type TokenSource interface {
	Exchange(ctx context.Context, req jaas.Request) (jaas.Grant, error)
}

// Deps are the collaborators of a Coordinator. Store and Runner are
// required; a nil Video means the session has no conference.
type Deps struct {
	Store     recordstore.Store
	Notifier  notify.Sink
	Navigator Navigator
	Surface   Surface
	Video     video.Provider
	Tokens    TokenSource
	Runner    *jobs.Runner
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// RetryPolicy bounds RetryConnection. Zero MaxAttempts means unbounded.
type RetryPolicy struct {
	MaxAttempts int
}

type Options struct {
	PollInterval time.Duration
	TickInterval time.Duration
	SettleDelay  time.Duration
	HangupDelay  time.Duration
	Retry        RetryPolicy
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 100 * time.Millisecond
	}
	if o.HangupDelay < 0 {
		o.HangupDelay = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Coordinator owns the state of one session for one user. Lifecycle
// operations are serialized by state checks and in-flight flags; the timer
// and the poller run on their own and never write the session state.
type Coordinator struct {
	id     int64
	userID int64
	deps   Deps
	opts   Options
	log    zerolog.Logger
	tracer trace.Tracer

	timer     *Timer
	poller    *Poller
	placement *Placement

	// ctx lives until teardown and carries background work.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	loaded      bool
	session     model.Session
	agenda      []model.AgendaItem
	meetingType string
	minutes     string
	localID     string
	remoteCount int
	waiting     []model.WaitingParticipant
	conf        video.Conference
	confGen     uint64
	attempts    int
	connecting  bool
	ending      bool
	closed      bool
	lastError   string

	closeOnce sync.Once
	navOnce   sync.Once
	done      chan struct{}
}

func New(sessionID, userID int64, deps Deps, opts Options) *Coordinator {
	opts = opts.withDefaults()
	if deps.Metrics == nil {
		deps.Metrics = metrics.Discard()
	}
	if deps.Runner == nil {
		deps.Runner = jobs.NewRunner(deps.Logger, deps.Metrics)
	}
	log := deps.Logger.With().Str("module", "session").Int64("session_id", sessionID).Logger()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		id:     sessionID,
		userID: userID,
		deps:   deps,
		opts:   opts,
		log:    log,
		tracer: otel.Tracer("session"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.timer = NewTimer(deps.Runner, opts.TickInterval, opts.Now, func(display string) {
		if c.deps.Surface != nil {
			c.deps.Surface.ShowElapsed(c.id, display)
		}
	})
	c.poller = NewPoller(deps.Runner, opts.PollInterval, ParticipantFetcher(deps.Store), log)
	c.placement = NewPlacement(opts.SettleDelay, func(ctx context.Context, dock model.Dock) error {
		if c.deps.Surface == nil {
			return nil
		}
		return c.deps.Surface.MoveVideo(ctx, c.id, dock)
	}, log)
	return c
}

func (c *Coordinator) ID() int64 { return c.id }

// Owner is the user that opened the session.
func (c *Coordinator) Owner() int64 { return c.userID }

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the coordinator is torn down.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Initialize loads the session and its related records, starts the timer
// and the attendance poller, then joins the conference when a video
// provider is configured. It runs once per coordinator.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if c.id <= 0 {
		c.mu.Lock()
		c.setStateLocked(StateErrored)
		c.mu.Unlock()
		c.notify(ctx, "No session ID provided", notify.Danger, "")
		c.teardown()
		return ErrMissingIdentifier
	}

	c.mu.Lock()
	if c.closed || c.state != StateUninitialized {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.setStateLocked(StateLoading)
	c.mu.Unlock()

	ld, err := c.load(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("load session failed")
		c.mu.Lock()
		c.lastError = "Failed to load meeting session"
		c.setStateLocked(StateErrored)
		c.mu.Unlock()
		c.notify(ctx, "Failed to load meeting session", notify.Danger, "")
		c.teardown()
		return err
	}

	c.mu.Lock()
	if c.closed || c.state != StateLoading {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.session = ld.session
	c.agenda = ld.agenda
	c.meetingType = ld.meetingType
	c.minutes = ld.minutes
	c.loaded = true
	c.setStateLocked(StateActive)
	withVideo := c.deps.Video != nil
	if withVideo {
		c.connecting = true
	}
	c.mu.Unlock()

	c.placement.Reset()
	c.timer.Start(ld.session.ActualStart)
	c.poller.Seed(ld.participants)
	c.poller.Start(ld.session.ParticipantIDs)
	c.log.Info().Int("participants", len(ld.participants)).Bool("host", ld.session.IsHost).Msg("session active")

	if !withVideo {
		return nil
	}
	defer c.clearConnecting()
	return c.connect(ctx)
}

// Dispose tears the coordinator down without navigating.
func (c *Coordinator) Dispose() {
	c.teardown()
}

// teardown stops the timer, then the poller, then disposes the conference.
// Every step tolerates a partially initialized coordinator.
func (c *Coordinator) teardown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.timer.Stop()
		c.poller.Stop()

		c.mu.Lock()
		conf := c.conf
		c.conf = nil
		c.confGen++
		c.mu.Unlock()
		if conf != nil {
			if err := conf.Dispose(); err != nil {
				c.log.Warn().Err(err).Msg("dispose conference failed")
			}
		}

		c.placement.Close()
		c.cancel()
		close(c.done)
		c.log.Debug().Msg("session torn down")
	})
}

func (c *Coordinator) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.deps.Metrics.LifecycleTransitions.WithLabelValues(from.String(), to.String()).Inc()
	c.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state change")
}

func (c *Coordinator) notify(ctx context.Context, msg string, sev notify.Severity, title string) {
	if c.deps.Notifier == nil {
		return
	}
	n := notify.Notification{
		SessionID: c.id,
		Message:   msg,
		Severity:  sev,
		Title:     title,
		At:        c.opts.Now().UTC(),
	}
	if err := c.deps.Notifier.Notify(ctx, n); err != nil {
		c.log.Debug().Err(err).Str("message", msg).Msg("notification not delivered")
	}
}

// navigateBack leaves the session page once.
func (c *Coordinator) navigateBack(ctx context.Context) {
	c.navOnce.Do(func() {
		if c.deps.Navigator == nil {
			return
		}
		c.mu.Lock()
		planID := c.session.PlanID
		c.mu.Unlock()
		if err := c.deps.Navigator.NavigateBack(ctx, c.id, planID); err != nil {
			c.log.Warn().Err(err).Msg("navigate back failed")
		}
	})
}

// Snapshot is a consistent copy of everything the session page renders.
type Snapshot struct {
	ID                 int64                      `json:"id"`
	State              State                      `json:"state"`
	Session            model.Session              `json:"session"`
	Participants       []model.Participant        `json:"participants"`
	Agenda             []model.AgendaItem         `json:"agenda"`
	MeetingType        string                     `json:"meeting_type"`
	Minutes            string                     `json:"pv"`
	Elapsed            string                     `json:"elapsed"`
	View               View                       `json:"view"`
	Waiting            []model.WaitingParticipant `json:"waiting_participants"`
	ActiveParticipants int                        `json:"active_participants"`
	LocalParticipantID string                     `json:"local_participant_id,omitempty"`
	Connected          bool                       `json:"video_connected"`
	Error              string                     `json:"error,omitempty"`
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		ID:                 c.id,
		State:              c.state,
		Session:            c.session,
		Agenda:             slices.Clone(c.agenda),
		MeetingType:        c.meetingType,
		Minutes:            c.minutes,
		Waiting:            slices.Clone(c.waiting),
		ActiveParticipants: c.remoteCount,
		LocalParticipantID: c.localID,
		Connected:          c.conf != nil,
		Error:              c.lastError,
	}
	s.Session.ParticipantIDs = slices.Clone(c.session.ParticipantIDs)
	s.Session.AgendaIDs = slices.Clone(c.session.AgendaIDs)
	c.mu.Unlock()

	s.Participants = c.poller.Participants()
	s.Elapsed = c.timer.Display()
	s.View = c.placement.View()
	return s
}

var errSessionNotFound = errors.New("session record not found")

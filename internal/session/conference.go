package session

import (
	"context"
	"slices"
	"time"

	"github.com/ryadrakem/mms-V2/internal/jaas"
	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/notify"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
	"github.com/ryadrakem/mms-V2/internal/video"
)

const participantsTimeout = 3 * time.Second

// connect exchanges a room token and joins the conference. Callers hold
// the connecting flag.
func (c *Coordinator) connect(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	c.notify(ctx, "Connecting to video conference...", notify.Info, "")

	cfg := video.JoinConfig{SessionID: c.id, Moderator: sess.IsHost}
	if c.deps.Tokens != nil {
		grant, err := c.deps.Tokens.Exchange(ctx, jaas.Request{UserID: c.userID, MeetingID: sess.MeetingID, SessionID: c.id})
		if err != nil {
			return c.connectFailed(ctx, &ProviderError{Op: "token", Err: err})
		}
		cfg.Domain = grant.Domain
		cfg.RoomName = grant.RoomName
		cfg.Token = grant.Token
		cfg.DisplayName = grant.UserName
		cfg.Email = grant.UserEmail
		cfg.Moderator = grant.IsModerator
	}

	conf, err := c.deps.Video.Initialize(ctx, cfg)
	if err != nil {
		return c.connectFailed(ctx, &ProviderError{Op: "initialize", Err: err})
	}

	c.mu.Lock()
	if c.state == StateEnded || c.state == StateEnding || c.ctx.Err() != nil {
		c.mu.Unlock()
		_ = conf.Dispose()
		return ErrInvalidState
	}
	prev := c.conf
	c.conf = conf
	c.confGen++
	gen := c.confGen
	c.lastError = ""
	if c.state == StateLoading {
		c.setStateLocked(StateActive)
	}
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Dispose()
	}
	go c.pump(conf, gen)
	c.log.Info().Str("room", cfg.RoomName).Bool("moderator", cfg.Moderator).Msg("conference initialized")
	return nil
}

func (c *Coordinator) connectFailed(ctx context.Context, err *ProviderError) error {
	c.log.Error().Err(err).Msg("video connect failed")
	c.mu.Lock()
	c.lastError = "Failed to connect to video conference"
	if c.state == StateActive || c.state == StateLoading {
		c.setStateLocked(StateErrored)
	}
	c.mu.Unlock()
	c.notify(ctx, "Failed to connect to video conference", notify.Danger, "")
	return err
}

func (c *Coordinator) clearConnecting() {
	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
}

// RetryConnection disposes the current conference, if any, and joins
// again. A retry while another connect is in flight fails with ErrBusy.
func (c *Coordinator) RetryConnection(ctx context.Context) error {
	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		c.notify(ctx, "Connection already in progress", notify.Info, "")
		return ErrBusy
	}
	if !c.loaded || c.closed || (c.state != StateActive && c.state != StateErrored) {
		c.mu.Unlock()
		c.notify(ctx, "Cannot reconnect to the video conference now", notify.Warning, "")
		return ErrInvalidState
	}
	if c.deps.Video == nil {
		c.mu.Unlock()
		c.notify(ctx, "Video conference is not available", notify.Warning, "")
		return ErrNotConnected
	}
	if limit := c.opts.Retry.MaxAttempts; limit > 0 && c.attempts >= limit {
		c.mu.Unlock()
		c.notify(ctx, "Failed to connect to video conference", notify.Danger, "Retry limit reached")
		return ErrRetriesExhausted
	}
	c.attempts++
	c.connecting = true
	prev := c.conf
	c.conf = nil
	c.confGen++
	c.localID = ""
	c.setStateLocked(StateLoading)
	c.mu.Unlock()
	defer c.clearConnecting()

	if prev != nil {
		if err := prev.Dispose(); err != nil {
			c.log.Warn().Err(err).Msg("dispose conference failed")
		}
	}
	return c.connect(ctx)
}

// current returns the live conference and its generation.
func (c *Coordinator) current() (video.Conference, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conf, c.confGen
}

func (c *Coordinator) pump(conf video.Conference, gen uint64) {
	for ev := range conf.Events() {
		c.handleEvent(conf, gen, ev)
	}
}

func (c *Coordinator) handleEvent(conf video.Conference, gen uint64, ev video.Event) {
	c.mu.Lock()
	stale := c.conf != conf || c.confGen != gen
	c.mu.Unlock()
	if stale {
		c.log.Debug().Str("event", string(ev.Kind)).Msg("event from stale conference")
		return
	}

	ctx := c.ctx
	switch ev.Kind {
	case video.EventJoined:
		c.onJoined(ctx, conf, ev)
	case video.EventParticipantJoined:
		c.mu.Lock()
		c.remoteCount++
		c.mu.Unlock()
		c.refreshCount(ctx, conf)
	case video.EventParticipantLeft:
		c.mu.Lock()
		c.remoteCount = max(0, c.remoteCount-1)
		c.mu.Unlock()
		c.refreshCount(ctx, conf)
	case video.EventKnocking:
		c.onKnocking(ctx, ev)
	case video.EventLeft:
		c.onLeft(ctx)
	case video.EventJoinFailed:
		c.log.Error().Str("reason", ev.Reason).Msg("join failed")
		c.mu.Lock()
		c.lastError = "Failed to join video conference"
		if c.state == StateActive || c.state == StateLoading {
			c.setStateLocked(StateErrored)
		}
		c.mu.Unlock()
		c.notify(ctx, "Failed to join video conference", notify.Danger, "")
	default:
		c.log.Warn().Str("event", string(ev.Kind)).Msg("unknown video event")
	}
}

func (c *Coordinator) onJoined(ctx context.Context, conf video.Conference, ev video.Event) {
	c.mu.Lock()
	c.localID = ev.LocalID
	c.lastError = ""
	c.session.IsConnected = true
	if c.state == StateErrored {
		c.setStateLocked(StateActive)
	}
	c.mu.Unlock()

	err := c.deps.Store.Write(ctx, model.ModelSession, []int64{c.id}, recordstore.Record{
		"is_connected":  true,
		"join_datetime": recordstore.FormatTime(c.opts.Now()),
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("record join failed")
	}
	c.notify(ctx, "Connected to video conference", notify.Success, "")
	c.refreshCount(ctx, conf)
}

func (c *Coordinator) onKnocking(ctx context.Context, ev video.Event) {
	name := ev.Name
	if name == "" {
		name = "Guest"
	}
	c.mu.Lock()
	known := slices.ContainsFunc(c.waiting, func(w model.WaitingParticipant) bool { return w.ID == ev.ParticipantID })
	if !known {
		c.waiting = append(c.waiting, model.WaitingParticipant{ID: ev.ParticipantID, Name: name})
	}
	host := c.session.IsHost
	c.mu.Unlock()
	if host {
		c.notify(ctx, name+" is waiting to join", notify.Info, "")
	}
}

// onLeft handles the local user leaving from inside the widget.
func (c *Coordinator) onLeft(ctx context.Context) {
	c.mu.Lock()
	switch c.state {
	case StateEnding:
		c.mu.Unlock()
		return
	case StateEnded:
		c.mu.Unlock()
		c.navigateBack(ctx)
		return
	}
	c.session.IsConnected = false
	c.waiting = nil
	c.setStateLocked(StateEnded)
	c.mu.Unlock()

	c.recordLeave(ctx)
	c.teardown()
	c.navigateBack(context.Background())
}

func (c *Coordinator) recordLeave(ctx context.Context) {
	err := c.deps.Store.Write(ctx, model.ModelSession, []int64{c.id}, recordstore.Record{
		"is_connected":   false,
		"leave_datetime": recordstore.FormatTime(c.opts.Now()),
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("record leave failed")
	}
}

// refreshCount replaces the running participant count with the widget's
// own list when it answers.
func (c *Coordinator) refreshCount(ctx context.Context, conf video.Conference) {
	ctx, cancel := context.WithTimeout(ctx, participantsTimeout)
	defer cancel()
	ps, err := conf.Participants(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("participants query failed")
		return
	}
	c.mu.Lock()
	c.remoteCount = len(ps)
	c.mu.Unlock()
}

// Admit lets a knocking participant in. Host only.
func (c *Coordinator) Admit(ctx context.Context, participantID string) error {
	return c.answerKnocking(ctx, participantID, true)
}

// Reject turns a knocking participant away. Host only.
func (c *Coordinator) Reject(ctx context.Context, participantID string) error {
	return c.answerKnocking(ctx, participantID, false)
}

func (c *Coordinator) answerKnocking(ctx context.Context, participantID string, admit bool) error {
	c.mu.Lock()
	host := c.session.IsHost
	conf := c.conf
	c.mu.Unlock()

	verb := "reject"
	if admit {
		verb = "admit"
	}
	if !host {
		c.notify(ctx, "Only hosts can "+verb+" participants", notify.Warning, "")
		return ErrUnauthorized
	}
	if conf == nil {
		c.notify(ctx, "Not connected to the video conference", notify.Warning, "")
		return ErrNotConnected
	}
	if err := conf.Execute(ctx, video.AnswerKnocking, participantID, admit); err != nil {
		c.log.Error().Err(err).Str("participant", participantID).Bool("admit", admit).Msg("answer knocking failed")
		c.notify(ctx, "Failed to "+verb+" participant", notify.Danger, "")
		return &ProviderError{Op: string(video.AnswerKnocking), Err: err}
	}

	c.mu.Lock()
	c.waiting = slices.DeleteFunc(c.waiting, func(w model.WaitingParticipant) bool { return w.ID == participantID })
	c.mu.Unlock()
	if admit {
		c.notify(ctx, "Participant admitted", notify.Success, "")
	}
	return nil
}

// SetMuted pauses or resumes local audio and video without leaving.
func (c *Coordinator) SetMuted(ctx context.Context, muted bool) error {
	conf, _ := c.current()
	if conf == nil {
		c.notify(ctx, "Not connected to the video conference", notify.Warning, "")
		return ErrNotConnected
	}
	for _, cmd := range []video.Command{video.ToggleAudio, video.ToggleVideo} {
		if err := conf.Execute(ctx, cmd, !muted); err != nil {
			c.log.Warn().Err(err).Str("command", string(cmd)).Msg("mute command failed")
			c.notify(ctx, "Failed to update audio and video", notify.Danger, "")
			return &ProviderError{Op: string(cmd), Err: err}
		}
	}
	return nil
}

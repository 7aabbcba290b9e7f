package session

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/notify"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
	"github.com/ryadrakem/mms-V2/internal/video"
)

// EndMeeting closes the meeting for everyone. Host only.
//
// The elapsed time is written as done to every session of the plan, then
// to the plan, then to the meeting. A failed stage rolls the coordinator
// back to Active with the timer running and returns a *StageError; stages
// before it stay written. On success remote participants are kicked and
// the local user hangs up after the hangup delay.
func (c *Coordinator) EndMeeting(ctx context.Context) error {
	c.mu.Lock()
	if !c.session.IsHost {
		c.mu.Unlock()
		c.notify(ctx, "Only hosts can end the meeting", notify.Warning, "")
		return ErrUnauthorized
	}
	if c.ending {
		c.mu.Unlock()
		c.notify(ctx, "The meeting is already ending", notify.Info, "")
		return ErrBusy
	}
	if c.state != StateActive {
		c.mu.Unlock()
		c.notify(ctx, "The meeting cannot be ended now", notify.Warning, "")
		return ErrInvalidState
	}
	c.ending = true
	c.setStateLocked(StateEnding)
	sess := c.session
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ending = false
		c.mu.Unlock()
	}()

	c.timer.Stop()
	elapsed := c.timer.Elapsed()
	hours := Hours(elapsed)
	now := c.opts.Now().UTC()

	if err := c.commitEnd(ctx, sess, hours, now); err != nil {
		stage := "unknown"
		var se *StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		c.log.Error().Err(err).Str("stage", stage).Msg("end meeting failed")
		c.deps.Metrics.EndMeetingFailures.WithLabelValues(stage).Inc()

		c.mu.Lock()
		closed := c.closed
		if c.state == StateEnding && !closed {
			c.setStateLocked(StateActive)
		}
		c.mu.Unlock()
		if !closed {
			c.timer.Resume()
		}
		c.notify(ctx, "Failed to end meeting. Please try again.", notify.Danger, "End meeting failed at "+stage)
		return err
	}

	c.mu.Lock()
	c.session.State = model.SessionDone
	c.session.IsConnected = false
	c.session.ActualEnd = &now
	c.waiting = nil
	c.mu.Unlock()

	c.kickRemotes(ctx)
	c.notify(ctx, "Meeting ended successfully", notify.Success, "")
	c.log.Info().Str("elapsed", FormatElapsed(elapsed)).Float64("hours", hours).Msg("meeting ended")

	c.mu.Lock()
	c.setStateLocked(StateEnded)
	closed := c.closed
	c.mu.Unlock()

	if !closed {
		time.AfterFunc(c.opts.HangupDelay, c.hangup)
	}
	return nil
}

func (c *Coordinator) commitEnd(ctx context.Context, sess model.Session, hours float64, now time.Time) error {
	ctx, span := c.tracer.Start(ctx, "session.end_meeting", trace.WithAttributes(
		attribute.Int64("session.id", c.id),
		attribute.Int64("plan.id", sess.PlanID),
		attribute.Int64("meeting.id", sess.MeetingID),
		attribute.Float64("duration.hours", hours),
	))
	defer span.End()

	end := recordstore.FormatTime(now)
	done := recordstore.Record{
		"state":               string(model.SessionDone),
		"actual_end_datetime": end,
		"actual_duration":     hours,
	}
	stages := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{StageSessions, func(ctx context.Context) error {
			ids := []int64{c.id}
			if sess.PlanID != 0 {
				found, err := c.deps.Store.Search(ctx, model.ModelSession, recordstore.Domain{recordstore.Eq("planification_id", sess.PlanID)})
				if err != nil {
					return err
				}
				if len(found) > 0 {
					ids = found
				}
			}
			patch := recordstore.Record{"is_connected": false}
			for k, v := range done {
				patch[k] = v
			}
			return c.deps.Store.Write(ctx, model.ModelSession, ids, patch)
		}},
		{StagePlan, func(ctx context.Context) error {
			if sess.PlanID == 0 {
				return nil
			}
			return c.deps.Store.Write(ctx, model.ModelPlan, []int64{sess.PlanID}, done)
		}},
		{StageMeeting, func(ctx context.Context) error {
			if sess.MeetingID == 0 {
				return nil
			}
			return c.deps.Store.Write(ctx, model.ModelMeeting, []int64{sess.MeetingID}, done)
		}},
	}

	for _, st := range stages {
		sctx, sspan := c.tracer.Start(ctx, "session.end_meeting."+st.name)
		err := st.run(sctx)
		if err != nil {
			sspan.RecordError(err)
			sspan.SetStatus(codes.Error, err.Error())
		}
		sspan.End()
		if err != nil {
			span.SetStatus(codes.Error, st.name)
			return &StageError{Stage: st.name, Err: err}
		}
	}
	return nil
}

// kickRemotes removes everyone but the local participant. Nobody is
// kicked before the local participant id is known. Failures are logged
// only.
func (c *Coordinator) kickRemotes(ctx context.Context) {
	conf, _ := c.current()
	if conf == nil {
		return
	}
	c.mu.Lock()
	local := c.localID
	c.mu.Unlock()
	if local == "" {
		c.log.Warn().Msg("local participant unknown, skipping kick")
		return
	}

	qctx, cancel := context.WithTimeout(ctx, participantsTimeout)
	ps, err := conf.Participants(qctx)
	cancel()
	if err != nil {
		c.log.Warn().Err(err).Msg("list participants for kick failed")
		return
	}
	for _, p := range ps {
		if p.ID == local {
			continue
		}
		if err := conf.Execute(ctx, video.Kick, p.ID); err != nil {
			c.log.Warn().Err(err).Str("participant", p.ID).Msg("kick failed")
		}
	}
}

// hangup leaves the conference, tears down and navigates back.
func (c *Coordinator) hangup() {
	if conf, _ := c.current(); conf != nil {
		if err := conf.Execute(c.ctx, video.Hangup); err != nil {
			c.log.Warn().Err(err).Msg("hangup failed")
		}
	}
	c.teardown()
	c.navigateBack(context.Background())
}

// LeaveMeeting disconnects the local user only. It is allowed for every
// participant and in every state but Ending: an end in flight owns the
// hangup, so leaving then fails with ErrBusy.
func (c *Coordinator) LeaveMeeting(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateEnded:
		c.mu.Unlock()
		return nil
	case StateEnding:
		c.mu.Unlock()
		c.notify(ctx, "The meeting is already ending", notify.Info, "")
		return ErrBusy
	}
	wasLoaded := c.loaded
	c.session.IsConnected = false
	c.waiting = nil
	c.setStateLocked(StateEnded)
	c.mu.Unlock()

	if conf, _ := c.current(); conf != nil {
		if err := conf.Execute(ctx, video.Hangup); err != nil {
			c.log.Warn().Err(err).Msg("hangup failed")
		}
	}
	if wasLoaded {
		c.recordLeave(ctx)
	}
	c.teardown()
	c.navigateBack(ctx)
	return nil
}

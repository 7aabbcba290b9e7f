package session

import (
	"context"

	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/notify"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
)

func (c *Coordinator) SetActiveTab(tab model.Tab) (View, error) {
	if !tab.Valid() {
		return c.placement.View(), ErrInvalidTab
	}
	return c.placement.SetActiveTab(tab), nil
}

// ToggleTab opens tab, or goes back to video when tab is already open.
func (c *Coordinator) ToggleTab(tab model.Tab) (View, error) {
	if !tab.Valid() {
		return c.placement.View(), ErrInvalidTab
	}
	return c.placement.Toggle(tab), nil
}

func (c *Coordinator) ShowPip() View { return c.placement.ShowPip() }

func (c *Coordinator) ClosePip() View { return c.placement.ClosePip() }

// ToggleCamera flips display_camera and persists it. The flag is restored
// if the write fails.
func (c *Coordinator) ToggleCamera(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		c.notify(ctx, "Failed to update camera", notify.Warning, "")
		return false, ErrInvalidState
	}
	c.session.DisplayCamera = !c.session.DisplayCamera
	on := c.session.DisplayCamera
	c.mu.Unlock()

	err := c.deps.Store.Write(ctx, model.ModelSession, []int64{c.id}, recordstore.Record{"display_camera": on})
	if err != nil {
		c.mu.Lock()
		c.session.DisplayCamera = !on
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("save camera flag failed")
		c.notify(ctx, "Failed to update camera", notify.Danger, "")
		return !on, err
	}
	return on, nil
}

func (c *Coordinator) SaveNotes(ctx context.Context, text string) error {
	err := c.deps.Store.Write(ctx, model.ModelSession, []int64{c.id}, recordstore.Record{"personal_notes": text})
	if err != nil {
		c.log.Error().Err(err).Msg("save notes failed")
		c.notify(ctx, "Failed to save notes", notify.Danger, "")
		return err
	}
	c.mu.Lock()
	c.session.PersonalNotes = text
	c.mu.Unlock()
	c.notify(ctx, "Notes saved successfully", notify.Success, "")
	return nil
}

// SaveMinutes writes the meeting minutes (pv) to the meeting record.
func (c *Coordinator) SaveMinutes(ctx context.Context, text string) error {
	c.mu.Lock()
	meetingID := c.session.MeetingID
	c.mu.Unlock()

	err := ErrNoMeeting
	if meetingID != 0 {
		err = c.deps.Store.Write(ctx, model.ModelMeeting, []int64{meetingID}, recordstore.Record{"pv": text})
	}
	if err != nil {
		c.log.Error().Err(err).Msg("save minutes failed")
		c.notify(ctx, "Failed to save PV", notify.Danger, "")
		return err
	}
	c.mu.Lock()
	c.minutes = text
	c.mu.Unlock()
	c.notify(ctx, "PV saved successfully", notify.Success, "")
	return nil
}

// DraftMinutes renders a minutes template from the session, its
// participants, agenda and action items. Nothing is saved.
func (c *Coordinator) DraftMinutes(ctx context.Context) (string, error) {
	actions, err := c.listActions(ctx)
	if err != nil {
		c.notify(ctx, "Failed to load PV template", notify.Danger, "")
		return "", err
	}
	assignees, err := c.Assignees(ctx)
	if err != nil {
		c.notify(ctx, "Failed to load PV template", notify.Danger, "")
		return "", err
	}

	c.mu.Lock()
	in := minutesInput{
		Session:     c.session,
		MeetingType: c.meetingType,
		Agenda:      c.agenda,
	}
	c.mu.Unlock()
	in.Participants = c.poller.Participants()
	in.Actions = actions
	in.Assignees = assignees
	in.Elapsed = c.timer.Display()
	in.Now = c.opts.Now()

	text, err := renderMinutes(in)
	if err != nil {
		c.log.Error().Err(err).Msg("render minutes failed")
		c.notify(ctx, "Failed to load PV template", notify.Danger, "")
		return "", err
	}
	c.notify(ctx, "PV template loaded", notify.Success, "")
	return text, nil
}

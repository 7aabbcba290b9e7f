package session

import (
	"context"
	"fmt"

	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/notify"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
)

var actionFields = []string{"name", "assignee", "dead_line", "priority", "status", "meeting_id", "session_id", "description"}

func (c *Coordinator) ListActions(ctx context.Context) ([]model.ActionItem, error) {
	items, err := c.listActions(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("list actions failed")
		c.notify(ctx, "Failed to load actions", notify.Danger, "")
		return nil, err
	}
	return items, nil
}

func (c *Coordinator) listActions(ctx context.Context) ([]model.ActionItem, error) {
	recs, err := c.deps.Store.SearchRead(ctx, model.ModelAction, recordstore.Domain{recordstore.Eq("session_id", c.id)}, actionFields)
	if err != nil {
		return nil, err
	}
	out := make([]model.ActionItem, 0, len(recs))
	for _, r := range recs {
		out = append(out, decodeAction(r))
	}
	return out, nil
}

func decodeAction(r recordstore.Record) model.ActionItem {
	a := model.ActionItem{
		ID:          r.ID(),
		Name:        r.String("name"),
		DueDate:     r.String("dead_line"),
		Priority:    model.Priority(r.String("priority")),
		Status:      model.ActionStatus(r.String("status")),
		Description: r.String("description"),
	}
	a.AssigneeID, _ = r.Ref("assignee")
	a.MeetingID, _ = r.Ref("meeting_id")
	a.SessionID, _ = r.Ref("session_id")
	return a
}

// AddAction creates a blank todo item scoped to the session.
func (c *Coordinator) AddAction(ctx context.Context) (model.ActionItem, error) {
	c.mu.Lock()
	meetingID := c.session.MeetingID
	c.mu.Unlock()

	item := model.ActionItem{
		Name:      "New Action",
		Priority:  model.PriorityMedium,
		Status:    model.ActionTodo,
		MeetingID: meetingID,
		SessionID: c.id,
	}
	payload := recordstore.Record{
		"name":       item.Name,
		"session_id": c.id,
		"status":     string(item.Status),
		"priority":   string(item.Priority),
	}
	if meetingID != 0 {
		payload["meeting_id"] = meetingID
	}
	id, err := c.deps.Store.Create(ctx, model.ModelAction, payload)
	if err != nil {
		c.log.Error().Err(err).Msg("create action failed")
		c.notify(ctx, "Failed to create action", notify.Danger, "")
		return model.ActionItem{}, err
	}
	item.ID = id
	c.notify(ctx, "Action item created", notify.Success, "")
	return item, nil
}

// UpdateAction writes name, status and priority. Assignee and due date
// are only written when set.
func (c *Coordinator) UpdateAction(ctx context.Context, item model.ActionItem) error {
	if err := validateAction(item); err != nil {
		c.notify(ctx, "Failed to update action", notify.Danger, "")
		return err
	}
	patch := recordstore.Record{
		"name":     item.Name,
		"status":   string(item.Status),
		"priority": string(item.Priority),
	}
	if item.AssigneeID != 0 {
		patch["assignee"] = item.AssigneeID
	}
	if item.DueDate != "" {
		patch["dead_line"] = item.DueDate
	}
	if item.Description != "" {
		patch["description"] = item.Description
	}
	if err := c.deps.Store.Write(ctx, model.ModelAction, []int64{item.ID}, patch); err != nil {
		c.log.Error().Err(err).Int64("action_id", item.ID).Msg("update action failed")
		c.notify(ctx, "Failed to update action", notify.Danger, "")
		return err
	}
	c.notify(ctx, "Action updated", notify.Success, "")
	return nil
}

func validateAction(item model.ActionItem) error {
	switch {
	case item.ID <= 0:
		return fmt.Errorf("%w: missing id", ErrInvalidAction)
	case !item.Priority.Valid():
		return fmt.Errorf("%w: priority %q", ErrInvalidAction, item.Priority)
	case !item.Status.Valid():
		return fmt.Errorf("%w: status %q", ErrInvalidAction, item.Status)
	}
	return nil
}

func (c *Coordinator) DeleteAction(ctx context.Context, id int64) error {
	if id <= 0 {
		c.notify(ctx, "Failed to delete action", notify.Danger, "")
		return fmt.Errorf("%w: missing id", ErrInvalidAction)
	}
	if err := c.deps.Store.Delete(ctx, model.ModelAction, []int64{id}); err != nil {
		c.log.Error().Err(err).Int64("action_id", id).Msg("delete action failed")
		c.notify(ctx, "Failed to delete action", notify.Danger, "")
		return err
	}
	c.notify(ctx, "Action deleted", notify.Success, "")
	return nil
}

// Assignees lists the session participants linked to a user.
func (c *Coordinator) Assignees(ctx context.Context) ([]model.Assignee, error) {
	c.mu.Lock()
	ids := append([]int64(nil), c.session.ParticipantIDs...)
	c.mu.Unlock()
	if len(ids) == 0 {
		return nil, nil
	}
	recs, err := c.deps.Store.Read(ctx, model.ModelParticipant, ids, []string{"name", "user_id"})
	if err != nil {
		return nil, err
	}
	var out []model.Assignee
	for _, r := range recs {
		if uid, _ := r.Ref("user_id"); uid != 0 {
			out = append(out, model.Assignee{UserID: uid, Name: r.String("name")})
		}
	}
	return out, nil
}

package model

import "time"

// Record store model names.
const (
	ModelSession     = "dw.meeting.session"
	ModelParticipant = "dw.participant"
	ModelPlan        = "dw.planification.meeting"
	ModelMeeting     = "dw.meeting"
	ModelAction      = "dw.actions"
	ModelAgenda      = "dw.agenda"
	ModelMeetingType = "dw.meeting.type"
	ModelUser        = "res.users"
)

type SessionState string

const (
	SessionDraft      SessionState = "draft"
	SessionInProgress SessionState = "in_progress"
	SessionPaused     SessionState = "paused"
	SessionDone       SessionState = "done"
)

type Session struct {
	ID                    int64        `json:"id"`
	Name                  string       `json:"name"`
	Subject               string       `json:"subject"`
	MeetingID             int64        `json:"meeting_id"`
	PlanID                int64        `json:"plan_id"`
	UserID                int64        `json:"user_id"`
	ParticipantID         int64        `json:"participant_id"`
	MeetingTypeID         int64        `json:"meeting_type_id"`
	State                 SessionState `json:"state"`
	ActualStart           *time.Time   `json:"actual_start,omitempty"`
	ActualEnd             *time.Time   `json:"actual_end,omitempty"`
	PlannedStart          *time.Time   `json:"planned_start,omitempty"`
	PlannedHours          float64      `json:"planned_hours"`
	IsConnected           bool         `json:"is_connected"`
	IsHost                bool         `json:"is_host"`
	DisplayCamera         bool         `json:"display_camera"`
	HasRemoteParticipants bool         `json:"has_remote_participants"`
	PersonalNotes         string       `json:"personal_notes"`
	ParticipantIDs        []int64      `json:"participant_ids"`
	AgendaIDs             []int64      `json:"agenda_ids"`
}

type AttendanceStatus string

const (
	AttendancePresent  AttendanceStatus = "present"
	AttendanceLate     AttendanceStatus = "late"
	AttendanceAbsent   AttendanceStatus = "absent"
	AttendanceExcused  AttendanceStatus = "excused"
	AttendanceAwaiting AttendanceStatus = "default"
)

// Label is the display text for an attendance status.
func (s AttendanceStatus) Label() string {
	switch s {
	case AttendancePresent:
		return "Present"
	case AttendanceLate:
		return "Late"
	case AttendanceAbsent:
		return "Absent"
	case AttendanceExcused:
		return "Excused"
	case AttendanceAwaiting:
		return "Awaiting"
	default:
		return "Unknown"
	}
}

type Participant struct {
	ID         int64            `json:"id"`
	Name       string           `json:"name"`
	Attendance AttendanceStatus `json:"attendance_status"`
	UserID     int64            `json:"user_id,omitempty"`
}

// WaitingParticipant is a guest knocking at the lobby. Never persisted.
type WaitingParticipant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AgendaItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type ActionStatus string

const (
	ActionTodo       ActionStatus = "todo"
	ActionInProgress ActionStatus = "in_progress"
	ActionDone       ActionStatus = "done"
)

func (s ActionStatus) Valid() bool {
	return s == ActionTodo || s == ActionInProgress || s == ActionDone
}

type ActionItem struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	AssigneeID  int64        `json:"assignee_id,omitempty"`
	DueDate     string       `json:"dead_line,omitempty"`
	Priority    Priority     `json:"priority"`
	Status      ActionStatus `json:"status"`
	Description string       `json:"description,omitempty"`
	MeetingID   int64        `json:"meeting_id,omitempty"`
	SessionID   int64        `json:"session_id,omitempty"`
}

// Assignee is a participant that can own action items.
type Assignee struct {
	UserID int64  `json:"id"`
	Name   string `json:"name"`
}

type Tab string

const (
	TabVideo   Tab = "video"
	TabNotes   Tab = "notes"
	TabActions Tab = "actions"
	TabAgenda  Tab = "agenda"
)

func (t Tab) Valid() bool {
	switch t {
	case TabVideo, TabNotes, TabActions, TabAgenda:
		return true
	}
	return false
}

// Dock is where the live video surface is mounted.
type Dock string

const (
	DockMain    Dock = "main"
	DockSidebar Dock = "sidebar"
)

package session

import (
	"strings"
	"text/template"
	"time"

	"github.com/ryadrakem/mms-V2/internal/model"
)

const rule = "================================================================"

var minutesTemplate = template.Must(template.New("minutes").Funcs(template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"rule": func() string { return rule },
}).Parse(`MEETING MINUTES

{{rule}}
GENERAL INFORMATION
{{rule}}

Title: {{or .Session.Name "[Meeting title]"}}
Subject: {{or .Session.Subject "[Meeting subject]"}}
Date: {{.Date}}
Start time: {{.StartTime}}
Planned duration: {{.Session.PlannedHours}} hours
Meeting type: {{or .MeetingType "[Type]"}}


PARTICIPANTS
{{rule}}

Present ({{len .Participants}}):
{{- range .Participants}}
  - {{.Name}}
{{- else}}
  [Participant list]
{{- end}}

Absent:
  [To complete]


AGENDA
{{rule}}
{{range $i, $item := .Agenda}}
{{inc $i}}. {{$item.Name}}{{if $item.Description}}
   {{$item.Description}}{{end}}
{{- else}}
[Agenda items]
{{- end}}


DISCUSSION
{{rule}}
{{range .Agenda}}
{{.Name}}
   Discussion:
   [To complete]
{{else}}
[To complete]
{{end}}

DECISIONS
{{rule}}

[To complete]


ACTION ITEMS
{{rule}}
{{range $i, $a := .Actions}}
{{inc $i}}. {{$a.Name}} - Assigned to: {{$.AssigneeName $a.AssigneeID}}{{if $a.DueDate}} (due: {{$a.DueDate}}){{end}}
{{- else}}
[Action items]
{{- end}}


CLOSING
{{rule}}

Elapsed time: {{or .Elapsed "[End time]"}}

Signatures:
  Chair: ________________
  Secretary: ________________

{{rule}}
Generated {{.Generated}}
{{rule}}
`))

type minutesInput struct {
	Session      model.Session
	MeetingType  string
	Participants []model.Participant
	Agenda       []model.AgendaItem
	Actions      []model.ActionItem
	Assignees    []model.Assignee
	Elapsed      string
	Now          time.Time
}

func (in minutesInput) start() time.Time {
	if in.Session.ActualStart != nil {
		return *in.Session.ActualStart
	}
	return in.Now
}

func (in minutesInput) Date() string      { return in.start().Format("Monday, January 2, 2006") }
func (in minutesInput) StartTime() string { return in.start().Format("15:04") }
func (in minutesInput) Generated() string { return in.Now.Format("2006-01-02 15:04:05") }

func (in minutesInput) AssigneeName(userID int64) string {
	for _, a := range in.Assignees {
		if a.UserID == userID && userID != 0 {
			return a.Name
		}
	}
	return "Unassigned"
}

func renderMinutes(in minutesInput) (string, error) {
	var b strings.Builder
	if err := minutesTemplate.Execute(&b, in); err != nil {
		return "", err
	}
	return b.String(), nil
}

package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Alarm {{.EventLabel}}]
Title: {{.Title}}
Severity: {{.Severity}}{{ if .PreviousSeverity }} (was {{.PreviousSeverity}}){{ end }}
{{ if .Vessel }}Vessel: {{.Vessel}}
{{ end }}{{ if .Engine }}Engine: {{.Engine}}
{{ end }}{{ if .Sensor }}Sensor: {{.Sensor}}
{{ end }}{{ if .TriggerValue }}Trigger Value: {{.TriggerValue}}
{{ end }}{{ if .Threshold }}Threshold: {{.Threshold}}
{{ end }}{{ if .Level }}Escalation Level: {{.Level}}
{{ end }}Triggered: {{.TriggeredAt}}
Status: {{.Status}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Title            string
	Description      string
	Severity         string
	PreviousSeverity string
	Vessel           string
	Engine           string
	Sensor           string
	TriggerValue     string
	Threshold        string
	Level            int
	TriggeredAt      string
	Status           string
	Event            string
	EventLabel       string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alarm-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alarm template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

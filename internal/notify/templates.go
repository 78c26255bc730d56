package notify

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

const textBody = `{{.Title}}

{{if .Message}}{{.Message}}

{{end}}{{with .Monitor}}Monitor: {{.Name}} ({{.Type}})
Status:  {{.Status}}
{{if .Target}}Target:  {{.Target}}
{{end}}{{if .Error}}Error:   {{.Error}}
{{end}}{{end}}{{with .Incident}}Incident: {{.Title}}
Status:   {{.Status}}
{{if .Impact}}Impact:   {{.Impact}}
{{end}}{{end}}
Time: {{.Time}}
`

const htmlBody = `<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; color: #1f2933;">
  <div style="max-width: 560px; margin: 0 auto; padding: 24px;">
    <div style="border-left: 4px solid {{.Color}}; padding-left: 16px;">
      <h2 style="margin: 0 0 8px 0;">{{.Title}}</h2>
      {{if .Message}}<p style="margin: 0 0 16px 0;">{{.Message}}</p>{{end}}
    </div>
    <table style="margin-top: 16px; border-collapse: collapse;">
      {{with .Monitor}}
      <tr><td style="padding: 4px 12px 4px 0;"><strong>Monitor</strong></td><td>{{.Name}} ({{.Type}})</td></tr>
      <tr><td style="padding: 4px 12px 4px 0;"><strong>Status</strong></td><td>{{.Status}}</td></tr>
      {{if .Target}}<tr><td style="padding: 4px 12px 4px 0;"><strong>Target</strong></td><td>{{.Target}}</td></tr>{{end}}
      {{if .Error}}<tr><td style="padding: 4px 12px 4px 0;"><strong>Error</strong></td><td>{{.Error}}</td></tr>{{end}}
      {{end}}
      {{with .Incident}}
      <tr><td style="padding: 4px 12px 4px 0;"><strong>Incident</strong></td><td>{{.Title}}</td></tr>
      <tr><td style="padding: 4px 12px 4px 0;"><strong>Status</strong></td><td>{{.Status}}</td></tr>
      {{if .Impact}}<tr><td style="padding: 4px 12px 4px 0;"><strong>Impact</strong></td><td>{{.Impact}}</td></tr>{{end}}
      {{end}}
      <tr><td style="padding: 4px 12px 4px 0;"><strong>Time</strong></td><td>{{.Time}}</td></tr>
    </table>
  </div>
</body>
</html>
`

var (
	textTemplate = texttemplate.Must(texttemplate.New("text").Parse(textBody))
	htmlTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
)

type emailView struct {
	Title    string
	Message  string
	Monitor  *MonitorInfo
	Incident *Incident
	Time     string
	Color    string
}

// RenderedEmail is an event rendered for email delivery.
type RenderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

// RenderEmail renders the subject, plain text and HTML bodies for ev.
func RenderEmail(ev Event) (*RenderedEmail, error) {
	view := emailView{
		Title:    ev.Title,
		Message:  ev.Message,
		Monitor:  ev.Monitor,
		Incident: ev.Incident,
		Time:     ev.OccurredAt.UTC().Format(time.RFC1123),
		Color:    severityColor(ev.Severity()),
	}

	var text, html bytes.Buffer
	if err := textTemplate.Execute(&text, view); err != nil {
		return nil, err
	}
	if err := htmlTemplate.Execute(&html, view); err != nil {
		return nil, err
	}

	return &RenderedEmail{
		Subject: "[" + strings.ToUpper(ev.Severity()) + "] " + ev.Title,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func severityColor(severity string) string {
	switch severity {
	case "critical":
		return "#d64545"
	case "warning":
		return "#f0b429"
	case "ok":
		return "#3ebd93"
	default:
		return "#2680c2"
	}
}

package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template names.
const (
	TemplateProActivated  = "pro_activated"
	TemplatePaymentFailed = "payment_failed"
	TemplateDowngraded    = "downgraded"
)

var subjects = map[string]string{
	TemplateProActivated:  "Your Pro plan is active",
	TemplatePaymentFailed: "We couldn't process your payment",
	TemplateDowngraded:    "Your plan has changed to Free",
}

var templates = template.Must(template.New("").Parse(`
{{define "pro_activated"}}<p>Hi {{.Name}},</p>
<p>Your Pro subscription is now active{{if .PeriodEnd}} until {{.PeriodEnd}}{{end}}. Uploads, summaries and flashcards are no longer capped.</p>
<p><a href="{{.AppURL}}">Open StudyKit</a></p>{{end}}
{{define "payment_failed"}}<p>Hi {{.Name}},</p>
<p>Your latest payment for StudyKit Pro failed. You keep Pro access until {{if .PeriodEnd}}{{.PeriodEnd}}{{else}}the end of the current period{{end}}; please update your payment method to avoid losing it.</p>
<p><a href="{{.AppURL}}/billing">Update payment details</a></p>{{end}}
{{define "downgraded"}}<p>Hi {{.Name}},</p>
<p>Your account is now on the Free plan. Monthly limits apply from now on.</p>
<p><a href="{{.AppURL}}/billing">Upgrade again</a></p>{{end}}
`))

// TemplateData feeds the notification templates.
type TemplateData struct {
	Name      string
	PeriodEnd string
	AppURL    string
}

// Render builds a Message from a named template.
func Render(name, to string, data TemplateData) (Message, error) {
	subject, ok := subjects[name]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}

	return Message{To: to, Subject: subject, BodyHTML: buf.String(), Tag: name}, nil
}

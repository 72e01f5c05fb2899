// Package mailer renders and sends notification e-mails over SMTP.
package mailer

import (
	"bytes"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"
)

// Sender delivers one message. *Mailer implements it.
type Sender interface {
	Send(to, subject, body string) error
}

type Mailer struct {
	addr string
	from string
	auth smtp.Auth
	log  *zerolog.Logger
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New returns a mailer for the SMTP server at host:port. Authentication is
// skipped when password is empty.
func New(host string, port int, from, password string, log *zerolog.Logger) *Mailer {
	m := &Mailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
		log:  log,
		send: smtp.SendMail,
	}
	if password != "" {
		m.auth = smtp.PlainAuth("", from, password, host)
	}
	return m
}

// Send delivers a plain-text message. Line breaks in to and subject are
// flattened and a non-ASCII subject is Q-encoded, so header values cannot
// start new headers or the body.
func (m *Mailer) Send(to, subject, body string) error {
	to = singleLine(to)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.from, to, mime.QEncoding.Encode("utf-8", singleLine(subject)), body,
	)
	if err := m.send(m.addr, m.auth, m.from, []string{to}, []byte(msg)); err != nil {
		m.log.Warn().Err(err).Str("to", to).Msg("failed to send email")
		return fmt.Errorf("send email: %w", err)
	}
	m.log.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

func singleLine(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, v)
}

// Log only writes messages to the log. Used when no SMTP host is configured.
type Log struct {
	Logger *zerolog.Logger
}

func (l Log) Send(to, subject, _ string) error {
	l.Logger.Info().Str("to", to).Str("subject", subject).Msg("email not sent, smtp disabled")
	return nil
}

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"when": func(t time.Time) string { return t.UTC().Format("Mon, 02 Jan 2006 15:04 MST") },
}).Parse(`
{{define "event_created"}}Hello {{.OrganizerName}},

Your event "{{.Title}}" is live. It starts {{when .StartDate}}.
Share it with this link: /events/{{.Slug}}
{{end}}
{{define "event_deleted"}}Hello {{.Name}},

The event "{{.Title}}" planned for {{when .StartDate}} has been cancelled by its organizer.
Your registration has been removed.
{{end}}
{{define "registration_created"}}Hello {{.AttendeeName}},

You are registered for "{{.EventTitle}}" on {{when .StartDate}}.
Event page: /events/{{.EventSlug}}
{{end}}`))

// Render executes the named body template with data.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

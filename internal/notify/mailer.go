// Package notify renders and delivers the emails sent to platform admins.
//
// Rendering is shared; delivery is delegated to a Transport (SMTP, an AMQP
// mail queue, or the log). Send errors are returned to the caller and never
// retried here.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"
)

// Message kinds, carried on queued jobs so the consumer can route them.
const (
	KindAdminSetup        = "admin_setup"
	KindAdminAccessUpdate = "admin_access_update"
)

// Mailer sends the admin lifecycle emails.
type Mailer interface {
	SendAdminSetupEmail(ctx context.Context, e SetupEmail) error
	SendAdminAccessUpdateEmail(ctx context.Context, e AccessUpdateEmail) error
}

// SetupEmail invites an admin to choose a password. The access block is
// included only for the bootstrap admin; invited admins receive the gate
// credentials with the next rotation.
type SetupEmail struct {
	To              string
	Name            string
	SetupURL        string
	SetupExpiresAt  time.Time
	AccessURL       string
	AccessKey       string
	AccessExpiresAt time.Time
}

// AccessUpdateEmail tells an admin the secret path and key changed.
type AccessUpdateEmail struct {
	To        string
	Name      string
	AccessURL string
	AccessKey string
	ExpiresAt time.Time
}

// Message is a rendered email ready for a transport.
type Message struct {
	Kind    string `json:"kind"`
	From    string `json:"from"`
	To      string `json:"to"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Transport delivers a rendered message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.UTC().Format("Mon, 02 Jan 2006 15:04 MST") },
}).ParseFS(templateFS, "templates/*.html"))

// Dispatcher renders admin emails and hands them to a Transport.
type Dispatcher struct {
	transport Transport
	from      string
}

// New returns a Dispatcher that sends from the given address.
func New(transport Transport, from string) *Dispatcher {
	return &Dispatcher{transport: transport, from: from}
}

// SendAdminSetupEmail renders and sends the setup invitation.
func (d *Dispatcher) SendAdminSetupEmail(ctx context.Context, e SetupEmail) error {
	html, err := render("admin_setup.html", e)
	if err != nil {
		return err
	}
	return d.send(ctx, Message{
		Kind:    KindAdminSetup,
		To:      e.To,
		Name:    e.Name,
		Subject: "Set up your Assistly admin account",
		HTML:    html,
	})
}

// SendAdminAccessUpdateEmail renders and sends the new gate credentials.
func (d *Dispatcher) SendAdminAccessUpdateEmail(ctx context.Context, e AccessUpdateEmail) error {
	html, err := render("admin_access_update.html", e)
	if err != nil {
		return err
	}
	return d.send(ctx, Message{
		Kind:    KindAdminAccessUpdate,
		To:      e.To,
		Name:    e.Name,
		Subject: "Your Assistly admin access has been updated",
		HTML:    html,
	})
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("send %s email: empty recipient", msg.Kind)
	}
	msg.From = d.from
	if err := d.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email to %s: %w", msg.Kind, msg.To, err)
	}
	return nil
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

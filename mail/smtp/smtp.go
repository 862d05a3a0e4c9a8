// Package smtp delivers credential lifecycle mail over SMTP with go-mail.
package smtp

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	gomail "github.com/wneessen/go-mail"

	"github.com/MrEthical07/sessionguard/mail"
)

// Sender is satisfied by *gomail.Client.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, m ...*gomail.Msg) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Product  string
}

// Mailer implements mail.Mailer.
type Mailer struct {
	sender  Sender
	from    string
	product string
}

var _ mail.Mailer = (*Mailer)(nil)

// New dials cfg.Host for every delivery. STARTTLS is used when the server
// offers it; credentials are sent only when Username is set.
func New(cfg Config) (*Mailer, error) {
	opts := []gomail.Option{gomail.WithTLSPolicy(gomail.TLSOpportunistic)}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return NewWithSender(client, cfg.From, cfg.Product), nil
}

func NewWithSender(sender Sender, from, product string) *Mailer {
	if product == "" {
		product = "your account"
	}
	return &Mailer{sender: sender, from: from, product: product}
}

var templates = template.Must(template.New("").Parse(`
{{define "verify"}}<h3>Confirm your e-mail address</h3>
<p>Finish setting up {{.Product}} by confirming this address.</p>
<p><a href="{{.Link}}">Verify e-mail</a></p>
<p>If you did not create an account, you can ignore this email.</p>{{end}}
{{define "reset"}}<h3>Confirm your password change</h3>
<p>We received a request to change the password of {{.Product}}.</p>
<p><a href="{{.Link}}">Confirm new password</a></p>
<p>If you did not request this change, do not follow the link and change your password.</p>{{end}}
{{define "recover"}}<h3>Password recovery</h3>
<p>Your temporary password is <strong>{{.TempPassword}}</strong>.</p>
<p>It becomes active once you follow this link: <a href="{{.Link}}">Activate temporary password</a></p>
<p>If you did not request this, you can ignore this email.</p>{{end}}
{{define "alert"}}<h3>Suspicious sign-in activity</h3>
<p>A session credential of {{.Product}} was used after it had been replaced. All sessions have been signed out.</p>
{{if .Locked}}<p>Your account has been locked. Recover your password to regain access.</p>{{end}}{{end}}
`))

type view struct {
	Product      string
	Link         string
	TempPassword string
	Locked       bool
}

func (m *Mailer) SendAccountVerify(ctx context.Context, email, link string) error {
	return m.send(ctx, email, "Verify your e-mail address", "verify", view{Link: link})
}

func (m *Mailer) SendPasswordReset(ctx context.Context, email, link string) error {
	return m.send(ctx, email, "Confirm your password change", "reset", view{Link: link})
}

func (m *Mailer) SendPasswordRecover(ctx context.Context, email, link, tempPassword string) error {
	return m.send(ctx, email, "Password recovery", "recover", view{Link: link, TempPassword: tempPassword})
}

func (m *Mailer) SendReuseAlert(ctx context.Context, email string, accountLocked bool) error {
	return m.send(ctx, email, "Security alert", "alert", view{Locked: accountLocked})
}

func (m *Mailer) send(ctx context.Context, to, subject, tmpl string, v view) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.Product = m.product

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, v); err != nil {
		return fmt.Errorf("render %s email: %w", tmpl, err)
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, body.String())

	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", tmpl, err)
	}
	return nil
}

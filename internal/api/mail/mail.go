package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"

	"github.com/yisivlay/account-service/config"
)

// TemplateKind selects the message template for an outbound email.
type TemplateKind string

const (
	TemplateActivateAccount TemplateKind = "activate_account"
)

// Sender delivers a single message. Callers are expected to dispatch
// asynchronously; delivery failures must never fail the calling operation.
type Sender interface {
	Send(ctx context.Context, to, username string, kind TemplateKind, activationURL, code, subject string) error
}

var activationTemplate = template.Must(template.New("activate_account").Parse(`<!DOCTYPE html>
<html>
<body>
  <p>Hello {{.Username}},</p>
  <p>Thank you for registering. Please use the following code to activate your account:</p>
  <h2>{{.ActivationCode}}</h2>
  <p>Or follow this link: <a href="{{.ConfirmationURL}}">{{.ConfirmationURL}}</a></p>
  <p>The code expires in 15 minutes.</p>
</body>
</html>
`))

var _ Sender = (*SMTPSender)(nil)

// SMTPSender delivers mail over plain SMTP. No third-party mail client is
// used; net/smtp covers the single template this service sends.
type SMTPSender struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

func NewSMTPSender(cfg config.SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger,
	}
}

type templateData struct {
	Username        string
	ConfirmationURL string
	ActivationCode  string
}

// Send renders the template for kind and delivers it to the recipient.
func (s *SMTPSender) Send(ctx context.Context, to, username string, kind TemplateKind, activationURL, code, subject string) error {
	body, err := renderTemplate(kind, templateData{
		Username:        username,
		ConfirmationURL: activationURL,
		ActivationCode:  code,
	})
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	msg := buildMessage(s.cfg.From, to, subject, body)

	addr := s.cfg.Host + ":" + s.cfg.Port
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.logger.InfoContext(ctx, "Email dispatched",
		slog.String("to", to),
		slog.String("template", string(kind)),
	)
	return nil
}

func renderTemplate(kind TemplateKind, data templateData) (string, error) {
	var tmpl *template.Template
	switch kind {
	case TemplateActivateAccount:
		tmpl = activationTemplate
	default:
		// Unknown kinds fall back to the activation template, matching the
		// behaviour of the confirmation mail flow.
		tmpl = activationTemplate
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return b.Bytes()
}

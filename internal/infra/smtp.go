package infra

import (
	"fmt"
	"net/smtp"

	"clinica/internal/config"

	"github.com/jordan-wright/email"
)

// Mailer wraps SMTP configuration for purchase notifications.
type Mailer struct {
	host     string
	user     string
	password string
	addr     string
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		addr:     fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
	}
}

// Configurado reports whether an SMTP host was provided. Without one the
// email worker drops jobs instead of retrying forever.
func (m *Mailer) Configurado() bool { return m != nil && m.host != "" }

// SendNotificacion sends a plain-text message, plus an HTML alternative when
// html is non-empty.
func (m *Mailer) SendNotificacion(to, subject, text, html string) error {
	if !m.Configurado() {
		return fmt.Errorf("mailer: SMTP no configurado")
	}
	e := email.NewEmail()
	e.From = m.user
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(text)
	if html != "" {
		e.HTML = []byte(html)
	}

	auth := smtp.PlainAuth("", m.user, m.password, m.host)
	return e.Send(m.addr, auth)
}

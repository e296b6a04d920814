package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"lodging/internal/shared/config"
	"lodging/pkg/logger"
)

var ErrInvalidSMTPConfig = errors.New("invalid SMTP configuration")

// EmailService delivers guest notifications.
type EmailService interface {
	SendNotification(ctx context.Context, notification *EmailNotification) error
	SendHTML(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	// ImplicitTLS dials TLS directly (port 465) instead of upgrading with STARTTLS.
	ImplicitTLS bool
	Timeout     time.Duration
}

// SMTPConfigFrom adapts the application email settings.
func SMTPConfigFrom(cfg config.EmailConfig) *SMTPConfig {
	return &SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		FromEmail:   cfg.FromEmail,
		FromName:    cfg.FromName,
		ImplicitTLS: cfg.SMTPPort == 465,
		Timeout:     30 * time.Second,
	}
}

func (c *SMTPConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidSMTPConfig)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidSMTPConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidSMTPConfig)
	}
	if c.FromEmail == "" {
		return fmt.Errorf("%w: from email is required", ErrInvalidSMTPConfig)
	}
	return nil
}

// SMTPEmailService sends multipart emails through an SMTP relay.
type SMTPEmailService struct {
	config    *SMTPConfig
	templates *emailTemplates
}

func NewSMTPEmailService(cfg *SMTPConfig) (*SMTPEmailService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPEmailService{config: cfg, templates: defaultTemplates}, nil
}

func (s *SMTPEmailService) SendNotification(ctx context.Context, notification *EmailNotification) error {
	htmlBody, textBody, err := s.templates.render(notification)
	if err != nil {
		return fmt.Errorf("failed to generate email content: %w", err)
	}
	return s.SendHTML(ctx, notification.RecipientEmail, notification.Subject, htmlBody, textBody)
}

func (s *SMTPEmailService) SendHTML(ctx context.Context, to, subject, htmlBody, textBody string) error {
	message := s.buildMessage(to, subject, htmlBody, textBody, time.Now())

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	done := make(chan error, 1)
	go func() {
		if s.config.ImplicitTLS {
			done <- s.sendWithTLS(addr, auth, to, message)
		} else {
			done <- s.sendWithSTARTTLS(addr, auth, to, message)
		}
	}()

	timer := time.NewTimer(s.config.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("failed to send email: timed out after %s", s.config.Timeout)
	}

	logger.GetDefault().InfoWithContext(ctx, "Email sent", map[string]interface{}{
		"to":      to,
		"subject": subject,
	})
	return nil
}

func (s *SMTPEmailService) sendWithSTARTTLS(addr string, auth smtp.Auth, to string, message []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Quit()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	return s.deliver(client, auth, to, message)
}

func (s *SMTPEmailService) sendWithTLS(addr string, auth smtp.Auth, to string, message []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return err
	}
	defer client.Quit()

	return s.deliver(client, auth, to, message)
}

func (s *SMTPEmailService) deliver(client *smtp.Client, auth smtp.Auth, to string, message []byte) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}
	if err := client.Mail(s.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return w.Close()
}

// buildMessage creates a multipart/alternative message with a text and an HTML part.
func (s *SMTPEmailService) buildMessage(to, subject, htmlBody, textBody string, now time.Time) []byte {
	boundary := "boundary_" + strconv.FormatInt(now.UnixNano(), 10)

	headers := map[string]string{
		"From":         fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail),
		"To":           to,
		"Subject":      encodeHeader(subject),
		"MIME-Version": "1.0",
		"Date":         now.Format(time.RFC1123Z),
		"Content-Type": fmt.Sprintf("multipart/alternative; boundary=%s", boundary),
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headers[k])
	}
	b.WriteString("\r\n")

	if textBody != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(textBody + "\r\n")
	}
	if htmlBody != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(htmlBody + "\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}

// encodeHeader applies RFC 2047 encoding to non-ASCII subjects.
func encodeHeader(v string) string {
	return mime.QEncoding.Encode("UTF-8", v)
}

// LogEmailService writes notifications to the log instead of sending them.
// Used when no SMTP host is configured.
type LogEmailService struct{}

func (LogEmailService) SendNotification(ctx context.Context, notification *EmailNotification) error {
	_, textBody, err := defaultTemplates.render(notification)
	if err != nil {
		return err
	}
	return LogEmailService{}.SendHTML(ctx, notification.RecipientEmail, notification.Subject, "", textBody)
}

func (LogEmailService) SendHTML(ctx context.Context, to, subject, _, textBody string) error {
	logger.GetDefault().InfoWithContext(ctx, "Email (not sent, SMTP disabled)", map[string]interface{}{
		"to":      to,
		"subject": subject,
		"body":    textBody,
	})
	return nil
}

// NewEmailService returns an SMTP sender when a host is configured and a
// logging sender otherwise.
func NewEmailService(cfg config.EmailConfig) (EmailService, error) {
	if cfg.SMTPHost == "" {
		return LogEmailService{}, nil
	}
	return NewSMTPEmailService(SMTPConfigFrom(cfg))
}

type emailTemplates struct {
	html map[NotificationType]*template.Template
	text map[NotificationType]*texttemplate.Template
}

func (t *emailTemplates) render(n *EmailNotification) (string, string, error) {
	htmlTmpl, ok := t.html[n.Type]
	if !ok {
		return "", "", fmt.Errorf("no template for notification type %s", n.Type)
	}
	var htmlBuf, textBuf bytes.Buffer
	if err := htmlTmpl.Execute(&htmlBuf, n.Data); err != nil {
		return "", "", fmt.Errorf("failed to execute HTML template: %w", err)
	}
	if err := t.text[n.Type].Execute(&textBuf, n.Data); err != nil {
		return "", "", fmt.Errorf("failed to execute text template: %w", err)
	}
	return htmlBuf.String(), textBuf.String(), nil
}

var defaultTemplates = &emailTemplates{
	html: map[NotificationType]*template.Template{
		NotificationTypeReservationConfirmed: template.Must(template.New("confirmed").Parse(`<h2>Reserva confirmada</h2>
<p>Olá {{.GuestName}},</p>
<p>Recebemos o seu pagamento e a reserva <strong>{{.ReservationNumber}}</strong> está confirmada.</p>
<ul>
<li>Alojamento: {{.RoomID}}</li>
<li>Check-in: {{.CheckIn}}</li>
<li>Check-out: {{.CheckOut}}</li>
<li>Total: {{.Amount}} {{.Currency}}</li>
</ul>
<p>Até breve!</p>`)),
		NotificationTypePaymentFailed: template.Must(template.New("failed").Parse(`<h2>Pagamento não concluído</h2>
<p>Olá {{.GuestName}},</p>
<p>O pagamento da reserva <strong>{{.ReservationNumber}}</strong> ({{.CheckIn}} a {{.CheckOut}}) não foi concluído.</p>
<p>A reserva continua pendente. Pode tentar novamente a partir da página da reserva.</p>`)),
	},
	text: map[NotificationType]*texttemplate.Template{
		NotificationTypeReservationConfirmed: texttemplate.Must(texttemplate.New("confirmed").Parse(
			"Olá {{.GuestName}},\n\nA reserva {{.ReservationNumber}} está confirmada.\n" +
				"Alojamento: {{.RoomID}}\nCheck-in: {{.CheckIn}}\nCheck-out: {{.CheckOut}}\nTotal: {{.Amount}} {{.Currency}}\n")),
		NotificationTypePaymentFailed: texttemplate.Must(texttemplate.New("failed").Parse(
			"Olá {{.GuestName}},\n\nO pagamento da reserva {{.ReservationNumber}} ({{.CheckIn}} a {{.CheckOut}}) não foi concluído.\n" +
				"A reserva continua pendente.\n")),
	},
}

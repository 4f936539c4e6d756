package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/maltedev/dealhound/internal/models"
)

type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	Sender     string
	Password   string
	Recipient  string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails one message per alert over SMTP with PLAIN auth.
// smtp.SendMail upgrades to TLS when the server offers STARTTLS.
type EmailNotifier struct {
	cfg      EmailConfig
	sendMail sendMailFunc
	logger   *slog.Logger
}

func NewEmailNotifier(cfg EmailConfig, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{
		cfg:      cfg,
		sendMail: smtp.SendMail,
		logger:   logger.With("component", "email_notifier"),
	}
}

func (n *EmailNotifier) Send(ctx context.Context, event models.AlertEvent) error {
	if n.cfg.Sender == "" || n.cfg.Password == "" || n.cfg.Recipient == "" {
		return fmt.Errorf("email alert: %w", ErrMissingCredentials)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(n.cfg.SMTPServer, strconv.Itoa(n.cfg.SMTPPort))
	auth := smtp.PlainAuth("", n.cfg.Sender, n.cfg.Password, n.cfg.SMTPServer)

	if err := n.sendMail(addr, auth, n.cfg.Sender, []string{n.cfg.Recipient}, n.message(event)); err != nil {
		return fmt.Errorf("failed to send email alert: %w", err)
	}

	n.logger.Info("email alert sent", "alert_id", event.ID.String(), "recipient", n.cfg.Recipient)
	return nil
}

func Subject(event models.AlertEvent) string {
	return fmt.Sprintf("DealHound Alert: %s Price Drop!", event.Reading.DisplayName())
}

func Body(event models.AlertEvent) string {
	r := event.Reading
	var b strings.Builder
	b.WriteString("DealHound Price Alert!\r\n\r\n")
	fmt.Fprintf(&b, "Product: %s\r\n", r.DisplayName())
	fmt.Fprintf(&b, "Current Price: $%s\r\n", r.PriceString())
	fmt.Fprintf(&b, "Threshold: $%s\r\n", event.Threshold.StringFixed(2))
	fmt.Fprintf(&b, "Availability: %s\r\n", r.Availability)
	fmt.Fprintf(&b, "URL: %s\r\n\r\n", r.URL)
	b.WriteString("The price has dropped below your threshold!\r\n")
	return b.String()
}

func (n *EmailNotifier) message(event models.AlertEvent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.Sender)
	fmt.Fprintf(&b, "To: %s\r\n", n.cfg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", Subject(event))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(Body(event))
	return []byte(b.String())
}

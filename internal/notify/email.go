package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"pos-analytics/config"
	"pos-analytics/internal/logging"
)

// EmailSender delivers report notifications over SMTP. It is optional:
// when SMTP is not configured the notifier falls back to log delivery.
type EmailSender struct {
	cfg config.SMTPConfig
	log *logging.Logger
}

// NewEmailSender returns nil when SMTP is not configured.
func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	if cfg.Host == "" || cfg.From == "" || cfg.Recipient == "" {
		return nil
	}
	return &EmailSender{cfg: cfg, log: logging.WithComponent("email")}
}

// Send delivers one report notification.
func (e *EmailSender) Send(msg Message) error {
	subject := fmt.Sprintf("End-of-day report %s — %s", msg.ReportDate, msg.Status)
	body := fmt.Sprintf(
		"<p>End-of-day report for <b>%s</b> is ready.</p>"+
			"<p>Status: %s<br>Net sales: %.2f<br>Alerts: %d</p>",
		msg.ReportDate, msg.Status, msg.NetSales, msg.AlertCount)

	from := e.cfg.From
	if e.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", e.cfg.FromName, e.cfg.From)
	}

	message := []byte(
		"From: " + from + "\r\n" +
			"To: " + e.cfg.Recipient + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body + "\r\n",
	)

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)

	var err error
	if e.cfg.Port == 465 {
		err = e.sendTLS(addr, auth, []string{e.cfg.Recipient}, message)
	} else {
		// STARTTLS (587) or plain (25).
		err = smtp.SendMail(addr, auth, e.cfg.From, []string{e.cfg.Recipient}, message)
	}
	if err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	e.log.Info("notification email sent", "to", e.cfg.Recipient, "report_date", msg.ReportDate)
	return nil
}

// sendTLS handles implicit-TLS servers (port 465), which smtp.SendMail
// cannot speak to directly.
func (e *EmailSender) sendTLS(addr string, auth smtp.Auth, to []string, msg []byte) error {
	host := strings.Split(addr, ":")[0]

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := client.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("add recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return client.Quit()
}

package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LogSender writes notifications to the log instead of sending them. Default
// backend for development.
type LogSender struct {
	Log *zap.Logger
}

var _ Sender = (*LogSender)(nil)

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.Log.Info("email (log backend)",
		zap.String("to", MaskEmail(msg.Email)),
		zap.String("kind", string(msg.Kind)),
		zap.String("subject", msg.Subject("")))
	return nil
}

// FileSender writes each notification as a JSON file into a directory.
type FileSender struct {
	Dir     string
	From    string
	Company string
}

var _ Sender = (*FileSender)(nil)

type fileEmail struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
	Company   string `json:"company"`
	CreatedAt string `json:"created_at"`
}

func (s *FileSender) Send(_ context.Context, msg Message) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create email dir: %w", err)
	}
	now := time.Now().UTC()
	payload := fileEmail{
		From:      s.From,
		To:        msg.Email,
		Subject:   msg.Subject(s.Company),
		Text:      msg.Body(),
		Company:   s.Company,
		CreatedAt: now.Format(time.RFC3339),
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}
	name := filepath.Join(s.Dir, fmt.Sprintf("email_%s_%s.json", now.Format("20060102T150405.000000000Z"), msg.Kind))
	if err := os.WriteFile(name, raw, 0o644); err != nil {
		return fmt.Errorf("write email file: %w", err)
	}
	return nil
}

// SMTPSender delivers notifications over SMTP. Port 465 uses implicit TLS;
// any other port starts plain and upgrades with STARTTLS when offered.
type SMTPSender struct {
	Server  string
	Port    int
	From    string
	Pass    string
	Company string
}

var _ Sender = (*SMTPSender)(nil)

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	body := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		s.Company, s.From, msg.Email, msg.Subject(s.Company), msg.Body())
	addr := fmt.Sprintf("%s:%d", s.Server, s.Port)
	auth := smtp.PlainAuth("", s.From, s.Pass, s.Server)

	if s.Port == 465 {
		return s.sendImplicitTLS(addr, auth, msg.Email, []byte(body))
	}
	if err := smtp.SendMail(addr, auth, s.From, []string{msg.Email}, []byte(body)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *SMTPSender) sendImplicitTLS(addr string, auth smtp.Auth, to string, body []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.Server})
	if err != nil {
		return fmt.Errorf("dial smtps: %w", err)
	}
	client, err := smtp.NewClient(conn, s.Server)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(s.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

// MaskEmail masks an email address for logging (e.g. te****@example.com).
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || len(local) == 0 {
		return "****"
	}
	if len(local) <= 2 {
		return "****@" + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + "@" + domain
}

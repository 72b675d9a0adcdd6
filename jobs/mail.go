package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPSender relays mail through a plain SMTP server.
type SMTPSender struct {
	Addr string
	From string
	Auth smtp.Auth
}

// Send relays msg. The context is not honoured by net/smtp.
func (s *SMTPSender) Send(_ context.Context, msg SendEmailPayload) error {
	if s == nil || s.Addr == "" || s.From == "" {
		return errors.New("mail: smtp sender not configured")
	}
	rcpt, data, err := buildMessage(s.From, msg)
	if err != nil {
		return err
	}
	return smtp.SendMail(s.Addr, s.Auth, s.From, []string{rcpt}, data)
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// buildMessage renders the RFC 5322 message for msg. The recipient must be a
// single parseable address; header values never carry line breaks.
func buildMessage(from string, msg SendEmailPayload) (string, []byte, error) {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return "", nil, fmt.Errorf("mail: recipient %q: %w", headerBreaks.Replace(msg.To), err)
	}
	subject := mime.QEncoding.Encode("utf-8", headerBreaks.Replace(msg.Subject))

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerBreaks.Replace(from))
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	return to.Address, []byte(b.String()), nil
}

// LogSender only logs messages; used when no SMTP relay is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs msg.
func (s LogSender) Send(_ context.Context, msg SendEmailPayload) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email not relayed", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

// MailJob processes TaskTypeSendEmail tasks.
type MailJob struct {
	Sender Sender
	Logger *slog.Logger
}

// Handle sends one queued email. Malformed payloads are dropped.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("mail: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return fmt.Errorf("mail: empty recipient: %w", asynq.SkipRetry)
	}
	if err := j.Sender.Send(ctx, payload); err != nil {
		if j.Logger != nil {
			j.Logger.Warn("send email", slog.String("to", payload.To), slog.Any("error", err))
		}
		return err
	}
	return nil
}

package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

const smtpDialTimeout = 30 * time.Second

// SMTPConfig описывает почтовый сервер.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SendFunc доставляет готовое RFC 5322 письмо.
type SendFunc func(ctx context.Context, cfg SMTPConfig, from string, to []string, msg []byte) error

// EmailNotifier отправляет отчет письмом: текстовая часть и HTML из Markdown.
type EmailNotifier struct {
	smtp   SMTPConfig
	from   string
	to     []string
	send   SendFunc
	now    func() time.Time
	logger *slog.Logger
}

// EmailOption настраивает EmailNotifier.
type EmailOption func(*EmailNotifier)

// WithSendFunc подменяет доставку письма.
func WithSendFunc(f SendFunc) EmailOption {
	return func(n *EmailNotifier) { n.send = f }
}

// WithEmailLogger задает логгер.
func WithEmailLogger(l *slog.Logger) EmailOption {
	return func(n *EmailNotifier) { n.logger = l }
}

// NewEmailNotifier создает новый экземпляр EmailNotifier.
// Если from не задан, используется имя пользователя SMTP.
func NewEmailNotifier(cfg SMTPConfig, from string, to []string, opts ...EmailOption) (*EmailNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	if from == "" {
		from = cfg.Username
	}
	if from == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	n := &EmailNotifier{
		smtp:   cfg,
		from:   from,
		to:     to,
		send:   SendMail,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

var _ ports.Notifier = (*EmailNotifier)(nil)

// Name возвращает имя канала.
func (n *EmailNotifier) Name() string {
	return "email"
}

// Notify собирает письмо и отправляет его всем получателям.
func (n *EmailNotifier) Notify(ctx context.Context, d domain.Delivery) error {
	subject := fmt.Sprintf("微信群聊日报 - %s", d.DateLabel)
	msg, err := ComposeMessage(n.from, n.to, subject, d.Markdown, n.now())
	if err != nil {
		return fmt.Errorf("failed to compose email: %w", err)
	}

	recipients := make([]string, 0, len(n.to))
	for _, addr := range n.to {
		parsed, err := mail.ParseAddress(addr)
		if err != nil {
			return fmt.Errorf("invalid recipient %q: %w", addr, err)
		}
		recipients = append(recipients, parsed.Address)
	}
	from, err := mail.ParseAddress(n.from)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", n.from, err)
	}

	if err := n.send(ctx, n.smtp, from.Address, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	n.logger.Info("email report sent", "recipients", len(recipients), "date", d.DateLabel)
	return nil
}

// ComposeMessage строит письмо multipart/alternative из Markdown.
func ComposeMessage(from string, to []string, subject, markdown string, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", from, err)
	}
	h.SetAddressList("From", []*mail.Address{fromAddr})

	toAddrs := make([]*mail.Address, 0, len(to))
	for _, a := range to {
		parsed, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("parse address %q: %w", a, err)
		}
		toAddrs = append(toAddrs, parsed)
	}
	h.SetAddressList("To", toAddrs)

	html, err := markdownToHTML(markdown)
	if err != nil {
		return nil, fmt.Errorf("render markdown to HTML: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}
	if err := writePart(tw, "text/plain; charset=utf-8", markdown); err != nil {
		return nil, err
	}
	if err := writePart(tw, "text/html; charset=utf-8", html); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(tw *mail.InlineWriter, contentType, body string) error {
	var ih mail.InlineHeader
	ih.Set("Content-Type", contentType)
	w, err := tw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return w.Close()
}

func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: -apple-system, 'PingFang SC', sans-serif; font-size: 14px; line-height: 1.6;">
%s
</body></html>`, buf.String()), nil
}

// SendMail открывает соединение на одно письмо. Порт 465 использует неявный TLS,
// остальные порты переходят на TLS через STARTTLS, если сервер его поддерживает.
func SendMail(ctx context.Context, cfg SMTPConfig, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: dialTimeout}
	tlsCfg := &tls.Config{ServerName: cfg.Host}

	var conn net.Conn
	var err error
	if cfg.Port == 465 {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial SMTP %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create SMTP client on %s: %w", addr, err)
	}
	defer client.Close()

	if cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				return fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}
	if cfg.Username != "" && cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}
	return client.Quit()
}

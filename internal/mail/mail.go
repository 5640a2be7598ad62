// Package mail sends purchased ebooks to buyers over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/careerbooks/careerbooks/internal/metrics"
)

// ErrNotConfigured is returned when no SMTP host is set.
var ErrNotConfigured = errors.New("mail delivery not configured")

// Config configures the SMTP sender.
type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	MaxAttachment int64
}

// Ebook describes one delivery. Attachment is optional; Size must be known
// for it to be attached.
type Ebook struct {
	To         string
	Title      string
	Slug       string
	Link       string
	// LinkExpiresIn is the lifetime of a presigned Link; zero for a
	// permanent URL.
	LinkExpiresIn time.Duration
	FileName      string
	Attachment    io.Reader
	Size          int64
}

// dialer is the subset of *gomail.Client used for sending.
type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// Sender delivers ebooks by email.
type Sender struct {
	client        dialer
	from          string
	maxAttachment int64
	logger        *slog.Logger
	metrics       metrics.Recorder
}

// NewSender creates a Sender. A Sender with an empty host reports
// ErrNotConfigured on every send.
func NewSender(cfg Config, logger *slog.Logger, recorder metrics.Recorder) (*Sender, error) {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	s := &Sender{
		from:          cfg.From,
		maxAttachment: cfg.MaxAttachment,
		logger:        logger.With("component", "mail"),
		metrics:       recorder,
	}
	if cfg.Host == "" {
		return s, nil
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
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
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	s.client = client
	return s, nil
}

// Configured reports whether an SMTP host was set.
func (s *Sender) Configured() bool {
	return s.client != nil
}

// WantsAttachment reports whether a file of size bytes should be attached.
func (s *Sender) WantsAttachment(size int64) bool {
	return size > 0 && size <= s.maxAttachment
}

// SendEbook emails the download link and, when small enough, the file itself.
func (s *Sender) SendEbook(ctx context.Context, e Ebook) error {
	if !s.Configured() {
		return ErrNotConfigured
	}

	msg, err := s.buildMessage(e)
	if err != nil {
		return err
	}

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		s.metrics.IncEmailSent("failed")
		return fmt.Errorf("send ebook %s: %w", e.Slug, err)
	}

	s.metrics.IncEmailSent("success")
	s.logger.Info("ebook emailed",
		"slug", e.Slug,
		"attached", len(msg.GetAttachments()) > 0,
	)
	return nil
}

func (s *Sender) buildMessage(e Ebook) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(e.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(fmt.Sprintf("[CareerBooks] %s 전자책이 도착했습니다", e.Title))
	msg.SetBodyString(gomail.TypeTextPlain, ebookBody(e))

	if e.Attachment != nil && s.WantsAttachment(e.Size) {
		name := e.FileName
		if name == "" {
			name = e.Slug + ".pdf"
		}
		if err := msg.AttachReader(name, e.Attachment); err != nil {
			return nil, fmt.Errorf("attach %s: %w", name, err)
		}
	}
	return msg, nil
}

func ebookBody(e Ebook) string {
	var b strings.Builder
	fmt.Fprintf(&b, "안녕하세요,\n\n구매하신 「%s」 전자책을 보내드립니다.\n\n", e.Title)
	if e.Link != "" {
		fmt.Fprintf(&b, "다운로드 링크: %s\n", e.Link)
		if days := int(e.LinkExpiresIn / (24 * time.Hour)); days > 0 {
			fmt.Fprintf(&b, "링크는 %d일간 유효합니다.\n", days)
		}
		b.WriteString("\n")
	}
	b.WriteString("구매해 주셔서 감사합니다.\nCareerBooks 드림\n")
	return b.String()
}

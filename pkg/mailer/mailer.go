package mailer

import (
	"context"
	"errors"
	"strings"

	"gitlab.com/golang-commonmark/markdown"
	"go.uber.org/zap"
)

// Message is an outbound email whose body is written in Markdown.
type Message struct {
	To       []string
	Subject  string
	Markdown string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipients = errors.New("message has no recipients")

// Raw HTML in the source is escaped since templates interpolate author supplied titles.
var renderer = markdown.New(markdown.HTML(false), markdown.Linkify(true), markdown.Typographer(true), markdown.MaxNesting(10))

// RenderHTML converts a Markdown body into an HTML fragment.
func RenderHTML(body string) string {
	return renderer.RenderToString([]byte(body))
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	for _, to := range m.To {
		if strings.ContainsAny(to, "\r\n") {
			return errors.New("invalid recipient address")
		}
	}
	if strings.ContainsAny(m.Subject, "\r\n") {
		return errors.New("invalid subject")
	}
	return nil
}

// LogSender writes messages to the logger instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("email (log transport)",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Markdown),
	)
	return nil
}

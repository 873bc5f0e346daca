package mailer

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRenderHTMLEscapesRawHTML(t *testing.T) {
	html := RenderHTML("**Approved**: <script>alert(1)</script>")
	assert.Contains(t, html, "<strong>Approved</strong>")
	assert.NotContains(t, html, "<script>")
}

func TestComposeMultipart(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.example", Port: 587, From: "editor@journal.example"})
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	raw, err := s.compose(Message{To: []string{"a@x.io", "b@x.io"}, Subject: "Article approved", Markdown: "Hello **there**"})
	require.NoError(t, err)

	out := string(raw)
	assert.Contains(t, out, "To: a@x.io, b@x.io\r\n")
	assert.Contains(t, out, "multipart/alternative")
	assert.Contains(t, out, "text/plain; charset=utf-8")
	assert.Contains(t, out, "<strong>there</strong>")
}

func TestValidateRejectsHeaderInjection(t *testing.T) {
	err := Message{To: []string{"a@x.io"}, Subject: "hi\r\nBcc: evil@x.io"}.validate()
	assert.Error(t, err)
	assert.ErrorIs(t, Message{}.validate(), ErrNoRecipients)
}

func TestSMTPSenderDialFailure(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.example", Port: 25, From: "x@y.z"})
	s.dial = func(context.Context, string, string) (net.Conn, error) { return nil, errors.New("connection refused") }

	err := s.Send(context.Background(), Message{To: []string{"a@x.io"}, Subject: "s", Markdown: "b"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "dial smtp"))
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewLogSender(zap.New(core))

	require.NoError(t, s.Send(context.Background(), Message{To: []string{"a@x.io"}, Subject: "s", Markdown: "b"}))
	assert.Equal(t, 1, logs.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Send(ctx, Message{To: []string{"a@x.io"}}))
}

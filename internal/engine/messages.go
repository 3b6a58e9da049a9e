package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shinji-kodama/batch-clip/internal/model"
)

// MessageLog is the engine message channel. Every message is kept for
// later queries (the error report reads the error and warning backlog)
// and mirrored to a zap logger at the matching level.
type MessageLog struct {
	mu       sync.Mutex
	messages []model.Message
	subs     []func(model.Message)
	logger   *zap.Logger
	now      func() time.Time
}

// NewMessageLog creates a MessageLog. A nil logger discards the mirror.
func NewMessageLog(logger *zap.Logger) *MessageLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageLog{logger: logger, now: time.Now}
}

// Add records a message at the given severity.
func (l *MessageLog) Add(severity model.Severity, format string, args ...any) {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}

	msg := model.Message{Severity: severity, Text: text, Time: l.now()}

	l.mu.Lock()
	l.messages = append(l.messages, msg)
	subs := l.subs
	l.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}

	switch severity {
	case model.SeverityError:
		l.logger.Error(text)
	case model.SeverityWarning:
		l.logger.Warn(text)
	default:
		l.logger.Info(text)
	}
}

// Subscribe registers fn to receive every message recorded from now on.
// fn runs on the recording goroutine after the message is stored.
func (l *MessageLog) Subscribe(fn func(model.Message)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs[:len(l.subs):len(l.subs)], fn)
}

func (l *MessageLog) Info(format string, args ...any) {
	l.Add(model.SeverityInfo, format, args...)
}

func (l *MessageLog) Warning(format string, args ...any) {
	l.Add(model.SeverityWarning, format, args...)
}

func (l *MessageLog) Error(format string, args ...any) {
	l.Add(model.SeverityError, format, args...)
}

// All returns a copy of every recorded message in order.
func (l *MessageLog) All() []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Messages returns the recorded messages of exactly the given severity.
func (l *MessageLog) Messages(severity model.Severity) []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Message
	for _, m := range l.messages {
		if m.Severity == severity {
			out = append(out, m)
		}
	}
	return out
}

// Text joins the messages of a severity with newlines.
func (l *MessageLog) Text(severity model.Severity) string {
	msgs := l.Messages(severity)
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.Text
	}
	return strings.Join(lines, "\n")
}

// Backlog returns the warning and error messages in recording order.
func (l *MessageLog) Backlog() []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Message
	for _, m := range l.messages {
		if m.Severity >= model.SeverityWarning {
			out = append(out, m)
		}
	}
	return out
}

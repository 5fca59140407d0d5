// Package notify carries user-visible notifications from the domain layer to
// whatever surface shows them.
package notify

import (
	"context"
	"sync"
	"time"

	applog "carteira/internal/log"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notification struct {
	Level   Level
	Title   string
	Message string
	At      time.Time
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

func Success(title, message string) Notification {
	return Notification{Level: LevelSuccess, Title: title, Message: message, At: time.Now()}
}

func Failure(title, message string) Notification {
	return Notification{Level: LevelError, Title: title, Message: message, At: time.Now()}
}

func Info(title, message string) Notification {
	return Notification{Level: LevelInfo, Title: title, Message: message, At: time.Now()}
}

// Inbox queues notifications until the next page render drains them.
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	max   int
}

// NewInbox keeps at most max pending notifications, dropping the oldest.
func NewInbox(max int) *Inbox {
	if max <= 0 {
		max = 20
	}
	return &Inbox{max: max}
}

func (b *Inbox) Notify(_ context.Context, n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if over := len(b.items) - b.max; over > 0 {
		b.items = b.items[over:]
	}
}

// Drain returns pending notifications in arrival order and empties the inbox.
func (b *Inbox) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}

func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// LogNotifier mirrors notifications into the structured log.
type LogNotifier struct {
	logger *applog.Logger
}

func NewLogNotifier(logger *applog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithComponent(applog.ComponentNotify)}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	if n.Level == LevelError {
		l.logger.WarnContext(ctx, "User notified of failure", "title", n.Title, "message", n.Message)
		return
	}
	l.logger.DebugContext(ctx, "User notified", "level", string(n.Level), "title", n.Title)
}

type multi []Notifier

func (m multi) Notify(ctx context.Context, n Notification) {
	for _, x := range m {
		x.Notify(ctx, n)
	}
}

// Multi fans a notification out to every non-nil notifier.
func Multi(notifiers ...Notifier) Notifier {
	var out multi
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Discard drops everything.
var Discard Notifier = multi(nil)

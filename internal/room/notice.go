package room

import "sync"

// Level is the severity of a user notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return "info"
}

// Notice is a message for the user.
type Notice struct {
	Level   Level
	Message string
}

// Notifier receives user-facing notices. Implementations must be safe for
// concurrent use and must not call back into the Room.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// NoticeQueue buffers notices until a UI loop drains them.
type NoticeQueue struct {
	mu    sync.Mutex
	items []Notice
}

func (q *NoticeQueue) Notify(n Notice) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
}

// Drain returns and clears the buffered notices.
func (q *NoticeQueue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

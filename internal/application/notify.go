package application

import (
	"sync"
	"time"
)

// Level of a toast notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Toast is a short user-visible message.
type Toast struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier port: services push toasts, the UI decides how to show them.
type Notifier interface {
	Notify(t Toast)
}

// Discard drops every toast.
type Discard struct{}

func (Discard) Notify(Toast) {}

// NotifierOrDiscard returns n, or Discard when n is nil.
func NotifierOrDiscard(n Notifier) Notifier {
	if n == nil {
		return Discard{}
	}
	return n
}

// ToastQueue is a bounded in-memory Notifier. When full the oldest toast is
// dropped.
type ToastQueue struct {
	mu    sync.Mutex
	max   int
	items []Toast
}

func NewToastQueue(max int) *ToastQueue {
	if max <= 0 {
		max = 50
	}
	return &ToastQueue{max: max}
}

func (q *ToastQueue) Notify(t Toast) {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, t)
	if over := len(q.items) - q.max; over > 0 {
		q.items = append([]Toast(nil), q.items[over:]...)
	}
}

// Drain returns every queued toast and empties the queue.
func (q *ToastQueue) Drain() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		out = []Toast{}
	}
	return out
}

// Len of the pending queue.
func (q *ToastQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

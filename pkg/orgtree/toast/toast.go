// Package toast is the fire-and-forget user notification port.
package toast

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
	Warning Kind = "warning"
)

type Notifier interface {
	ShowToast(message string, kind Kind)
}

type NotifierFunc func(message string, kind Kind)

func (f NotifierFunc) ShowToast(message string, kind Kind) { f(message, kind) }

type LogNotifier struct {
	Logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) ShowToast(message string, kind Kind) {
	entry := n.Logger.WithField("toast", string(kind))
	switch kind {
	case Error:
		entry.Error(message)
	case Warning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}

type Toast struct {
	Message string
	Kind    Kind
}

// Recorder keeps every toast in order.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) ShowToast(message string, kind Kind) {
	r.mu.Lock()
	r.toasts = append(r.toasts, Toast{Message: message, Kind: kind})
	r.mu.Unlock()
}

func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

// Last returns the most recent toast, if any.
func (r *Recorder) Last() (Toast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return Toast{}, false
	}
	return r.toasts[len(r.toasts)-1], true
}

func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.toasts {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

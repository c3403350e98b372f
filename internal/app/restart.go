package app

import (
	"log/slog"
	"sync"

	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/events"
)

// restartSignal is closed once the first restart is requested for a runtime generation.
type restartSignal struct {
	bus    bus.Publisher
	logger *slog.Logger

	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	reason string
}

func newRestartSignal(pub bus.Publisher, logger *slog.Logger) *restartSignal {
	if logger == nil {
		logger = slog.Default()
	}

	return &restartSignal{bus: pub, logger: logger, done: make(chan struct{})}
}

func (r *restartSignal) RequestRestart(reason string) {
	r.once.Do(func() {
		r.mu.Lock()
		r.reason = reason
		r.mu.Unlock()
		r.logger.Info("restart requested", "reason", reason)
		if r.bus != nil {
			r.bus.Publish(events.TopicDeviceRestart, events.RestartRequested{Reason: reason})
		}
		close(r.done)
	})
}

func (r *restartSignal) Done() <-chan struct{} {
	return r.done
}

func (r *restartSignal) Reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.reason
}

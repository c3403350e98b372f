package persistence

import (
	"context"
	"log/slog"
)

type writeCmd struct {
	name   string
	fn     func(context.Context) error
	result chan error
}

// WriterQueue serializes record writes on one goroutine. Each write is attempted once.
type WriterQueue struct {
	logger *slog.Logger
	queue  chan writeCmd
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if capacity <= 0 {
		capacity = 16
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WriterQueue{
		logger: logger,
		queue:  make(chan writeCmd, capacity),
	}
}

// Enqueue schedules a write without waiting for it.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	cmd := writeCmd{name: name, fn: fn}
	select {
	case w.queue <- cmd:
	default:
		go func() { w.queue <- cmd }()
	}
}

// Submit schedules a write and waits for its result.
func (w *WriterQueue) Submit(ctx context.Context, name string, fn func(context.Context) error) error {
	cmd := writeCmd{name: name, fn: fn, result: make(chan error, 1)}
	select {
	case w.queue <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-w.queue:
				w.run(ctx, cmd)
			}
		}
	}()
}

func (w *WriterQueue) run(ctx context.Context, cmd writeCmd) {
	err := cmd.fn(ctx)
	if err != nil {
		w.logger.Error("record write failed", "cmd", cmd.name, "error", err)
	}
	if cmd.result != nil {
		cmd.result <- err
	}
}

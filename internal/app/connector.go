package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/skobkin/scribblego/internal/bus"
	"github.com/skobkin/scribblego/internal/events"
	"github.com/skobkin/scribblego/internal/settings"
	"github.com/skobkin/scribblego/internal/transport"
)

// MessageHandler consumes messages read from a port.
type MessageHandler interface {
	Handle(ctx context.Context, src settings.Transport, msg midi.Message)
}

// connectorGroup keeps one connect/read loop per active port.
type connectorGroup struct {
	ctx     context.Context
	handler MessageHandler
	bus     bus.Publisher
	logger  *slog.Logger

	mu      sync.Mutex
	running map[transport.Port]context.CancelFunc
	wg      sync.WaitGroup
}

func newConnectorGroup(ctx context.Context, handler MessageHandler, pub bus.Publisher, logger *slog.Logger) *connectorGroup {
	if logger == nil {
		logger = slog.Default()
	}

	return &connectorGroup{
		ctx:     ctx,
		handler: handler,
		bus:     pub,
		logger:  logger,
		running: make(map[transport.Port]context.CancelFunc),
	}
}

func (g *connectorGroup) start(p transport.Port) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.running[p]; ok {
		return
	}
	ctx, cancel := context.WithCancel(g.ctx)
	g.running[p] = cancel
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.run(ctx, p)
	}()
}

// stop ends the loop of p and closes the port.
func (g *connectorGroup) stop(p transport.Port) {
	g.mu.Lock()
	cancel, ok := g.running[p]
	delete(g.running, p)
	g.mu.Unlock()
	if ok {
		cancel()
	}
	if err := p.Close(); err != nil {
		g.logger.Warn("close port failed", "transport", p.Name(), "error", err)
	}
}

func (g *connectorGroup) stopAll() {
	g.mu.Lock()
	ports := make([]transport.Port, 0, len(g.running))
	for p := range g.running {
		ports = append(ports, p)
	}
	g.mu.Unlock()
	for _, p := range ports {
		g.stop(p)
	}
	g.wg.Wait()
}

func (g *connectorGroup) run(ctx context.Context, p transport.Port) {
	logger := g.logger.With("transport", p.Name())
	backoff := connectBackoffMin
	for {
		if err := ctx.Err(); err != nil {
			g.publish(p, events.ConnectionStateDisconnected, nil)

			return
		}

		g.publish(p, events.ConnectionStateConnecting, nil)
		if err := p.Connect(ctx); err != nil {
			g.publish(p, events.ConnectionStateReconnecting, err)
			logger.Warn("port connect failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				g.publish(p, events.ConnectionStateDisconnected, nil)

				return
			}
			backoff = nextBackoff(backoff)

			continue
		}

		backoff = connectBackoffMin
		g.publish(p, events.ConnectionStateConnected, nil)
		err := g.read(ctx, p)
		_ = p.Close()
		if ctx.Err() != nil {
			g.publish(p, events.ConnectionStateDisconnected, nil)

			return
		}
		logger.Warn("port read stopped", "error", err)
		g.publish(p, events.ConnectionStateReconnecting, err)
		if !sleepWithContext(ctx, backoff) {
			g.publish(p, events.ConnectionStateDisconnected, nil)

			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (g *connectorGroup) read(ctx context.Context, p transport.Port) error {
	for {
		msg, err := p.ReadMessage(ctx)
		if err != nil {
			return err
		}
		g.handler.Handle(ctx, p.Kind(), msg)
	}
}

func (g *connectorGroup) publish(p transport.Port, state events.ConnectionState, err error) {
	if g.bus == nil {
		return
	}
	status := events.ConnStatus{
		State:         state,
		Transport:     p.Kind(),
		TransportName: p.Name(),
		Timestamp:     time.Now(),
	}
	if resolver, ok := p.(transport.StatusTargetResolver); ok {
		status.Target = strings.TrimSpace(resolver.StatusTarget())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		status.Err = err.Error()
	}
	g.bus.Publish(events.TopicConnStatus, status)
}

func nextBackoff(current time.Duration) time.Duration {
	if current >= connectBackoffMax {
		return connectBackoffMax
	}

	return min(current*2, connectBackoffMax)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package deviceapi

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	responseTimeout   = time.Second
	initialRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

// Link is a framed duplex channel to the configuration editor.
type Link interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
}

// Server reads requests from a link and answers each one in order.
// Every command runs on the server goroutine.
type Server struct {
	link    Link
	handler *Handler
	logger  *slog.Logger
}

func NewServer(link Link, handler *Handler, logger *slog.Logger) (*Server, error) {
	if link == nil {
		return nil, errors.New("deviceapi: link is required")
	}
	if handler == nil {
		return nil, errors.New("deviceapi: handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{link: link, handler: handler, logger: logger}, nil
}

// Run keeps the link open, reconnecting with backoff, until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	delay := initialRetryDelay
	for {
		if err := s.link.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("device api link connect failed", "link", s.link.Name(), "error", err, "retry_in", delay)
			if !sleepWithContext(ctx, delay) {
				return ctx.Err()
			}
			delay = min(delay*2, maxRetryDelay)

			continue
		}
		delay = initialRetryDelay
		s.logger.Info("device api link connected", "link", s.link.Name())

		err := s.Serve(ctx)
		_ = s.link.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("device api link lost", "link", s.link.Name(), "error", err)
	}
}

// Serve answers requests on an already connected link until a read fails.
func (s *Server) Serve(ctx context.Context) error {
	for {
		payload, err := s.link.ReadFrame(ctx)
		if err != nil {
			return err
		}
		resp := s.handler.HandleFrame(ctx, payload)

		// A restart command may cancel ctx; the reply still goes out.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), responseTimeout)
		err = s.link.WriteFrame(writeCtx, resp)
		cancel()
		if err != nil {
			return err
		}
	}
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

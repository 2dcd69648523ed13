// Package sweeper closes conversations that nobody is going to continue.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"guestdesk/internal/domain"
	"guestdesk/internal/events"
	"guestdesk/internal/metrics"
)

const (
	DefaultInterval       = 5 * time.Minute
	DefaultIdleAfter      = 1 * time.Hour
	DefaultEscalatedAfter = 4 * time.Hour
)

// Sweeper periodically closes stale conversations. Idle bot conversations
// close after IdleAfter without activity; escalated ones that no operator
// picked up close after the longer EscalatedAfter. Conversations an operator
// is actively handling are never touched.
type Sweeper struct {
	store          domain.Store
	events         events.Publisher
	logger         *slog.Logger
	interval       time.Duration
	idleAfter      time.Duration
	escalatedAfter time.Duration
}

type Config struct {
	Store          domain.Store
	Events         events.Publisher
	Logger         *slog.Logger
	Interval       time.Duration
	IdleAfter      time.Duration
	EscalatedAfter time.Duration
}

func New(cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = DefaultIdleAfter
	}
	if cfg.EscalatedAfter <= 0 {
		cfg.EscalatedAfter = DefaultEscalatedAfter
	}
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	return &Sweeper{
		store:          cfg.Store,
		events:         cfg.Events,
		logger:         cfg.Logger,
		interval:       cfg.Interval,
		idleAfter:      cfg.IdleAfter,
		escalatedAfter: cfg.EscalatedAfter,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. A failed
// sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper started",
		"interval", s.interval,
		"idle_after", s.idleAfter,
		"escalated_after", s.escalatedAfter,
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce closes everything currently stale and returns the count.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	now := time.Now()
	closed, err := s.store.CloseStale(ctx, now.Add(-s.idleAfter), now.Add(-s.escalatedAfter))
	if err != nil {
		return 0, fmt.Errorf("close stale conversations: %w", err)
	}
	if closed == 0 {
		return 0, nil
	}

	metrics.SweptTotal.Add(closed)
	s.logger.Info("stale conversations closed", "count", closed)

	if err := s.events.Publish(ctx, events.KeyConversationClosed, events.ConversationEvent{
		Status: string(domain.StatusClosed),
		Closed: closed,
	}); err != nil {
		s.logger.Warn("cannot publish sweep event", "err", err)
	}
	return closed, nil
}

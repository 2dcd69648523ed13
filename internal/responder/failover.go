package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"guestdesk/internal/domain"
)

// Failover tries responders in order, falling back to the next one when the
// current fails.
type Failover struct {
	responders []domain.Responder
	logger     *slog.Logger
}

// NewFailover creates a failover chain. At least one responder is required.
func NewFailover(responders []domain.Responder, logger *slog.Logger) *Failover {
	return &Failover{responders: responders, logger: logger}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.responders))
	for i, r := range f.responders {
		names[i] = r.Name()
	}
	return "failover(" + strings.Join(names, ",") + ")"
}

func (f *Failover) Healthy(ctx context.Context) error {
	for _, r := range f.responders {
		if err := r.Healthy(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no healthy responder in failover chain")
}

// Generate tries each responder in order and returns the first success.
func (f *Failover) Generate(ctx context.Context, history []domain.Message) (string, error) {
	var lastErr error
	for i, r := range f.responders {
		text, err := r.Generate(ctx, history)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback responder",
					"responder", r.Name(),
					"attempt", i+1,
				)
			}
			return text, nil
		}
		lastErr = err
		f.logger.Warn("failover: responder failed, trying next",
			"responder", r.Name(),
			"err", err,
		)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("all responders failed: %w", lastErr)
}

package domain

import "context"

// Channel is the interface for guest-facing messaging transports.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, externalID string, text string) error
}

// Package events publishes conversation lifecycle events to an AMQP topic
// exchange so other systems (CRM, analytics) can react. Publishing is
// best-effort: a failed publish is logged and never blocks routing.
package events

import (
	"context"
	"time"
)

// Routing keys for lifecycle events.
const (
	KeyConversationEscalated = "conversation.escalated"
	KeyConversationClaimed   = "conversation.claimed"
	KeyConversationClosed    = "conversation.closed"
	KeyKnowledgeSaved        = "knowledge.saved"
)

// Envelope wraps every published event.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// ConversationEvent is the payload for conversation lifecycle keys.
type ConversationEvent struct {
	ConversationID int64  `json:"conversation_id"`
	ClientID       int64  `json:"client_id,omitempty"`
	Channel        string `json:"channel,omitempty"`
	OperatorID     int64  `json:"operator_id,omitempty"`
	Status         string `json:"status,omitempty"`
	Closed         int64  `json:"closed,omitempty"` // sweep closure count
}

// KnowledgeEvent is the payload for knowledge.saved.
type KnowledgeEvent struct {
	EntryID        int64 `json:"entry_id"`
	OperatorID     int64 `json:"operator_id,omitempty"`
	ConversationID int64 `json:"conversation_id,omitempty"`
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
	Close() error
}

// Noop is the Publisher used when events are disabled.
type Noop struct{}

func (Noop) Publish(ctx context.Context, key string, payload any) error { return nil }
func (Noop) Close() error                                               { return nil }

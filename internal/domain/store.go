package domain

import (
	"context"
	"time"
)

// Store handles persistent storage of clients, conversations, messages,
// operators, and the knowledge base. Lookups that find nothing return
// (nil, nil); conditional writes report whether they took effect so a lost
// race shows up as a benign false rather than an error.
type Store interface {
	// GetOrCreateClient finds the client for (channel, externalID) or creates
	// it, refreshing name/username on repeat contact. Backed by a unique
	// constraint so two near-simultaneous first messages cannot produce
	// duplicate clients.
	GetOrCreateClient(ctx context.Context, channel, externalID, name, username string) (*Client, error)
	ClientByID(ctx context.Context, id int64) (*Client, error)

	FindActiveConversation(ctx context.Context, clientID int64) (*Conversation, error)
	CreateConversation(ctx context.Context, clientID int64) (*Conversation, error)
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// UpdateConversationStatus sets the status (and optionally the assigned
	// operator). When expected is non-nil the update is conditional on the
	// current status; false means another writer got there first.
	UpdateConversationStatus(ctx context.Context, id int64, expected *ConversationStatus, next ConversationStatus, operatorID *int64) (bool, error)

	// ClaimConversation atomically assigns the conversation to the operator
	// and moves it to operator_active. First claim wins; false for a
	// conversation that is closed, already operator_active, or missing.
	ClaimConversation(ctx context.Context, id, operatorID int64) (bool, error)

	// CloseStale bulk-closes idle conversations: in_progress/bot_completed
	// not updated since idleCutoff, needs_operator not updated since
	// escalatedCutoff. operator_active is never touched. Returns the number
	// of conversations closed.
	CloseStale(ctx context.Context, idleCutoff, escalatedCutoff time.Time) (int64, error)

	AppendMessage(ctx context.Context, conversationID int64, sender Sender, text string) (*Message, error)
	RecentHistory(ctx context.Context, conversationID int64, limit int) ([]Message, error)

	// LastQAPair returns the most recent operator answer in the conversation
	// together with the client question preceding it, scanning a bounded
	// recent window. ok is false when no such pair exists.
	LastQAPair(ctx context.Context, conversationID int64) (question, answer string, ok bool, err error)

	ListActiveKnowledgeEntries(ctx context.Context) ([]KnowledgeEntry, error)
	IncrementKnowledgeUsage(ctx context.Context, entryID int64) error
	InsertKnowledgeEntry(ctx context.Context, entry KnowledgeEntry) (*KnowledgeEntry, error)
	SetKnowledgeActive(ctx context.Context, id int64, active bool) error
	ListKnowledgeEntries(ctx context.Context, onlyActive bool) ([]KnowledgeEntry, error)

	AddOperator(ctx context.Context, op Operator) (*Operator, error)
	ListOperators(ctx context.Context) ([]Operator, error)
	// ListNotifiableOperators returns active operators with a notify chat id.
	ListNotifiableOperators(ctx context.Context) ([]Operator, error)
	OperatorByChatID(ctx context.Context, chatID string) (*Operator, error)
	OperatorByID(ctx context.Context, id int64) (*Operator, error)
	SetOperatorActive(ctx context.Context, id int64, active bool) error

	Close() error
}

package domain

import "time"

// Channel names. One per supported messaging transport.
const (
	ChannelTelegram = "telegram"
	ChannelWhatsApp = "whatsapp"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusInProgress     ConversationStatus = "in_progress"     // bot is handling the dialog
	StatusBotCompleted   ConversationStatus = "bot_completed"   // bot resolved it on its own
	StatusNeedsOperator  ConversationStatus = "needs_operator"  // escalated, waiting for a claim
	StatusOperatorActive ConversationStatus = "operator_active" // an operator is replying
	StatusClosed         ConversationStatus = "closed"          // terminal
)

// Active reports whether the status counts as an open session for routing.
// bot_completed is terminal here: a new guest message after the bot finished
// starts a fresh conversation.
func (s ConversationStatus) Active() bool {
	switch s {
	case StatusInProgress, StatusNeedsOperator, StatusOperatorActive:
		return true
	}
	return false
}

// Sender identifies who authored a message.
type Sender string

const (
	SenderClient   Sender = "client"
	SenderBot      Sender = "bot"
	SenderOperator Sender = "operator"
)

// Client is one guest identity per (channel, external id) pair.
// Created on first contact, name/username refreshed on later contact,
// never deleted.
type Client struct {
	ID         int64     `json:"id"`
	Channel    string    `json:"channel"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name,omitempty"`
	Username   string    `json:"username,omitempty"`
	Language   string    `json:"language,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Conversation is one session of guest interaction with the bot or an operator.
type Conversation struct {
	ID                 int64              `json:"id"`
	ClientID           int64              `json:"client_id"`
	Status             ConversationStatus `json:"status"`
	Category           string             `json:"category,omitempty"`
	AssignedOperatorID *int64             `json:"assigned_operator_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Message is a single utterance inside a conversation. Immutable once stored.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// Operator is a human agent who can claim escalated conversations.
// NotifyChatID is the Telegram chat used for escalation alerts; operators
// without one are skipped by the dispatcher.
type Operator struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	NotifyChatID string    `json:"notify_chat_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

package domain

import "time"

// KnowledgeEntry is a learned question/answer pair. Keywords is the derived
// stem string computed from the question at save time; the matcher re-derives
// both sides so that scoring always uses one normalization.
type KnowledgeEntry struct {
	ID             int64     `json:"id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Keywords       string    `json:"keywords"`
	AddedByID      *int64    `json:"added_by_id,omitempty"`
	ConversationID *int64    `json:"conversation_id,omitempty"`
	IsActive       bool      `json:"is_active"`
	TimesUsed      int64     `json:"times_used"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

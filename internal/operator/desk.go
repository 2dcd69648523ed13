// Package operator implements the human side of a handoff: claiming an
// escalated conversation, replying through the guest's channel, and closing
// it with optional knowledge capture.
package operator

import (
	"context"
	"fmt"
	"log/slog"

	"guestdesk/internal/domain"
	"guestdesk/internal/events"
	"guestdesk/internal/handoff"
	"guestdesk/internal/knowledge"
	"guestdesk/internal/metrics"
	"guestdesk/internal/router"
)

// Desk coordinates operator actions on conversations.
type Desk struct {
	store      domain.Store
	bus        domain.MessageBus
	tracker    *handoff.Tracker
	classifier *router.Classifier
	events     events.Publisher
	logger     *slog.Logger
}

type DeskConfig struct {
	Store      domain.Store
	Bus        domain.MessageBus
	Tracker    *handoff.Tracker
	Classifier *router.Classifier
	Events     events.Publisher
	Logger     *slog.Logger
}

func NewDesk(cfg DeskConfig) *Desk {
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Classifier == nil {
		cfg.Classifier = router.NewClassifier()
	}
	return &Desk{
		store:      cfg.Store,
		bus:        cfg.Bus,
		tracker:    cfg.Tracker,
		classifier: cfg.Classifier,
		events:     cfg.Events,
		logger:     cfg.Logger,
	}
}

// Take claims the conversation for the operator. Exactly one of several
// near-simultaneous takers wins; the rest get false.
func (d *Desk) Take(ctx context.Context, conversationID, operatorID int64) (bool, error) {
	claimed, err := d.store.ClaimConversation(ctx, conversationID, operatorID)
	if err != nil {
		return false, fmt.Errorf("claim conversation %d: %w", conversationID, err)
	}
	if !claimed {
		d.logger.Info("conversation already taken",
			"conversation", conversationID, "operator", operatorID)
		return false, nil
	}

	d.tracker.Assign(operatorID, conversationID)
	metrics.ActiveHandoffs.Set(int64(d.tracker.Len()))
	d.logger.Info("conversation claimed",
		"conversation", conversationID, "operator", operatorID)

	if err := d.events.Publish(ctx, events.KeyConversationClaimed, events.ConversationEvent{
		ConversationID: conversationID,
		OperatorID:     operatorID,
		Status:         string(domain.StatusOperatorActive),
	}); err != nil {
		d.logger.Warn("cannot publish claim event", "conversation", conversationID, "err", err)
	}
	return true, nil
}

// Current returns the conversation the operator is replying to, if any.
func (d *Desk) Current(operatorID int64) (int64, bool) {
	return d.tracker.Lookup(operatorID)
}

// Reply persists the operator's message and delivers it to the guest.
func (d *Desk) Reply(ctx context.Context, operatorID int64, text string) error {
	convID, ok := d.tracker.Lookup(operatorID)
	if !ok {
		return fmt.Errorf("operator %d has no active conversation", operatorID)
	}
	conv, client, err := d.conversationWithClient(ctx, convID)
	if err != nil {
		return err
	}
	if conv.Status != domain.StatusOperatorActive {
		d.tracker.Clear(operatorID)
		metrics.ActiveHandoffs.Set(int64(d.tracker.Len()))
		return fmt.Errorf("conversation %d is %s, not operator_active", convID, conv.Status)
	}

	if _, err := d.store.AppendMessage(ctx, convID, domain.SenderOperator, text); err != nil {
		return fmt.Errorf("persist operator reply: %w", err)
	}
	d.bus.SendOutbound(domain.OutboundMessage{
		Channel:    client.Channel,
		ExternalID: client.ExternalID,
		Text:       text,
	})
	return nil
}

// Finish closes the operator's conversation and, when the last exchange looks
// like a reusable general answer, saves it to the knowledge base. Returns the
// saved entry or nil.
func (d *Desk) Finish(ctx context.Context, operatorID int64) (*domain.KnowledgeEntry, error) {
	convID, err := d.release(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	question, answer, ok, err := d.store.LastQAPair(ctx, convID)
	if err != nil {
		d.logger.Warn("cannot read last exchange", "conversation", convID, "err", err)
		return nil, nil
	}
	if !ok || !d.classifier.ShouldAutoSave(question) {
		return nil, nil
	}
	return d.saveEntry(ctx, convID, operatorID, question, answer)
}

// Cancel closes the operator's conversation without knowledge capture.
func (d *Desk) Cancel(ctx context.Context, operatorID int64) error {
	_, err := d.release(ctx, operatorID)
	return err
}

// SaveToKnowledge explicitly saves the last exchange of the operator's
// current conversation, bypassing the classifier.
func (d *Desk) SaveToKnowledge(ctx context.Context, operatorID int64) (*domain.KnowledgeEntry, error) {
	convID, ok := d.tracker.Lookup(operatorID)
	if !ok {
		return nil, fmt.Errorf("operator %d has no active conversation", operatorID)
	}
	question, answer, ok, err := d.store.LastQAPair(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("read last exchange: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("conversation %d has no operator answer to save", convID)
	}
	return d.saveEntry(ctx, convID, operatorID, question, answer)
}

// release closes the conversation and drops the handoff binding. The
// conditional close losing to a concurrent writer is fine: the binding is
// stale either way.
func (d *Desk) release(ctx context.Context, operatorID int64) (int64, error) {
	convID, ok := d.tracker.Lookup(operatorID)
	if !ok {
		return 0, fmt.Errorf("operator %d has no active conversation", operatorID)
	}

	expected := domain.StatusOperatorActive
	closed, err := d.store.UpdateConversationStatus(ctx, convID, &expected, domain.StatusClosed, nil)
	if err != nil {
		return 0, fmt.Errorf("close conversation %d: %w", convID, err)
	}
	if !closed {
		d.logger.Info("conversation already left operator_active", "conversation", convID)
	}

	d.tracker.Clear(operatorID)
	metrics.ActiveHandoffs.Set(int64(d.tracker.Len()))
	d.logger.Info("conversation released",
		"conversation", convID, "operator", operatorID)

	if err := d.events.Publish(ctx, events.KeyConversationClosed, events.ConversationEvent{
		ConversationID: convID,
		OperatorID:     operatorID,
		Status:         string(domain.StatusClosed),
	}); err != nil {
		d.logger.Warn("cannot publish close event", "conversation", convID, "err", err)
	}
	return convID, nil
}

func (d *Desk) saveEntry(ctx context.Context, convID, operatorID int64, question, answer string) (*domain.KnowledgeEntry, error) {
	entry, err := d.store.InsertKnowledgeEntry(ctx, domain.KnowledgeEntry{
		Question:       question,
		Answer:         answer,
		Keywords:       knowledge.KeywordString(question),
		AddedByID:      &operatorID,
		ConversationID: &convID,
		IsActive:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("save knowledge entry: %w", err)
	}
	d.logger.Info("knowledge entry saved",
		"entry", entry.ID, "conversation", convID, "operator", operatorID)

	if err := d.events.Publish(ctx, events.KeyKnowledgeSaved, events.KnowledgeEvent{
		EntryID:        entry.ID,
		OperatorID:     operatorID,
		ConversationID: convID,
	}); err != nil {
		d.logger.Warn("cannot publish knowledge event", "entry", entry.ID, "err", err)
	}
	return entry, nil
}

func (d *Desk) conversationWithClient(ctx context.Context, convID int64) (*domain.Conversation, *domain.Client, error) {
	conv, err := d.store.GetConversation(ctx, convID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation %d: %w", convID, err)
	}
	if conv == nil {
		return nil, nil, fmt.Errorf("conversation %d not found", convID)
	}
	client, err := d.store.ClientByID(ctx, conv.ClientID)
	if err != nil {
		return nil, nil, fmt.Errorf("load client %d: %w", conv.ClientID, err)
	}
	if client == nil {
		return nil, nil, fmt.Errorf("client %d not found", conv.ClientID)
	}
	return conv, client, nil
}

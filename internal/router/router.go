// Package router decides, per inbound guest message, which response path
// answers it: the knowledge base, the generative responder, or the operator
// currently handling the conversation. It owns the conversation state machine.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"guestdesk/internal/domain"
	"guestdesk/internal/events"
	"guestdesk/internal/metrics"
)

const (
	defaultConcurrency      = 5
	defaultHistoryLimit     = 10
	defaultResponderTimeout = 30 * time.Second

	// fallbackReply is sent when the responder fails and the conversation is
	// escalated instead.
	fallbackReply = "Извините, мне нужно уточнить это у коллег. Сейчас подключу менеджера."
)

// Matcher finds a knowledge entry answering the question, or nil.
type Matcher interface {
	Search(ctx context.Context, question string) (*domain.KnowledgeEntry, error)
}

// Notifier delivers operator-facing alerts. Failures are the notifier's to
// log; the router never blocks on them.
type Notifier interface {
	NotifyEscalation(ctx context.Context, conv *domain.Conversation, client *domain.Client, lastMessage string)
	ForwardToOperator(ctx context.Context, conv *domain.Conversation, client *domain.Client, text string)
}

// Engine consumes inbound guest messages and routes each one.
type Engine struct {
	store       domain.Store
	matcher     Matcher
	responder   domain.Responder
	bus         domain.MessageBus
	notifier    Notifier
	events      events.Publisher
	logger      *slog.Logger
	concurrency int
	historyLim  int
	respTimeout time.Duration
	greeting    string

	clientLocks *keyedMutex
}

type EngineConfig struct {
	Store            domain.Store
	Matcher          Matcher
	Responder        domain.Responder
	Bus              domain.MessageBus
	Notifier         Notifier
	Events           events.Publisher
	Logger           *slog.Logger
	Concurrency      int           // max parallel messages (default 5)
	HistoryLimit     int           // responder context window (default 10)
	ResponderTimeout time.Duration // deadline on a single generate call (default 30s)
	Greeting         string        // optional first-contact reply
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.ResponderTimeout <= 0 {
		cfg.ResponderTimeout = defaultResponderTimeout
	}
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	return &Engine{
		store:       cfg.Store,
		matcher:     cfg.Matcher,
		responder:   cfg.Responder,
		bus:         cfg.Bus,
		notifier:    cfg.Notifier,
		events:      cfg.Events,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		historyLim:  cfg.HistoryLimit,
		respTimeout: cfg.ResponderTimeout,
		greeting:    cfg.Greeting,
		clientLocks: newKeyedMutex(),
	}
}

// Run consumes inbound messages and processes them with bounded concurrency.
// One message's failure never aborts the loop.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("router started", "concurrency", e.concurrency)

	sem := make(chan struct{}, e.concurrency)
	inbound := e.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("router stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				e.logger.Info("inbound channel closed, router stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				if err := e.HandleMessage(ctx, m); err != nil {
					e.logger.Error("message routing failed",
						"channel", m.Channel,
						"sender", m.ExternalID,
						"err", err,
					)
				}
			}(msg)
		}
	}
}

// HandleMessage routes a single inbound guest message end to end.
func (e *Engine) HandleMessage(ctx context.Context, msg domain.InboundMessage) error {
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	metrics.MessagesTotal.Inc()

	client, conv, isNew, err := e.resolveConversation(ctx, msg)
	if err != nil {
		return err
	}

	if isNew && e.greeting != "" {
		if _, err := e.store.AppendMessage(ctx, conv.ID, domain.SenderBot, e.greeting); err != nil {
			e.logger.Warn("cannot persist greeting", "conversation", conv.ID, "err", err)
		}
		e.send(client, e.greeting)
	}

	if _, err := e.store.AppendMessage(ctx, conv.ID, domain.SenderClient, msg.Text); err != nil {
		return fmt.Errorf("persist guest message: %w", err)
	}

	// Mid-handoff: the operator answers, the bot stays silent.
	if conv.Status == domain.StatusOperatorActive {
		e.notifier.ForwardToOperator(ctx, conv, client, msg.Text)
		return nil
	}

	reply, err := e.composeReply(ctx, conv, client, msg.Text)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}

	if _, err := e.store.AppendMessage(ctx, conv.ID, domain.SenderBot, reply); err != nil {
		return fmt.Errorf("persist bot reply: %w", err)
	}
	e.send(client, reply)
	return nil
}

// resolveConversation serializes get-or-create-client and
// find-or-create-conversation per guest identity.
func (e *Engine) resolveConversation(ctx context.Context, msg domain.InboundMessage) (*domain.Client, *domain.Conversation, bool, error) {
	unlock := e.clientLocks.Lock(msg.Channel + ":" + msg.ExternalID)
	defer unlock()

	client, err := e.store.GetOrCreateClient(ctx, msg.Channel, msg.ExternalID, msg.DisplayName, msg.Username)
	if err != nil {
		return nil, nil, false, fmt.Errorf("get or create client: %w", err)
	}

	conv, err := e.store.FindActiveConversation(ctx, client.ID)
	if err != nil {
		return nil, nil, false, fmt.Errorf("find active conversation: %w", err)
	}
	if conv != nil {
		return client, conv, false, nil
	}

	conv, err = e.store.CreateConversation(ctx, client.ID)
	if err != nil {
		return nil, nil, false, fmt.Errorf("create conversation: %w", err)
	}
	e.logger.Info("conversation started",
		"conversation", conv.ID,
		"client", client.ID,
		"channel", client.Channel,
	)
	return client, conv, true, nil
}

// composeReply picks the answer: knowledge base first, then the generative
// responder with marker handling. An empty reply means nothing to send.
func (e *Engine) composeReply(ctx context.Context, conv *domain.Conversation, client *domain.Client, question string) (string, error) {
	entry, err := e.matcher.Search(ctx, question)
	if err != nil {
		e.logger.Warn("knowledge search failed, falling through to responder",
			"conversation", conv.ID, "err", err)
	}
	if entry != nil {
		metrics.KnowledgeHits.Inc()
		e.logger.Info("answered from knowledge base",
			"conversation", conv.ID, "entry", entry.ID)
		return strings.TrimSpace(entry.Answer), nil
	}

	history, err := e.store.RecentHistory(ctx, conv.ID, e.historyLim)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, e.respTimeout)
	defer cancel()

	text, err := e.responder.Generate(genCtx, history)
	if err != nil {
		// An unanswered guest is worse than a premature escalation: on
		// responder failure or timeout, hand the conversation to a human.
		e.logger.Error("responder failed, escalating",
			"conversation", conv.ID, "err", err)
		e.escalate(ctx, conv, client, question)
		return fallbackReply, nil
	}

	if status, ok := detectMarker(text); ok {
		switch status {
		case domain.StatusNeedsOperator:
			e.escalate(ctx, conv, client, question)
		case domain.StatusBotCompleted:
			expected := conv.Status
			if _, err := e.store.UpdateConversationStatus(ctx, conv.ID, &expected, domain.StatusBotCompleted, nil); err != nil {
				e.logger.Warn("cannot mark conversation completed", "conversation", conv.ID, "err", err)
			} else {
				conv.Status = domain.StatusBotCompleted
			}
		}
		text = stripMarkers(text)
	}

	if strings.TrimSpace(text) == "" {
		text = fallbackReply
	}
	return text, nil
}

// escalate moves the conversation to needs_operator and fans the alert out.
// A lost conditional update means someone else already transitioned it; their
// write wins.
func (e *Engine) escalate(ctx context.Context, conv *domain.Conversation, client *domain.Client, lastMessage string) {
	expected := conv.Status
	updated, err := e.store.UpdateConversationStatus(ctx, conv.ID, &expected, domain.StatusNeedsOperator, nil)
	if err != nil {
		e.logger.Error("cannot escalate conversation", "conversation", conv.ID, "err", err)
		return
	}
	if !updated {
		e.logger.Info("escalation lost the race, leaving state alone", "conversation", conv.ID)
		return
	}
	conv.Status = domain.StatusNeedsOperator
	metrics.EscalationsTotal.Inc()

	e.notifier.NotifyEscalation(ctx, conv, client, lastMessage)

	if err := e.events.Publish(ctx, events.KeyConversationEscalated, events.ConversationEvent{
		ConversationID: conv.ID,
		ClientID:       client.ID,
		Channel:        client.Channel,
		Status:         string(domain.StatusNeedsOperator),
	}); err != nil {
		e.logger.Warn("cannot publish escalation event", "conversation", conv.ID, "err", err)
	}
}

// send delivers text to the guest's channel. Persistence and delivery are not
// transactional: a failed send is logged and counted, nothing is rolled back.
func (e *Engine) send(client *domain.Client, text string) {
	e.bus.SendOutbound(domain.OutboundMessage{
		Channel:    client.Channel,
		ExternalID: client.ExternalID,
		Text:       text,
	})
}

// Package notify fans operator alerts out over the alert channel. It knows
// who to tell and what to say; the channel adapter knows how to say it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"guestdesk/internal/domain"
)

// AlertSender delivers an alert message to one operator chat. Implemented by
// the Telegram adapter.
type AlertSender interface {
	SendAlert(ctx context.Context, chatID, text string, actions []Action) error
}

// Action is an inline button offered with an alert.
type Action struct {
	Label string
	Data  string
}

const historyWindow = 10

// Dispatcher builds and fans out operator notifications. Per-recipient
// failures are logged and skipped; one dead chat never blocks the rest.
type Dispatcher struct {
	store  domain.Store
	sender AlertSender
	logger *slog.Logger
}

func NewDispatcher(store domain.Store, sender AlertSender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, sender: sender, logger: logger}
}

// NotifyEscalation alerts every notifiable operator that a conversation needs
// a human, with take/history actions attached.
func (d *Dispatcher) NotifyEscalation(ctx context.Context, conv *domain.Conversation, client *domain.Client, lastMessage string) {
	ops, err := d.store.ListNotifiableOperators(ctx)
	if err != nil {
		d.logger.Error("cannot list operators for escalation", "conversation", conv.ID, "err", err)
		return
	}
	if len(ops) == 0 {
		d.logger.Warn("escalation with no notifiable operators", "conversation", conv.ID)
		return
	}

	text := fmt.Sprintf(
		"🔔 Нужен оператор\nГость: %s\nКанал: %s\nДиалог: #%d\n\nПоследнее сообщение:\n%s",
		clientLabel(client), client.Channel, conv.ID, lastMessage,
	)
	actions := []Action{
		{Label: "Взять диалог", Data: fmt.Sprintf("take:%d", conv.ID)},
		{Label: "История", Data: fmt.Sprintf("history:%d", conv.ID)},
	}

	sent := 0
	for _, op := range ops {
		if err := d.sender.SendAlert(ctx, op.NotifyChatID, text, actions); err != nil {
			d.logger.Warn("escalation alert failed",
				"conversation", conv.ID, "operator", op.ID, "err", err)
			continue
		}
		sent++
	}
	d.logger.Info("escalation alert fanned out",
		"conversation", conv.ID, "operators", len(ops), "delivered", sent)
}

// ForwardToOperator relays a guest message to the operator handling the
// conversation. Messages arriving mid-handoff with no assignee fall back to
// the full escalation fan-out.
func (d *Dispatcher) ForwardToOperator(ctx context.Context, conv *domain.Conversation, client *domain.Client, text string) {
	if conv.AssignedOperatorID == nil {
		d.NotifyEscalation(ctx, conv, client, text)
		return
	}
	op, err := d.store.OperatorByID(ctx, *conv.AssignedOperatorID)
	if err != nil || op == nil || op.NotifyChatID == "" {
		d.logger.Warn("assigned operator unreachable, re-alerting everyone",
			"conversation", conv.ID, "operator", *conv.AssignedOperatorID, "err", err)
		d.NotifyEscalation(ctx, conv, client, text)
		return
	}

	msg := fmt.Sprintf("💬 %s (диалог #%d):\n%s", clientLabel(client), conv.ID, text)
	if err := d.sender.SendAlert(ctx, op.NotifyChatID, msg, nil); err != nil {
		d.logger.Warn("forward to operator failed",
			"conversation", conv.ID, "operator", op.ID, "err", err)
	}
}

// SendHistory sends the recent transcript of a conversation to one chat.
func (d *Dispatcher) SendHistory(ctx context.Context, chatID string, conversationID int64) error {
	history, err := d.store.RecentHistory(ctx, conversationID, historyWindow)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return d.sender.SendAlert(ctx, chatID, fmt.Sprintf("Диалог #%d пуст.", conversationID), nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📜 Диалог #%d, последние сообщения:\n\n", conversationID)
	for _, m := range history {
		fmt.Fprintf(&b, "%s %s\n", senderPrefix(m.Sender), m.Text)
	}
	return d.sender.SendAlert(ctx, chatID, b.String(), nil)
}

func clientLabel(c *domain.Client) string {
	switch {
	case c.Name != "" && c.Username != "":
		return fmt.Sprintf("%s (@%s)", c.Name, c.Username)
	case c.Name != "":
		return c.Name
	case c.Username != "":
		return "@" + c.Username
	default:
		return c.ExternalID
	}
}

func senderPrefix(s domain.Sender) string {
	switch s {
	case domain.SenderClient:
		return "👤"
	case domain.SenderOperator:
		return "🧑‍💼"
	default:
		return "🤖"
	}
}

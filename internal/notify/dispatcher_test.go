package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"guestdesk/internal/domain"
)

type fakeStore struct {
	domain.Store
	operators []domain.Operator
	history   []domain.Message
}

func (f *fakeStore) ListNotifiableOperators(ctx context.Context) ([]domain.Operator, error) {
	return f.operators, nil
}

func (f *fakeStore) OperatorByID(ctx context.Context, id int64) (*domain.Operator, error) {
	for _, op := range f.operators {
		if op.ID == id {
			return &op, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) RecentHistory(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	return f.history, nil
}

type recordingSender struct {
	alerts  []string // chat IDs in send order
	texts   []string
	actions [][]Action
	failFor map[string]error
}

func (r *recordingSender) SendAlert(ctx context.Context, chatID, text string, actions []Action) error {
	if err := r.failFor[chatID]; err != nil {
		return err
	}
	r.alerts = append(r.alerts, chatID)
	r.texts = append(r.texts, text)
	r.actions = append(r.actions, actions)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	testConv   = &domain.Conversation{ID: 7, ClientID: 3, Status: domain.StatusNeedsOperator}
	testClient = &domain.Client{ID: 3, Channel: "telegram", ExternalID: "100", Name: "Анна"}
)

func TestNotifyEscalation_FanOut(t *testing.T) {
	st := &fakeStore{operators: []domain.Operator{
		{ID: 1, Name: "A", NotifyChatID: "111", IsActive: true},
		{ID: 2, Name: "B", NotifyChatID: "222", IsActive: true},
	}}
	sender := &recordingSender{}
	d := NewDispatcher(st, sender, discard())

	d.NotifyEscalation(context.Background(), testConv, testClient, "хочу поговорить с человеком")

	if len(sender.alerts) != 2 {
		t.Fatalf("alerts = %v, want both operators", sender.alerts)
	}
	if !strings.Contains(sender.texts[0], "хочу поговорить с человеком") {
		t.Errorf("alert text missing guest message: %q", sender.texts[0])
	}
	got := sender.actions[0]
	if len(got) != 2 || got[0].Data != "take:7" || got[1].Data != "history:7" {
		t.Fatalf("actions = %+v", got)
	}
}

func TestNotifyEscalation_ContinuesPastFailure(t *testing.T) {
	st := &fakeStore{operators: []domain.Operator{
		{ID: 1, NotifyChatID: "111", IsActive: true},
		{ID: 2, NotifyChatID: "222", IsActive: true},
	}}
	sender := &recordingSender{failFor: map[string]error{"111": errors.New("blocked")}}
	d := NewDispatcher(st, sender, discard())

	d.NotifyEscalation(context.Background(), testConv, testClient, "вопрос")

	if len(sender.alerts) != 1 || sender.alerts[0] != "222" {
		t.Fatalf("alerts = %v, one dead chat must not stop the fan-out", sender.alerts)
	}
}

func TestForwardToOperator_Assigned(t *testing.T) {
	opID := int64(2)
	conv := &domain.Conversation{ID: 7, ClientID: 3, Status: domain.StatusOperatorActive, AssignedOperatorID: &opID}
	st := &fakeStore{operators: []domain.Operator{
		{ID: 1, NotifyChatID: "111", IsActive: true},
		{ID: 2, NotifyChatID: "222", IsActive: true},
	}}
	sender := &recordingSender{}
	d := NewDispatcher(st, sender, discard())

	d.ForwardToOperator(context.Background(), conv, testClient, "а когда ответите?")

	if len(sender.alerts) != 1 || sender.alerts[0] != "222" {
		t.Fatalf("alerts = %v, want only the assigned operator", sender.alerts)
	}
	if !strings.Contains(sender.texts[0], "а когда ответите?") {
		t.Errorf("forward text = %q", sender.texts[0])
	}
}

func TestForwardToOperator_NoAssigneeFallsBackToFanOut(t *testing.T) {
	conv := &domain.Conversation{ID: 7, ClientID: 3, Status: domain.StatusOperatorActive}
	st := &fakeStore{operators: []domain.Operator{
		{ID: 1, NotifyChatID: "111", IsActive: true},
		{ID: 2, NotifyChatID: "222", IsActive: true},
	}}
	sender := &recordingSender{}
	d := NewDispatcher(st, sender, discard())

	d.ForwardToOperator(context.Background(), conv, testClient, "ау")

	if len(sender.alerts) != 2 {
		t.Fatalf("alerts = %v, want full fan-out", sender.alerts)
	}
}

func TestSendHistory(t *testing.T) {
	st := &fakeStore{history: []domain.Message{
		{Sender: domain.SenderClient, Text: "Сколько стоит завтрак?"},
		{Sender: domain.SenderBot, Text: "Сейчас уточню."},
		{Sender: domain.SenderOperator, Text: "500 рублей."},
	}}
	sender := &recordingSender{}
	d := NewDispatcher(st, sender, discard())

	if err := d.SendHistory(context.Background(), "111", 7); err != nil {
		t.Fatalf("send history: %v", err)
	}
	if len(sender.texts) != 1 {
		t.Fatalf("texts = %v", sender.texts)
	}
	for _, line := range []string{"Сколько стоит завтрак?", "Сейчас уточню.", "500 рублей."} {
		if !strings.Contains(sender.texts[0], line) {
			t.Errorf("history missing %q", line)
		}
	}
}

func TestClientLabel(t *testing.T) {
	tests := []struct {
		client domain.Client
		want   string
	}{
		{domain.Client{Name: "Анна", Username: "anna"}, "Анна (@anna)"},
		{domain.Client{Name: "Анна"}, "Анна"},
		{domain.Client{Username: "anna"}, "@anna"},
		{domain.Client{ExternalID: "100"}, "100"},
	}
	for _, tt := range tests {
		if got := clientLabel(&tt.client); got != tt.want {
			t.Errorf("clientLabel(%+v) = %q, want %q", tt.client, got, tt.want)
		}
	}
}

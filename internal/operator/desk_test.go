package operator

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"guestdesk/internal/bus"
	"guestdesk/internal/domain"
	"guestdesk/internal/handoff"
	"guestdesk/internal/store"
)

type rig struct {
	desk  *Desk
	store *store.SQLiteStore
	sent  *[]domain.OutboundMessage
}

func newRig(t *testing.T) *rig {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "desk.db"), logger)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	b := bus.New(10, logger)
	t.Cleanup(b.Close)

	var sent []domain.OutboundMessage
	var mu sync.Mutex
	b.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, msg)
	})

	desk := NewDesk(DeskConfig{
		Store:   st,
		Bus:     b,
		Tracker: handoff.NewTracker(),
		Logger:  logger,
	})
	return &rig{desk: desk, store: st, sent: &sent}
}

// escalated creates a client with a needs_operator conversation holding the
// given guest question.
func (r *rig) escalated(t *testing.T, question string) *domain.Conversation {
	t.Helper()
	ctx := context.Background()
	client, err := r.store.GetOrCreateClient(ctx, "telegram", "100", "Гость", "")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	conv, err := r.store.CreateConversation(ctx, client.ID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if _, err := r.store.AppendMessage(ctx, conv.ID, domain.SenderClient, question); err != nil {
		t.Fatalf("message: %v", err)
	}
	if _, err := r.store.UpdateConversationStatus(ctx, conv.ID, nil, domain.StatusNeedsOperator, nil); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	return conv
}

func TestTake(t *testing.T) {
	r := newRig(t)
	conv := r.escalated(t, "Сколько стоит завтрак?")
	ctx := context.Background()

	ok, err := r.desk.Take(ctx, conv.ID, 1)
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}

	if got, ok := r.desk.Current(1); !ok || got != conv.ID {
		t.Fatalf("Current = (%d, %v)", got, ok)
	}

	// A second operator loses the race and gets no binding.
	ok, err = r.desk.Take(ctx, conv.ID, 2)
	if err != nil {
		t.Fatalf("second take: %v", err)
	}
	if ok {
		t.Fatal("second take must lose")
	}
	if _, ok := r.desk.Current(2); ok {
		t.Fatal("loser must not be bound to the conversation")
	}
}

func TestReply(t *testing.T) {
	r := newRig(t)
	conv := r.escalated(t, "Сколько стоит завтрак?")
	ctx := context.Background()

	if err := r.desk.Reply(ctx, 1, "привет"); err == nil {
		t.Fatal("reply without an active conversation must fail")
	}

	r.desk.Take(ctx, conv.ID, 1)
	if err := r.desk.Reply(ctx, 1, "Завтрак 500 рублей."); err != nil {
		t.Fatalf("reply: %v", err)
	}

	sent := *r.sent
	if len(sent) != 1 || sent[0].Text != "Завтрак 500 рублей." || sent[0].ExternalID != "100" {
		t.Fatalf("outbound = %+v", sent)
	}

	msgs, _ := r.store.RecentHistory(ctx, conv.ID, 10)
	last := msgs[len(msgs)-1]
	if last.Sender != domain.SenderOperator || last.Text != "Завтрак 500 рублей." {
		t.Fatalf("last message = %+v", last)
	}
}

func TestFinish_AutoSavesGeneralAnswer(t *testing.T) {
	r := newRig(t)
	conv := r.escalated(t, "Сколько стоит завтрак?")
	ctx := context.Background()

	r.desk.Take(ctx, conv.ID, 1)
	r.desk.Reply(ctx, 1, "Завтрак 500 рублей.")

	entry, err := r.desk.Finish(ctx, 1)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if entry == nil {
		t.Fatal("pricing question must be auto-saved")
	}
	if entry.Question != "Сколько стоит завтрак?" || entry.Answer != "Завтрак 500 рублей." {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Keywords == "" {
		t.Error("saved entry must carry keywords")
	}
	if entry.AddedByID == nil || *entry.AddedByID != 1 {
		t.Errorf("added_by = %v", entry.AddedByID)
	}
	if entry.ConversationID == nil || *entry.ConversationID != conv.ID {
		t.Errorf("conversation_id = %v", entry.ConversationID)
	}

	got, _ := r.store.GetConversation(ctx, conv.ID)
	if got.Status != domain.StatusClosed {
		t.Fatalf("status = %s, want closed", got.Status)
	}
	if _, ok := r.desk.Current(1); ok {
		t.Fatal("finished operator must be unbound")
	}
}

func TestFinish_SkipsPersonalAnswer(t *testing.T) {
	r := newRig(t)
	conv := r.escalated(t, "Запишите меня на завтра в 14:00")
	ctx := context.Background()

	r.desk.Take(ctx, conv.ID, 1)
	r.desk.Reply(ctx, 1, "Записала, ждём вас!")

	entry, err := r.desk.Finish(ctx, 1)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if entry != nil {
		t.Fatalf("booking exchange must not be saved, got %+v", entry)
	}

	entries, _ := r.store.ListActiveKnowledgeEntries(ctx)
	if len(entries) != 0 {
		t.Fatalf("knowledge entries = %d, want 0", len(entries))
	}
}

func TestCancel(t *testing.T) {
	r := newRig(t)
	conv := r.escalated(t, "Сколько стоит завтрак?")
	ctx := context.Background()

	r.desk.Take(ctx, conv.ID, 1)
	r.desk.Reply(ctx, 1, "Завтрак 500 рублей.")

	if err := r.desk.Cancel(ctx, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _ := r.store.GetConversation(ctx, conv.ID)
	if got.Status != domain.StatusClosed {
		t.Fatalf("status = %s", got.Status)
	}
	if entries, _ := r.store.ListActiveKnowledgeEntries(ctx); len(entries) != 0 {
		t.Fatal("cancel must not save knowledge")
	}
}

func TestSaveToKnowledge_Explicit(t *testing.T) {
	r := newRig(t)
	conv := r.escalated(t, "Запишите меня на мастер-класс")
	ctx := context.Background()

	r.desk.Take(ctx, conv.ID, 1)

	if _, err := r.desk.SaveToKnowledge(ctx, 1); err == nil {
		t.Fatal("save with no operator answer must fail")
	}

	r.desk.Reply(ctx, 1, "Мастер-класс проходит по субботам.")

	// Explicit save bypasses the classifier even for a personal question.
	entry, err := r.desk.SaveToKnowledge(ctx, 1)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if entry == nil || entry.Answer != "Мастер-класс проходит по субботам." {
		t.Fatalf("entry = %+v", entry)
	}
}

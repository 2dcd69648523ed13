package responder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"guestdesk/internal/domain"
)

type stubResponder struct {
	name  string
	reply string
	err   error
	calls int
}

func (s *stubResponder) Generate(ctx context.Context, history []domain.Message) (string, error) {
	s.calls++
	return s.reply, s.err
}
func (s *stubResponder) Name() string                      { return s.name }
func (s *stubResponder) Healthy(ctx context.Context) error { return s.err }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFailover_FirstSuccess(t *testing.T) {
	primary := &stubResponder{name: "primary", reply: "от первого"}
	backup := &stubResponder{name: "backup", reply: "от второго"}
	f := NewFailover([]domain.Responder{primary, backup}, discard())

	text, err := f.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "от первого" {
		t.Fatalf("text = %q", text)
	}
	if backup.calls != 0 {
		t.Error("backup must not be called when primary succeeds")
	}
}

func TestFailover_FallsBack(t *testing.T) {
	primary := &stubResponder{name: "primary", err: errors.New("down")}
	backup := &stubResponder{name: "backup", reply: "от второго"}
	f := NewFailover([]domain.Responder{primary, backup}, discard())

	text, err := f.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "от второго" {
		t.Fatalf("text = %q", text)
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Errorf("calls: primary=%d backup=%d", primary.calls, backup.calls)
	}
}

func TestFailover_AllFail(t *testing.T) {
	wantErr := errors.New("also down")
	f := NewFailover([]domain.Responder{
		&stubResponder{name: "a", err: errors.New("down")},
		&stubResponder{name: "b", err: wantErr},
	}, discard())

	_, err := f.Generate(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error when every responder fails")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped last error", err)
	}
}

func TestFailover_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	primary := &stubResponder{name: "primary", err: errors.New("down")}
	backup := &stubResponder{name: "backup", reply: "ответ"}
	f := NewFailover([]domain.Responder{primary, backup}, discard())

	cancel()
	_, err := f.Generate(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if backup.calls != 0 {
		t.Error("cancelled context must stop the chain")
	}
}

func TestFailover_Name(t *testing.T) {
	f := NewFailover([]domain.Responder{
		&stubResponder{name: "anthropic"},
		&stubResponder{name: "openai"},
	}, discard())
	if got := f.Name(); got != "failover(anthropic,openai)" {
		t.Fatalf("Name = %q", got)
	}
}

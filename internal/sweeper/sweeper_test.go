package sweeper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"guestdesk/internal/domain"
	"guestdesk/internal/events"
)

type fakeStore struct {
	domain.Store
	closed          int64
	idleCutoff      time.Time
	escalatedCutoff time.Time
	calls           int
}

func (f *fakeStore) CloseStale(ctx context.Context, idleCutoff, escalatedCutoff time.Time) (int64, error) {
	f.calls++
	f.idleCutoff = idleCutoff
	f.escalatedCutoff = escalatedCutoff
	return f.closed, nil
}

type countingPublisher struct {
	events.Noop
	published int
}

func (c *countingPublisher) Publish(ctx context.Context, key string, payload any) error {
	c.published++
	return nil
}

func TestSweepOnce_Cutoffs(t *testing.T) {
	fs := &fakeStore{closed: 2}
	pub := &countingPublisher{}
	s := New(Config{
		Store:          fs,
		Events:         pub,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		IdleAfter:      time.Hour,
		EscalatedAfter: 4 * time.Hour,
	})

	before := time.Now()
	closed, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if closed != 2 {
		t.Fatalf("closed = %d", closed)
	}
	if pub.published != 1 {
		t.Fatalf("published = %d, want 1", pub.published)
	}

	wantIdle := before.Add(-time.Hour)
	if fs.idleCutoff.Before(wantIdle.Add(-time.Second)) || fs.idleCutoff.After(wantIdle.Add(time.Second)) {
		t.Errorf("idle cutoff = %v, want ~%v", fs.idleCutoff, wantIdle)
	}
	wantEsc := before.Add(-4 * time.Hour)
	if fs.escalatedCutoff.Before(wantEsc.Add(-time.Second)) || fs.escalatedCutoff.After(wantEsc.Add(time.Second)) {
		t.Errorf("escalated cutoff = %v, want ~%v", fs.escalatedCutoff, wantEsc)
	}
}

func TestSweepOnce_NothingToClose(t *testing.T) {
	fs := &fakeStore{closed: 0}
	pub := &countingPublisher{}
	s := New(Config{
		Store:  fs,
		Events: pub,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	closed, err := s.SweepOnce(context.Background())
	if err != nil || closed != 0 {
		t.Fatalf("closed=%d err=%v", closed, err)
	}
	if pub.published != 0 {
		t.Fatal("empty sweep must not publish an event")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	fs := &fakeStore{}
	s := New(Config{
		Store:    fs,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
	if fs.calls == 0 {
		t.Fatal("sweeper never ticked")
	}
}

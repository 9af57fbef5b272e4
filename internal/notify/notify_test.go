package notify

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"botfleet/internal/db"
	"botfleet/internal/domain"
	"botfleet/internal/migrate"
	"botfleet/internal/repo"
)

type recordingChannel struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (c *recordingChannel) Name() string { return "recorder" }

func (c *recordingChannel) Notify(ctx context.Context, title, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	return c.err
}

func (c *recordingChannel) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.titles...)
}

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func waitForSends(t *testing.T, ch *recordingChannel, want int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := ch.sent(); len(got) >= want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("owner channel received %d sends, want %d", len(ch.sent()), want)
	return nil
}

func TestEmitInsertsAndForwards(t *testing.T) {
	r := newTestRepo(t)
	ch := &recordingChannel{}
	n := New(r, ch, 100, log.New(io.Discard, "", 0))
	defer n.Close()

	ctx := context.Background()
	err := n.Emit(ctx, domain.Notification{
		Type:    domain.NotifyBotDown,
		Title:   "Bot scraper went offline",
		Message: "status offline",
	}, true)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	rows, err := r.ListNotifications(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].CreatedAt == "" {
		t.Fatalf("feed rows = %+v", rows)
	}

	got := waitForSends(t, ch, 1)
	if got[0] != "Bot scraper went offline" {
		t.Fatalf("forwarded title = %q", got[0])
	}
}

func TestEmitWithoutForwardStaysLocal(t *testing.T) {
	r := newTestRepo(t)
	ch := &recordingChannel{}
	n := New(r, ch, 100, log.New(io.Discard, "", 0))
	defer n.Close()

	ctx := context.Background()
	if err := n.Emit(ctx, domain.Notification{Type: domain.NotifyErrorCritical, Title: "quiet", Message: "m"}, false); err != nil {
		t.Fatalf("emit: %v", err)
	}
	// Give the forwarder a beat to misbehave.
	time.Sleep(50 * time.Millisecond)
	if got := ch.sent(); len(got) != 0 {
		t.Fatalf("unforwarded notification reached owner: %v", got)
	}
	rows, err := r.ListNotifications(ctx, 0)
	if err != nil || len(rows) != 1 {
		t.Fatalf("feed rows = %d err = %v, want 1 row", len(rows), err)
	}
}

func TestChannelFailureDoesNotFailEmit(t *testing.T) {
	r := newTestRepo(t)
	ch := &recordingChannel{err: errors.New("telegram down")}
	n := New(r, ch, 100, log.New(io.Discard, "", 0))
	defer n.Close()

	if err := n.Emit(context.Background(), domain.Notification{Type: domain.NotifyPaymentReceived, Title: "t", Message: "m"}, true); err != nil {
		t.Fatalf("emit with failing channel: %v", err)
	}
	waitForSends(t, ch, 1)
}

func TestNilOwnerDisablesForwarding(t *testing.T) {
	r := newTestRepo(t)
	n := New(r, nil, 0, nil)

	if err := n.Emit(context.Background(), domain.Notification{Type: domain.NotifyBotDown, Title: "t", Message: "m"}, true); err != nil {
		t.Fatalf("emit: %v", err)
	}
	// Close must be safe when no forwarder was started.
	n.Close()
	n.Close()
}

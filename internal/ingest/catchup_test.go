package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"message-quizzer/internal/domain"
)

func TestCatchUpRescanDoesNotRebuffer(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	buf := NewBufferWithClock(newFakeStore(), time.Hour, clock.Now)

	history := &fakeHistory{channels: map[string][]domain.ChatMessage{
		"c1": {
			historyMessage("m1", "c1", clock.Now().Add(-3*time.Hour), "first old message here"),
			historyMessage("m2", "c1", clock.Now().Add(-2*time.Hour), "ok"),
			historyMessage("m3", "c1", clock.Now().Add(-1*time.Hour), "third old message here"),
		},
	}}
	catchUp := NewCatchUp(buf, history, 2)

	n, err := catchUp.Channel(ctx, "c1")
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 qualifying messages, got %d", n)
	}

	clock.Advance(time.Minute)
	n, err = catchUp.Channel(ctx, "c1")
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected rescan to buffer nothing, got %d", n)
	}
	if got := len(buf.PendingMessages("g1")); got != 2 {
		t.Fatalf("expected 2 buffered messages, got %d", got)
	}
}

func TestCatchUpFlushesMidScan(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newFakeStore()
	buf := NewBufferWithClock(store, 30*time.Second, clock.Now)

	var msgs []domain.ChatMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, historyMessage(fmt.Sprintf("m%d", i), "c1", clock.Now().Add(time.Duration(i-10)*time.Minute), "some long enough text"))
	}
	history := &fakeHistory{
		channels: map[string][]domain.ChatMessage{"c1": msgs},
		onPage:   func() { clock.Advance(time.Minute) },
	}

	n, err := NewCatchUp(buf, history, 2).Channel(ctx, "c1")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 buffered, got %d", n)
	}
	if len(store.messages) == 0 {
		t.Fatalf("expected a mid-scan flush to persist messages")
	}
	if len(store.messages)+len(buf.PendingMessages("g1")) != 5 {
		t.Fatalf("expected every message persisted or pending exactly once")
	}
}

func TestCatchUpReadsTimestampTiesAcrossPages(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	buf := NewBufferWithClock(newFakeStore(), time.Hour, clock.Now)

	t1 := clock.Now().Add(-3 * time.Hour)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)
	history := &fakeHistory{channels: map[string][]domain.ChatMessage{
		"c1": {
			historyMessage("a", "c1", t1, "some long enough text"),
			historyMessage("b", "c1", t2, "some long enough text"),
			historyMessage("c", "c1", t2, "some long enough text"),
			historyMessage("d", "c1", t2, "some long enough text"),
			historyMessage("e", "c1", t3, "some long enough text"),
		},
	}}

	n, err := NewCatchUp(buf, history, 2).Channel(ctx, "c1")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected all 5 messages, got %d", n)
	}
	seen := map[string]int{}
	for _, msg := range buf.PendingMessages("g1") {
		seen[msg.ID]++
	}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if seen[id] != 1 {
			t.Fatalf("expected %s buffered once, got %v", id, seen)
		}
	}
}

func TestCatchUpSkipsForbiddenChannels(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	buf := NewBufferWithClock(newFakeStore(), time.Hour, clock.Now)

	history := &fakeHistory{
		channels: map[string][]domain.ChatMessage{
			"open": {historyMessage("m1", "open", clock.Now().Add(-time.Hour), "visible to the bot")},
		},
		forbidden: map[string]bool{"secret": true},
	}

	total := NewCatchUp(buf, history, 10).Channels(ctx, "g1", []string{"secret", "open"})
	if total != 1 {
		t.Fatalf("expected the readable channel to be scanned, got %d", total)
	}
}

type fakeHistory struct {
	channels  map[string][]domain.ChatMessage
	forbidden map[string]bool
	onPage    func()
}

func (h *fakeHistory) History(_ context.Context, channelID string, after time.Time, limit int) ([]domain.ChatMessage, error) {
	if h.forbidden[channelID] {
		return nil, fmt.Errorf("read %s: %w", channelID, domain.ErrForbidden)
	}
	if h.onPage != nil {
		h.onPage()
	}
	var page []domain.ChatMessage
	for _, msg := range h.channels[channelID] {
		if msg.SentAt.After(after) {
			page = append(page, msg)
		}
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func historyMessage(id, channelID string, sentAt time.Time, content string) domain.ChatMessage {
	msg := chatMessage(id, channelID, "ann", "Ann", content)
	msg.SentAt = sentAt
	return msg
}

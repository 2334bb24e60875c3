package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"message-quizzer/internal/domain"
)

func TestQualified(t *testing.T) {
	cases := []struct {
		name string
		msg  domain.ChatMessage
		want bool
	}{
		{"sentence", domain.ChatMessage{Content: "this is fine"}, true},
		{"unicode letter", domain.ChatMessage{Content: "éclair for everyone"}, true},
		{"single space", domain.ChatMessage{Content: "too short"}, false},
		{"leading digit", domain.ChatMessage{Content: "2 cats and dogs"}, false},
		{"leading emoji", domain.ChatMessage{Content: "🎉 party time now"}, false},
		{"command", domain.ChatMessage{Content: "!guess who it is"}, false},
		{"empty", domain.ChatMessage{}, false},
		{"bot", domain.ChatMessage{Content: "beep boop beep boop", Automated: true}, false},
	}
	for _, tc := range cases {
		if got := Qualified(tc.msg); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestFlushPersistsOnceAndEmptyFlushIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := newFakeClock()
	buf := NewBufferWithClock(store, 30*time.Second, clock.Now)

	buf.Add(chatMessage("m1", "c1", "ann", "Ann", "hello there everyone"))
	buf.Add(chatMessage("m2", "c1", "bo", "Bo", "another message here"))

	for i := 0; i < 3; i++ {
		if err := buf.Flush(ctx); err != nil {
			t.Fatalf("flush %d: %v", i, err)
		}
	}

	if len(store.messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(store.messages))
	}
	if store.saveMessageCalls != 1 {
		t.Fatalf("expected a single message batch, got %d", store.saveMessageCalls)
	}
	if len(buf.PendingMessages("g1")) != 0 {
		t.Fatalf("expected buffer cleared after flush")
	}
}

func TestShouldFlushAfterCooldown(t *testing.T) {
	clock := newFakeClock()
	buf := NewBufferWithClock(newFakeStore(), 30*time.Second, clock.Now)

	if buf.ShouldFlush() {
		t.Fatalf("fresh buffer should not need a flush")
	}
	clock.Advance(30 * time.Second)
	if buf.ShouldFlush() {
		t.Fatalf("cooldown must be strictly exceeded")
	}
	clock.Advance(time.Second)
	if !buf.ShouldFlush() {
		t.Fatalf("expected flush to be due")
	}
	if err := buf.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if buf.ShouldFlush() {
		t.Fatalf("flush should reset the cooldown")
	}
}

func TestFlushFailureRetainsBuffer(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := newFakeClock()
	buf := NewBufferWithClock(store, 30*time.Second, clock.Now)

	buf.Add(chatMessage("m1", "c1", "ann", "Ann", "hello there everyone"))
	store.fail = errors.New("store down")

	if err := buf.Flush(ctx); err == nil {
		t.Fatalf("expected flush error")
	}
	if buf.ShouldFlush() {
		t.Fatalf("retry should wait for the next cooldown")
	}

	buf.Add(chatMessage("m2", "c1", "ann", "Annie", "renamed author speaking"))
	pending := buf.PendingMessages("g1")
	if len(pending) != 2 || pending[0].ID != "m1" || pending[1].ID != "m2" {
		t.Fatalf("expected retained messages in order, got %+v", pending)
	}
	if author, _ := buf.PendingAuthor("g1", "ann"); author.DisplayName != "Annie" {
		t.Fatalf("expected newer display name to win, got %q", author.DisplayName)
	}

	store.fail = nil
	if err := buf.Flush(ctx); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if len(store.messages) != 2 {
		t.Fatalf("expected both messages persisted after retry, got %d", len(store.messages))
	}
	if store.authors["g1/ann"].DisplayName != "Annie" {
		t.Fatalf("expected persisted author Annie, got %+v", store.authors["g1/ann"])
	}
}

func TestOnFlushedReportsCommunitiesAfterSuccess(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	buf := NewBufferWithClock(store, time.Hour, newFakeClock().Now)

	var got [][]string
	buf.OnFlushed(func(ids []string) { got = append(got, ids) })

	other := chatMessage("m2", "c9", "bo", "Bo", "from another community here")
	other.CommunityID = "g2"
	buf.Add(chatMessage("m1", "c1", "ann", "Ann", "hello there everyone"))
	buf.Add(other)

	store.fail = errors.New("store down")
	if err := buf.Flush(ctx); err == nil {
		t.Fatalf("expected flush error")
	}
	if len(got) != 0 {
		t.Fatalf("expected no callback after a failed flush, got %v", got)
	}

	store.fail = nil
	if err := buf.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(got) != 1 || len(got[0]) != 2 || got[0][0] != "g1" || got[0][1] != "g2" {
		t.Fatalf("expected [g1 g2] once, got %v", got)
	}

	if err := buf.Flush(ctx); err != nil {
		t.Fatalf("empty flush: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected no callback for an empty flush, got %v", got)
	}
}

func TestCursorAdvancesToNowAndPrefersBuffer(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clock := newFakeClock()
	buf := NewBufferWithClock(store, 30*time.Second, clock.Now)

	persisted := clock.Now().Add(-time.Hour)
	store.cursors["c1"] = persisted

	got, err := buf.Cursor(ctx, "c1")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if !got.Equal(persisted) {
		t.Fatalf("expected persisted cursor %v, got %v", persisted, got)
	}

	msg := chatMessage("m1", "c1", "ann", "Ann", "hello there everyone")
	msg.SentAt = clock.Now().Add(-10 * time.Minute)
	buf.Add(msg)

	got, err = buf.Cursor(ctx, "c1")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if !got.Equal(clock.Now()) {
		t.Fatalf("expected cursor at buffer time %v, got %v", clock.Now(), got)
	}
}

func TestConcurrentAddDuringFlush(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	buf := NewBuffer(store, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			buf.Add(chatMessage(string(rune('a'+i%26))+string(rune('0'+i/26)), "c1", "ann", "Ann", "hello there everyone"))
		}(i)
		go func() {
			defer wg.Done()
			_ = buf.Flush(ctx)
		}()
	}
	wg.Wait()
	if err := buf.Flush(ctx); err != nil {
		t.Fatalf("final flush: %v", err)
	}
	if len(store.messages) != 50 {
		t.Fatalf("expected 50 persisted messages, got %d", len(store.messages))
	}
}

type fakeStore struct {
	mu               sync.Mutex
	fail             error
	messages         map[string]domain.Message
	authors          map[string]domain.Author
	cursors          map[string]time.Time
	saveMessageCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[string]domain.Message),
		authors:  make(map[string]domain.Author),
		cursors:  make(map[string]time.Time),
	}
}

func (s *fakeStore) SaveMessages(_ context.Context, messages []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.saveMessageCalls++
	for _, m := range messages {
		if _, ok := s.messages[m.ID]; !ok {
			s.messages[m.ID] = m
		}
	}
	return nil
}

func (s *fakeStore) SaveAuthors(_ context.Context, authors []domain.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for _, a := range authors {
		s.authors[a.CommunityID+"/"+a.ID] = a
	}
	return nil
}

func (s *fakeStore) SaveCursors(_ context.Context, cursors []domain.ChannelCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for _, c := range cursors {
		if c.LastRead.After(s.cursors[c.ChannelID]) {
			s.cursors[c.ChannelID] = c.LastRead
		}
	}
	return nil
}

func (s *fakeStore) Cursor(_ context.Context, channelID string) (domain.ChannelCursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.cursors[channelID]
	return domain.ChannelCursor{ChannelID: channelID, LastRead: last}, ok, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func chatMessage(id, channelID, authorID, authorName, content string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:          id,
		ChannelID:   channelID,
		CommunityID: "g1",
		AuthorID:    authorID,
		AuthorName:  authorName,
		Content:     content,
	}
}

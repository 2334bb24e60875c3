package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"message-quizzer/internal/domain"
)

// Store is the durable side of the write-behind buffer.
type Store interface {
	SaveMessages(ctx context.Context, messages []domain.Message) error
	SaveAuthors(ctx context.Context, authors []domain.Author) error
	SaveCursors(ctx context.Context, cursors []domain.ChannelCursor) error
	Cursor(ctx context.Context, channelID string) (domain.ChannelCursor, bool, error)
}

// Qualified reports whether a chat message is usable quiz material:
// a human sender, more than one space, and a leading letter.
func Qualified(msg domain.ChatMessage) bool {
	if msg.Automated {
		return false
	}
	if strings.Count(msg.Content, " ") <= 1 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(msg.Content)
	return unicode.IsLetter(first)
}

type authorKey struct {
	communityID string
	authorID    string
}

type snapshot struct {
	messages    []domain.Message
	authors     map[authorKey]domain.Author
	authorOrder []authorKey
	cursors     map[string]time.Time
}

func newSnapshot() snapshot {
	return snapshot{
		authors: make(map[authorKey]domain.Author),
		cursors: make(map[string]time.Time),
	}
}

func (s snapshot) empty() bool {
	return len(s.messages) == 0 && len(s.authors) == 0 && len(s.cursors) == 0
}

// Buffer accumulates qualifying messages, their authors and channel cursors
// in memory and persists them in batches once the cooldown has elapsed.
type Buffer struct {
	store    Store
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	pending   snapshot
	lastFlush time.Time
	onFlushed func(communityIDs []string)
}

func NewBuffer(store Store, cooldown time.Duration) *Buffer {
	return NewBufferWithClock(store, cooldown, time.Now)
}

// NewBufferWithClock allows deterministic cooldowns in tests.
func NewBufferWithClock(store Store, cooldown time.Duration, now func() time.Time) *Buffer {
	return &Buffer{
		store:     store,
		cooldown:  cooldown,
		now:       now,
		pending:   newSnapshot(),
		lastFlush: now(),
	}
}

// Add buffers a message that already passed Qualified.
//
// The channel cursor moves to the buffer's current time, not to msg.SentAt.
// A history scan therefore resumes after the moment the message was seen.
func (b *Buffer) Add(msg domain.ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending.messages = append(b.pending.messages, domain.Message{
		ID:          msg.ID,
		AuthorID:    msg.AuthorID,
		CommunityID: msg.CommunityID,
		Content:     msg.Content,
	})

	key := authorKey{communityID: msg.CommunityID, authorID: msg.AuthorID}
	if _, ok := b.pending.authors[key]; !ok {
		b.pending.authorOrder = append(b.pending.authorOrder, key)
	}
	name := msg.AuthorName
	if name == "" {
		name = msg.AuthorID
	}
	b.pending.authors[key] = domain.Author{ID: msg.AuthorID, CommunityID: msg.CommunityID, DisplayName: name}

	now := b.now()
	if prev, ok := b.pending.cursors[msg.ChannelID]; !ok || now.After(prev) {
		b.pending.cursors[msg.ChannelID] = now
	}
}

// OnFlushed registers fn to run after every successful flush with the
// communities whose messages or authors were persisted.
func (b *Buffer) OnFlushed(fn func(communityIDs []string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFlushed = fn
}

// ShouldFlush reports whether the cooldown since the last flush has elapsed.
func (b *Buffer) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Sub(b.lastFlush) > b.cooldown
}

// Flush persists everything buffered so far. New messages may be added
// while the store writes run; they land in a fresh buffer. On failure the
// detached records are put back and retried after the next cooldown.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	snap := b.pending
	b.pending = newSnapshot()
	b.lastFlush = b.now()
	onFlushed := b.onFlushed
	b.mu.Unlock()

	if snap.empty() {
		return nil
	}

	if err := b.persist(ctx, snap); err != nil {
		b.restore(snap)
		return err
	}
	if onFlushed != nil {
		if ids := snap.communities(); len(ids) > 0 {
			onFlushed(ids)
		}
	}
	return nil
}

func (s snapshot) communities() []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, msg := range s.messages {
		add(msg.CommunityID)
	}
	for _, key := range s.authorOrder {
		add(key.communityID)
	}
	return ids
}

func (b *Buffer) persist(ctx context.Context, snap snapshot) error {
	if len(snap.messages) > 0 {
		if err := b.store.SaveMessages(ctx, snap.messages); err != nil {
			return fmt.Errorf("flush messages: %w", err)
		}
	}
	if len(snap.authors) > 0 {
		authors := make([]domain.Author, 0, len(snap.authorOrder))
		for _, key := range snap.authorOrder {
			authors = append(authors, snap.authors[key])
		}
		if err := b.store.SaveAuthors(ctx, authors); err != nil {
			return fmt.Errorf("flush authors: %w", err)
		}
	}
	if len(snap.cursors) > 0 {
		cursors := make([]domain.ChannelCursor, 0, len(snap.cursors))
		for channelID, lastRead := range snap.cursors {
			cursors = append(cursors, domain.ChannelCursor{ChannelID: channelID, LastRead: lastRead})
		}
		if err := b.store.SaveCursors(ctx, cursors); err != nil {
			return fmt.Errorf("flush cursors: %w", err)
		}
	}
	return nil
}

// restore merges a failed snapshot back in front of anything buffered since.
func (b *Buffer) restore(snap snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending.messages = append(snap.messages, b.pending.messages...)

	order := snap.authorOrder
	for _, key := range b.pending.authorOrder {
		if _, ok := snap.authors[key]; !ok {
			order = append(order, key)
		}
	}
	for key, author := range snap.authors {
		if _, ok := b.pending.authors[key]; !ok {
			b.pending.authors[key] = author
		}
	}
	b.pending.authorOrder = order

	for channelID, lastRead := range snap.cursors {
		if cur, ok := b.pending.cursors[channelID]; !ok || lastRead.After(cur) {
			b.pending.cursors[channelID] = lastRead
		}
	}
}

// Cursor returns the most recent read position for a channel. The buffered
// cursor wins over the persisted one since it reflects newer activity.
func (b *Buffer) Cursor(ctx context.Context, channelID string) (time.Time, error) {
	b.mu.Lock()
	local, ok := b.pending.cursors[channelID]
	b.mu.Unlock()
	if ok {
		return local, nil
	}

	cursor, found, err := b.store.Cursor(ctx, channelID)
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return time.Time{}, nil
	}
	return cursor.LastRead, nil
}

// PendingMessages returns a copy of the unflushed messages of a community.
func (b *Buffer) PendingMessages(communityID string) []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Message
	for _, msg := range b.pending.messages {
		if msg.CommunityID == communityID {
			out = append(out, msg)
		}
	}
	return out
}

// PendingAuthor looks up an author cached since the last flush.
func (b *Buffer) PendingAuthor(communityID, authorID string) (domain.Author, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	author, ok := b.pending.authors[authorKey{communityID: communityID, authorID: authorID}]
	return author, ok
}

// PendingAuthors returns the unflushed authors of a community in first-seen order.
func (b *Buffer) PendingAuthors(communityID string) []domain.Author {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Author
	for _, key := range b.pending.authorOrder {
		if key.communityID == communityID {
			out = append(out, b.pending.authors[key])
		}
	}
	return out
}

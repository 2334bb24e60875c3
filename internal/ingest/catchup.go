package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"message-quizzer/internal/domain"
)

// HistorySource pages through a channel's past messages. Each call returns
// at most limit messages sent strictly after the given time, ordered by send
// time. Messages sharing a timestamp must keep a stable relative order
// between calls.
type HistorySource interface {
	History(ctx context.Context, channelID string, after time.Time, limit int) ([]domain.ChatMessage, error)
}

// CatchUp replays the history of channels the buffer has not seen yet.
type CatchUp struct {
	buffer   *Buffer
	history  HistorySource
	pageSize int
}

func NewCatchUp(buffer *Buffer, history HistorySource, pageSize int) *CatchUp {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &CatchUp{buffer: buffer, history: history, pageSize: pageSize}
}

// Channel scans one channel from its cursor forward and returns the number
// of messages buffered. Flushes happen mid-scan whenever the cooldown elapses
// so that a long backlog never sits in memory all at once.
//
// Later pages start just before the newest timestamp seen, so messages that
// share it across a page boundary are still read; ids already seen at that
// instant are skipped and the page grows by their count.
func (c *CatchUp) Channel(ctx context.Context, channelID string) (int, error) {
	after, err := c.buffer.Cursor(ctx, channelID)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}

	buffered := 0
	from := after
	atNewest := make(map[string]struct{})
	for {
		limit := c.pageSize + len(atNewest)
		page, err := c.history.History(ctx, channelID, from, limit)
		if err != nil {
			return buffered, err
		}

		fresh := 0
		for _, msg := range page {
			if _, seen := atNewest[msg.ID]; seen {
				continue
			}
			fresh++
			if msg.SentAt.After(after) {
				after = msg.SentAt
				atNewest = make(map[string]struct{})
			}
			if msg.SentAt.Equal(after) {
				atNewest[msg.ID] = struct{}{}
			}

			if !Qualified(msg) {
				continue
			}
			c.buffer.Add(msg)
			buffered++

			if c.buffer.ShouldFlush() {
				if err := c.buffer.Flush(ctx); err != nil {
					log.Printf("catch-up flush for channel %s failed: %v", channelID, err)
				}
			}
		}
		if len(page) < limit || fresh == 0 {
			return buffered, nil
		}
		from = after.Add(-time.Nanosecond)
	}
}

// Channels scans every channel of a community. A channel that cannot be
// read is skipped; the remaining channels are still scanned.
func (c *CatchUp) Channels(ctx context.Context, communityID string, channelIDs []string) int {
	total := 0
	for _, channelID := range channelIDs {
		if ctx.Err() != nil {
			return total
		}
		n, err := c.Channel(ctx, channelID)
		total += n
		switch {
		case errors.Is(err, domain.ErrForbidden):
			log.Printf("skipping channel %s of %s: %v", channelID, communityID, err)
		case err != nil:
			log.Printf("catch-up of channel %s of %s stopped: %v", channelID, communityID, err)
		}
	}
	return total
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"message-quizzer/internal/domain"

	"github.com/uptrace/bun"
)

type messageRow struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID          string `bun:"id,pk"`
	AuthorID    string `bun:"author_id,notnull"`
	CommunityID string `bun:"community_id,notnull"`
	Content     string `bun:"content,notnull"`
}

type authorRow struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	CommunityID string `bun:"community_id,pk"`
	AuthorID    string `bun:"author_id,pk"`
	DisplayName string `bun:"display_name,notnull"`
}

type cursorRow struct {
	bun.BaseModel `bun:"table:channel_cursors,alias:cc"`

	ChannelID string    `bun:"channel_id,pk"`
	LastRead  time.Time `bun:"last_read,notnull"`
}

type scoreRow struct {
	bun.BaseModel `bun:"table:player_scores,alias:ps"`

	CommunityID string `bun:"community_id,pk"`
	PlayerID    string `bun:"player_id,pk"`
	Wins        int    `bun:"wins,notnull"`
	TotalTries  int    `bun:"total_tries,notnull"`
}

type confusionRow struct {
	bun.BaseModel `bun:"table:confusion,alias:cf"`

	CorrectID string `bun:"correct_id,pk"`
	GuessedID string `bun:"guessed_id,pk"`
	Count     int    `bun:"count,notnull"`
}

// Store persists harvested messages and quiz statistics in Postgres through bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// SaveMessages inserts messages, skipping ids that already exist.
func (s *Store) SaveMessages(ctx context.Context, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	rows := make([]messageRow, 0, len(messages))
	for _, m := range messages {
		rows = append(rows, messageRow{ID: m.ID, AuthorID: m.AuthorID, CommunityID: m.CommunityID, Content: m.Content})
	}
	_, err := s.db.NewInsert().Model(&rows).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

func (s *Store) SaveAuthors(ctx context.Context, authors []domain.Author) error {
	if len(authors) == 0 {
		return nil
	}
	rows := make([]authorRow, 0, len(authors))
	for _, a := range authors {
		rows = append(rows, authorRow{CommunityID: a.CommunityID, AuthorID: a.ID, DisplayName: a.DisplayName})
	}
	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (community_id, author_id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert authors: %w", err)
	}
	return nil
}

// SaveCursors upserts channel cursors; a stored cursor never moves backwards.
func (s *Store) SaveCursors(ctx context.Context, cursors []domain.ChannelCursor) error {
	if len(cursors) == 0 {
		return nil
	}
	rows := make([]cursorRow, 0, len(cursors))
	for _, c := range cursors {
		rows = append(rows, cursorRow{ChannelID: c.ChannelID, LastRead: c.LastRead.UTC()})
	}
	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (channel_id) DO UPDATE").
		Set("last_read = GREATEST(cc.last_read, EXCLUDED.last_read)").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert cursors: %w", err)
	}
	return nil
}

func (s *Store) Cursor(ctx context.Context, channelID string) (domain.ChannelCursor, bool, error) {
	var row cursorRow
	err := s.db.NewSelect().Model(&row).Where("channel_id = ?", channelID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChannelCursor{}, false, nil
	}
	if err != nil {
		return domain.ChannelCursor{}, false, fmt.Errorf("select cursor: %w", err)
	}
	return domain.ChannelCursor{ChannelID: row.ChannelID, LastRead: row.LastRead}, true, nil
}

func (s *Store) CountMessages(ctx context.Context, communityID string) (int, error) {
	n, err := s.db.NewSelect().Model((*messageRow)(nil)).Where("community_id = ?", communityID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (s *Store) RandomMessage(ctx context.Context, communityID string) (domain.Message, bool, error) {
	var row messageRow
	err := s.db.NewSelect().
		Model(&row).
		Where("community_id = ?", communityID).
		OrderExpr("random()").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("select random message: %w", err)
	}
	return domain.Message{ID: row.ID, AuthorID: row.AuthorID, CommunityID: row.CommunityID, Content: row.Content}, true, nil
}

func (s *Store) Author(ctx context.Context, communityID, authorID string) (domain.Author, bool, error) {
	var row authorRow
	err := s.db.NewSelect().
		Model(&row).
		Where("community_id = ?", communityID).
		Where("author_id = ?", authorID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Author{}, false, nil
	}
	if err != nil {
		return domain.Author{}, false, fmt.Errorf("select author: %w", err)
	}
	return domain.Author{ID: row.AuthorID, CommunityID: row.CommunityID, DisplayName: row.DisplayName}, true, nil
}

func (s *Store) CommunityAuthors(ctx context.Context, communityID string) ([]domain.Author, error) {
	var rows []authorRow
	if err := s.db.NewSelect().Model(&rows).Where("community_id = ?", communityID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select authors: %w", err)
	}
	authors := make([]domain.Author, 0, len(rows))
	for _, row := range rows {
		authors = append(authors, domain.Author{ID: row.AuthorID, CommunityID: row.CommunityID, DisplayName: row.DisplayName})
	}
	return authors, nil
}

// RecordWin adds one win and the tries it took to the player's score.
func (s *Store) RecordWin(ctx context.Context, communityID, playerID string, tries int) error {
	row := scoreRow{CommunityID: communityID, PlayerID: playerID, Wins: 1, TotalTries: tries}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (community_id, player_id) DO UPDATE").
		Set("wins = ps.wins + EXCLUDED.wins").
		Set("total_tries = ps.total_tries + EXCLUDED.total_tries").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

// RecordConfusion increments the ordered (correct, guessed) pair.
func (s *Store) RecordConfusion(ctx context.Context, correctID, guessedID string) error {
	row := confusionRow{CorrectID: correctID, GuessedID: guessedID, Count: 1}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (correct_id, guessed_id) DO UPDATE").
		Set("count = cf.count + EXCLUDED.count").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert confusion: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"message-quizzer/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

const scoreboardSQL = `
SELECT s.player_id,
       COALESCE(a.display_name, s.player_id),
       s.wins,
       s.total_tries,
       s.total_tries::float8 / s.wins AS avg_tries
FROM player_scores s
LEFT JOIN authors a ON a.community_id = s.community_id AND a.author_id = s.player_id
WHERE s.community_id = $1 AND s.wins > 0
ORDER BY avg_tries ASC, s.seq ASC
LIMIT $2`

const confusionsSQL = `
SELECT c.correct_id, ca.display_name, c.guessed_id, ga.display_name, c.count
FROM confusion c
JOIN authors ca ON ca.community_id = $1 AND ca.author_id = c.correct_id
JOIN authors ga ON ga.community_id = $1 AND ga.author_id = c.guessed_id
ORDER BY c.count DESC, c.seq ASC
LIMIT $2`

// Analytics runs the leaderboard queries directly on a pgx pool.
type Analytics struct {
	pool *pgxpool.Pool
}

func NewAnalytics(pool *pgxpool.Pool) *Analytics {
	return &Analytics{pool: pool}
}

func (a *Analytics) Scoreboard(ctx context.Context, communityID string, limit int) ([]domain.ScoreboardEntry, error) {
	rows, err := a.pool.Query(ctx, scoreboardSQL, communityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query scoreboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.ScoreboardEntry
	for rows.Next() {
		var e domain.ScoreboardEntry
		if err := rows.Scan(&e.PlayerID, &e.DisplayName, &e.Wins, &e.TotalTries, &e.AverageTries); err != nil {
			return nil, fmt.Errorf("scan scoreboard: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scoreboard: %w", err)
	}
	return entries, nil
}

func (a *Analytics) Confusions(ctx context.Context, communityID string, limit int) ([]domain.ConfusionEntry, error) {
	rows, err := a.pool.Query(ctx, confusionsSQL, communityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query confusions: %w", err)
	}
	defer rows.Close()

	var entries []domain.ConfusionEntry
	for rows.Next() {
		var e domain.ConfusionEntry
		if err := rows.Scan(&e.CorrectID, &e.CorrectName, &e.GuessedID, &e.GuessedName, &e.Count); err != nil {
			return nil, fmt.Errorf("scan confusions: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate confusions: %w", err)
	}
	return entries, nil
}

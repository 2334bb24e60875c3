package app

import (
	"context"

	"message-quizzer/internal/domain"
)

// AnalyticsRepository runs the read-only leaderboard queries.
type AnalyticsRepository interface {
	Scoreboard(ctx context.Context, communityID string, limit int) ([]domain.ScoreboardEntry, error)
	Confusions(ctx context.Context, communityID string, limit int) ([]domain.ConfusionEntry, error)
}

// AnalyticsService serves the scoreboard and "mixes" commands.
type AnalyticsService struct {
	repo  AnalyticsRepository
	limit int
}

func NewAnalyticsService(repo AnalyticsRepository, limit int) *AnalyticsService {
	if limit <= 0 {
		limit = 10
	}
	return &AnalyticsService{repo: repo, limit: limit}
}

// Scoreboard returns the best players of a community, lowest average tries first.
func (s *AnalyticsService) Scoreboard(ctx context.Context, communityID string) ([]domain.ScoreboardEntry, error) {
	return s.repo.Scoreboard(ctx, communityID, s.limit)
}

// Mixes returns the most frequently confused author pairs of a community.
func (s *AnalyticsService) Mixes(ctx context.Context, communityID string) ([]domain.ConfusionEntry, error) {
	return s.repo.Confusions(ctx, communityID, s.limit)
}

package cli

import (
	"context"
	"fmt"

	"message-quizzer/internal/app"
	"message-quizzer/internal/bot"
	"message-quizzer/internal/config"
	"message-quizzer/internal/infra/postgres"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewReportCmd prints the analytics leaderboards of a community from Postgres.
func NewReportCmd(configPath *string) *cobra.Command {
	var communityID string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print community leaderboards",
	}
	cmd.PersistentFlags().StringVar(&communityID, "community", "", "community id")
	_ = cmd.MarkPersistentFlagRequired("community")

	cmd.AddCommand(&cobra.Command{
		Use:   "scoreboard",
		Short: "Players with the fewest tries per win",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAnalytics(cmd.Context(), *configPath, func(ctx context.Context, analytics *app.AnalyticsService) error {
				entries, err := analytics.Scoreboard(ctx, communityID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), bot.RenderScoreboard(entries))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "mixes",
		Short: "Authors most often mistaken for each other",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAnalytics(cmd.Context(), *configPath, func(ctx context.Context, analytics *app.AnalyticsService) error {
				entries, err := analytics.Mixes(ctx, communityID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), bot.RenderMixes(entries))
				return nil
			})
		},
	})
	return cmd
}

func withAnalytics(ctx context.Context, configPath string, fn func(context.Context, *app.AnalyticsService) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	return fn(ctx, app.NewAnalyticsService(postgres.NewAnalytics(pool), cfg.Quiz.LeaderboardSize))
}

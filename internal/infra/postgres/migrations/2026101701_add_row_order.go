package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

// seq records first-insert order; leaderboard ties fall back to it.
//
//go:embed 0002_add_row_order.sql
var addRowOrderSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, addRowOrderSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `ALTER TABLE player_scores DROP COLUMN IF EXISTS seq; ALTER TABLE confusion DROP COLUMN IF EXISTS seq`)
			return err
		},
	)
}

package app_test

import (
	"context"
	"testing"

	"message-quizzer/internal/app"
	"message-quizzer/internal/infra/memory"
)

func TestAnalyticsAfterQuizRounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2, "Ann", "Bo", "Cy")
	analytics := app.NewAnalyticsService(f.store, 10)

	q, err := f.service.Start(ctx, "g1", "c1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = f.service.Choose(ctx, q.SessionID, "bo", labelFor(t, q, "cy"))
	_, _ = f.service.Choose(ctx, q.SessionID, "bo", labelFor(t, q, "ann"))
	_, _ = f.service.Choose(ctx, q.SessionID, "cy", labelFor(t, q, "ann"))

	board, err := analytics.Scoreboard(ctx, "g1")
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	if len(board) != 2 || board[0].DisplayName != "Cy" || board[1].DisplayName != "Bo" {
		t.Fatalf("unexpected scoreboard %+v", board)
	}

	mixes, err := analytics.Mixes(ctx, "g1")
	if err != nil {
		t.Fatalf("mixes: %v", err)
	}
	if len(mixes) != 1 || mixes[0].CorrectName != "Ann" || mixes[0].GuessedName != "Cy" {
		t.Fatalf("unexpected mixes %+v", mixes)
	}
}

func TestAnalyticsDefaultLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for i := 0; i < 15; i++ {
		_ = store.RecordWin(ctx, "g1", string(rune('a'+i)), 1)
	}
	board, err := app.NewAnalyticsService(store, 0).Scoreboard(ctx, "g1")
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	if len(board) != 10 {
		t.Fatalf("expected default limit of 10, got %d", len(board))
	}
}

package memory

import (
	"testing"

	"message-quizzer/internal/app"
	"message-quizzer/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	session := app.NewSession("s1", "c1", domain.Message{ID: "m1", CommunityID: "g1"}, domain.Author{ID: "ann", DisplayName: "Ann"})
	store.Put(session)
	if got, ok := store.Get("s1"); !ok || got != session {
		t.Fatalf("expected session present")
	}
	if len(store.List()) != 1 {
		t.Fatalf("expected one listed session")
	}

	store.Delete("s1")
	if _, ok := store.Get("s1"); ok {
		t.Fatalf("expected session removed")
	}
	if len(store.List()) != 0 {
		t.Fatalf("expected empty list after delete")
	}
}

package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"message-quizzer/internal/domain"
)

// Store is an in-process implementation of the persistent store, used when
// no Postgres URL is configured and throughout the tests.
type Store struct {
	mu sync.RWMutex
	// messages keep insertion order per community for random access.
	messages   map[string][]domain.Message
	messageIDs map[string]struct{}
	authors    map[string][]domain.Author
	cursors    map[string]time.Time
	scores     []domain.PlayerScore
	confusions []domain.ConfusionCount

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewStore() *Store {
	return &Store{
		messages:   make(map[string][]domain.Message),
		messageIDs: make(map[string]struct{}),
		authors:    make(map[string][]domain.Author),
		cursors:    make(map[string]time.Time),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Store) SaveMessages(_ context.Context, messages []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		if _, ok := s.messageIDs[m.ID]; ok {
			continue
		}
		s.messageIDs[m.ID] = struct{}{}
		s.messages[m.CommunityID] = append(s.messages[m.CommunityID], m)
	}
	return nil
}

func (s *Store) SaveAuthors(_ context.Context, authors []domain.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range authors {
		list := s.authors[a.CommunityID]
		replaced := false
		for i := range list {
			if list[i].ID == a.ID {
				list[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			s.authors[a.CommunityID] = append(list, a)
		}
	}
	return nil
}

func (s *Store) SaveCursors(_ context.Context, cursors []domain.ChannelCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cursors {
		if cur, ok := s.cursors[c.ChannelID]; !ok || c.LastRead.After(cur) {
			s.cursors[c.ChannelID] = c.LastRead
		}
	}
	return nil
}

func (s *Store) Cursor(_ context.Context, channelID string) (domain.ChannelCursor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.cursors[channelID]
	if !ok {
		return domain.ChannelCursor{}, false, nil
	}
	return domain.ChannelCursor{ChannelID: channelID, LastRead: last}, true, nil
}

// Messages returns every persisted message of a community in insertion order.
func (s *Store) Messages(_ context.Context, communityID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.messages[communityID]))
	copy(out, s.messages[communityID])
	return out, nil
}

func (s *Store) CountMessages(_ context.Context, communityID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[communityID]), nil
}

func (s *Store) RandomMessage(_ context.Context, communityID string) (domain.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.messages[communityID]
	if len(list) == 0 {
		return domain.Message{}, false, nil
	}
	s.rndMu.Lock()
	idx := s.rnd.Intn(len(list))
	s.rndMu.Unlock()
	return list[idx], true, nil
}

func (s *Store) Author(_ context.Context, communityID, authorID string) (domain.Author, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.authors[communityID] {
		if a.ID == authorID {
			return a, true, nil
		}
	}
	return domain.Author{}, false, nil
}

func (s *Store) CommunityAuthors(_ context.Context, communityID string) ([]domain.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Author, len(s.authors[communityID]))
	copy(out, s.authors[communityID])
	return out, nil
}

func (s *Store) RecordWin(_ context.Context, communityID, playerID string, tries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.scores {
		if s.scores[i].CommunityID == communityID && s.scores[i].PlayerID == playerID {
			s.scores[i].Wins++
			s.scores[i].TotalTries += tries
			return nil
		}
	}
	s.scores = append(s.scores, domain.PlayerScore{CommunityID: communityID, PlayerID: playerID, Wins: 1, TotalTries: tries})
	return nil
}

func (s *Store) RecordConfusion(_ context.Context, correctID, guessedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.confusions {
		if s.confusions[i].CorrectID == correctID && s.confusions[i].GuessedID == guessedID {
			s.confusions[i].Count++
			return nil
		}
	}
	s.confusions = append(s.confusions, domain.ConfusionCount{CorrectID: correctID, GuessedID: guessedID, Count: 1})
	return nil
}

// Score returns the aggregate score of a player, if any.
func (s *Store) Score(_ context.Context, communityID, playerID string) (domain.PlayerScore, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.scores {
		if sc.CommunityID == communityID && sc.PlayerID == playerID {
			return sc, true
		}
	}
	return domain.PlayerScore{}, false
}

// Confusion returns the count for an ordered (correct, guessed) pair.
func (s *Store) Confusion(_ context.Context, correctID, guessedID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.confusions {
		if c.CorrectID == correctID && c.GuessedID == guessedID {
			return c.Count
		}
	}
	return 0
}

// Scoreboard ranks players by ascending average tries; ties keep insertion order.
func (s *Store) Scoreboard(_ context.Context, communityID string, limit int) ([]domain.ScoreboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []domain.ScoreboardEntry
	for _, sc := range s.scores {
		if sc.CommunityID != communityID || sc.Wins == 0 {
			continue
		}
		entries = append(entries, domain.ScoreboardEntry{
			PlayerID:     sc.PlayerID,
			DisplayName:  s.displayNameLocked(communityID, sc.PlayerID),
			Wins:         sc.Wins,
			TotalTries:   sc.TotalTries,
			AverageTries: sc.AverageTries(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AverageTries < entries[j].AverageTries
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Confusions ranks ordered author pairs of a community by descending count.
func (s *Store) Confusions(_ context.Context, communityID string, limit int) ([]domain.ConfusionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []domain.ConfusionEntry
	for _, c := range s.confusions {
		correct, ok := s.authorLocked(communityID, c.CorrectID)
		if !ok {
			continue
		}
		guessed, ok := s.authorLocked(communityID, c.GuessedID)
		if !ok {
			continue
		}
		entries = append(entries, domain.ConfusionEntry{
			CorrectID:   c.CorrectID,
			CorrectName: correct.DisplayName,
			GuessedID:   c.GuessedID,
			GuessedName: guessed.DisplayName,
			Count:       c.Count,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) authorLocked(communityID, authorID string) (domain.Author, bool) {
	for _, a := range s.authors[communityID] {
		if a.ID == authorID {
			return a, true
		}
	}
	return domain.Author{}, false
}

func (s *Store) displayNameLocked(communityID, playerID string) string {
	if a, ok := s.authorLocked(communityID, playerID); ok {
		return a.DisplayName
	}
	return playerID
}

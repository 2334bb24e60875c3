package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"message-quizzer/internal/domain"

	"github.com/google/uuid"
)

// SessionRepository abstracts where active quiz sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
	List() []*Session
}

// QuizStore is the persisted side of quiz construction and scoring.
type QuizStore interface {
	CountMessages(ctx context.Context, communityID string) (int, error)
	RandomMessage(ctx context.Context, communityID string) (domain.Message, bool, error)
	Author(ctx context.Context, communityID, authorID string) (domain.Author, bool, error)
	RecordWin(ctx context.Context, communityID, playerID string, tries int) error
	RecordConfusion(ctx context.Context, correctID, guessedID string) error
}

// AuthorDirectory lists the known authors of a community (store, or a cache in front of it).
type AuthorDirectory interface {
	CommunityAuthors(ctx context.Context, communityID string) ([]domain.Author, error)
}

// MessagePool exposes the not-yet-persisted messages and authors of the ingestion buffer.
type MessagePool interface {
	PendingMessages(communityID string) []domain.Message
	PendingAuthor(communityID, authorID string) (domain.Author, bool)
	PendingAuthors(communityID string) []domain.Author
}

// QuizConfig tunes question construction.
type QuizConfig struct {
	Distractors int
	Timeout     time.Duration
	// Rand and Now are optional; tests inject them for determinism.
	Rand *rand.Rand
	Now  func() time.Time
}

// QuizService builds questions from harvested messages and applies answers.
type QuizService struct {
	sessions    SessionRepository
	pool        MessagePool
	store       QuizStore
	authors     AuthorDirectory
	distractors int
	timeout     time.Duration
	now         func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizService(sessions SessionRepository, pool MessagePool, store QuizStore, authors AuthorDirectory, cfg QuizConfig) *QuizService {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if cfg.Distractors < 0 {
		cfg.Distractors = 0
	}
	return &QuizService{
		sessions:    sessions,
		pool:        pool,
		store:       store,
		authors:     authors,
		distractors: cfg.Distractors,
		timeout:     cfg.Timeout,
		now:         cfg.Now,
		rnd:         cfg.Rand,
	}
}

// Timeout returns how long a question accepts answers.
func (s *QuizService) Timeout() time.Duration { return s.timeout }

// Start picks a random harvested message of the community and opens a session for it.
func (s *QuizService) Start(ctx context.Context, communityID, channelID string) (Question, error) {
	message, err := s.pickMessage(ctx, communityID)
	if err != nil {
		return Question{}, err
	}

	correct, err := s.resolveAuthor(ctx, communityID, message.AuthorID)
	if err != nil {
		return Question{}, err
	}

	pool, err := s.distractorPool(ctx, communityID, correct.ID)
	if err != nil {
		return Question{}, err
	}

	picked := s.sample(pool, s.distractors)
	picked = append(picked, correct)
	s.shuffle(picked)

	authors := make(map[string]domain.Author, len(picked))
	choices := make([]domain.Choice, 0, len(picked))
	seen := make(map[string]int, len(picked))
	for _, author := range picked {
		authors[author.ID] = author
		label := author.DisplayName
		if n := seen[label]; n > 0 {
			label = fmt.Sprintf("%s #%d", author.DisplayName, n+1)
		}
		seen[author.DisplayName]++
		choices = append(choices, domain.Choice{Label: label, AuthorID: author.ID})
	}

	now := s.now()
	session := newSession(uuid.NewString(), channelID, message, correct, choices, authors, s.distractors, now)
	session.activate(now.Add(s.timeout))
	s.sessions.Put(session)
	return session.question(), nil
}

// Choose applies a player's click. The whole check-write-update sequence
// runs under the session lock so that concurrent clicks never interleave.
// A failed store write leaves the session untouched. Clicking the same wrong
// author twice in a row counts once.
func (s *QuizService) Choose(ctx context.Context, sessionID, playerID, label string) (ChoiceOutcome, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return ChoiceOutcome{}, domain.ErrSessionNotFound
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	outcome := ChoiceOutcome{Correct: session.correct}
	if session.state != StateActive {
		outcome.Kind = OutcomeClosed
		return outcome, nil
	}
	if _, won := session.winners[playerID]; won {
		outcome.Kind = OutcomeAlreadyWon
		return outcome, nil
	}

	chosen, ok := session.choice(label)
	if !ok {
		return ChoiceOutcome{}, domain.ErrChoiceNotFound
	}
	outcome.Chosen = chosen

	tries := session.tries[playerID]
	if chosen.ID == session.correct.ID {
		if err := s.store.RecordWin(ctx, session.communityID, playerID, tries+1); err != nil {
			return ChoiceOutcome{}, fmt.Errorf("record win: %w", err)
		}
		session.winners[playerID] = struct{}{}
		outcome.Kind = OutcomeCorrect
		outcome.Attempts = tries + 1
		outcome.Wording = AttemptWording(tries, session.distractors)
		return outcome, nil
	}

	if last, ok := session.lastWrong[playerID]; ok && last == chosen.ID {
		outcome.Kind = OutcomeAlreadyGuessed
		outcome.Attempts = tries
		return outcome, nil
	}
	if err := s.store.RecordConfusion(ctx, session.correct.ID, chosen.ID); err != nil {
		return ChoiceOutcome{}, fmt.Errorf("record confusion: %w", err)
	}
	session.lastWrong[playerID] = chosen.ID
	session.tries[playerID] = tries + 1
	outcome.Kind = OutcomeIncorrect
	outcome.Attempts = tries + 1
	return outcome, nil
}

// Expire resolves a session by timeout and returns the reveal. It reports
// false when the session is unknown or was already resolved.
func (s *QuizService) Expire(_ context.Context, sessionID string) (Reveal, bool) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return Reveal{}, false
	}

	session.mu.Lock()
	resolved := session.resolveLocked(ResolutionTimeout)
	reveal := session.revealLocked()
	session.mu.Unlock()

	s.sessions.Delete(sessionID)
	return reveal, resolved
}

// Reap expires every session whose deadline has passed. It covers sessions
// whose timeout callback never ran.
func (s *QuizService) Reap(ctx context.Context, now time.Time) []Reveal {
	var reveals []Reveal
	for _, session := range s.sessions.List() {
		deadline := session.Deadline()
		if deadline.IsZero() || now.Before(deadline) {
			continue
		}
		if reveal, ok := s.Expire(ctx, session.ID()); ok {
			reveals = append(reveals, reveal)
		}
	}
	return reveals
}

// pickMessage draws uniformly from persisted and buffered messages together.
func (s *QuizService) pickMessage(ctx context.Context, communityID string) (domain.Message, error) {
	persisted, err := s.store.CountMessages(ctx, communityID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("count messages: %w", err)
	}
	pending := s.pool.PendingMessages(communityID)

	total := persisted + len(pending)
	if total == 0 {
		return domain.Message{}, domain.ErrNoQuestionAvailable
	}

	idx := s.intn(total)
	if idx < persisted {
		msg, ok, err := s.store.RandomMessage(ctx, communityID)
		if err != nil {
			return domain.Message{}, fmt.Errorf("random message: %w", err)
		}
		if ok {
			return msg, nil
		}
		if len(pending) == 0 {
			return domain.Message{}, domain.ErrNoQuestionAvailable
		}
		return pending[s.intn(len(pending))], nil
	}
	return pending[idx-persisted], nil
}

func (s *QuizService) resolveAuthor(ctx context.Context, communityID, authorID string) (domain.Author, error) {
	if author, ok := s.pool.PendingAuthor(communityID, authorID); ok {
		return author, nil
	}
	author, ok, err := s.store.Author(ctx, communityID, authorID)
	if err != nil {
		return domain.Author{}, fmt.Errorf("load author: %w", err)
	}
	if !ok {
		return domain.Author{ID: authorID, CommunityID: communityID, DisplayName: authorID}, nil
	}
	return author, nil
}

// distractorPool merges stored and buffered authors, buffered names winning.
func (s *QuizService) distractorPool(ctx context.Context, communityID, excludeID string) ([]domain.Author, error) {
	stored, err := s.authors.CommunityAuthors(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}

	index := make(map[string]int)
	var pool []domain.Author
	add := func(a domain.Author) {
		if a.ID == excludeID {
			return
		}
		if i, ok := index[a.ID]; ok {
			pool[i] = a
			return
		}
		index[a.ID] = len(pool)
		pool = append(pool, a)
	}
	for _, a := range stored {
		add(a)
	}
	for _, a := range s.pool.PendingAuthors(communityID) {
		add(a)
	}
	return pool, nil
}

// sample picks min(k, len(pool)) authors without replacement.
func (s *QuizService) sample(pool []domain.Author, k int) []domain.Author {
	if k > len(pool) {
		k = len(pool)
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()

	out := make([]domain.Author, 0, k+1)
	for _, i := range s.rnd.Perm(len(pool))[:k] {
		out = append(out, pool[i])
	}
	return out
}

func (s *QuizService) shuffle(authors []domain.Author) {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	s.rnd.Shuffle(len(authors), func(i, j int) { authors[i], authors[j] = authors[j], authors[i] })
}

func (s *QuizService) intn(n int) int {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.rnd.Intn(n)
}

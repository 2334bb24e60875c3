package app

import (
	"fmt"
	"sync"
	"time"

	"message-quizzer/internal/domain"
)

// SessionState is the lifecycle position of a quiz session.
type SessionState int

const (
	StateCreated SessionState = iota
	StateActive
	StateResolved
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateResolved:
		return "resolved"
	}
	return "unknown"
}

// Resolution records why a session stopped accepting answers.
type Resolution int

const (
	ResolutionNone Resolution = iota
	ResolutionTimeout
)

// OutcomeKind classifies the effect of a single button click.
type OutcomeKind int

const (
	OutcomeCorrect OutcomeKind = iota
	OutcomeIncorrect
	// OutcomeAlreadyWon means the player had already won; nothing changed.
	OutcomeAlreadyWon
	// OutcomeClosed means the session was resolved before the click.
	OutcomeClosed
	// OutcomeAlreadyGuessed means the player clicked the same wrong author
	// twice in a row; the repeated click changes nothing.
	OutcomeAlreadyGuessed
)

// ChoiceOutcome describes how a click was applied.
type ChoiceOutcome struct {
	Kind     OutcomeKind
	Attempts int
	Wording  string
	Chosen   domain.Author
	Correct  domain.Author
}

// Question is the rendered view of a freshly started session.
type Question struct {
	SessionID string
	ChannelID string
	Text      string
	Choices   []domain.Choice
	Deadline  time.Time
}

// Reveal is produced when a session times out.
type Reveal struct {
	SessionID string
	ChannelID string
	Text      string
	Correct   domain.Author
}

// Session holds one posted question and the answers given to it.
type Session struct {
	id          string
	communityID string
	channelID   string
	message     domain.Message
	correct     domain.Author
	choices     []domain.Choice
	authors     map[string]domain.Author
	distractors int
	createdAt   time.Time

	mu         sync.Mutex
	state      SessionState
	resolution Resolution
	deadline   time.Time
	winners    map[string]struct{}
	tries      map[string]int
	lastWrong  map[string]string
}

// NewSession builds a Created session whose only choice is the correct
// author. Session stores use it to exercise their registries.
func NewSession(id, channelID string, message domain.Message, correct domain.Author) *Session {
	choices := []domain.Choice{{Label: correct.DisplayName, AuthorID: correct.ID}}
	authors := map[string]domain.Author{correct.ID: correct}
	return newSession(id, channelID, message, correct, choices, authors, 0, time.Now())
}

func newSession(id, channelID string, message domain.Message, correct domain.Author, choices []domain.Choice, authors map[string]domain.Author, distractors int, now time.Time) *Session {
	return &Session{
		id:          id,
		communityID: message.CommunityID,
		channelID:   channelID,
		message:     message,
		correct:     correct,
		choices:     choices,
		authors:     authors,
		distractors: distractors,
		createdAt:   now,
		state:       StateCreated,
		winners:     make(map[string]struct{}),
		tries:       make(map[string]int),
		lastWrong:   make(map[string]string),
	}
}

// ID returns the session identifier carried by its buttons.
func (s *Session) ID() string { return s.id }

// ChannelID returns the channel the question was posted to.
func (s *Session) ChannelID() string { return s.channelID }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resolution returns why the session was resolved, if it was.
func (s *Session) Resolution() Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolution
}

// Deadline returns the time after which the session times out.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// Tries returns the number of wrong guesses recorded for a player.
func (s *Session) Tries(playerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tries[playerID]
}

// IsWinner reports whether the player already answered correctly.
func (s *Session) IsWinner(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.winners[playerID]
	return ok
}

func (s *Session) activate(deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCreated {
		s.state = StateActive
		s.deadline = deadline
	}
}

func (s *Session) question() Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	choices := make([]domain.Choice, len(s.choices))
	copy(choices, s.choices)
	return Question{
		SessionID: s.id,
		ChannelID: s.channelID,
		Text:      s.message.Content,
		Choices:   choices,
		Deadline:  s.deadline,
	}
}

func (s *Session) choice(label string) (domain.Author, bool) {
	for _, c := range s.choices {
		if c.Label == label {
			return s.authors[c.AuthorID], true
		}
	}
	return domain.Author{}, false
}

// resolveLocked moves an active session to Resolved. It reports false when
// the session was already resolved. Callers hold s.mu.
func (s *Session) resolveLocked(reason Resolution) bool {
	if s.state == StateResolved {
		return false
	}
	s.state = StateResolved
	s.resolution = reason
	return true
}

func (s *Session) revealLocked() Reveal {
	return Reveal{
		SessionID: s.id,
		ChannelID: s.channelID,
		Text:      RevealText(s.message.Content, s.correct.DisplayName),
		Correct:   s.correct,
	}
}

// RevealText appends the author's name, padded for fixed-width alignment, to the quoted message.
func RevealText(content, authorName string) string {
	return fmt.Sprintf("%s\n- `%-32s`", content, authorName)
}

// AttemptWording phrases how many tries a correct answer took.
// tries counts the wrong guesses made before the correct one.
func AttemptWording(tries, distractors int) string {
	switch {
	case tries <= 0:
		return "on the first try"
	case tries == 1:
		return "on the second try"
	case tries <= distractors:
		return fmt.Sprintf("after %d tries", tries+1)
	default:
		return fmt.Sprintf("only after %d tries", tries+1)
	}
}

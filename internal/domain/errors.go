package domain

import "errors"

var (
	// ErrNoQuestionAvailable is returned when a community has neither persisted nor buffered messages.
	ErrNoQuestionAvailable = errors.New("no question available")
	// ErrSessionNotFound is returned when a quiz session is unknown or already cleaned up.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrChoiceNotFound indicates a clicked label does not belong to the session.
	ErrChoiceNotFound = errors.New("choice not found")
	// ErrForbidden is returned by history sources when the bot cannot read a channel.
	ErrForbidden = errors.New("channel access forbidden")
)

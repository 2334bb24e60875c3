package bot

import (
	"context"
	"time"

	"message-quizzer/internal/domain"
)

// Button is one interactive choice attached to a posted question.
type Button struct {
	SessionID string `json:"sessionId"`
	Label     string `json:"label"`
	Disabled  bool   `json:"disabled"`
}

// SentMessage identifies a message the bot posted so it can be edited later.
type SentMessage struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// Interaction is a button click on a posted question.
type Interaction struct {
	ID          string `json:"interactionId"`
	SessionID   string `json:"sessionId"`
	ChannelID   string `json:"channelId"`
	CommunityID string `json:"communityId"`
	PlayerID    string `json:"playerId"`
	PlayerName  string `json:"playerName"`
	Label       string `json:"label"`
}

// Platform is the outbound side of the chat connection.
type Platform interface {
	Send(ctx context.Context, channelID, text string, buttons []Button) (SentMessage, error)
	Edit(ctx context.Context, sent SentMessage, text string, buttons []Button) error
	RespondEphemeral(ctx context.Context, in Interaction, text string) error
	RespondPublic(ctx context.Context, in Interaction, text string) error
	Acknowledge(ctx context.Context, in Interaction) error
	// History returns at most limit messages of a channel sent after the
	// given time, oldest first. Unreadable channels yield domain.ErrForbidden.
	History(ctx context.Context, channelID string, after time.Time, limit int) ([]domain.ChatMessage, error)
}

package domain

import "time"

// ChatMessage is an inbound message as delivered by the chat platform.
type ChatMessage struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channelId"`
	CommunityID string    `json:"communityId"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	Content     string    `json:"content"`
	Automated   bool      `json:"automated"`
	SentAt      time.Time `json:"sentAt"`
}

// Message is a harvested quiz message. It is never modified once persisted.
type Message struct {
	ID          string `json:"id"`
	AuthorID    string `json:"authorId"`
	CommunityID string `json:"communityId"`
	Content     string `json:"content"`
}

// Author is a member known to have written in a community.
type Author struct {
	ID          string `json:"id"`
	CommunityID string `json:"communityId"`
	DisplayName string `json:"displayName"`
}

// ChannelCursor marks how far a channel's history has been read.
type ChannelCursor struct {
	ChannelID string    `json:"channelId"`
	LastRead  time.Time `json:"lastRead"`
}

// PlayerScore aggregates a player's quiz wins in a community.
type PlayerScore struct {
	CommunityID string `json:"communityId"`
	PlayerID    string `json:"playerId"`
	Wins        int    `json:"wins"`
	TotalTries  int    `json:"totalTries"`
}

// AverageTries returns TotalTries/Wins, or 0 for a player without wins.
func (s PlayerScore) AverageTries() float64 {
	if s.Wins == 0 {
		return 0
	}
	return float64(s.TotalTries) / float64(s.Wins)
}

// ConfusionCount tallies how often CorrectID's messages were attributed to GuessedID.
type ConfusionCount struct {
	CorrectID string `json:"correctId"`
	GuessedID string `json:"guessedId"`
	Count     int    `json:"count"`
}

// ScoreboardEntry is a ranked row of the community scoreboard.
type ScoreboardEntry struct {
	PlayerID     string  `json:"playerId"`
	DisplayName  string  `json:"displayName"`
	Wins         int     `json:"wins"`
	TotalTries   int     `json:"totalTries"`
	AverageTries float64 `json:"averageTries"`
}

// ConfusionEntry is a ranked row of the "mixes" leaderboard.
type ConfusionEntry struct {
	CorrectID   string `json:"correctId"`
	CorrectName string `json:"correctName"`
	GuessedID   string `json:"guessedId"`
	GuessedName string `json:"guessedName"`
	Count       int    `json:"count"`
}

// Choice is one labeled answer button of a quiz question.
type Choice struct {
	Label    string `json:"label"`
	AuthorID string `json:"authorId"`
}

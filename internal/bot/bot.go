package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"message-quizzer/internal/app"
	"message-quizzer/internal/domain"
	"message-quizzer/internal/ingest"
)

const (
	textNotEnoughMessages = "Not enough messages read yet, try again later."
	textClosed            = "This question is closed."
	textFailed            = "Something went wrong, try again."
	textNoData            = "No data yet."
)

// Commands are the exact message texts that trigger bot commands.
type Commands struct {
	Guess      string
	Scoreboard string
	Mixes      string
}

type posted struct {
	sent    SentMessage
	buttons []Button
	timer   *time.Timer
}

// Bot routes chat events to ingestion, quizzes and analytics.
type Bot struct {
	platform  Platform
	buffer    *ingest.Buffer
	catchUp   *ingest.CatchUp
	quiz      *app.QuizService
	analytics *app.AnalyticsService
	commands  Commands

	mu     sync.Mutex
	posted map[string]*posted
	closed bool
}

func New(platform Platform, buffer *ingest.Buffer, quiz *app.QuizService, analytics *app.AnalyticsService, commands Commands, historyPageSize int) *Bot {
	return &Bot{
		platform:  platform,
		buffer:    buffer,
		catchUp:   ingest.NewCatchUp(buffer, platform, historyPageSize),
		quiz:      quiz,
		analytics: analytics,
		commands:  commands,
		posted:    make(map[string]*posted),
	}
}

// OnMessage handles a new chat message: harvest it if it qualifies,
// otherwise treat it as a possible command.
func (b *Bot) OnMessage(ctx context.Context, msg domain.ChatMessage) {
	if msg.Automated {
		return
	}

	if b.buffer.ShouldFlush() {
		if err := b.buffer.Flush(ctx); err != nil {
			log.Printf("flush failed: %v", err)
		}
	}

	if ingest.Qualified(msg) {
		b.buffer.Add(msg)
		return
	}

	var text string
	switch msg.Content {
	case b.commands.Guess:
		b.startQuiz(ctx, msg)
		return
	case b.commands.Scoreboard:
		text = b.scoreboardText(ctx, msg.CommunityID)
	case b.commands.Mixes:
		text = b.mixesText(ctx, msg.CommunityID)
	default:
		return
	}
	if _, err := b.platform.Send(ctx, msg.ChannelID, text, nil); err != nil {
		log.Printf("send to channel %s failed: %v", msg.ChannelID, err)
	}
}

// OnChannelsJoined catches up on the history of channels the bot can now see.
func (b *Bot) OnChannelsJoined(ctx context.Context, communityID string, channelIDs []string) {
	n := b.catchUp.Channels(ctx, communityID, channelIDs)
	log.Printf("caught up on %d messages from %d channels of %s", n, len(channelIDs), communityID)
}

// OnChoice applies a button click and answers the player.
func (b *Bot) OnChoice(ctx context.Context, in Interaction) {
	out, err := b.quiz.Choose(ctx, in.SessionID, in.PlayerID, in.Label)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		b.respond(ctx, in, textClosed, false)
		return
	case errors.Is(err, domain.ErrChoiceNotFound):
		b.ack(ctx, in)
		return
	case err != nil:
		log.Printf("choice on session %s failed: %v", in.SessionID, err)
		b.respond(ctx, in, textFailed, false)
		return
	}

	switch out.Kind {
	case app.OutcomeAlreadyWon, app.OutcomeAlreadyGuessed:
		b.ack(ctx, in)
	case app.OutcomeClosed:
		b.respond(ctx, in, textClosed, false)
	case app.OutcomeCorrect:
		b.respond(ctx, in, fmt.Sprintf("%s got it %s!", playerName(in), out.Wording), true)
	case app.OutcomeIncorrect:
		b.respond(ctx, in, fmt.Sprintf("Nope, it wasn't %s.", out.Chosen.DisplayName), false)
	}
}

// Reap resolves overdue questions whose timers never fired.
func (b *Bot) Reap(ctx context.Context, now time.Time) {
	for _, reveal := range b.quiz.Reap(ctx, now) {
		b.reveal(ctx, reveal)
	}
}

// Close stops pending question timers.
func (b *Bot) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, p := range b.posted {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
}

func (b *Bot) startQuiz(ctx context.Context, msg domain.ChatMessage) {
	q, err := b.quiz.Start(ctx, msg.CommunityID, msg.ChannelID)
	if errors.Is(err, domain.ErrNoQuestionAvailable) {
		if _, err := b.platform.Send(ctx, msg.ChannelID, textNotEnoughMessages, nil); err != nil {
			log.Printf("send to channel %s failed: %v", msg.ChannelID, err)
		}
		return
	}
	if err != nil {
		log.Printf("start quiz in %s failed: %v", msg.ChannelID, err)
		return
	}

	buttons := make([]Button, 0, len(q.Choices))
	for _, c := range q.Choices {
		buttons = append(buttons, Button{SessionID: q.SessionID, Label: c.Label})
	}

	sent, err := b.platform.Send(ctx, q.ChannelID, q.Text, buttons)
	if err != nil {
		log.Printf("post question in %s failed: %v", q.ChannelID, err)
		b.quiz.Expire(ctx, q.SessionID)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	sessionID := q.SessionID
	b.posted[sessionID] = &posted{
		sent:    sent,
		buttons: buttons,
		timer: time.AfterFunc(b.quiz.Timeout(), func() {
			if reveal, ok := b.quiz.Expire(context.Background(), sessionID); ok {
				b.reveal(context.Background(), reveal)
			}
		}),
	}
}

// reveal edits the posted question to show the answer and disables its buttons.
func (b *Bot) reveal(ctx context.Context, reveal app.Reveal) {
	b.mu.Lock()
	p, ok := b.posted[reveal.SessionID]
	delete(b.posted, reveal.SessionID)
	b.mu.Unlock()
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}

	disabled := make([]Button, len(p.buttons))
	for i, button := range p.buttons {
		button.Disabled = true
		disabled[i] = button
	}
	if err := b.platform.Edit(ctx, p.sent, reveal.Text, disabled); err != nil {
		log.Printf("reveal of session %s failed: %v", reveal.SessionID, err)
	}
}

func (b *Bot) respond(ctx context.Context, in Interaction, text string, public bool) {
	var err error
	if public {
		err = b.platform.RespondPublic(ctx, in, text)
	} else {
		err = b.platform.RespondEphemeral(ctx, in, text)
	}
	if err != nil {
		log.Printf("respond to %s failed: %v", in.ID, err)
	}
}

func (b *Bot) ack(ctx context.Context, in Interaction) {
	if err := b.platform.Acknowledge(ctx, in); err != nil {
		log.Printf("ack of %s failed: %v", in.ID, err)
	}
}

func (b *Bot) scoreboardText(ctx context.Context, communityID string) string {
	entries, err := b.analytics.Scoreboard(ctx, communityID)
	if err != nil {
		log.Printf("scoreboard of %s failed: %v", communityID, err)
		return textNoData
	}
	return RenderScoreboard(entries)
}

func (b *Bot) mixesText(ctx context.Context, communityID string) string {
	entries, err := b.analytics.Mixes(ctx, communityID)
	if err != nil {
		log.Printf("mixes of %s failed: %v", communityID, err)
		return textNoData
	}
	return RenderMixes(entries)
}

// RenderScoreboard formats scoreboard rows as a numbered list.
func RenderScoreboard(entries []domain.ScoreboardEntry) string {
	if len(entries) == 0 {
		return textNoData
	}
	var sb strings.Builder
	sb.WriteString("Scoreboard (fewest tries first)")
	for i, e := range entries {
		fmt.Fprintf(&sb, "\n%d. %s: %.2f tries per win (%d wins)", i+1, e.DisplayName, e.AverageTries, e.Wins)
	}
	return sb.String()
}

// RenderMixes formats the most confused author pairs as a numbered list.
func RenderMixes(entries []domain.ConfusionEntry) string {
	if len(entries) == 0 {
		return textNoData
	}
	var sb strings.Builder
	sb.WriteString("Most mixed up")
	for i, e := range entries {
		fmt.Fprintf(&sb, "\n%d. %s mistaken for %s %s", i+1, e.CorrectName, e.GuessedName, times(e.Count))
	}
	return sb.String()
}

func times(n int) string {
	if n == 1 {
		return "once"
	}
	return fmt.Sprintf("%d times", n)
}

func playerName(in Interaction) string {
	if in.PlayerName != "" {
		return in.PlayerName
	}
	return in.PlayerID
}

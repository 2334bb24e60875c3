package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"message-quizzer/internal/bot"
	"message-quizzer/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by outbound calls while no relay is attached.
var ErrNotConnected = errors.New("chat relay not connected")

// Handler receives inbound chat events.
type Handler interface {
	OnMessage(ctx context.Context, msg domain.ChatMessage)
	OnChannelsJoined(ctx context.Context, communityID string, channelIDs []string)
	OnChoice(ctx context.Context, in bot.Interaction)
}

type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Error     string          `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type channelsJoinedPayload struct {
	CommunityID string   `json:"communityId"`
	ChannelIDs  []string `json:"channelIds"`
}

type sendPayload struct {
	ChannelID string       `json:"channelId"`
	Text      string       `json:"text"`
	Buttons   []bot.Button `json:"buttons,omitempty"`
}

type editPayload struct {
	ChannelID string       `json:"channelId"`
	MessageID string       `json:"messageId"`
	Text      string       `json:"text"`
	Buttons   []bot.Button `json:"buttons,omitempty"`
}

type respondPayload struct {
	InteractionID string `json:"interactionId"`
	Text          string `json:"text,omitempty"`
	Ephemeral     bool   `json:"ephemeral,omitempty"`
}

type historyPayload struct {
	ChannelID string    `json:"channelId"`
	After     time.Time `json:"after"`
	Limit     int       `json:"limit"`
}

type connection struct {
	ws   *websocket.Conn
	send chan frame
	done chan struct{}
}

// Gateway is the websocket endpoint a chat-platform relay connects to.
// It turns inbound frames into Handler calls and implements bot.Platform
// for the outbound direction. One relay is attached at a time.
type Gateway struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	handler Handler
	conn    *connection
	pending map[string]chan frame
}

func NewGateway() *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pending: make(map[string]chan frame),
	}
}

// Handle attaches the receiver of inbound events.
func (g *Gateway) Handle(h Handler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
}

// Connected reports whether a relay is attached.
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn != nil
}

// ServeReady answers 200 while a relay is attached and 503 otherwise.
func (g *Gateway) ServeReady(w http.ResponseWriter, r *http.Request) {
	if !g.Connected() {
		http.Error(w, "relay not connected", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}

// ServeWS upgrades the relay's HTTP request and pumps frames until it disconnects.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	conn := &connection{ws: ws, send: make(chan frame, 16), done: make(chan struct{})}
	g.attach(conn)
	defer g.detach(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case f := <-conn.send:
				if err := ws.WriteJSON(f); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-conn.done:
				return
			}
		}
	}()

	var handlers sync.WaitGroup
	for {
		var in frame
		if err := ws.ReadJSON(&in); err != nil {
			break
		}
		if in.Type == "reply" {
			g.resolve(in)
			continue
		}
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			g.dispatch(ctx, in)
		}()
	}

	close(conn.done)
	cancel()
	<-writerDone
	handlers.Wait()
}

func (g *Gateway) dispatch(ctx context.Context, in frame) {
	g.mu.Lock()
	h := g.handler
	g.mu.Unlock()
	if h == nil {
		return
	}

	switch in.Type {
	case "message":
		var msg domain.ChatMessage
		if err := json.Unmarshal(in.Payload, &msg); err != nil {
			log.Printf("invalid message payload: %v", err)
			return
		}
		h.OnMessage(ctx, msg)
	case "channels_joined":
		var joined channelsJoinedPayload
		if err := json.Unmarshal(in.Payload, &joined); err != nil {
			log.Printf("invalid channels_joined payload: %v", err)
			return
		}
		h.OnChannelsJoined(ctx, joined.CommunityID, joined.ChannelIDs)
	case "choice":
		var interaction bot.Interaction
		if err := json.Unmarshal(in.Payload, &interaction); err != nil {
			log.Printf("invalid choice payload: %v", err)
			return
		}
		h.OnChoice(ctx, interaction)
	default:
		log.Printf("unsupported frame type %q", in.Type)
	}
}

func (g *Gateway) Send(ctx context.Context, channelID, text string, buttons []bot.Button) (bot.SentMessage, error) {
	raw, err := g.request(ctx, "send", sendPayload{ChannelID: channelID, Text: text, Buttons: buttons})
	if err != nil {
		return bot.SentMessage{}, err
	}
	var sent bot.SentMessage
	if err := json.Unmarshal(raw, &sent); err != nil {
		return bot.SentMessage{}, fmt.Errorf("decode send reply: %w", err)
	}
	if sent.ChannelID == "" {
		sent.ChannelID = channelID
	}
	return sent, nil
}

func (g *Gateway) Edit(ctx context.Context, sent bot.SentMessage, text string, buttons []bot.Button) error {
	return g.notify(ctx, "edit", editPayload{ChannelID: sent.ChannelID, MessageID: sent.MessageID, Text: text, Buttons: buttons})
}

func (g *Gateway) RespondEphemeral(ctx context.Context, in bot.Interaction, text string) error {
	return g.notify(ctx, "respond", respondPayload{InteractionID: in.ID, Text: text, Ephemeral: true})
}

func (g *Gateway) RespondPublic(ctx context.Context, in bot.Interaction, text string) error {
	return g.notify(ctx, "respond", respondPayload{InteractionID: in.ID, Text: text})
}

func (g *Gateway) Acknowledge(ctx context.Context, in bot.Interaction) error {
	return g.notify(ctx, "ack", respondPayload{InteractionID: in.ID})
}

func (g *Gateway) History(ctx context.Context, channelID string, after time.Time, limit int) ([]domain.ChatMessage, error) {
	raw, err := g.request(ctx, "history", historyPayload{ChannelID: channelID, After: after, Limit: limit})
	if err != nil {
		return nil, err
	}
	var messages []domain.ChatMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("decode history reply: %w", err)
	}
	return messages, nil
}

// notify writes a frame that expects no reply.
func (g *Gateway) notify(ctx context.Context, typ string, payload any) error {
	f, err := newFrame(typ, "", payload)
	if err != nil {
		return err
	}
	conn := g.current()
	if conn == nil {
		return ErrNotConnected
	}
	return write(ctx, conn, f)
}

// request writes a frame and waits for the relay's reply with the same request id.
func (g *Gateway) request(ctx context.Context, typ string, payload any) (json.RawMessage, error) {
	f, err := newFrame(typ, uuid.NewString(), payload)
	if err != nil {
		return nil, err
	}
	conn := g.current()
	if conn == nil {
		return nil, ErrNotConnected
	}

	replies := make(chan frame, 1)
	g.mu.Lock()
	g.pending[f.RequestID] = replies
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, f.RequestID)
		g.mu.Unlock()
	}()

	if err := write(ctx, conn, f); err != nil {
		return nil, err
	}

	select {
	case reply := <-replies:
		if reply.Error != "" {
			return nil, replyError(typ, reply.Error)
		}
		return reply.Payload, nil
	case <-conn.done:
		return nil, ErrNotConnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) resolve(reply frame) {
	g.mu.Lock()
	replies, ok := g.pending[reply.RequestID]
	g.mu.Unlock()
	if !ok {
		return
	}
	select {
	case replies <- reply:
	default:
	}
}

func (g *Gateway) attach(conn *connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		// a reconnecting relay replaces the stale connection
		_ = g.conn.ws.Close()
	}
	g.conn = conn
}

func (g *Gateway) detach(conn *connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == conn {
		g.conn = nil
	}
}

func (g *Gateway) current() *connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn
}

func write(ctx context.Context, conn *connection, f frame) error {
	select {
	case conn.send <- f:
		return nil
	case <-conn.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newFrame(typ, requestID string, payload any) (frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return frame{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return frame{Type: typ, RequestID: requestID, Payload: raw}, nil
}

func replyError(typ, msg string) error {
	if msg == "forbidden" {
		return fmt.Errorf("%s: %w", typ, domain.ErrForbidden)
	}
	return fmt.Errorf("%s: %s", typ, msg)
}

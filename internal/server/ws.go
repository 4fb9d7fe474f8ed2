package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/audio"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/dispatch"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/metrics"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/roster"
	"github.com/amir3x0/Real-Time-Call-Translator-sub000/internal/stream"
)

const (
	joinTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// controlMessage is a text frame sent by a client.
type controlMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Language  string `json:"language,omitempty"`
}

// translationMessage is a text frame sent to recipients. Audio is base64 in
// the JSON encoding.
type translationMessage struct {
	Type string `json:"type"`
	*dispatch.Result
}

// peer is one participant's live connection. Mutable fields are guarded by
// the gateway mutex; writes to the connection are serialized by writeMu
// because branches for different languages publish concurrently.
type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	userID    string
	language  string
	connected bool
	joinedAt  time.Time
}

func (p *peer) writeJSON(v interface{}) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.conn.WriteJSON(v)
}

// Gateway accepts participant WebSocket connections, feeds their audio frames
// into the stream registry, and delivers translated results back. It is both
// the roster and the publish sink for the dispatcher.
type Gateway struct {
	upgrader websocket.Upgrader
	registry *stream.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]map[string]*peer // sessionID -> userID -> peer
}

// NewGateway creates a gateway. The stream registry is attached later via
// Bind because the registry's processing loop needs the dispatcher, and the
// dispatcher resolves recipients through this gateway.
func NewGateway(logger *slog.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]map[string]*peer),
	}
}

// Bind attaches the stream registry. Must be called before the gateway
// serves its first connection.
func (g *Gateway) Bind(registry *stream.Registry) {
	g.registry = registry
}

// HandleWS upgrades one participant connection. The first message must be a
// join; afterwards binary frames carry PCM audio and text frames carry
// control messages.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	join, err := g.readJoin(conn)
	if err != nil {
		g.logger.Warn("Rejecting connection", slog.String("error", err.Error()))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(writeTimeout))
		return
	}

	p := g.register(join, conn)

	g.logger.Info("Participant joined",
		slog.String("session_id", join.SessionID),
		slog.String("user_id", join.UserID),
		slog.String("language", join.Language),
	)

	p.writeJSON(map[string]string{"type": "joined"})

	// Start the speaker's stream eagerly so the first frame is not raced
	// against stream creation.
	g.registry.Acquire(join.SessionID, join.UserID)

	left := g.readLoop(conn, join.SessionID, join.UserID)
	g.unregister(join.SessionID, join.UserID, left, conn)
}

// readJoin reads and validates the initial join message.
func (g *Gateway) readJoin(conn *websocket.Conn) (*controlMessage, error) {
	conn.SetReadDeadline(time.Now().Add(joinTimeout))
	defer conn.SetReadDeadline(time.Time{})

	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read join: %w", err)
	}
	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("first message must be a join")
	}

	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse join: %w", err)
	}

	if msg.Type != "join" {
		return nil, fmt.Errorf("first message must be a join, got %q", msg.Type)
	}
	if msg.SessionID == "" || msg.UserID == "" {
		return nil, fmt.Errorf("join requires session_id and user_id")
	}
	if msg.Language == "" {
		return nil, fmt.Errorf("join requires a language")
	}

	return &msg, nil
}

// register adds the participant to the session roster. A reconnecting user
// replaces their previous connection.
func (g *Gateway) register(join *controlMessage, conn *websocket.Conn) *peer {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[join.SessionID]
	if !ok {
		session = make(map[string]*peer)
		g.sessions[join.SessionID] = session
	}

	if old, ok := session[join.UserID]; ok && old.connected {
		old.conn.Close()
	}

	p := &peer{
		conn:      conn,
		userID:    join.UserID,
		language:  join.Language,
		connected: true,
		joinedAt:  time.Now(),
	}
	session[join.UserID] = p
	return p
}

// readLoop consumes frames until the connection drops or the client leaves.
// It reports whether the client left explicitly.
func (g *Gateway) readLoop(conn *websocket.Conn, sessionID, userID string) bool {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return false
		}

		switch messageType {
		case websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			g.enqueueFrame(sessionID, userID, data)

		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				g.logger.Warn("Malformed control message",
					slog.String("session_id", sessionID),
					slog.String("user_id", userID),
				)
				continue
			}
			if msg.Type == "leave" {
				return true
			}
		}
	}
}

// enqueueFrame hands one PCM frame to the speaker's stream. A false return
// means the stream is missing or its loop died, so a fresh one is acquired
// and the frame retried once.
func (g *Gateway) enqueueFrame(sessionID, userID string, pcm []byte) {
	frame := &audio.Frame{
		SessionID: sessionID,
		SpeakerID: userID,
		PCM:       pcm,
		Timestamp: time.Now(),
	}

	if g.registry.Enqueue(sessionID, userID, frame) {
		return
	}

	if h := g.registry.Acquire(sessionID, userID); h != nil {
		g.registry.Enqueue(sessionID, userID, frame)
	}
}

// unregister tears down the participant's stream. An explicit leave removes
// them from the roster; a dropped connection only marks them disconnected so
// the roster still shows who belongs to the call. When the roster entry is
// already owned by a newer connection (the user reconnected and register
// closed this one), the teardown is a no-op: releasing the stream or marking
// the entry disconnected here would tear down the reconnected participant.
func (g *Gateway) unregister(sessionID, userID string, left bool, conn *websocket.Conn) {
	g.mu.Lock()
	session, ok := g.sessions[sessionID]
	if !ok {
		g.mu.Unlock()
		return
	}
	p, ok := session[userID]
	if !ok || p.conn != conn {
		g.mu.Unlock()
		return
	}

	if left {
		delete(session, userID)
	} else {
		p.connected = false
	}
	if len(session) == 0 {
		delete(g.sessions, sessionID)
	}

	// Released under the same lock hold as the ownership check, so a
	// concurrent reconnect cannot slip in between and have its fresh
	// stream torn down by this stale connection.
	g.registry.Release(sessionID, userID)
	g.mu.Unlock()

	g.logger.Info("Participant gone",
		slog.String("session_id", sessionID),
		slog.String("user_id", userID),
		slog.Bool("left", left),
	)
}

// Participants implements roster.Roster.
func (g *Gateway) Participants(ctx context.Context, sessionID string) ([]roster.Participant, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, nil
	}

	participants := make([]roster.Participant, 0, len(session))
	for _, p := range session {
		participants = append(participants, roster.Participant{
			UserID:    p.userID,
			Language:  p.language,
			Connected: p.connected,
		})
	}
	return participants, nil
}

// Publish implements dispatch.Publisher: one result is written to every
// connected recipient. Recipients who dropped in the meantime are skipped;
// the result only counts as failed when nobody could receive it.
func (g *Gateway) Publish(ctx context.Context, sessionID string, result *dispatch.Result) error {
	g.mu.RLock()
	session := g.sessions[sessionID]
	targets := make([]*peer, 0, len(result.Recipients))
	for _, userID := range result.Recipients {
		if p, ok := session[userID]; ok && p.connected {
			targets = append(targets, p)
		}
	}
	g.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	msg := &translationMessage{Type: "translation", Result: result}

	delivered := 0
	for _, p := range targets {
		if err := p.writeJSON(msg); err != nil {
			g.logger.Warn("Failed to deliver translation",
				slog.String("session_id", sessionID),
				slog.String("user_id", p.userID),
				slog.String("language", result.Language),
				slog.String("error", err.Error()),
			)
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("no recipient reachable for language %s", result.Language)
	}
	return nil
}

// SessionInfo describes one active call for the monitoring API.
type SessionInfo struct {
	SessionID    string            `json:"session_id"`
	Participants []ParticipantInfo `json:"participants"`
}

// ParticipantInfo describes one participant for the monitoring API.
type ParticipantInfo struct {
	UserID    string    `json:"user_id"`
	Language  string    `json:"language"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Sessions returns monitoring information for every active call.
func (g *Gateway) Sessions() []SessionInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sessions := make([]SessionInfo, 0, len(g.sessions))
	for sessionID, session := range g.sessions {
		info := SessionInfo{SessionID: sessionID}
		for _, p := range session {
			info.Participants = append(info.Participants, ParticipantInfo{
				UserID:    p.userID,
				Language:  p.language,
				Connected: p.connected,
				JoinedAt:  p.joinedAt,
			})
		}
		sessions = append(sessions, info)
	}
	return sessions
}

// PeerCount returns the number of connected participants across all calls.
func (g *Gateway) PeerCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, session := range g.sessions {
		for _, p := range session {
			if p.connected {
				count++
			}
		}
	}
	return count
}

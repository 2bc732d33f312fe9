// Package gateway is the websocket edge: it authenticates connections,
// decodes the wire protocol, routes inbound events to the matchmaker,
// tournament manager and dispatcher, and fans outbound events back out to
// whichever connections a user currently holds.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/siddkalani/decaychess/internal/clock"
	"github.com/siddkalani/decaychess/internal/dispatch"
	"github.com/siddkalani/decaychess/internal/engine"
	"github.com/siddkalani/decaychess/internal/matchmaker"
	"github.com/siddkalani/decaychess/internal/messages"
	"github.com/siddkalani/decaychess/internal/session"
	"github.com/siddkalani/decaychess/internal/store"
	"github.com/siddkalani/decaychess/internal/tournament"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Hub tracks live connections per user and implements dispatch.Publisher.
type Hub struct {
	store  store.Store
	mm     *matchmaker.Matchmaker
	tm     *tournament.Manager
	disp   *dispatch.Dispatcher
	log    *zap.Logger
	secret []byte
	now    func() int64

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]map[*Conn]bool
}

// NewHub builds the hub around the store. The matchmaker, tournament manager
// and dispatcher are bound afterwards because they publish through the hub.
func NewHub(st store.Store, secret []byte, log *zap.Logger) *Hub {
	return &Hub{
		store:  st,
		log:    log,
		secret: secret,
		now:    func() int64 { return time.Now().UnixMilli() },
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: map[string]map[*Conn]bool{},
	}
}

// Bind wires the services the hub routes into.
func (h *Hub) Bind(mm *matchmaker.Matchmaker, tm *tournament.Manager, disp *dispatch.Dispatcher) *Hub {
	h.mm = mm
	h.tm = tm
	h.disp = disp
	return h
}

// WithClock overrides the timestamp source, for tests.
func (h *Hub) WithClock(now func() int64) *Hub {
	h.now = now
	return h
}

// ServeWS upgrades an authenticated request and starts the connection pumps.
// The token rides in the "token" query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := VerifyToken(h.secret, r.URL.Query().Get("token"))
	if !ok {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	c := &Conn{
		hub:    h,
		ws:     ws,
		userID: userID,
		connID: uuid.NewString(),
		send:   make(chan []byte, sendBuffer),
	}
	h.register(c)
	go c.writePump()
	go c.readPump()

	h.resume(c)
}

// Publish delivers an event to every live connection of a user. Slow
// consumers are dropped rather than allowed to block the caller.
func (h *Hub) Publish(userID, event string, payload any) {
	body, err := messages.Encode(event, payload)
	if err != nil {
		h.log.Error("encode outbound", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		select {
		case c.send <- body:
		default:
			h.log.Warn("send buffer full, dropping connection",
				zap.String("user", userID), zap.String("conn", c.connID))
			go c.close()
		}
	}
}

// Connections reports how many live connections a user holds. Test hook.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = map[*Conn]bool{}
		h.conns[c.userID] = set
	}
	set[c] = true
	n := len(set)
	h.mu.Unlock()
	connectionsGauge.Inc()
	h.log.Info("connected",
		zap.String("user", c.userID), zap.String("conn", c.connID), zap.Int("conns", n))
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	set := h.conns[c.userID]
	if !set[c] {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	last := len(set) == 0
	if last {
		delete(h.conns, c.userID)
	}
	h.mu.Unlock()
	connectionsGauge.Dec()
	h.log.Info("disconnected", zap.String("user", c.userID), zap.String("conn", c.connID))

	if last {
		ctx := context.Background()
		if err := h.mm.Leave(ctx, c.userID); err != nil {
			h.log.Warn("queue leave on disconnect failed", zap.String("user", c.userID), zap.Error(err))
		}
		if err := h.tm.Leave(ctx, c.userID); err != nil {
			h.log.Warn("tournament leave on disconnect failed", zap.String("user", c.userID), zap.Error(err))
		}
	}
}

// resume replays the current session to a fresh connection so reconnecting
// mid-game lands on a live board.
func (h *Hub) resume(c *Conn) {
	ctx := context.Background()
	id, err := h.store.ActiveSessionID(ctx, c.userID)
	if err != nil {
		return
	}
	s, err := h.store.LoadSession(ctx, id)
	if err != nil {
		return
	}
	nowMs := h.now()
	h.Publish(c.userID, messages.OutGameState, messages.BuildSnapshot(s, nowMs))
	clocks := clock.Main(s, nowMs)
	h.Publish(c.userID, messages.OutTimer, messages.TimerPayload{
		SessionID: s.ID,
		WhiteTime: clocks.White,
		BlackTime: clocks.Black,
	})
}

func (h *Hub) route(c *Conn, env messages.Envelope) {
	ctx := context.Background()
	switch env.Event {
	case messages.InQueueJoin:
		var p messages.QueueJoin
		if err := env.Payload(&p); err != nil {
			h.sendError(c, engine.CodeInvalidInput, err.Error(), "")
			return
		}
		key := p.Variant
		if p.Subvariant != "" {
			key += ":" + p.Subvariant
		}
		if err := h.mm.Join(ctx, c.userID, c.connID, key); err != nil {
			// Cooldown already produced queue:cooldown.
			if err != matchmaker.ErrOnCooldown {
				h.sendError(c, engine.CodeInvalidInput, err.Error(), "")
			}
		}

	case messages.InQueueLeave:
		if err := h.mm.Leave(ctx, c.userID); err != nil {
			h.sendError(c, engine.CodeInternalError, err.Error(), "")
		}

	case messages.InQueueLiveCounts:
		counts, err := h.mm.LiveCounts(ctx)
		if err != nil {
			h.sendError(c, engine.CodeInternalError, err.Error(), "")
			return
		}
		h.Publish(c.userID, messages.OutLiveCounts, counts)

	case messages.InTournamentJoin:
		if err := h.tm.Join(ctx, c.userID, c.connID); err != nil {
			h.sendError(c, engine.CodeInvalidState, err.Error(), "")
		}

	case messages.InTournamentLeave:
		if err := h.tm.Leave(ctx, c.userID); err != nil {
			h.sendError(c, engine.CodeInternalError, err.Error(), "")
		}

	case messages.InMakeMove:
		var p messages.MakeMove
		if err := env.Payload(&p); err != nil {
			h.sendError(c, engine.CodeInvalidInput, err.Error(), "")
			return
		}
		kind := engine.ActionMove
		if p.Move.Type == "drop" {
			kind = engine.ActionDrop
		}
		h.submit(ctx, c, p.SessionID, engine.Action{
			Kind:      kind,
			From:      p.Move.From,
			To:        p.Move.To,
			Promotion: p.Move.Promotion,
			Piece:     p.Move.Piece,
		})

	case messages.InTimeoutPenalty:
		var p messages.TimeoutPenalty
		if err := env.Payload(&p); err != nil {
			h.sendError(c, engine.CodeInvalidInput, err.Error(), "")
			return
		}
		h.submit(ctx, c, p.SessionID, engine.Action{Kind: engine.ActionTimeoutPenalty})

	case messages.InResign:
		h.submitRef(ctx, c, env, engine.ActionResign)
	case messages.InOfferDraw:
		h.submitRef(ctx, c, env, engine.ActionDrawOffer)
	case messages.InAcceptDraw:
		h.submitRef(ctx, c, env, engine.ActionDrawAccept)
	case messages.InDeclineDraw:
		h.submitRef(ctx, c, env, engine.ActionDrawDecline)

	case messages.InPossibleMoves:
		var p messages.PossibleMoves
		if err := env.Payload(&p); err != nil {
			h.sendError(c, engine.CodeInvalidInput, err.Error(), "")
			return
		}
		h.possibleMoves(ctx, c, p)

	default:
		h.sendError(c, engine.CodeInvalidInput, "unknown event "+env.Event, "")
	}
}

func (h *Hub) submitRef(ctx context.Context, c *Conn, env messages.Envelope, kind engine.ActionKind) {
	var p messages.SessionRef
	if err := env.Payload(&p); err != nil {
		h.sendError(c, engine.CodeInvalidInput, err.Error(), "")
		return
	}
	h.submit(ctx, c, p.SessionID, engine.Action{Kind: kind})
}

// submit resolves and validates the target session, then hands the action to
// the dispatcher. Participation is checked here so junk never reaches a
// session lane.
func (h *Hub) submit(ctx context.Context, c *Conn, sessionID string, a engine.Action) {
	s, ok := h.resolveSession(ctx, c, sessionID)
	if !ok {
		return
	}
	h.disp.Submit(s.ID, c.userID, a)
}

func (h *Hub) possibleMoves(ctx context.Context, c *Conn, p messages.PossibleMoves) {
	s, ok := h.resolveSession(ctx, c, p.SessionID)
	if !ok {
		return
	}
	eng, err := engine.ForSession(s)
	if err != nil {
		h.sendError(c, engine.CodeInvalidState, err.Error(), s.ID)
		return
	}
	moves := []messages.MoveInput{}
	for _, a := range eng.LegalActions(s, s.ActiveColor, h.now()) {
		if p.Square != "" && a.From != p.Square {
			continue
		}
		mi := messages.MoveInput{From: a.From, To: a.To, Promotion: a.Promotion, Piece: a.Piece}
		if a.Kind == engine.ActionDrop {
			mi.Type = "drop"
		}
		moves = append(moves, mi)
	}
	h.Publish(c.userID, messages.OutPossibleMoves, messages.PossibleMovesResult{
		SessionID: s.ID,
		Square:    p.Square,
		Moves:     moves,
	})
}

func (h *Hub) resolveSession(ctx context.Context, c *Conn, sessionID string) (*session.Session, bool) {
	if sessionID == "" {
		id, err := h.store.ActiveSessionID(ctx, c.userID)
		if err != nil {
			h.sendError(c, engine.CodeInvalidState, "no active session", "")
			return nil, false
		}
		sessionID = id
	}
	s, err := h.store.LoadSession(ctx, sessionID)
	if err != nil {
		h.sendError(c, engine.CodeInvalidState, "session not found", sessionID)
		return nil, false
	}
	if !s.IsParticipant(c.userID) {
		h.sendError(c, engine.CodeInvalidPlayer, "not a participant", sessionID)
		return nil, false
	}
	return s, true
}

func (h *Hub) sendError(c *Conn, code, msg, sessionID string) {
	h.Publish(c.userID, messages.OutError, messages.ErrorPayload{
		Code:      code,
		Message:   msg,
		SessionID: sessionID,
	})
}

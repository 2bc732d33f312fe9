// Package dispatch serializes engine calls per session. Every inbound action
// is queued on its session's lane; one engine invocation runs against a
// session at a time while different sessions proceed concurrently. The
// dispatcher owns the read-apply-commit cycle: fetch state, call the engine
// with a fresh timestamp, commit the returned state in full or not at all,
// and publish the outcome.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/siddkalani/decaychess/internal/engine"
	"github.com/siddkalani/decaychess/internal/messages"
	"github.com/siddkalani/decaychess/internal/session"
	"github.com/siddkalani/decaychess/internal/store"
)

// Publisher delivers outbound events to a connected user. Implementations
// must not block the caller for slow consumers.
type Publisher interface {
	Publish(userID, event string, payload any)
}

type task struct {
	sessionID string
	userID    string
	action    engine.Action
}

type lane struct {
	pending []task
	running bool
}

// Dispatcher routes actions to variant engines, one at a time per session.
type Dispatcher struct {
	store store.Store
	pub   Publisher
	log   *zap.Logger
	now   func() int64

	// OnFinish runs after a terminal commit, outside the lane lock. Used by
	// the tournament manager for leaderboard updates.
	OnFinish func(s *session.Session)

	mu    sync.Mutex
	lanes map[string]*lane
	idle  sync.WaitGroup
}

func New(st store.Store, pub Publisher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store: st,
		pub:   pub,
		log:   log,
		now:   func() int64 { return time.Now().UnixMilli() },
		lanes: map[string]*lane{},
	}
}

// WithClock overrides the timestamp source, for tests.
func (d *Dispatcher) WithClock(now func() int64) *Dispatcher {
	d.now = now
	return d
}

// Submit enqueues an action on its session's lane. Returns immediately; the
// outcome is delivered through the Publisher.
func (d *Dispatcher) Submit(sessionID, userID string, a engine.Action) {
	d.mu.Lock()
	l, ok := d.lanes[sessionID]
	if !ok {
		l = &lane{}
		d.lanes[sessionID] = l
	}
	l.pending = append(l.pending, task{sessionID: sessionID, userID: userID, action: a})
	if !l.running {
		l.running = true
		d.idle.Add(1)
		go d.drain(sessionID)
	}
	d.mu.Unlock()
}

// Wait blocks until every lane has drained. Test hook.
func (d *Dispatcher) Wait() {
	d.idle.Wait()
}

func (d *Dispatcher) drain(sessionID string) {
	defer d.idle.Done()
	for {
		d.mu.Lock()
		l := d.lanes[sessionID]
		if len(l.pending) == 0 {
			delete(d.lanes, sessionID)
			d.mu.Unlock()
			return
		}
		t := l.pending[0]
		l.pending = l.pending[1:]
		d.mu.Unlock()

		d.process(context.Background(), t)
	}
}

func (d *Dispatcher) process(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			engineFailures.Inc()
			d.log.Error("engine panic",
				zap.String("session", t.sessionID),
				zap.Any("panic", r))
			d.pub.Publish(t.userID, messages.OutError, messages.ErrorPayload{
				Code:      engine.CodeInternalError,
				Message:   "internal error",
				SessionID: t.sessionID,
			})
		}
	}()

	s, err := d.store.LoadSession(ctx, t.sessionID)
	if err != nil {
		d.pub.Publish(t.userID, messages.OutError, messages.ErrorPayload{
			Code:      engine.CodeInvalidState,
			Message:   "session not found",
			SessionID: t.sessionID,
		})
		return
	}
	color := s.ColorOf(t.userID)
	if color == "" {
		d.pub.Publish(t.userID, messages.OutError, messages.ErrorPayload{
			Code:      engine.CodeInvalidPlayer,
			Message:   "not a participant",
			SessionID: t.sessionID,
		})
		return
	}
	eng, err := engine.ForSession(s)
	if err != nil {
		d.pub.Publish(t.userID, messages.OutError, messages.ErrorPayload{
			Code:      engine.CodeInvalidState,
			Message:   err.Error(),
			SessionID: t.sessionID,
		})
		return
	}

	nowMs := d.now()
	out := eng.ValidateAndApply(s, t.action, color, nowMs)
	actionsTotal.WithLabelValues(string(s.Variant), string(out.Kind)).Inc()

	switch out.Kind {
	case engine.OutcomeRejected:
		d.pub.Publish(t.userID, messages.OutError, messages.ErrorPayload{
			Code:      out.Code,
			Message:   out.Reason,
			SessionID: t.sessionID,
		})
		return

	case engine.OutcomeApplied, engine.OutcomeWarning:
		if err := d.store.SaveSession(ctx, out.State); err != nil {
			engineFailures.Inc()
			d.log.Error("commit failed",
				zap.String("session", t.sessionID), zap.Error(err))
			d.pub.Publish(t.userID, messages.OutError, messages.ErrorPayload{
				Code:      engine.CodeInternalError,
				Message:   "commit failed",
				SessionID: t.sessionID,
			})
			return
		}
		d.broadcast(out, t, nowMs)
	}
}

// broadcast emits the committed outcome: the snapshot to both players, a
// warning to the actor for soft failures, and game:end on terminal states.
func (d *Dispatcher) broadcast(out engine.Outcome, t task, nowMs int64) {
	s := out.State
	snap := messages.BuildSnapshot(s, nowMs)

	if out.Kind == engine.OutcomeWarning {
		d.pub.Publish(t.userID, messages.OutWarning, messages.ErrorPayload{
			Code:      out.Code,
			Message:   out.Reason,
			SessionID: s.ID,
		})
	}

	event := messages.OutGameState
	if out.Move != nil {
		event = messages.OutMove
	}
	for _, uid := range []string{s.Players.White.UserID, s.Players.Black.UserID} {
		d.pub.Publish(uid, event, snap)
	}

	if out.Terminal {
		for _, uid := range []string{s.Players.White.UserID, s.Players.Black.UserID} {
			d.pub.Publish(uid, messages.OutEnd, snap)
		}
		sessionsFinished.WithLabelValues(s.Result.Result).Inc()
		if d.OnFinish != nil {
			d.OnFinish(s)
		}
	}
}

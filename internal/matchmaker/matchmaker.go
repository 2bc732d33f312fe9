// Package matchmaker pairs waiting players. Each variant key has its own
// waiting set scored by rating; matching runs in two phases, a narrow rating
// window on enqueue and a broad scan scheduled ten seconds later. Claiming a
// pair is atomic through the store, so two concurrent matchers can never
// build two sessions from the same waiter.
package matchmaker

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/siddkalani/decaychess/internal/dispatch"
	"github.com/siddkalani/decaychess/internal/engine"
	"github.com/siddkalani/decaychess/internal/messages"
	"github.com/siddkalani/decaychess/internal/session"
	"github.com/siddkalani/decaychess/internal/store"
	"github.com/siddkalani/decaychess/internal/users"
)

const (
	narrowWindow        = 100
	narrowWindowCrowded = 50
	crowdedThreshold    = 1000
	widenAfterMs        = 5_000

	// BroadDelay is how long after an unmatched enqueue the whole-set scan
	// runs.
	BroadDelay = 10 * time.Second
	// SweepInterval is the idle-eviction cadence.
	SweepInterval = 60 * time.Second
	// MaxWaitMs evicts waiters older than this during a sweep.
	MaxWaitMs = 5 * 60 * 1000

	// scoreEpsilon folds the join timestamp into the zset score as a
	// tie break without disturbing the rating ordering. Ratings are small
	// integers and unix millis are ~1.7e12, so the contribution stays
	// well under one rating point.
	scoreEpsilon = 1e-13
)

var (
	ErrOnCooldown     = errors.New("matchmaker: user on cooldown")
	ErrUnknownVariant = errors.New("matchmaker: unknown variant")
)

// Matchmaker owns the regular waiting sets and the match lifecycle from
// queue:join to session creation.
type Matchmaker struct {
	store store.Store
	users users.Directory
	pub   dispatch.Publisher
	log   *zap.Logger
	now   func() int64

	rngMu sync.Mutex
	rng   *rand.Rand

	// Tournament cross-match hook; set by the tournament manager. Returns
	// leaderboard bookkeeping into that package without an import cycle.
	CrossMatch func(ctx context.Context, regular store.Ticket) bool

	timerMu sync.Mutex
	timers  map[string]*time.Timer
}

func New(st store.Store, dir users.Directory, pub dispatch.Publisher, log *zap.Logger) *Matchmaker {
	return &Matchmaker{
		store:  st,
		users:  dir,
		pub:    pub,
		log:    log,
		now:    func() int64 { return time.Now().UnixMilli() },
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		timers: map[string]*time.Timer{},
	}
}

// WithClock overrides the timestamp source, for tests.
func (m *Matchmaker) WithClock(now func() int64) *Matchmaker {
	m.now = now
	return m
}

// WithRand overrides the color/position randomness, for tests.
func (m *Matchmaker) WithRand(rng *rand.Rand) *Matchmaker {
	m.rng = rng
	return m
}

// Score orders a waiting set by rating, with join time breaking ties in
// favor of the earlier joiner.
func Score(t store.Ticket) float64 {
	return float64(t.Rating) + float64(t.JoinTimeMs)*scoreEpsilon
}

// Join enqueues a user and immediately attempts a narrow match. If no
// opponent is inside the rating window, a broad pass is scheduled.
func (m *Matchmaker) Join(ctx context.Context, userID, connID, variantKey string) error {
	variant, subvariant, err := session.ParseKey(variantKey)
	if err != nil {
		return ErrUnknownVariant
	}

	cooling, err := m.store.OnCooldown(ctx, userID)
	if err != nil {
		return err
	}
	if cooling {
		m.pub.Publish(userID, messages.OutCooldown, messages.CooldownPayload{
			RetryAfterMs: store.CooldownTTL.Milliseconds(),
		})
		return ErrOnCooldown
	}

	u, err := m.users.Get(ctx, userID)
	if err != nil {
		return err
	}

	// One waiting set per user.
	if err := m.store.RemoveFromAllQueues(ctx, userID); err != nil {
		return err
	}

	t := store.Ticket{
		UserID:     userID,
		ConnID:     connID,
		Rating:     u.Rating,
		Variant:    variant,
		Subvariant: subvariant,
		JoinTimeMs: m.now(),
		Source:     "matchmaking",
	}
	if err := m.store.Enqueue(ctx, t, Score(t)); err != nil {
		return err
	}
	m.log.Info("queued",
		zap.String("user", userID),
		zap.String("variant", variantKey),
		zap.Int("rating", u.Rating))

	if m.MatchNarrow(ctx, t) {
		return nil
	}
	m.scheduleBroad(userID)
	return nil
}

// Leave removes the user from whichever waiting set holds them and applies
// the rejoin cooldown. Used for both voluntary leaves and disconnects.
func (m *Matchmaker) Leave(ctx context.Context, userID string) error {
	m.cancelBroad(userID)
	_, err := m.store.Ticket(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := m.store.RemoveFromAllQueues(ctx, userID); err != nil {
		return err
	}
	return m.store.SetCooldown(ctx, userID)
}

// LiveCounts reports the number of waiters per variant key.
func (m *Matchmaker) LiveCounts(ctx context.Context) (messages.LiveCounts, error) {
	counts := map[string]int64{}
	for _, key := range session.AllKeys() {
		n, err := m.store.QueueLen(ctx, key)
		if err != nil {
			return messages.LiveCounts{}, err
		}
		counts[key] = n
	}
	return messages.LiveCounts{Counts: counts}, nil
}

// MatchNarrow looks for an opponent inside the rating window around t.
// The window is 100 points, tightened to 50 in a crowded set and doubled
// once the waiter has been in the set longer than five seconds.
func (m *Matchmaker) MatchNarrow(ctx context.Context, t store.Ticket) bool {
	key := t.Key()
	window := float64(narrowWindow)
	if n, err := m.store.QueueLen(ctx, key); err == nil && n > crowdedThreshold {
		window = narrowWindowCrowded
	}
	if m.now()-t.JoinTimeMs > widenAfterMs {
		window *= 2
	}

	ids, err := m.store.QueueRange(ctx, key, float64(t.Rating)-window, float64(t.Rating)+window)
	if err != nil {
		m.log.Warn("queue range failed", zap.String("key", key), zap.Error(err))
		return false
	}
	candidates := m.tickets(ctx, ids, t.UserID)
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := absDiff(candidates[i].Rating, t.Rating), absDiff(candidates[j].Rating, t.Rating)
		if di != dj {
			return di < dj
		}
		return candidates[i].JoinTimeMs < candidates[j].JoinTimeMs
	})
	return m.claimFirst(ctx, t, candidates, t.Variant, t.Subvariant)
}

// MatchBroad scans the waiter's whole set, earliest joiner first, then falls
// back to the tournament queue for a cross-match.
func (m *Matchmaker) MatchBroad(ctx context.Context, userID string) bool {
	m.cancelBroad(userID)
	t, err := m.store.Ticket(ctx, userID)
	if err != nil {
		return false // already matched or left
	}

	ids, err := m.store.QueueMembers(ctx, t.Key())
	if err != nil {
		m.log.Warn("queue scan failed", zap.String("key", t.Key()), zap.Error(err))
		return false
	}
	candidates := m.tickets(ctx, ids, t.UserID)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].JoinTimeMs < candidates[j].JoinTimeMs
	})
	if m.claimFirst(ctx, t, candidates, t.Variant, t.Subvariant) {
		return true
	}

	if m.CrossMatch != nil && m.CrossMatch(ctx, t) {
		return true
	}
	return false
}

// Sweep evicts waiters that have been in a set longer than MaxWaitMs.
func (m *Matchmaker) Sweep(ctx context.Context) {
	cutoff := m.now() - MaxWaitMs
	for _, key := range session.AllKeys() {
		ids, err := m.store.QueueMembers(ctx, key)
		if err != nil {
			continue
		}
		for _, id := range ids {
			t, err := m.store.Ticket(ctx, id)
			if err != nil {
				continue
			}
			if t.JoinTimeMs < cutoff {
				m.cancelBroad(id)
				if err := m.store.RemoveFromAllQueues(ctx, id); err == nil {
					m.log.Info("evicted idle waiter",
						zap.String("user", id), zap.String("variant", key))
				}
			}
		}
	}
}

// Run drives the idle sweep until the context ends.
func (m *Matchmaker) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Pair claims both tickets and builds the session. Exposed for the
// tournament manager, which selects opponents under its own rules.
func (m *Matchmaker) Pair(ctx context.Context, a, b store.Ticket, variant session.Variant, subvariant session.Subvariant) bool {
	if err := m.store.ClaimPair(ctx, a, b); err != nil {
		if !errors.Is(err, store.ErrGone) {
			m.log.Warn("claim failed", zap.Error(err))
		}
		return false
	}
	m.cancelBroad(a.UserID)
	m.cancelBroad(b.UserID)
	m.createSession(ctx, a, b, variant, subvariant)
	return true
}

func (m *Matchmaker) claimFirst(ctx context.Context, t store.Ticket, candidates []store.Ticket, variant session.Variant, subvariant session.Subvariant) bool {
	for _, c := range candidates {
		if m.Pair(ctx, t, c, variant, subvariant) {
			return true
		}
	}
	return false
}

func (m *Matchmaker) tickets(ctx context.Context, ids []string, exclude string) []store.Ticket {
	out := make([]store.Ticket, 0, len(ids))
	for _, id := range ids {
		if id == exclude {
			continue
		}
		t, err := m.store.Ticket(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (m *Matchmaker) createSession(ctx context.Context, a, b store.Ticket, variant session.Variant, subvariant session.Subvariant) {
	ua, errA := m.users.Get(ctx, a.UserID)
	ub, errB := m.users.Get(ctx, b.UserID)
	if errA != nil || errB != nil {
		m.log.Error("user lookup failed during match",
			zap.String("a", a.UserID), zap.String("b", b.UserID))
		return
	}

	m.rngMu.Lock()
	swap := m.rng.Intn(2) == 1
	startFEN := engine.StartingFENFor(string(variant), m.rng)
	m.rngMu.Unlock()

	white, black := ua, ub
	whiteTicket, blackTicket := a, b
	if swap {
		white, black = ub, ua
		whiteTicket, blackTicket = b, a
	}

	nowMs := m.now()
	s := session.New(variant, subvariant, white.Player(), black.Player(), startFEN, nowMs)
	if err := m.store.SaveSession(ctx, s); err != nil {
		m.log.Error("session create failed", zap.Error(err))
		return
	}
	if err := m.store.ArchiveCreate(ctx, store.MatchRecord{
		SessionID:  s.ID,
		Variant:    variant,
		Subvariant: subvariant,
		White:      s.Players.White,
		Black:      s.Players.Black,
		StartFEN:   startFEN,
		StartedAt:  nowMs,
	}); err != nil {
		m.log.Warn("archive create failed", zap.String("session", s.ID), zap.Error(err))
	}

	matchesTotal.WithLabelValues(session.Key(variant, subvariant)).Inc()
	m.log.Info("matched",
		zap.String("session", s.ID),
		zap.String("white", white.ID),
		zap.String("black", black.ID),
		zap.String("variant", session.Key(variant, subvariant)))

	snap := messages.BuildSnapshot(s, nowMs)
	m.notify(whiteTicket, black, s, snap)
	m.notify(blackTicket, white, s, snap)
}

func (m *Matchmaker) notify(t store.Ticket, opp users.User, s *session.Session, snap messages.Snapshot) {
	m.pub.Publish(t.UserID, messages.OutMatched, messages.Matched{
		SessionID:  s.ID,
		Variant:    string(s.Variant),
		Subvariant: string(s.Subvariant),
		Opponent: messages.Opponent{
			UserID:      opp.ID,
			DisplayName: opp.DisplayName,
			Rating:      opp.Rating,
			Avatar:      opp.Avatar,
			Title:       opp.Title,
		},
		Source:    t.Source,
		GameState: snap,
	})
}

func (m *Matchmaker) scheduleBroad(userID string) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if old, ok := m.timers[userID]; ok {
		old.Stop()
	}
	m.timers[userID] = time.AfterFunc(BroadDelay, func() {
		m.MatchBroad(context.Background(), userID)
	})
}

func (m *Matchmaker) cancelBroad(userID string) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if t, ok := m.timers[userID]; ok {
		t.Stop()
		delete(m.timers, userID)
	}
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// Package tournament manages the single active arena: its participant set,
// the FIFO queue of waiting participants with their randomly assigned
// variants, and the win/streak leaderboard updated as sessions finish.
package tournament

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siddkalani/decaychess/internal/matchmaker"
	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
	"github.com/siddkalani/decaychess/internal/store"
	"github.com/siddkalani/decaychess/internal/users"
)

var (
	ErrNoActive = errors.New("tournament: no active tournament")
	ErrClosed   = errors.New("tournament: outside play window")
	ErrFull     = errors.New("tournament: capacity reached")
)

// Manager runs the tournament side of matchmaking. Pairing goes through the
// matchmaker so claimed pairs and session creation share one code path.
type Manager struct {
	store store.Store
	users users.Directory
	mm    *matchmaker.Matchmaker
	log   *zap.Logger
	now   func() int64

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(st store.Store, dir users.Directory, mm *matchmaker.Matchmaker, log *zap.Logger) *Manager {
	m := &Manager{
		store: st,
		users: dir,
		mm:    mm,
		log:   log,
		now:   func() int64 { return time.Now().UnixMilli() },
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	mm.CrossMatch = m.crossMatch
	return m
}

// WithClock overrides the timestamp source, for tests.
func (m *Manager) WithClock(now func() int64) *Manager {
	m.now = now
	return m
}

// WithRand overrides the variant-assignment randomness, for tests.
func (m *Manager) WithRand(rng *rand.Rand) *Manager {
	m.rng = rng
	return m
}

// Create opens a tournament. Only one can be active at a time; creating a
// new one replaces the previous record.
func (m *Manager) Create(ctx context.Context, name string, startsAt, endsAt int64, capacity int) (store.Tournament, error) {
	tr := store.Tournament{
		ID:       uuid.NewString(),
		Name:     name,
		StartsAt: startsAt,
		EndsAt:   endsAt,
		Capacity: capacity,
	}
	if err := m.store.CreateTournament(ctx, tr); err != nil {
		return store.Tournament{}, err
	}
	m.log.Info("tournament created",
		zap.String("tournament", tr.ID), zap.String("name", name), zap.Int("capacity", capacity))
	return tr, nil
}

// Join registers the user as a participant and enqueues them with a randomly
// assigned variant, then immediately attempts a match.
func (m *Manager) Join(ctx context.Context, userID, connID string) error {
	tr, err := m.store.ActiveTournament(ctx)
	if err != nil {
		return ErrNoActive
	}
	nowMs := m.now()
	if nowMs < tr.StartsAt || nowMs > tr.EndsAt {
		return ErrClosed
	}

	already, err := m.store.IsParticipant(ctx, tr.ID, userID)
	if err != nil {
		return err
	}
	if !already {
		n, err := m.store.ParticipantCount(ctx, tr.ID)
		if err != nil {
			return err
		}
		if n >= int64(tr.Capacity) {
			return ErrFull
		}
		if err := m.store.AddParticipant(ctx, tr.ID, userID); err != nil {
			return err
		}
	}

	u, err := m.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := m.store.RemoveFromAllQueues(ctx, userID); err != nil {
		return err
	}

	keys := session.AllKeys()
	m.rngMu.Lock()
	assigned := keys[m.rng.Intn(len(keys))]
	m.rngMu.Unlock()
	variant, subvariant, _ := session.ParseKey(assigned)

	t := store.Ticket{
		UserID:       userID,
		ConnID:       connID,
		Rating:       u.Rating,
		Variant:      variant,
		Subvariant:   subvariant,
		JoinTimeMs:   nowMs,
		Source:       "tournament",
		TournamentID: tr.ID,
	}
	if err := m.store.TournamentEnqueue(ctx, t); err != nil {
		return err
	}
	m.log.Info("tournament waiter queued",
		zap.String("user", userID),
		zap.String("assigned", assigned),
		zap.String("tournament", tr.ID))

	m.tryMatch(ctx, t)
	return nil
}

// Leave removes the user from the tournament queue. Leaderboard standing is
// kept.
func (m *Manager) Leave(ctx context.Context, userID string) error {
	return m.store.TournamentDequeue(ctx, userID)
}

// Leaderboard returns the active tournament's standings.
func (m *Manager) Leaderboard(ctx context.Context) ([]store.LeaderboardEntry, error) {
	tr, err := m.store.ActiveTournament(ctx)
	if err != nil {
		return nil, ErrNoActive
	}
	return m.store.Leaderboard(ctx, tr.ID)
}

// tryMatch runs the tournament waiter's pairing ladder: another tournament
// waiter first, then the regular set of the assigned variant, then any
// regular waiter at all.
func (m *Manager) tryMatch(ctx context.Context, t store.Ticket) bool {
	// Another tournament waiter, oldest first. The earlier waiter's
	// assignment decides the variant.
	waiters, err := m.store.TournamentWaiters(ctx)
	if err == nil {
		for _, id := range waiters {
			if id == t.UserID {
				continue
			}
			other, err := m.store.Ticket(ctx, id)
			if err != nil {
				continue
			}
			first := other
			if t.JoinTimeMs < other.JoinTimeMs {
				first = t
			}
			if m.mm.Pair(ctx, t, other, first.Variant, first.Subvariant) {
				return true
			}
		}
	}

	// The regular set matching the assigned variant.
	if m.matchRegular(ctx, t, []string{t.Key()}, t.Variant, t.Subvariant) {
		return true
	}

	// Any regular waiter; the game takes the regular waiter's variant.
	return m.matchRegular(ctx, t, session.AllKeys(), "", "")
}

// matchRegular pairs t against the earliest regular waiter across keys. An
// empty variant means the opponent's variant wins.
func (m *Manager) matchRegular(ctx context.Context, t store.Ticket, keys []string, variant session.Variant, subvariant session.Subvariant) bool {
	var best *store.Ticket
	for _, key := range keys {
		ids, err := m.store.QueueMembers(ctx, key)
		if err != nil {
			continue
		}
		for _, id := range ids {
			if id == t.UserID {
				continue
			}
			c, err := m.store.Ticket(ctx, id)
			if err != nil || c.Source == "tournament" {
				continue
			}
			if best == nil || c.JoinTimeMs < best.JoinTimeMs {
				copied := c
				best = &copied
			}
		}
	}
	if best == nil {
		return false
	}
	v, sub := variant, subvariant
	if v == "" {
		v, sub = best.Variant, best.Subvariant
	}
	return m.mm.Pair(ctx, t, *best, v, sub)
}

// crossMatch is the matchmaker's broad-phase hook: pair a regular waiter
// with a tournament waiter whose assigned variant matches.
func (m *Manager) crossMatch(ctx context.Context, regular store.Ticket) bool {
	waiters, err := m.store.TournamentWaiters(ctx)
	if err != nil {
		return false
	}
	for _, id := range waiters {
		t, err := m.store.Ticket(ctx, id)
		if err != nil {
			continue
		}
		if t.Key() != regular.Key() {
			continue
		}
		if m.mm.Pair(ctx, regular, t, regular.Variant, regular.Subvariant) {
			return true
		}
	}
	return false
}

// OnSessionFinish is wired as the dispatcher's finish hook. It closes the
// archive record and, when participants are involved, updates the
// leaderboard: a win bumps wins and the streak, anything else resets the
// streak. Personal bests propagate to the user record.
func (m *Manager) OnSessionFinish(s *session.Session) {
	ctx := context.Background()

	rec := store.MatchRecord{
		SessionID:  s.ID,
		Variant:    s.Variant,
		Subvariant: s.Subvariant,
		White:      s.Players.White,
		Black:      s.Players.Black,
		StartedAt:  s.CreatedAt,
		EndedAt:    s.Result.EndedAt,
		Result:     s.Result.Result,
		Winner:     string(s.Result.Winner),
	}
	if err := m.store.ArchiveFinish(ctx, rec); err != nil {
		m.log.Warn("archive finish failed", zap.String("session", s.ID), zap.Error(err))
	}
	for _, uid := range []string{s.Players.White.UserID, s.Players.Black.UserID} {
		if err := m.store.ClearUserSession(ctx, uid); err != nil {
			m.log.Warn("clear user session failed", zap.String("user", uid), zap.Error(err))
		}
	}

	tr, err := m.store.ActiveTournament(ctx)
	if err != nil {
		return
	}

	var winnerID string
	switch s.Result.Winner {
	case position.White:
		winnerID = s.Players.White.UserID
	case position.Black:
		winnerID = s.Players.Black.UserID
	}

	involved := false
	for _, uid := range []string{s.Players.White.UserID, s.Players.Black.UserID} {
		isPart, err := m.store.IsParticipant(ctx, tr.ID, uid)
		if err != nil || !isPart {
			continue
		}
		involved = true
		if uid == winnerID {
			if err := m.store.RecordTournamentWin(ctx, tr.ID, uid); err != nil {
				m.log.Warn("leaderboard update failed", zap.String("user", uid), zap.Error(err))
				continue
			}
			m.recordBestStreak(ctx, tr.ID, uid)
		} else {
			if err := m.store.RecordTournamentNonWin(ctx, tr.ID, uid); err != nil {
				m.log.Warn("leaderboard update failed", zap.String("user", uid), zap.Error(err))
			}
		}
	}
	if involved {
		if err := m.store.AppendTournamentMatch(ctx, tr.ID, rec); err != nil {
			m.log.Warn("tournament match append failed", zap.String("session", s.ID), zap.Error(err))
		}
	}
}

func (m *Manager) recordBestStreak(ctx context.Context, tournamentID, userID string) {
	entries, err := m.store.Leaderboard(ctx, tournamentID)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.UserID == userID {
			if err := m.users.RecordStreak(ctx, userID, e.CurrentStreak); err != nil {
				m.log.Warn("streak update failed", zap.String("user", userID), zap.Error(err))
			}
			return
		}
	}
}

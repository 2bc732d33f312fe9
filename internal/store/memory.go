package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/siddkalani/decaychess/internal/session"
)

// Memory is an in-process Store with the same semantics as the redis
// backend, used by tests and local development. Sessions round-trip through
// their serialized form so callers see exactly what redis would return.
type Memory struct {
	mu sync.Mutex

	sessions     map[string][]byte
	userSessions map[string]string
	queues       map[string]map[string]float64 // key -> userID -> score
	tickets      map[string]Ticket
	cooldowns    map[string]time.Time

	tournament        *Tournament
	participants      map[string]map[string]bool
	tournamentQueue   map[string]int64 // userID -> joinTime
	stats             map[string]map[string]*LeaderboardEntry
	archive           map[string]MatchRecord
	tournamentMatches map[string][]MatchRecord
}

func NewMemory() *Memory {
	return &Memory{
		sessions:          map[string][]byte{},
		userSessions:      map[string]string{},
		queues:            map[string]map[string]float64{},
		tickets:           map[string]Ticket{},
		cooldowns:         map[string]time.Time{},
		participants:      map[string]map[string]bool{},
		tournamentQueue:   map[string]int64{},
		stats:             map[string]map[string]*LeaderboardEntry{},
		archive:           map[string]MatchRecord{},
		tournamentMatches: map[string][]MatchRecord{},
	}
}

func (m *Memory) SaveSession(_ context.Context, s *session.Session) error {
	body, err := s.Encode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = body
	m.userSessions[s.Players.White.UserID] = s.ID
	m.userSessions[s.Players.Black.UserID] = s.ID
	return nil
}

func (m *Memory) LoadSession(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	body, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return session.Decode(body)
}

func (m *Memory) ActiveSessionID(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.userSessions[userID]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *Memory) ClearUserSession(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.userSessions, userID)
	return nil
}

func (m *Memory) Enqueue(_ context.Context, t Ticket, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addWaiter(t.Key(), t.UserID, score)
	m.tickets[t.UserID] = t
	return nil
}

func (m *Memory) addWaiter(key, userID string, score float64) {
	q, ok := m.queues[key]
	if !ok {
		q = map[string]float64{}
		m.queues[key] = q
	}
	q[userID] = score
}

func (m *Memory) Dequeue(_ context.Context, key, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues[key], userID)
	delete(m.tickets, userID)
	return nil
}

func (m *Memory) RemoveFromAllQueues(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.queues {
		delete(q, userID)
	}
	delete(m.tournamentQueue, userID)
	delete(m.tickets, userID)
	return nil
}

func (m *Memory) Ticket(_ context.Context, userID string) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[userID]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) QueueRange(_ context.Context, key string, minScore, maxScore float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type member struct {
		id    string
		score float64
	}
	var hits []member
	for id, score := range m.queues[key] {
		if score >= minScore && score <= maxScore {
			hits = append(hits, member{id, score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score < hits[j].score })
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.id)
	}
	return out, nil
}

func (m *Memory) QueueMembers(ctx context.Context, key string) ([]string, error) {
	return m.QueueRange(ctx, key, -1e18, 1e18)
}

func (m *Memory) QueueLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queues[key])), nil
}

func (m *Memory) ClaimPair(_ context.Context, a, b Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range []Ticket{a, b} {
		if !m.waiting(t) {
			return ErrGone
		}
	}
	for _, t := range []Ticket{a, b} {
		if t.Source == "tournament" {
			delete(m.tournamentQueue, t.UserID)
		} else {
			delete(m.queues[t.Key()], t.UserID)
		}
		delete(m.tickets, t.UserID)
		m.cooldowns[t.UserID] = time.Now().Add(CooldownTTL)
	}
	return nil
}

func (m *Memory) waiting(t Ticket) bool {
	if t.Source == "tournament" {
		_, ok := m.tournamentQueue[t.UserID]
		return ok
	}
	_, ok := m.queues[t.Key()][t.UserID]
	return ok
}

func (m *Memory) SetCooldown(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[userID] = time.Now().Add(CooldownTTL)
	return nil
}

func (m *Memory) OnCooldown(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.cooldowns[userID]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(m.cooldowns, userID)
		return false, nil
	}
	return true, nil
}

func (m *Memory) CreateTournament(_ context.Context, tr Tournament) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := tr
	m.tournament = &copied
	return nil
}

func (m *Memory) ActiveTournament(_ context.Context) (Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tournament == nil {
		return Tournament{}, ErrNoTournment
	}
	return *m.tournament, nil
}

func (m *Memory) AddParticipant(_ context.Context, tournamentID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.participants[tournamentID]
	if !ok {
		set = map[string]bool{}
		m.participants[tournamentID] = set
	}
	set[userID] = true
	return nil
}

func (m *Memory) IsParticipant(_ context.Context, tournamentID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participants[tournamentID][userID], nil
}

func (m *Memory) ParticipantCount(_ context.Context, tournamentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.participants[tournamentID])), nil
}

func (m *Memory) TournamentEnqueue(_ context.Context, t Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tournamentQueue[t.UserID] = t.JoinTimeMs
	m.tickets[t.UserID] = t
	return nil
}

func (m *Memory) TournamentDequeue(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tournamentQueue, userID)
	delete(m.tickets, userID)
	return nil
}

func (m *Memory) TournamentWaiters(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type waiter struct {
		id   string
		join int64
	}
	all := make([]waiter, 0, len(m.tournamentQueue))
	for id, join := range m.tournamentQueue {
		all = append(all, waiter{id, join})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].join < all[j].join })
	out := make([]string, 0, len(all))
	for _, w := range all {
		out = append(out, w.id)
	}
	return out, nil
}

func (m *Memory) statsFor(tournamentID, userID string) *LeaderboardEntry {
	byUser, ok := m.stats[tournamentID]
	if !ok {
		byUser = map[string]*LeaderboardEntry{}
		m.stats[tournamentID] = byUser
	}
	e, ok := byUser[userID]
	if !ok {
		e = &LeaderboardEntry{UserID: userID}
		byUser[userID] = e
	}
	return e
}

func (m *Memory) RecordTournamentWin(_ context.Context, tournamentID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.statsFor(tournamentID, userID)
	e.Wins++
	e.CurrentStreak++
	return nil
}

func (m *Memory) RecordTournamentNonWin(_ context.Context, tournamentID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsFor(tournamentID, userID).CurrentStreak = 0
	return nil
}

func (m *Memory) Leaderboard(_ context.Context, tournamentID string) ([]LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LeaderboardEntry, 0, len(m.stats[tournamentID]))
	for _, e := range m.stats[tournamentID] {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (m *Memory) ArchiveCreate(_ context.Context, rec MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archive[rec.SessionID] = rec
	return nil
}

func (m *Memory) ArchiveFinish(ctx context.Context, rec MatchRecord) error {
	return m.ArchiveCreate(ctx, rec)
}

func (m *Memory) AppendTournamentMatch(_ context.Context, tournamentID string, rec MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tournamentMatches[tournamentID] = append(m.tournamentMatches[tournamentID], rec)
	return nil
}

// ArchivedMatch exposes the archive to tests.
func (m *Memory) ArchivedMatch(sessionID string) (MatchRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.archive[sessionID]
	return rec, ok
}

var _ Store = (*Memory)(nil)
var _ Store = (*Redis)(nil)

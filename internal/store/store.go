// Package store persists all shared state: sessions, matchmaking queues,
// cooldowns and tournament structures. The redis implementation is the
// production backend; the memory implementation backs tests. Both uphold the
// same atomicity contract: a session commit updates the session record and
// both user indexes together, and claiming a matched pair either removes
// both waiters or neither.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/siddkalani/decaychess/internal/session"
)

const (
	// SessionTTL bounds how long an inactive session survives; refreshed on
	// every commit.
	SessionTTL = 5 * time.Minute
	// CooldownTTL is the post-match / post-leave rejoin block.
	CooldownTTL = 10 * time.Second
)

var (
	ErrNotFound    = errors.New("store: not found")
	ErrGone        = errors.New("store: waiter already claimed")
	ErrNoTournment = errors.New("store: no active tournament")
)

// Ticket is the side-data kept for a waiting user, in either the regular
// queues or the tournament queue.
type Ticket struct {
	UserID     string             `json:"userId"`
	ConnID     string             `json:"connId"`
	Rating     int                `json:"rating"`
	Variant    session.Variant    `json:"variant"`
	Subvariant session.Subvariant `json:"subvariant,omitempty"`
	JoinTimeMs int64              `json:"joinTime"`
	Source     string             `json:"source"` // matchmaking | tournament
	// TournamentID is set when Source is tournament.
	TournamentID string `json:"tournamentId,omitempty"`
}

// Key returns the waiting-set key for the ticket's variant pair.
func (t Ticket) Key() string {
	return session.Key(t.Variant, t.Subvariant)
}

// Tournament is the details record for the single active tournament.
type Tournament struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	StartsAt int64  `json:"startsAt"`
	EndsAt   int64  `json:"endsAt"`
	Capacity int    `json:"capacity"`
}

// LeaderboardEntry is one row of a tournament leaderboard.
type LeaderboardEntry struct {
	UserID        string `json:"userId"`
	Wins          int    `json:"wins"`
	CurrentStreak int    `json:"currentStreak"`
}

// MatchRecord is the durable per-game archive entry kept past the session
// TTL.
type MatchRecord struct {
	SessionID  string             `json:"sessionId"`
	Variant    session.Variant    `json:"variant"`
	Subvariant session.Subvariant `json:"subvariant,omitempty"`
	White      session.Player     `json:"white"`
	Black      session.Player     `json:"black"`
	StartFEN   string             `json:"startFen"`
	StartedAt  int64              `json:"startedAt"`
	EndedAt    int64              `json:"endedAt,omitempty"`
	Result     string             `json:"result,omitempty"`
	Winner     string             `json:"winner,omitempty"`
}

// Store is the persistence contract shared by the dispatcher, matchmaker and
// tournament manager.
type Store interface {
	// Sessions.
	SaveSession(ctx context.Context, s *session.Session) error
	LoadSession(ctx context.Context, id string) (*session.Session, error)
	ActiveSessionID(ctx context.Context, userID string) (string, error)
	ClearUserSession(ctx context.Context, userID string) error

	// Waiting queues. Scores order by rating with a join-time tie break.
	Enqueue(ctx context.Context, t Ticket, score float64) error
	Dequeue(ctx context.Context, key, userID string) error
	RemoveFromAllQueues(ctx context.Context, userID string) error
	Ticket(ctx context.Context, userID string) (Ticket, error)
	QueueRange(ctx context.Context, key string, minScore, maxScore float64) ([]string, error)
	QueueMembers(ctx context.Context, key string) ([]string, error)
	QueueLen(ctx context.Context, key string) (int64, error)

	// ClaimPair atomically removes two waiters from their sets and their
	// side-data, and puts both on cooldown. ErrGone if either was already
	// claimed by a concurrent match attempt.
	ClaimPair(ctx context.Context, a, b Ticket) error

	SetCooldown(ctx context.Context, userID string) error
	OnCooldown(ctx context.Context, userID string) (bool, error)

	// Tournament.
	CreateTournament(ctx context.Context, tr Tournament) error
	ActiveTournament(ctx context.Context) (Tournament, error)
	AddParticipant(ctx context.Context, tournamentID, userID string) error
	IsParticipant(ctx context.Context, tournamentID, userID string) (bool, error)
	ParticipantCount(ctx context.Context, tournamentID string) (int64, error)
	TournamentEnqueue(ctx context.Context, t Ticket) error
	TournamentDequeue(ctx context.Context, userID string) error
	TournamentWaiters(ctx context.Context) ([]string, error)
	RecordTournamentWin(ctx context.Context, tournamentID, userID string) error
	RecordTournamentNonWin(ctx context.Context, tournamentID, userID string) error
	Leaderboard(ctx context.Context, tournamentID string) ([]LeaderboardEntry, error)

	// Durable archive, outside the session TTL.
	ArchiveCreate(ctx context.Context, rec MatchRecord) error
	ArchiveFinish(ctx context.Context, rec MatchRecord) error
	AppendTournamentMatch(ctx context.Context, tournamentID string, rec MatchRecord) error
}

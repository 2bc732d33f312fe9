package tournament

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siddkalani/decaychess/internal/matchmaker"
	"github.com/siddkalani/decaychess/internal/messages"
	"github.com/siddkalani/decaychess/internal/position"
	"github.com/siddkalani/decaychess/internal/session"
	"github.com/siddkalani/decaychess/internal/store"
	"github.com/siddkalani/decaychess/internal/users"
)

const t0 = int64(1_700_000_000_000)

type recorder struct {
	mu   sync.Mutex
	last map[string]any
}

func newRecorder() *recorder { return &recorder{last: map[string]any{}} }

func (r *recorder) Publish(userID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[userID+"/"+event] = payload
}

func (r *recorder) matched(userID string) (messages.Matched, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.last[userID+"/"+messages.OutMatched]
	if !ok {
		return messages.Matched{}, false
	}
	return p.(messages.Matched), true
}

type fixture struct {
	mgr *Manager
	mm  *matchmaker.Matchmaker
	mem *store.Memory
	dir *users.InMemory
	pub *recorder
}

func newFixture(t *testing.T, seed ...users.User) *fixture {
	t.Helper()
	mem := store.NewMemory()
	pub := newRecorder()
	dir := users.NewInMemory(seed...)
	clock := func() int64 { return t0 }
	mm := matchmaker.New(mem, dir, pub, zap.NewNop()).
		WithClock(clock).
		WithRand(rand.New(rand.NewSource(1)))
	mgr := New(mem, dir, mm, zap.NewNop()).
		WithClock(clock).
		WithRand(rand.New(rand.NewSource(1)))
	return &fixture{mgr: mgr, mm: mm, mem: mem, dir: dir, pub: pub}
}

func (f *fixture) openTournament(t *testing.T, capacity int) store.Tournament {
	t.Helper()
	tr, err := f.mgr.Create(context.Background(), "weekly arena", t0-1_000, t0+3_600_000, capacity)
	require.NoError(t, err)
	return tr
}

func player(id string, rating int) users.User {
	return users.User{ID: id, DisplayName: id, Rating: rating}
}

func tournamentTicket(trID, userID string, key string, joinMs int64) store.Ticket {
	variant, subvariant, _ := session.ParseKey(key)
	return store.Ticket{
		UserID:       userID,
		ConnID:       "c-" + userID,
		Rating:       1500,
		Variant:      variant,
		Subvariant:   subvariant,
		JoinTimeMs:   joinMs,
		Source:       "tournament",
		TournamentID: trID,
	}
}

func TestJoinRequiresActiveTournament(t *testing.T) {
	f := newFixture(t, player("alice", 1500))
	err := f.mgr.Join(context.Background(), "alice", "c1")
	require.ErrorIs(t, err, ErrNoActive)
}

func TestJoinRejectsOutsidePlayWindow(t *testing.T) {
	f := newFixture(t, player("alice", 1500))
	_, err := f.mgr.Create(context.Background(), "later", t0+60_000, t0+120_000, 8)
	require.NoError(t, err)

	err = f.mgr.Join(context.Background(), "alice", "c1")
	require.ErrorIs(t, err, ErrClosed)
}

func TestJoinRejectsWhenFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("alice", 1500), player("bob", 1500), player("carol", 1500))
	tr := f.openTournament(t, 2)

	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "bob"))
	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "carol"))

	err := f.mgr.Join(ctx, "alice", "c1")
	require.ErrorIs(t, err, ErrFull)
}

func TestJoinAssignsVariantAndWaits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("alice", 1500))
	tr := f.openTournament(t, 8)

	require.NoError(t, f.mgr.Join(ctx, "alice", "c1"))

	waiters, err := f.mem.TournamentWaiters(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, waiters)

	ticket, err := f.mem.Ticket(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "tournament", ticket.Source)
	require.Equal(t, tr.ID, ticket.TournamentID)
	require.Contains(t, session.AllKeys(), ticket.Key())

	part, err := f.mem.IsParticipant(ctx, tr.ID, "alice")
	require.NoError(t, err)
	require.True(t, part)
}

func TestTwoTournamentWaitersMatchOnFirstAssignment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("alice", 1500), player("bob", 1500))
	tr := f.openTournament(t, 8)

	// Seed the first waiter directly so the assigned variant is known.
	first := tournamentTicket(tr.ID, "alice", "decay", t0-2_000)
	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "alice"))
	require.NoError(t, f.mem.TournamentEnqueue(ctx, first))

	require.NoError(t, f.mgr.Join(ctx, "bob", "c2"))

	ma, ok := f.pub.matched("alice")
	require.True(t, ok)
	mb, ok := f.pub.matched("bob")
	require.True(t, ok)
	require.Equal(t, ma.SessionID, mb.SessionID)
	require.Equal(t, "decay", ma.Variant, "earlier waiter's assignment decides")
	require.Equal(t, "tournament", ma.Source)
	require.Equal(t, "tournament", mb.Source)

	waiters, err := f.mem.TournamentWaiters(ctx)
	require.NoError(t, err)
	require.Empty(t, waiters)
}

func TestTournamentWaiterFallsBackToAssignedRegularQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("alice", 1500), player("ron", 1800))
	tr := f.openTournament(t, 8)

	require.NoError(t, f.mm.Join(ctx, "ron", "c1", "classic:blitz"))

	ticket := tournamentTicket(tr.ID, "alice", "classic:blitz", t0)
	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "alice"))
	require.NoError(t, f.mem.TournamentEnqueue(ctx, ticket))
	require.True(t, f.mgr.tryMatch(ctx, ticket))

	ma, ok := f.pub.matched("alice")
	require.True(t, ok)
	require.Equal(t, "classic", ma.Variant)
	require.Equal(t, "blitz", ma.Subvariant)
	require.Equal(t, "ron", ma.Opponent.UserID)
	require.Equal(t, "tournament", ma.Source)

	mr, ok := f.pub.matched("ron")
	require.True(t, ok)
	require.Equal(t, "matchmaking", mr.Source)
}

func TestTournamentWaiterTakesAnyRegularWaiterLast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("alice", 1500), player("ron", 1800))
	tr := f.openTournament(t, 8)

	require.NoError(t, f.mm.Join(ctx, "ron", "c1", "sixpointer"))

	ticket := tournamentTicket(tr.ID, "alice", "classic:bullet", t0)
	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "alice"))
	require.NoError(t, f.mem.TournamentEnqueue(ctx, ticket))
	require.True(t, f.mgr.tryMatch(ctx, ticket))

	ma, ok := f.pub.matched("alice")
	require.True(t, ok)
	require.Equal(t, "sixpointer", ma.Variant, "regular waiter's variant wins")
}

func TestCrossMatchFromRegularBroadPhase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("part", 1500), player("reg", 1520))
	tr := f.openTournament(t, 8)

	// Participant waits with an assigned variant but no tournament opponent.
	ticket := tournamentTicket(tr.ID, "part", "classic:blitz", t0-3_000)
	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "part"))
	require.NoError(t, f.mem.TournamentEnqueue(ctx, ticket))

	// Regular user joins the same variant and reaches the broad phase.
	require.NoError(t, f.mm.Join(ctx, "reg", "c2", "classic:blitz"))
	require.True(t, f.mm.MatchBroad(ctx, "reg"))

	mp, ok := f.pub.matched("part")
	require.True(t, ok)
	mr, ok := f.pub.matched("reg")
	require.True(t, ok)
	require.Equal(t, mp.SessionID, mr.SessionID)
	require.Equal(t, "classic", mr.Variant)
	require.Equal(t, "tournament", mp.Source)
	require.Equal(t, "matchmaking", mr.Source)

	s, err := f.mem.LoadSession(ctx, mp.SessionID)
	require.NoError(t, err)
	require.Equal(t, session.VariantClassic, s.Variant)
	require.Equal(t, session.SubvariantBlitz, s.Subvariant)

	waiters, err := f.mem.TournamentWaiters(ctx)
	require.NoError(t, err)
	require.Empty(t, waiters)
	for _, id := range []string{"part", "reg"} {
		cooling, err := f.mem.OnCooldown(ctx, id)
		require.NoError(t, err)
		require.True(t, cooling)
	}
}

func TestCrossMatchSkipsIncompatibleAssignment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("part", 1500), player("reg", 1520))
	tr := f.openTournament(t, 8)

	ticket := tournamentTicket(tr.ID, "part", "decay", t0-3_000)
	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "part"))
	require.NoError(t, f.mem.TournamentEnqueue(ctx, ticket))

	require.NoError(t, f.mm.Join(ctx, "reg", "c2", "classic:blitz"))
	require.False(t, f.mm.MatchBroad(ctx, "reg"))

	_, ok := f.pub.matched("reg")
	require.False(t, ok)
}

func finishedSession(winner position.Color) *session.Session {
	s := session.New(session.VariantClassic, session.SubvariantBlitz,
		session.Player{UserID: "alice", Rating: 1500},
		session.Player{UserID: "bob", Rating: 1500},
		position.StartingFEN, t0)
	s.Status = session.StatusFinished
	s.Result = session.Result{
		Result:  "checkmate",
		Winner:  winner,
		Reason:  "checkmate",
		EndedAt: t0 + 60_000,
	}
	if winner == "" {
		s.Result.Result = "draw"
		s.Result.Reason = "agreement"
	}
	return s
}

func TestFinishUpdatesLeaderboardAndBestStreak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("alice", 1500), player("bob", 1500))
	tr := f.openTournament(t, 8)
	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "alice"))
	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "bob"))

	f.mgr.OnSessionFinish(finishedSession(position.White))
	f.mgr.OnSessionFinish(finishedSession(position.White))

	board, err := f.mgr.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 2)
	require.Equal(t, "alice", board[0].UserID)
	require.Equal(t, 2, board[0].Wins)
	require.Equal(t, 2, board[0].CurrentStreak)
	require.Equal(t, 0, board[1].Wins)
	require.Equal(t, 0, board[1].CurrentStreak)

	u, err := f.dir.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, u.PersonalBestStreak)
}

func TestFinishDrawResetsBothStreaks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("alice", 1500), player("bob", 1500))
	tr := f.openTournament(t, 8)
	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "alice"))
	require.NoError(t, f.mem.AddParticipant(ctx, tr.ID, "bob"))

	f.mgr.OnSessionFinish(finishedSession(position.White))
	f.mgr.OnSessionFinish(finishedSession(""))

	board, err := f.mgr.Leaderboard(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, board[0].Wins)
	require.Equal(t, 0, board[0].CurrentStreak, "draw resets the streak")

	u, err := f.dir.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, u.PersonalBestStreak, "best streak survives the reset")
}

func TestFinishIgnoresNonParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("alice", 1500), player("bob", 1500))
	f.openTournament(t, 8)

	f.mgr.OnSessionFinish(finishedSession(position.White))

	board, err := f.mgr.Leaderboard(ctx)
	require.NoError(t, err)
	require.Empty(t, board)
}

func TestFinishClearsUserSessionIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, player("alice", 1500), player("bob", 1500))

	s := finishedSession(position.White)
	require.NoError(t, f.mem.SaveSession(ctx, s))
	f.mgr.OnSessionFinish(s)

	_, err := f.mem.ActiveSessionID(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.mem.ActiveSessionID(ctx, "bob")
	require.ErrorIs(t, err, store.ErrNotFound)
}

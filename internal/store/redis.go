package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/siddkalani/decaychess/internal/session"
)

// Redis is the production Store backed by a shared redis client.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func sessionKey(id string) string      { return "session:" + id }
func userSessionKey(u string) string   { return "user:session:" + u }
func queueKey(variantKey string) string { return "queue:" + variantKey }
func queueUserKey(u string) string     { return "queueuser:" + u }
func cooldownKey(u string) string      { return "cooldown:" + u }
func archiveKey(id string) string      { return "archive:session:" + id }

const (
	tournamentActiveKey = "tournament:active"
	tournamentQueueKey  = "tournament:queue"
)

func tournamentDetailsKey(id string) string { return "tournament:" + id + ":details" }
func tournamentMembersKey(id string) string { return "tournament:" + id + ":participants" }
func tournamentUserKey(id, u string) string { return "tournament:" + id + ":user:" + u }
func tournamentBoardKey(id string) string   { return "tournament:" + id + ":leaderboard" }
func tournamentStatsKey(id, u string) string {
	return "tournament:" + id + ":lb:" + u
}
func tournamentMatchesKey(id string) string { return "tournament:" + id + ":matches" }

// SaveSession writes the session hash and both user indexes in one
// transaction and refreshes their TTLs.
func (r *Redis) SaveSession(ctx context.Context, s *session.Session) error {
	body, err := s.Encode()
	if err != nil {
		return err
	}
	tc, err := json.Marshal(session.TimeControlFor(s.Variant, s.Subvariant))
	if err != nil {
		return err
	}

	key := sessionKey(s.ID)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"sessionId", s.ID,
			"gameState", string(body),
			"playerWhiteId", s.Players.White.UserID,
			"playerBlackId", s.Players.Black.UserID,
			"variant", string(s.Variant),
			"subvariant", string(s.Subvariant),
			"status", string(s.Status),
			"createdAt", strconv.FormatInt(s.CreatedAt, 10),
			"lastActivity", strconv.FormatInt(s.LastMoveTimestamp, 10),
			"timeControl", string(tc),
		)
		p.Expire(ctx, key, SessionTTL)
		for _, uid := range []string{s.Players.White.UserID, s.Players.Black.UserID} {
			p.Set(ctx, userSessionKey(uid), s.ID, SessionTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

func (r *Redis) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	body, err := r.rdb.HGet(ctx, sessionKey(id), "gameState").Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return session.Decode([]byte(body))
}

func (r *Redis) ActiveSessionID(ctx context.Context, userID string) (string, error) {
	id, err := r.rdb.Get(ctx, userSessionKey(userID)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Redis) ClearUserSession(ctx context.Context, userID string) error {
	return r.rdb.Del(ctx, userSessionKey(userID)).Err()
}

func (r *Redis) Enqueue(ctx context.Context, t Ticket, score float64) error {
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, queueKey(t.Key()), redis.Z{Score: score, Member: t.UserID})
		p.HSet(ctx, queueUserKey(t.UserID), "data", string(body), "status", "waiting")
		return nil
	})
	return err
}

func (r *Redis) Dequeue(ctx context.Context, key, userID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, queueKey(key), userID)
		p.Del(ctx, queueUserKey(userID))
		return nil
	})
	return err
}

func (r *Redis) RemoveFromAllQueues(ctx context.Context, userID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, key := range session.AllKeys() {
			p.ZRem(ctx, queueKey(key), userID)
		}
		p.ZRem(ctx, tournamentQueueKey, userID)
		p.Del(ctx, queueUserKey(userID))
		return nil
	})
	return err
}

func (r *Redis) Ticket(ctx context.Context, userID string) (Ticket, error) {
	body, err := r.rdb.HGet(ctx, queueUserKey(userID), "data").Result()
	if err == redis.Nil {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, err
	}
	var t Ticket
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return Ticket{}, fmt.Errorf("decode ticket for %s: %w", userID, err)
	}
	return t, nil
}

func (r *Redis) QueueRange(ctx context.Context, key string, minScore, maxScore float64) ([]string, error) {
	return r.rdb.ZRangeByScore(ctx, queueKey(key), &redis.ZRangeBy{
		Min: strconv.FormatFloat(minScore, 'f', -1, 64),
		Max: strconv.FormatFloat(maxScore, 'f', -1, 64),
	}).Result()
}

func (r *Redis) QueueMembers(ctx context.Context, key string) ([]string, error) {
	return r.rdb.ZRange(ctx, queueKey(key), 0, -1).Result()
}

func (r *Redis) QueueLen(ctx context.Context, key string) (int64, error) {
	return r.rdb.ZCard(ctx, queueKey(key)).Result()
}

// ClaimPair removes both waiters and sets their cooldowns under an
// optimistic transaction. If either waiter disappears between the check and
// the exec (a concurrent claim), the whole operation fails with ErrGone.
func (r *Redis) ClaimPair(ctx context.Context, a, b Ticket) error {
	watched := []string{waitingSetKey(a), waitingSetKey(b), queueUserKey(a.UserID), queueUserKey(b.UserID)}

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		for _, t := range []Ticket{a, b} {
			if err := tx.ZScore(ctx, waitingSetKey(t), t.UserID).Err(); err == redis.Nil {
				return ErrGone
			} else if err != nil {
				return err
			}
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, t := range []Ticket{a, b} {
				p.ZRem(ctx, waitingSetKey(t), t.UserID)
				p.Del(ctx, queueUserKey(t.UserID))
				if t.Source == "tournament" && t.TournamentID != "" {
					p.Del(ctx, tournamentUserKey(t.TournamentID, t.UserID))
				}
				p.Set(ctx, cooldownKey(t.UserID), "1", CooldownTTL)
			}
			return nil
		})
		return err
	}, watched...)
	if err == redis.TxFailedErr {
		return ErrGone
	}
	return err
}

func waitingSetKey(t Ticket) string {
	if t.Source == "tournament" {
		return tournamentQueueKey
	}
	return queueKey(t.Key())
}

func (r *Redis) SetCooldown(ctx context.Context, userID string) error {
	return r.rdb.Set(ctx, cooldownKey(userID), "1", CooldownTTL).Err()
}

func (r *Redis) OnCooldown(ctx context.Context, userID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, cooldownKey(userID)).Result()
	return n > 0, err
}

func (r *Redis) CreateTournament(ctx context.Context, tr Tournament) error {
	body, err := json.Marshal(tr)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, tournamentDetailsKey(tr.ID), "details", string(body))
		p.Set(ctx, tournamentActiveKey, tr.ID, 0)
		return nil
	})
	return err
}

func (r *Redis) ActiveTournament(ctx context.Context) (Tournament, error) {
	id, err := r.rdb.Get(ctx, tournamentActiveKey).Result()
	if err == redis.Nil {
		return Tournament{}, ErrNoTournment
	}
	if err != nil {
		return Tournament{}, err
	}
	body, err := r.rdb.HGet(ctx, tournamentDetailsKey(id), "details").Result()
	if err == redis.Nil {
		return Tournament{}, ErrNoTournment
	}
	if err != nil {
		return Tournament{}, err
	}
	var tr Tournament
	if err := json.Unmarshal([]byte(body), &tr); err != nil {
		return Tournament{}, fmt.Errorf("decode tournament %s: %w", id, err)
	}
	return tr, nil
}

func (r *Redis) AddParticipant(ctx context.Context, tournamentID, userID string) error {
	return r.rdb.SAdd(ctx, tournamentMembersKey(tournamentID), userID).Err()
}

func (r *Redis) IsParticipant(ctx context.Context, tournamentID, userID string) (bool, error) {
	return r.rdb.SIsMember(ctx, tournamentMembersKey(tournamentID), userID).Result()
}

func (r *Redis) ParticipantCount(ctx context.Context, tournamentID string) (int64, error) {
	return r.rdb.SCard(ctx, tournamentMembersKey(tournamentID)).Result()
}

func (r *Redis) TournamentEnqueue(ctx context.Context, t Ticket) error {
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, tournamentQueueKey, redis.Z{Score: float64(t.JoinTimeMs), Member: t.UserID})
		p.Set(ctx, tournamentUserKey(t.TournamentID, t.UserID), string(body), SessionTTL)
		p.HSet(ctx, queueUserKey(t.UserID), "data", string(body), "status", "waiting")
		return nil
	})
	return err
}

func (r *Redis) TournamentDequeue(ctx context.Context, userID string) error {
	id, err := r.rdb.Get(ctx, tournamentActiveKey).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, tournamentQueueKey, userID)
		p.Del(ctx, queueUserKey(userID))
		if id != "" {
			p.Del(ctx, tournamentUserKey(id, userID))
		}
		return nil
	})
	return err
}

// TournamentWaiters lists tournament waiters in FIFO order (the queue is
// scored by join time).
func (r *Redis) TournamentWaiters(ctx context.Context) ([]string, error) {
	return r.rdb.ZRange(ctx, tournamentQueueKey, 0, -1).Result()
}

func (r *Redis) RecordTournamentWin(ctx context.Context, tournamentID, userID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZIncrBy(ctx, tournamentBoardKey(tournamentID), 1, userID)
		p.HIncrBy(ctx, tournamentStatsKey(tournamentID, userID), "wins", 1)
		p.HIncrBy(ctx, tournamentStatsKey(tournamentID, userID), "currentStreak", 1)
		return nil
	})
	return err
}

func (r *Redis) RecordTournamentNonWin(ctx context.Context, tournamentID, userID string) error {
	return r.rdb.HSet(ctx, tournamentStatsKey(tournamentID, userID), "currentStreak", 0).Err()
}

// Leaderboard returns entries ordered by wins, best first.
func (r *Redis) Leaderboard(ctx context.Context, tournamentID string) ([]LeaderboardEntry, error) {
	users, err := r.rdb.ZRevRange(ctx, tournamentBoardKey(tournamentID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardEntry, 0, len(users))
	for _, uid := range users {
		stats, err := r.rdb.HGetAll(ctx, tournamentStatsKey(tournamentID, uid)).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, LeaderboardEntry{
			UserID:        uid,
			Wins:          atoi(stats["wins"]),
			CurrentStreak: atoi(stats["currentStreak"]),
		})
	}
	return out, nil
}

func (r *Redis) ArchiveCreate(ctx context.Context, rec MatchRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, archiveKey(rec.SessionID), string(body), 0).Err()
}

func (r *Redis) ArchiveFinish(ctx context.Context, rec MatchRecord) error {
	return r.ArchiveCreate(ctx, rec)
}

func (r *Redis) AppendTournamentMatch(ctx context.Context, tournamentID string, rec MatchRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, tournamentMatchesKey(tournamentID), string(body)).Err()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

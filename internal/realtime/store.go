package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/volkzayaz/RR-sub003/internal/wire"
)

const (
	keyPrefix        = "rr:session:"
	dedupeTTL        = 10 * time.Minute
	maxCommitRetries = 16
)

var ErrContention = errors.New("realtime: session is too busy, retry")

func stateKey(session string) string { return keyPrefix + session + ":state" }

func envelopeKey(session, id string) string { return keyPrefix + session + ":env:" + id }

// sessionChannel is the pub/sub channel every relay instance listens on for
// a session.
func sessionChannel(session string) string { return keyPrefix + session }

const sessionPattern = keyPrefix + "*"

// Store keeps sessions in redis. Commits are optimistic transactions on the
// session key so several relay instances can serve one session.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, g getter, session string) (Session, error) {
	data, err := g.Get(ctx, stateKey(session)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSession(), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session %s: %w", session, err)
	}
	s := NewSession()
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", session, err)
	}
	return s, nil
}

// Load returns the current session; unknown sessions are empty.
func (st *Store) Load(ctx context.Context, session string) (Session, error) {
	return load(ctx, st.rdb, session)
}

// Commit applies env to the session and stamps it with the next sequence
// number. The stamped envelope is what gets broadcast.
func (st *Store) Commit(ctx context.Context, session string, env wire.Envelope) (wire.Envelope, error) {
	key := stateKey(session)
	var stamped wire.Envelope

	txf := func(tx *redis.Tx) error {
		s, err := load(ctx, tx, session)
		if err != nil {
			return err
		}
		if err := s.Apply(env); err != nil {
			return err
		}
		s.Seq++
		stamped = env
		stamped.Session = session
		stamped.Seq = s.Seq

		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", session, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, st.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxCommitRetries; i++ {
		err := st.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return wire.Envelope{}, err
		}
		return stamped, nil
	}
	return wire.Envelope{}, ErrContention
}

// Seen marks an envelope id as delivered and reports whether it already was.
func (st *Store) Seen(ctx context.Context, session, id string) (bool, error) {
	ok, err := st.rdb.SetNX(ctx, envelopeKey(session, id), 1, dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe %s: %w", id, err)
	}
	return !ok, nil
}

// Forget releases an envelope id marked by Seen, so a command that was not
// committed can be submitted again.
func (st *Store) Forget(ctx context.Context, session, id string) error {
	if err := st.rdb.Del(ctx, envelopeKey(session, id)).Err(); err != nil {
		return fmt.Errorf("forget %s: %w", id, err)
	}
	return nil
}

// Publish fans a stamped envelope out to every relay serving the session.
func (st *Store) Publish(ctx context.Context, env wire.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return st.rdb.Publish(ctx, sessionChannel(env.Session), data).Err()
}

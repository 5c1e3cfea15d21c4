package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps conversations in redis so they survive restarts and can
// be shared by several bot processes. Expiry is the key TTL.
type RedisStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "issuebot:conv:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) key(admin int64) string { return s.prefix + strconv.FormatInt(admin, 10) }

func (s *RedisStore) seqKey() string { return s.prefix + "seq" }

func decodeState(raw string) (State, error) {
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, fmt.Errorf("decode conversation: %w", err)
	}
	return st, nil
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func get(ctx context.Context, c getter, key string) (State, bool, error) {
	raw, err := c.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	st, err := decodeState(raw)
	if err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

func (s *RedisStore) stamp(ctx context.Context, st State) (State, []byte, error) {
	v, err := s.rdb.Incr(ctx, s.seqKey()).Uint64()
	if err != nil {
		return State{}, nil, err
	}
	st.Version = v
	st.UpdatedAt = s.now()
	b, err := json.Marshal(st)
	return st, b, err
}

func (s *RedisStore) Load(ctx context.Context, admin int64) (State, bool, error) {
	return get(ctx, s.rdb, s.key(admin))
}

func (s *RedisStore) Put(ctx context.Context, admin int64, st State) (State, error) {
	st, b, err := s.stamp(ctx, st)
	if err != nil {
		return State{}, err
	}
	if err := s.rdb.Set(ctx, s.key(admin), b, s.ttl).Err(); err != nil {
		return State{}, err
	}
	return st, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, admin int64, expect uint64, next *State) (bool, error) {
	key := s.key(admin)
	var payload []byte
	if next != nil {
		var err error
		if _, payload, err = s.stamp(ctx, *next); err != nil {
			return false, err
		}
	}

	swapped := false
	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		cur, ok, err := get(ctx, tx, key)
		if err != nil {
			return err
		}
		if !ok || cur.Version != expect {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if payload == nil {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (s *RedisStore) Delete(ctx context.Context, admin int64) (bool, error) {
	n, err := s.rdb.Del(ctx, s.key(admin)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

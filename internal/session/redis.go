package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry shares the session registry between instances. Each session
// is a hash, each principal a set of session ids. Keys expire after ttl
// without requests.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisRegistry(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = "ldapsecurity:"
	}
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRegistry) sessionKey(id string) string {
	return r.prefix + "session:" + id
}

func (r *RedisRegistry) principalKey(principal string) string {
	return r.prefix + "principal:" + principal
}

func (r *RedisRegistry) Register(ctx context.Context, sessionID, principal string) error {
	if err := r.Remove(ctx, sessionID); err != nil {
		return err
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.sessionKey(sessionID),
			"principal", principal,
			"last", strconv.FormatInt(time.Now().UnixNano(), 10),
			"expired", "0")
		pipe.SAdd(ctx, r.principalKey(principal), sessionID)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.sessionKey(sessionID), r.ttl)
			pipe.Expire(ctx, r.principalKey(principal), r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Sessions(ctx context.Context, principal string) ([]Info, error) {
	ids, err := r.client.SMembers(ctx, r.principalKey(principal)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var infos []Info
	for _, id := range ids {
		info, err := r.Info(ctx, id)
		if err != nil {
			return nil, err
		}
		if info == nil {
			// hash expired, drop the stale member
			r.client.SRem(ctx, r.principalKey(principal), id)
			continue
		}
		if !info.Expired {
			infos = append(infos, *info)
		}
	}
	sortByLastRequest(infos)
	return infos, nil
}

func (r *RedisRegistry) Info(ctx context.Context, sessionID string) (*Info, error) {
	values, err := r.client.HGetAll(ctx, r.sessionKey(sessionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	last, _ := strconv.ParseInt(values["last"], 10, 64)
	return &Info{
		ID:          sessionID,
		Principal:   values["principal"],
		LastRequest: time.Unix(0, last),
		Expired:     values["expired"] == "1",
	}, nil
}

func (r *RedisRegistry) Refresh(ctx context.Context, sessionID string) error {
	key := r.sessionKey(sessionID)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil || n == 0 {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "last", strconv.FormatInt(time.Now().UnixNano(), 10))
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return err
}

func (r *RedisRegistry) Expire(ctx context.Context, sessionID string) error {
	key := r.sessionKey(sessionID)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil || n == 0 {
		return err
	}
	return r.client.HSet(ctx, key, "expired", "1").Err()
}

func (r *RedisRegistry) Remove(ctx context.Context, sessionID string) error {
	info, err := r.Info(ctx, sessionID)
	if err != nil || info == nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.sessionKey(sessionID))
		pipe.SRem(ctx, r.principalKey(info.Principal), sessionID)
		return nil
	})
	return err
}

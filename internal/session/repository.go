package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/redis/go-redis/v9"
)

// Repository keeps authentications on the server, keyed by session id.
// Load returns nil for unknown or expired ids.
type Repository interface {
	Load(ctx context.Context, id string) (*authn.Authentication, error)
	Save(ctx context.Context, id string, auth *authn.Authentication) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	auth    authn.Authentication
	expires time.Time
}

// MemoryRepository is the single instance repository. Entries live for ttl
// after their last save; a ttl <= 0 keeps them until deleted.
type MemoryRepository struct {
	mu        sync.Mutex
	ttl       time.Duration
	entries   map[string]memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	return &MemoryRepository{ttl: ttl, entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryRepository) Load(_ context.Context, id string) (*authn.Authentication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	if m.expired(entry) {
		delete(m.entries, id)
		return nil, nil
	}
	return cloneAuthentication(&entry.auth), nil
}

func (m *MemoryRepository) Save(_ context.Context, id string, auth *authn.Authentication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.ttl > 0 && now.Sub(m.lastSweep) > m.ttl {
		for k, entry := range m.entries {
			if m.expired(entry) {
				delete(m.entries, k)
			}
		}
		m.lastSweep = now
	}
	m.entries[id] = memoryEntry{auth: *cloneAuthentication(auth), expires: now.Add(m.ttl)}
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryRepository) expired(entry memoryEntry) bool {
	return m.ttl > 0 && m.now().After(entry.expires)
}

func cloneAuthentication(auth *authn.Authentication) *authn.Authentication {
	c := *auth
	c.Authorities = slices.Clone(auth.Authorities)
	c.Attributes = maps.Clone(auth.Attributes)
	return &c
}

// RedisRepository shares authentications between instances. Each one is a
// JSON string expiring after ttl.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisRepository(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisRepository {
	if prefix == "" {
		prefix = "ldapsecurity:"
	}
	return &RedisRepository{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRepository) key(id string) string {
	return r.prefix + "auth:" + id
}

func (r *RedisRepository) Load(ctx context.Context, id string) (*authn.Authentication, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get authentication: %w", err)
	}
	var auth authn.Authentication
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("decode authentication: %w", err)
	}
	return &auth, nil
}

func (r *RedisRepository) Save(ctx context.Context, id string, auth *authn.Authentication) error {
	data, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("encode authentication: %w", err)
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("set authentication: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

package rememberme

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheRepository keeps tokens in memcached. Every series is one item;
// a per-user item lists the series of that user so they can be removed
// together. Items expire with the remember-me validity.
type MemcacheRepository struct {
	cache    *memcache.Client
	prefix   string
	validity time.Duration
	now      func() time.Time
	// serializes index updates of this process
	indexMu sync.Mutex
}

func NewMemcacheRepository(cache *memcache.Client, validity time.Duration) *MemcacheRepository {
	return &MemcacheRepository{cache: cache, prefix: "rememberme:", validity: validity, now: time.Now}
}

func (m *MemcacheRepository) seriesKey(series string) string {
	return m.prefix + "series:" + series
}

// memcached keys must not contain spaces or control characters.
func (m *MemcacheRepository) userKey(username string) string {
	return m.prefix + "user:" + base64.RawURLEncoding.EncodeToString([]byte(username))
}

func encodeToBytes(obj interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(obj)
	return buf.Bytes(), err
}

func decodeFromBytes(data []byte, obj interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(obj)
}

// memcached reads expirations beyond 30 days as a unix timestamp.
const maxRelativeExpiration = 30 * 24 * time.Hour

func (m *MemcacheRepository) expiration() int32 {
	if m.validity > maxRelativeExpiration {
		return int32(m.now().Add(m.validity).Unix())
	}
	return int32(m.validity / time.Second)
}

func (m *MemcacheRepository) setToken(token PersistentToken) error {
	value, err := encodeToBytes(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return m.cache.Set(&memcache.Item{Key: m.seriesKey(token.Series), Value: value, Expiration: m.expiration()})
}

func (m *MemcacheRepository) CreateNewToken(_ context.Context, token PersistentToken) error {
	if err := m.setToken(token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	series, err := m.userSeries(token.Username)
	if err != nil {
		return err
	}
	return m.setUserSeries(token.Username, append(series, token.Series))
}

func (m *MemcacheRepository) UpdateToken(ctx context.Context, series, tokenValue string, lastUsed time.Time) error {
	token, err := m.GetTokenForSeries(ctx, series)
	if err != nil || token == nil {
		return err
	}
	token.Token = tokenValue
	token.LastUsed = lastUsed
	if err := m.setToken(*token); err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	return nil
}

func (m *MemcacheRepository) GetTokenForSeries(_ context.Context, series string) (*PersistentToken, error) {
	item, err := m.cache.Get(m.seriesKey(series))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	var token PersistentToken
	if err := decodeFromBytes(item.Value, &token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &token, nil
}

func (m *MemcacheRepository) RemoveUserTokens(_ context.Context, username string) error {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	series, err := m.userSeries(username)
	if err != nil {
		return err
	}
	for _, s := range series {
		if err := m.cache.Delete(m.seriesKey(s)); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			return fmt.Errorf("delete token: %w", err)
		}
	}
	if err := m.cache.Delete(m.userKey(username)); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("delete user index: %w", err)
	}
	return nil
}

func (m *MemcacheRepository) userSeries(username string) ([]string, error) {
	item, err := m.cache.Get(m.userKey(username))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user index: %w", err)
	}
	var series []string
	if err := decodeFromBytes(item.Value, &series); err != nil {
		return nil, fmt.Errorf("decode user index: %w", err)
	}
	return series, nil
}

func (m *MemcacheRepository) setUserSeries(username string, series []string) error {
	value, err := encodeToBytes(series)
	if err != nil {
		return fmt.Errorf("encode user index: %w", err)
	}
	if err := m.cache.Set(&memcache.Item{Key: m.userKey(username), Value: value, Expiration: m.expiration()}); err != nil {
		return fmt.Errorf("store user index: %w", err)
	}
	return nil
}

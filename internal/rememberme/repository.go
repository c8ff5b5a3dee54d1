// Package rememberme implements persistent-token remember-me logins.
package rememberme

import (
	"context"
	"sync"
	"time"

	"github.com/pp23/ldapsecurity/internal/authn"
)

// PersistentToken is one remembered login. The series stays the same for
// the lifetime of the login, the token changes on every use.
type PersistentToken struct {
	Series         string
	Token          string
	Username       string
	LastUsed       time.Time
	Authentication authn.Authentication
}

// TokenRepository stores persistent tokens.
type TokenRepository interface {
	CreateNewToken(ctx context.Context, token PersistentToken) error
	UpdateToken(ctx context.Context, series, tokenValue string, lastUsed time.Time) error
	// GetTokenForSeries returns nil for unknown series.
	GetTokenForSeries(ctx context.Context, series string) (*PersistentToken, error)
	RemoveUserTokens(ctx context.Context, username string) error
}

// MemoryRepository keeps tokens in process memory.
type MemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]PersistentToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]PersistentToken)}
}

func (m *MemoryRepository) CreateNewToken(_ context.Context, token PersistentToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Series] = token
	return nil
}

func (m *MemoryRepository) UpdateToken(_ context.Context, series, tokenValue string, lastUsed time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[series]
	if !ok {
		return nil
	}
	token.Token = tokenValue
	token.LastUsed = lastUsed
	m.tokens[series] = token
	return nil
}

func (m *MemoryRepository) GetTokenForSeries(_ context.Context, series string) (*PersistentToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[series]
	if !ok {
		return nil, nil
	}
	return &token, nil
}

func (m *MemoryRepository) RemoveUserTokens(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for series, token := range m.tokens {
		if token.Username == username {
			delete(m.tokens, series)
		}
	}
	return nil
}

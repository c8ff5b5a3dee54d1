package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func login(t *testing.T, strategy Strategy, store *Store, principal string) (*http.Request, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ldap/login", nil)
	err := strategy.OnAuthentication(httptest.NewRecorder(), req, &authn.Authentication{Principal: principal})
	return req, err
}

func TestNewStrategyWithoutOptions(t *testing.T) {
	props := config.CreateConfig().SessionMgt
	props.FixationProtection = false
	assert.Equal(t, NullStrategy{}, NewStrategy(props, newTestStore(), nil, nil))
}

func TestFixationProtectionRenewsID(t *testing.T) {
	store := newTestStore()
	registry := NewMemoryRegistry()
	strategy := &FixationProtection{Store: store, Registry: registry}
	req := httptest.NewRequest(http.MethodPost, "/ldap/login", nil)
	before := store.ID(req)
	require.NoError(t, registry.Register(context.Background(), before, "jane"))

	require.NoError(t, strategy.OnAuthentication(httptest.NewRecorder(), req, &authn.Authentication{Principal: "jane"}))
	assert.NotEqual(t, before, store.ID(req))
	info, err := registry.Info(context.Background(), before)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestConcurrentSessionControlExpiresOldest(t *testing.T) {
	store := newTestStore()
	registry := NewMemoryRegistry()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	registry.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	props := config.CreateConfig().SessionMgt
	props.MaximumSessions = 2
	strategy := NewStrategy(props, store, registry, nil)

	first, err := login(t, strategy, store, "jane")
	require.NoError(t, err)
	_, err = login(t, strategy, store, "jane")
	require.NoError(t, err)
	_, err = login(t, strategy, store, "jane")
	require.NoError(t, err)

	info, err := registry.Info(context.Background(), store.ID(first))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.Expired)
	infos, err := registry.Sessions(context.Background(), "jane")
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestConcurrentSessionControlPreventsLogin(t *testing.T) {
	store := newTestStore()
	registry := NewMemoryRegistry()
	props := config.CreateConfig().SessionMgt
	props.MaximumSessions = 1
	props.MaxSessionsPreventsLogin = true
	strategy := NewStrategy(props, store, registry, nil)

	_, err := login(t, strategy, store, "jane")
	require.NoError(t, err)
	_, err = login(t, strategy, store, "jane")
	assert.ErrorIs(t, err, authn.ErrSessionLimitExceeded)
	_, err = login(t, strategy, store, "john")
	assert.NoError(t, err)
}

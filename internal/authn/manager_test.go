package authn

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name     string
	supports bool
	auth     *Authentication
	err      error
	calls    int
}

func (s *stubProvider) Name() string                   { return s.name }
func (s *stubProvider) Supports(creds Credentials) bool { return s.supports }
func (s *stubProvider) Authenticate(ctx context.Context, creds Credentials) (*Authentication, error) {
	s.calls++
	return s.auth, s.err
}

func TestProviderManagerFirstSuccessWins(t *testing.T) {
	first := &stubProvider{name: "first", supports: true, err: fmt.Errorf("first: %w", ErrBadCredentials)}
	second := &stubProvider{name: "second", supports: true, auth: &Authentication{Principal: "user02"}}
	third := &stubProvider{name: "third", supports: true, auth: &Authentication{Principal: "other"}}

	m := NewProviderManager(nil, first, second, third)
	auth, err := m.Authenticate(context.Background(), Credentials{Username: "user02", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "user02", auth.Principal)
	assert.Equal(t, "second", auth.Source)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, third.calls)
}

func TestProviderManagerStopsOnDirectoryError(t *testing.T) {
	down := &stubProvider{name: "down", supports: true, err: fmt.Errorf("dial: %w", ErrDirectoryUnavailable)}
	next := &stubProvider{name: "next", supports: true, auth: &Authentication{Principal: "user02"}}

	_, err := NewProviderManager(nil, down, next).Authenticate(context.Background(), Credentials{Username: "user02"})
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.Equal(t, 0, next.calls)
}

func TestProviderManagerSkipsUnsupported(t *testing.T) {
	skipped := &stubProvider{name: "skipped", supports: false}
	_, err := NewProviderManager(nil, skipped).Authenticate(context.Background(), Credentials{Username: "user02"})
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.Equal(t, 0, skipped.calls)
}

func TestProviderManagerFallsBackToParent(t *testing.T) {
	bad := &stubProvider{name: "bad", supports: true, err: ErrBadCredentials}
	parent := ManagerFunc(func(ctx context.Context, creds Credentials) (*Authentication, error) {
		return &Authentication{Principal: creds.Username, Source: "parent"}, nil
	})
	auth, err := NewManagerBuilder(bad).Parent(parent).Build().Authenticate(context.Background(), Credentials{Username: "user02"})
	require.NoError(t, err)
	assert.Equal(t, "parent", auth.Source)
}

func TestProviderManagerSkipsAbstainingProvider(t *testing.T) {
	abstains := &stubProvider{name: "abstains", supports: true}
	next := &stubProvider{name: "next", supports: true, auth: &Authentication{Principal: "user02"}}
	auth, err := NewProviderManager(nil, abstains, next).Authenticate(context.Background(), Credentials{Username: "user02"})
	require.NoError(t, err)
	assert.Equal(t, "next", auth.Source)
	assert.Equal(t, 1, abstains.calls)

	parent := ManagerFunc(func(context.Context, Credentials) (*Authentication, error) { return nil, nil })
	auth, err = NewProviderManager(parent, abstains).Authenticate(context.Background(), Credentials{Username: "user02"})
	assert.Nil(t, auth)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestManagerBuilderIsConfigured(t *testing.T) {
	b := NewManagerBuilder()
	assert.False(t, b.IsConfigured())
	b.AuthenticationProvider(nil)
	assert.False(t, b.IsConfigured())
	b.AuthenticationProvider(&stubProvider{name: "p"})
	assert.True(t, b.IsConfigured())
	assert.Len(t, b.Build().Providers(), 1)
}

func TestIsPreAuthentication(t *testing.T) {
	assert.True(t, IsPreAuthentication(fmt.Errorf("x: %w", ErrMalformedRequest)))
	assert.True(t, IsPreAuthentication(ErrMethodNotSupported))
	assert.False(t, IsPreAuthentication(ErrBadCredentials))
	assert.False(t, IsPreAuthentication(errors.New("other")))
}

func TestHasAuthority(t *testing.T) {
	auth := &Authentication{Authorities: []string{"ROLE_ADMIN"}}
	assert.True(t, auth.HasAuthority("role_admin"))
	assert.False(t, auth.HasAuthority("ROLE_USER"))
	var none *Authentication
	assert.False(t, none.HasAuthority("ROLE_ADMIN"))
}

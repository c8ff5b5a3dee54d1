package ldapIdp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	peopleDN = "ou=people,dc=example,dc=org"
	groupsDN = "ou=groups,dc=example,dc=org"
	adminsDN = "cn=admins,ou=groups,dc=example,dc=org"
)

func bindModeConfig(port uint16) *Config {
	cfg := CreateConfig()
	cfg.URL = "ldap://127.0.0.1"
	cfg.Port = port
	cfg.Timeout = 2 * time.Second
	cfg.BaseDN = peopleDN
	return cfg
}

func TestProviderBindMode(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("cn=jane,"+peopleDN, "secret")
	p, err := NewProvider(bindModeConfig(testutil.StartMockDirectory(t, dir)), nil)
	require.NoError(t, err)

	auth, err := p.Authenticate(context.Background(), authn.Credentials{Username: "jane", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "jane", auth.Principal)
	assert.Equal(t, "cn=jane,"+peopleDN, auth.DN)
	assert.Equal(t, "jane", auth.CN)
	assert.Equal(t, ProviderName, auth.Source)
	assert.Equal(t, []string{"cn=jane," + peopleDN}, dir.Binds())
}

func TestProviderBadPassword(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("cn=jane,"+peopleDN, "secret")
	p, err := NewProvider(bindModeConfig(testutil.StartMockDirectory(t, dir)), nil)
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), authn.Credentials{Username: "jane", Password: "wrong"})
	assert.ErrorIs(t, err, authn.ErrBadCredentials)

	_, err = p.Authenticate(context.Background(), authn.Credentials{Username: "jane"})
	assert.ErrorIs(t, err, authn.ErrBadCredentials)
}

func TestProviderSearchModeWithGroups(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("cn=admin,dc=example,dc=org", "adminpw")
	dir.AddUser("uid=jane,"+peopleDN, "secret")
	dir.AddEntry(peopleDN, ldap.NewEntry("uid=jane,"+peopleDN, map[string][]string{
		"cn":   {"Jane Doe"},
		"mail": {"jane@example.org"},
	}))
	dir.AddEntry(adminsDN, ldap.NewEntry(adminsDN, map[string][]string{"member": {"uid=jane," + peopleDN}}))
	dir.AddEntry(groupsDN, ldap.NewEntry("cn=developers,"+groupsDN, map[string][]string{"cn": {"developers"}}))

	cfg := bindModeConfig(testutil.StartMockDirectory(t, dir))
	cfg.SearchFilter = "(&(objectClass=person)(uid={{.Username}}))"
	cfg.BindDN = "cn=admin,dc=example,dc=org"
	cfg.BindPassword = "adminpw"
	cfg.AllowedGroups = []string{adminsDN}
	cfg.GroupBaseDN = groupsDN
	p, err := NewProvider(cfg, nil)
	require.NoError(t, err)

	auth, err := p.Authenticate(context.Background(), authn.Credentials{Username: "jane", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "uid=jane,"+peopleDN, auth.DN)
	assert.Equal(t, "Jane Doe", auth.CN)
	assert.Equal(t, "jane@example.org", auth.Attributes["mail"])
	assert.True(t, auth.HasAuthority("admins"))
	assert.True(t, auth.HasAuthority("developers"))
}

func TestProviderSearchModeUnknownUser(t *testing.T) {
	dir := testutil.NewMockDirectory()
	cfg := bindModeConfig(testutil.StartMockDirectory(t, dir))
	cfg.SearchFilter = "(uid={{.Username}})"
	p, err := NewProvider(cfg, nil)
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), authn.Credentials{Username: "ghost", Password: "secret"})
	assert.ErrorIs(t, err, authn.ErrBadCredentials)
}

func TestProviderNotAuthorized(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("cn=jane,"+peopleDN, "secret")
	cfg := bindModeConfig(testutil.StartMockDirectory(t, dir))
	cfg.AllowedUsers = []string{"john"}
	cfg.AllowedGroups = []string{adminsDN}
	p, err := NewProvider(cfg, nil)
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), authn.Credentials{Username: "jane", Password: "secret"})
	assert.ErrorIs(t, err, authn.ErrUserNotAuthorized)
}

func TestProviderDirectoryUnavailableOpensBreaker(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(listener.Addr().(*net.TCPAddr).Port)
	listener.Close()

	cfg := bindModeConfig(port)
	cfg.Breaker = &BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute}
	p, err := NewProvider(cfg, nil)
	require.NoError(t, err)

	creds := authn.Credentials{Username: "jane", Password: "secret"}
	for i := 0; i < 2; i++ {
		_, err = p.Authenticate(context.Background(), creds)
		assert.ErrorIs(t, err, authn.ErrDirectoryUnavailable)
	}
	_, err = p.Authenticate(context.Background(), creds)
	assert.ErrorIs(t, err, authn.ErrDirectoryUnavailable)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "expected open breaker, got %v", err)
}

func TestNewProviderRequiresURL(t *testing.T) {
	_, err := NewProvider(CreateConfig(), nil)
	assert.Error(t, err)
}

func TestProviderAbandonsBindWhenContextEnds(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("cn=jane,"+peopleDN, "secret")
	dir.SetBindDelay(time.Second)
	cfg := bindModeConfig(testutil.StartMockDirectory(t, dir))
	cfg.Breaker = &BreakerConfig{ConsecutiveFailures: 1, OpenTimeout: time.Minute}
	p, err := NewProvider(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = p.Authenticate(ctx, authn.Credentials{Username: "jane", Password: "secret"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, gobreaker.StateClosed, p.breaker.State())
}

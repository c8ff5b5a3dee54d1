package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const peopleDN = "ou=people,dc=example,dc=org"

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	dir := testutil.NewMockDirectory()
	dir.AddUser("cn=user02,"+peopleDN, "secret")
	port := testutil.StartMockDirectory(t, dir)

	cfg := config.CreateConfig()
	cfg.Enabled = true
	cfg.Ldap.URL = "ldap://127.0.0.1"
	cfg.Ldap.Port = port
	cfg.Ldap.BaseDN = peopleDN
	cfg.Ldap.Timeout = 2 * time.Second
	cfg.Jwt.Enabled = true
	cfg.Jwt.Secret = "0123456789abcdef0123456789abcdef"
	r, err := NewChiRouter(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestMeRequiresLogin(t *testing.T) {
	r := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ldap/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionLogin(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/ldap/login", strings.NewReader(`{"username":"user02","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/ldap/me", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var auth authn.Authentication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	assert.Equal(t, "user02", auth.Principal)
	assert.Equal(t, "cn=user02,"+peopleDN, auth.DN)
}

func TestTokenLogin(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"user02","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var token struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"principal":"user02"`)
}

func TestUnprotectedRoutes(t *testing.T) {
	r := testRouter(t)
	for path, status := range map[string]int{
		"/healthz": http.StatusNoContent,
		"/metrics": http.StatusOK,
		"/missing": http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, status, rec.Code, path)
	}
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("security:\n  ldap:\n    enabled: true\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--config", path, "--addr", "127.0.0.1:0"})
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cmd = newRootCmd()
	cmd.SetArgs([]string{"serve", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

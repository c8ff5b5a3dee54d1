package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	events []string
}

func (l *recordingListener) OnSuccess(_ *http.Request, auth *authn.Authentication) {
	l.events = append(l.events, "success:"+auth.Principal)
}

func (l *recordingListener) OnFailure(_ *http.Request, err error) {
	l.events = append(l.events, "failure:"+err.Error())
}

type pathFailureHandler struct {
	path  string
	calls int
}

func (h *pathFailureHandler) Supports(r *http.Request, _ error) bool {
	return r.URL.Path == h.path
}

func (h *pathFailureHandler) OnAuthenticationFailure(w http.ResponseWriter, _ *http.Request, _ error) {
	h.calls++
	w.WriteHeader(http.StatusTeapot)
}

func TestRequireAuth(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireAuth(rec, true, "ldap", authn.ErrBadCredentials)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if h := rec.Header().Get("WWW-Authenticate"); h != `Basic realm="ldap"` {
		t.Fatalf("Expected WWW-Authenticate header, got %q", h)
	}
	expected := "401 Unauthorized\nError: bad credentials\n"
	if rec.Body.String() != expected {
		t.Fatalf("Expected body %q, got %q", expected, rec.Body.String())
	}
}

func TestUnauthorizedEntryPointWithoutChallenge(t *testing.T) {
	rec := httptest.NewRecorder()
	ep := &UnauthorizedEntryPoint{}
	ep.Commence(rec, httptest.NewRequest(http.MethodGet, "/ldap/x", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
	assert.Contains(t, rec.Body.String(), authn.ErrInsufficientAuthentication.Error())
}

func TestUnauthorizedEntryPointWrongMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	ep := &UnauthorizedEntryPoint{WWWAuthenticateHeader: true}
	ep.Commence(rec, httptest.NewRequest(http.MethodGet, "/ldap/login", nil), fmt.Errorf("%w: GET", authn.ErrMethodNotSupported))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "405 Method Not Allowed\nError: authentication method not supported: GET\n", rec.Body.String())
}

func TestDefaultEntryPointRedirectsBrowsers(t *testing.T) {
	authc := config.CreateAuthc("/ldap/**", "/ldap/login")
	authc.LoginPageURL = "/login.html"
	ep := DefaultEntryPoint(authc, nil)

	req := httptest.NewRequest(http.MethodGet, "/ldap/page?x=1", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	ep.Commence(rec, req, authn.ErrInsufficientAuthentication)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login.html?continue=%2Fldap%2Fpage%3Fx%3D1", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	ep.Commence(rec, httptest.NewRequest(http.MethodGet, "/ldap/page", nil), authn.ErrInsufficientAuthentication)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFailureHandlerForDispatchesAndNotifies(t *testing.T) {
	listener := &recordingListener{}
	matched := &pathFailureHandler{path: "/special"}
	h := FailureHandlerFor([]MatchedFailureHandler{matched}, []authn.Listener{listener},
		&JSONFailureHandler{})

	rec := httptest.NewRecorder()
	h.OnAuthenticationFailure(rec, httptest.NewRequest(http.MethodPost, "/special", nil), authn.ErrBadCredentials)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1, matched.calls)

	rec = httptest.NewRecorder()
	h.OnAuthenticationFailure(rec, httptest.NewRequest(http.MethodPost, "/other", nil),
		fmt.Errorf("%w: ldap://dir:389 refused", authn.ErrDirectoryUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, authn.ErrDirectoryUnavailable.Error(), body.Message, "directory details are hidden")
	assert.Len(t, listener.events, 2)
}

func TestSuccessHandlerForWithoutCandidatesReturnsFallback(t *testing.T) {
	fallback := &JSONSuccessHandler{}
	assert.Same(t, fallback, SuccessHandlerFor(nil, nil, fallback))
}

func TestSuccessHandlerForNotifiesListeners(t *testing.T) {
	listener := &recordingListener{}
	h := SuccessHandlerFor(nil, []authn.Listener{listener}, &JSONSuccessHandler{})
	rec := httptest.NewRecorder()
	h.OnAuthenticationSuccess(rec, httptest.NewRequest(http.MethodPost, "/ldap/login", nil),
		&authn.Authentication{Principal: "jane"})

	assert.Equal(t, []string{"success:jane"}, listener.events)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var auth authn.Authentication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	assert.Equal(t, "jane", auth.Principal)
}

type fixedIssuer struct {
	err error
}

func (i fixedIssuer) Issue(*authn.Authentication) (string, time.Time, error) {
	return "signed.jwt.value", time.Now().Add(time.Hour), i.err
}

func TestTokenSuccessHandler(t *testing.T) {
	h := &TokenSuccessHandler{Issuer: fixedIssuer{}}
	rec := httptest.NewRecorder()
	h.OnAuthenticationSuccess(rec, httptest.NewRequest(http.MethodPost, "/api/login", nil),
		&authn.Authentication{Principal: "jane", Authorities: []string{"admins"}})

	require.Equal(t, http.StatusOK, rec.Code)
	var body TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "signed.jwt.value", body.AccessToken)
	assert.Equal(t, "Bearer", body.TokenType)
	assert.InDelta(t, 3600, body.ExpiresIn, 5)

	h = &TokenSuccessHandler{Issuer: fixedIssuer{err: errors.New("no key")}}
	rec = httptest.NewRecorder()
	h.OnAuthenticationSuccess(rec, httptest.NewRequest(http.MethodPost, "/api/login", nil), &authn.Authentication{Principal: "jane"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDefaultHandlersRedirect(t *testing.T) {
	authc := config.CreateAuthc("/ldap/**", "/ldap/login")
	authc.SuccessURL = "/home"
	authc.FailureURL = "/login.html?retry=1"

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ldap/login", nil)
	DefaultSuccessHandler(authc, nil, nil).OnAuthenticationSuccess(rec, req, &authn.Authentication{Principal: "jane"})
	assert.Equal(t, "/home", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	DefaultFailureHandler(authc, nil, nil).OnAuthenticationFailure(rec, req, authn.ErrBadCredentials)
	location := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "/login.html?"), location)
	assert.Contains(t, location, "error=bad+credentials")
	assert.Contains(t, location, "retry=1")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, StatusFor(authn.ErrBadCredentials))
	assert.Equal(t, http.StatusForbidden, StatusFor(authn.ErrUserNotAuthorized))
	assert.Equal(t, http.StatusBadRequest, StatusFor(authn.ErrMalformedRequest))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("%w: cookie too long", authn.ErrSessionNotSaved)))
	assert.Equal(t, http.StatusUnauthorized, StatusFor(errors.New("other")))
}

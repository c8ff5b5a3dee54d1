package chain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/filter"
	"github.com/pp23/ldapsecurity/internal/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trace appends the filter name to the X-Trace header and calls next.
func trace(name string) filter.Filter {
	return filter.Func{FilterName: name, Fn: func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		w.Header().Add("X-Trace", name)
		next.ServeHTTP(w, r)
	}}
}

func names(c *Chain) []string {
	var out []string
	for _, f := range c.Filters() {
		out = append(out, f.Name())
	}
	return out
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("X-Trace", "app")
	w.WriteHeader(http.StatusOK)
})

func TestBuildSortsByPosition(t *testing.T) {
	c, err := NewHTTPSecurity("ldap", nil).
		AntMatcher("/ldap/**").
		AddFilterAt(trace("authorization"), PositionAuthorization).
		AddFilterBefore(trace("ldap"), PositionPostRequestAuthentication).
		AddFilterBefore(trace("locale"), PositionUsernamePassword).
		AddFilterAt(trace("context"), PositionSecurityContext).
		AddFilterAt(trace("second-context"), PositionSecurityContext).
		Build(DefaultFilterOrder + 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"context", "second-context", "locale", "ldap", "authorization"}, names(c))
	assert.Equal(t, "ldap", c.Name())
	assert.Equal(t, DefaultFilterOrder+5, c.Order())
	assert.NotNil(t, c.EntryPoint())

	h := c.Then(ok)
	assert.IsType(t, &chi.ChainHandler{}, h)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ldap/home", nil))
	assert.Equal(t, []string{"context", "second-context", "locale", "ldap", "authorization", "app"}, rec.Header().Values("X-Trace"))
}

func TestBuildToggles(t *testing.T) {
	authc := config.CreateAuthc("/ldap/**", "/ldap/login")
	c, err := NewHTTPSecurity("ldap", nil).AntMatcher(authc.PathPattern).
		Cors(authc.Cors).
		Csrf(authc.Csrf, nil, false).
		Headers(authc.Headers).
		Build(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"HeaderWriterFilter"}, names(c))

	authc.Cors.Enabled = true
	authc.Csrf.Enabled = true
	c, err = NewHTTPSecurity("ldap", nil).AntMatcher(authc.PathPattern).
		Headers(authc.Headers).
		Csrf(authc.Csrf, nil, false).
		Cors(authc.Cors).
		Build(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"HeaderWriterFilter", "CorsFilter", "CsrfFilter"}, names(c))
}

func TestBuildHTTPBasic(t *testing.T) {
	manager := authn.ManagerFunc(func(context.Context, authn.Credentials) (*authn.Authentication, error) {
		return &authn.Authentication{Principal: "jane"}, nil
	})
	c, err := NewHTTPSecurity("basic", nil).AntMatcher("/**").HTTPBasic(manager).Build(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"BasicAuthenticationFilter"}, names(c))

	c, err = NewHTTPSecurity("basic", nil).AntMatcher("/**").HTTPBasic(manager).DisableHTTPBasic().Build(1)
	require.NoError(t, err)
	assert.Empty(t, names(c))
}

func TestBuildErrors(t *testing.T) {
	_, err := NewHTTPSecurity("none", nil).Build(1)
	assert.ErrorIs(t, err, ErrNoMatcher)

	csrf := config.CreateAuthc("/ldap/**", "/ldap/login").Csrf
	csrf.Enabled = true
	csrf.IgnoredPatterns = []string{"/ldap/[z-a]"}
	_, err = NewHTTPSecurity("broken", nil).AntMatcher("/ldap/[z-a]").Csrf(csrf, nil, false).Build(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain broken")
}

func TestFilterShortCircuits(t *testing.T) {
	deny := filter.Func{FilterName: "deny", Fn: func(w http.ResponseWriter, _ *http.Request, _ http.Handler) {
		filter.Forbidden(w, errors.New("denied"))
	}}
	c, err := NewHTTPSecurity("deny", nil).AntMatcher("/**").AddFilterAt(deny, 1).AddFilterAt(trace("after"), 2).Build(1)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c.Then(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Values("X-Trace"))
}

func mustChain(t *testing.T, name, pattern string, order int) *Chain {
	t.Helper()
	c, err := NewHTTPSecurity(name, nil).AntMatcher(pattern).AddFilterAt(trace(name), 1).Build(order)
	require.NoError(t, err)
	return c
}

func TestRegistryFirstMatchWins(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(mustChain(t, "catch-all", "/**", 10)))
	require.NoError(t, r.Register(mustChain(t, "api", "/api/**", 6)))
	require.NoError(t, r.Register(mustChain(t, "ldap", "/ldap/**", 5)))

	var orders []int
	for _, c := range r.Chains() {
		orders = append(orders, c.Order())
	}
	assert.Equal(t, []int{5, 6, 10}, orders)

	h := r.Middleware(ok)
	for path, expected := range map[string]string{
		"/ldap/home": "ldap",
		"/api/me":    "api",
		"/other":     "catch-all",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, []string{expected, "app"}, rec.Header().Values("X-Trace"), path)
	}
}

func TestRegistryFallsThrough(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(mustChain(t, "ldap", "/ldap/**", 5)))

	rec := httptest.NewRecorder()
	r.Middleware(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/index.html", nil))
	assert.Equal(t, []string{"app"}, rec.Header().Values("X-Trace"))
	assert.Nil(t, r.Match(httptest.NewRequest(http.MethodGet, "/public", nil)))
}

func TestRegistryDuplicateOrder(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(mustChain(t, "ldap", "/ldap/**", 5)))
	err := r.Register(mustChain(t, "api", "/api/**", 5))
	assert.ErrorIs(t, err, ErrDuplicateOrder)
	assert.Len(t, r.Chains(), 1)
}

func TestRegistryIgnore(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(mustChain(t, "api", "/api/**", 6)))
	require.NoError(t, r.Ignore("/api/login", "/api/public/**"))

	h := r.Middleware(ok)
	for _, path := range []string{"/api/login", "/api/public/docs"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, []string{"app"}, rec.Header().Values("X-Trace"), path)
		assert.True(t, r.Ignored(httptest.NewRequest(http.MethodGet, path, nil)))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, []string{"api", "app"}, rec.Header().Values("X-Trace"))

	assert.Error(t, r.Ignore("/api/[z-a]"))
}

func TestRequestMatcher(t *testing.T) {
	m, err := matcher.AntMatchers("/a/**", "/b/**")
	require.NoError(t, err)
	c, err := NewHTTPSecurity("ab", nil).RequestMatcher(m).Build(1)
	require.NoError(t, err)
	assert.True(t, c.Matches(httptest.NewRequest(http.MethodGet, "/b/x", nil)))
	assert.False(t, c.Matches(httptest.NewRequest(http.MethodGet, "/c", nil)))
}

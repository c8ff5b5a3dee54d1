package filter

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/securecookie"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/matcher"
)

var ErrCsrfTokenMismatch = errors.New("invalid CSRF token")

type csrfNextKey struct{}

// CsrfFilter protects state changing requests with gorilla/csrf. The real
// token lives in a signed cookie. Every response passing the check carries
// the masked token in the configured header, which clients echo in that
// header or in the form parameter.
type CsrfFilter struct {
	ignored matcher.OrMatcher
	header  string
	protect http.Handler
}

// NewCsrfFilter derives the cookie signing key from key. An empty key is
// replaced by a random one and tokens do not survive a restart.
func NewCsrfFilter(props *config.CsrfProperties, key []byte, secure bool) (*CsrfFilter, error) {
	ignored, err := matcher.AntMatchers(props.IgnoredPatterns...)
	if err != nil {
		return nil, fmt.Errorf("csrf ignored patterns: %w", err)
	}
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}
	authKey := sha256.Sum256(append([]byte("csrf:"), key...))

	f := &CsrfFilter{ignored: ignored, header: props.HeaderName}
	f.protect = csrf.Protect(authKey[:],
		csrf.CookieName(props.CookieName),
		csrf.RequestHeader(props.HeaderName),
		csrf.FieldName(props.ParameterName),
		csrf.TrustedOrigins(props.TrustedOrigins),
		csrf.Path("/"),
		csrf.Secure(secure),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Forbidden(w, fmt.Errorf("%w: %v", ErrCsrfTokenMismatch, csrf.FailureReason(r)))
		})),
	)(http.HandlerFunc(f.passed))
	return f, nil
}

func (f *CsrfFilter) Name() string {
	return "CsrfFilter"
}

func (f *CsrfFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	r = r.WithContext(context.WithValue(r.Context(), csrfNextKey{}, next))
	if r.TLS == nil {
		r = csrf.PlaintextHTTPRequest(r)
	}
	if f.ignored.Matches(r) {
		r = csrf.UnsafeSkipCheck(r)
	}
	f.protect.ServeHTTP(w, r)
}

func (f *CsrfFilter) passed(w http.ResponseWriter, r *http.Request) {
	if token := csrf.Token(r); token != "" {
		w.Header().Set(f.header, token)
	}
	r.Context().Value(csrfNextKey{}).(http.Handler).ServeHTTP(w, r)
}

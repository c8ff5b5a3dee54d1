// Package captcha checks human-verification answers submitted with a login.
package captcha

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/session"
)

// Resolver validates the captcha answer of a login request.
type Resolver interface {
	Resolve(w http.ResponseWriter, r *http.Request, answer string) error
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(w http.ResponseWriter, r *http.Request, answer string) error

func (f ResolverFunc) Resolve(w http.ResponseWriter, r *http.Request, answer string) error {
	return f(w, r, answer)
}

// SessionResolver compares the answer with the challenge stored in the
// session under Attribute. A challenge can be answered once; the comparison
// ignores case.
type SessionResolver struct {
	Store     *session.Store
	Attribute string
}

func (s *SessionResolver) Resolve(w http.ResponseWriter, r *http.Request, answer string) error {
	values := s.Store.Values(r)
	expected, _ := values[s.Attribute].(string)
	if expected == "" {
		return fmt.Errorf("%w: no challenge issued", authn.ErrBadCaptcha)
	}
	delete(values, s.Attribute)
	if err := s.Store.Save(w, r); err != nil {
		return fmt.Errorf("consume captcha: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(answer), expected) {
		return authn.ErrBadCaptcha
	}
	return nil
}

// Issue stores a challenge answer in the session, e.g. from the handler
// rendering the captcha image.
func (s *SessionResolver) Issue(w http.ResponseWriter, r *http.Request, answer string) error {
	s.Store.Values(r)[s.Attribute] = answer
	return s.Store.Save(w, r)
}

// Package session keeps authentications behind gorilla cookie sessions and
// applies the session strategies run on login.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
)

const (
	idKey        = "sid"
	principalKey = "principal"
)

// Store wraps a gorilla store. The cookie carries the session id and the
// principal only, the authentication itself stays in the repository so that
// large authority sets never hit the cookie size limit.
type Store struct {
	store   sessions.Store
	repo    Repository
	name    string
	options sessions.Options
}

// NewStore creates a cookie store. Without key a random key is generated and
// sessions do not survive a restart. A nil repo keeps authentications in
// memory for the cookie max age.
func NewStore(props *config.SessionMgtProperties, key []byte, repo Repository) *Store {
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}
	// 32 byte key -> AES-256 mode
	encKey := sha256.Sum256(key)
	cookieStore := sessions.NewCookieStore(key, encKey[:])
	options := sessions.Options{
		Path:     props.CookiePath,
		Domain:   props.CookieDomain,
		MaxAge:   props.MaxAge,
		Secure:   props.CookieSecure,
		HttpOnly: true,
		SameSite: parseSameSite(props.SameSite),
	}
	cookieStore.Options = &options
	if repo == nil {
		repo = NewMemoryRepository(time.Duration(props.MaxAge) * time.Second)
	}
	return &Store{store: cookieStore, repo: repo, name: props.CookieName, options: options}
}

func parseSameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// Session returns the session of the request. Undecodable cookies yield a
// new session.
func (s *Store) Session(r *http.Request) *sessions.Session {
	// gorilla returns a new session together with the decode error
	sess, _ := s.store.Get(r, s.name)
	if sess == nil {
		sess = sessions.NewSession(s.store, s.name)
		opts := s.options
		sess.Options = &opts
		sess.IsNew = true
	}
	return sess
}

// Exists reports whether the request carried a valid session.
func (s *Store) Exists(r *http.Request) bool {
	return !s.Session(r).IsNew
}

// ID returns the id of the session, assigning one to new sessions.
func (s *Store) ID(r *http.Request) string {
	sess := s.Session(r)
	if id, ok := sess.Values[idKey].(string); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	sess.Values[idKey] = id
	return id
}

// Renew drops all values, assigns a fresh id and deletes the
// authentication kept under the old id. It returns the old and the new id.
func (s *Store) Renew(r *http.Request) (string, string, error) {
	sess := s.Session(r)
	old, _ := sess.Values[idKey].(string)
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	id := uuid.NewString()
	sess.Values[idKey] = id
	if old != "" {
		if err := s.repo.Delete(r.Context(), old); err != nil {
			return old, id, fmt.Errorf("delete session %s: %w", old, err)
		}
	}
	return old, id, nil
}

// Authentication returns the authentication of the session, or nil when
// the session carries none.
func (s *Store) Authentication(r *http.Request) (*authn.Authentication, error) {
	sess := s.Session(r)
	id, _ := sess.Values[idKey].(string)
	principal, _ := sess.Values[principalKey].(string)
	if id == "" || principal == "" {
		return nil, nil
	}
	auth, err := s.repo.Load(r.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if auth == nil || auth.Principal != principal {
		return nil, nil
	}
	return auth, nil
}

// SaveAuthentication stores auth in the repository and writes the cookie.
// Nothing is kept when either step fails.
func (s *Store) SaveAuthentication(w http.ResponseWriter, r *http.Request, auth *authn.Authentication) error {
	id := s.ID(r)
	if err := s.repo.Save(r.Context(), id, auth); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	sess := s.Session(r)
	sess.Values[principalKey] = auth.Principal
	if err := sess.Save(r, w); err != nil {
		delete(sess.Values, principalKey)
		return errors.Join(err, s.repo.Delete(r.Context(), id))
	}
	return nil
}

// Save writes the session cookie.
func (s *Store) Save(w http.ResponseWriter, r *http.Request) error {
	s.ID(r)
	return s.Session(r).Save(r, w)
}

// Invalidate deletes the authentication, clears the session and expires
// its cookie.
func (s *Store) Invalidate(w http.ResponseWriter, r *http.Request) error {
	sess := s.Session(r)
	var deleteErr error
	if id, ok := sess.Values[idKey].(string); ok && id != "" {
		deleteErr = s.repo.Delete(r.Context(), id)
	}
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	opts := s.options
	if sess.Options != nil {
		opts = *sess.Options
	}
	opts.MaxAge = -1
	sess.Options = &opts
	return errors.Join(deleteErr, sess.Save(r, w))
}

// Values gives access to the raw session values, e.g. for captcha answers.
func (s *Store) Values(r *http.Request) map[interface{}]interface{} {
	return s.Session(r).Values
}

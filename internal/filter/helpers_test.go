package filter

import (
	"net/http"
	"net/http/httptest"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/session"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestStore() *session.Store {
	return session.NewStore(config.CreateConfig().SessionMgt, testKey, nil)
}

// recordingHandler remembers whether it was called and with which
// authentication.
type recordingHandler struct {
	called bool
	auth   *authn.Authentication
	req    *http.Request
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.auth = authn.FromContext(r.Context())
	h.req = r
	w.WriteHeader(http.StatusOK)
}

// withCookies copies the cookies of a response into req.
func withCookies(req *http.Request, rec *httptest.ResponseRecorder) *http.Request {
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type recordingRememberMe struct {
	auth      *authn.Authentication
	err       error
	requested bool
	successes int
	fails     int
	logouts   []*authn.Authentication
}

func (s *recordingRememberMe) AutoLogin(http.ResponseWriter, *http.Request) (*authn.Authentication, error) {
	return s.auth, s.err
}

func (s *recordingRememberMe) LoginSuccess(_ http.ResponseWriter, _ *http.Request, _ *authn.Authentication, requested bool) {
	s.successes++
	s.requested = requested
}

func (s *recordingRememberMe) LoginFail(http.ResponseWriter, *http.Request) {
	s.fails++
}

func (s *recordingRememberMe) Logout(_ http.ResponseWriter, _ *http.Request, auth *authn.Authentication) {
	s.logouts = append(s.logouts, auth)
}

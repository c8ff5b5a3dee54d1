package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/logging"
	"go.uber.org/zap"
)

// UnauthorizedEntryPoint answers 401 with a plain text body and, when
// enabled, a Basic WWW-Authenticate challenge. Requests using the wrong
// method get 405 instead.
type UnauthorizedEntryPoint struct {
	WWWAuthenticateHeader bool
	Realm                 string
	Logger                *zap.Logger
}

func (e *UnauthorizedEntryPoint) Commence(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = authn.ErrInsufficientAuthentication
	}
	logging.OrNop(e.Logger).Debug("authentication required", zap.String("path", r.URL.Path), zap.Error(err))
	if errors.Is(err, authn.ErrMethodNotSupported) {
		w.Header().Set("Allow", http.MethodPost)
		writePlain(w, http.StatusMethodNotAllowed, err)
		return
	}
	RequireAuth(w, e.WWWAuthenticateHeader, e.Realm, err)
}

// RequireAuth writes the 401 challenge.
func RequireAuth(w http.ResponseWriter, wwwAuthenticate bool, realm string, err error) {
	if wwwAuthenticate {
		wwwHeaderContent := "Basic"
		if realm != "" {
			wwwHeaderContent = fmt.Sprintf("Basic realm=\"%s\"", realm)
		}
		w.Header().Set("WWW-Authenticate", wwwHeaderContent)
	}

	writePlain(w, http.StatusUnauthorized, err)
}

func writePlain(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)

	errMsg := strings.Trim(err.Error(), "\x00")
	_, _ = w.Write([]byte(fmt.Sprintf("%d %s\nError: %s\n", status, http.StatusText(status), errMsg)))
}

// LoginPageEntryPoint redirects to a login page, keeping the original
// location in the "continue" query parameter.
type LoginPageEntryPoint struct {
	LoginPageURL string
}

func (e *LoginPageEntryPoint) Commence(w http.ResponseWriter, r *http.Request, _ error) {
	location, err := url.Parse(e.LoginPageURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	q := location.Query()
	q.Set("continue", r.URL.RequestURI())
	location.RawQuery = q.Encode()
	http.Redirect(w, r, location.String(), http.StatusFound)
}

// Supports matches browser navigation only; API clients get the 401.
func (e *LoginPageEntryPoint) Supports(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

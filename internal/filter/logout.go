package filter

import (
	"net/http"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/rememberme"
	"github.com/pp23/ldapsecurity/internal/session"
	"go.uber.org/zap"
)

// LogoutFilter ends the session and remember-me login on the logout URL and
// answers 204.
type LogoutFilter struct {
	logoutURL  string
	postOnly   bool
	store      *session.Store
	registry   session.Registry
	rememberMe rememberme.Service
	logger     *zap.Logger
}

// NewLogoutFilter accepts a nil store and registry.
func NewLogoutFilter(logoutURL string, store *session.Store, registry session.Registry, rememberMe rememberme.Service, logger *zap.Logger) *LogoutFilter {
	if rememberMe == nil {
		rememberMe = rememberme.NullService{}
	}
	return &LogoutFilter{
		logoutURL:  logoutURL,
		store:      store,
		registry:   registry,
		rememberMe: rememberMe,
		logger:     logging.OrNop(logger),
	}
}

// SetPostOnly answers other methods on the logout URL with 405. Safe methods
// skip the CSRF check, so it is set whenever CSRF protection is on.
func (f *LogoutFilter) SetPostOnly(postOnly bool) {
	f.postOnly = postOnly
}

func (f *LogoutFilter) Name() string {
	return "LogoutFilter"
}

func (f *LogoutFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if f.logoutURL == "" || r.URL.Path != f.logoutURL {
		next.ServeHTTP(w, r)
		return
	}
	if f.postOnly && r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	var auth *authn.Authentication
	if f.store != nil {
		var err error
		if auth, err = f.store.Authentication(r); err != nil {
			f.logger.Error("loading session failed", zap.Error(err))
		}
		if f.registry != nil && f.store.Exists(r) {
			if err := f.registry.Remove(r.Context(), f.store.ID(r)); err != nil {
				f.logger.Error("removing session failed", zap.Error(err))
			}
		}
		if err := f.store.Invalidate(w, r); err != nil {
			f.logger.Error("invalidating session failed", zap.Error(err))
		}
	}
	if auth == nil {
		auth = authn.FromContext(r.Context())
	}
	f.rememberMe.Logout(w, r, auth)
	if auth != nil {
		f.logger.Debug("logged out", zap.String("principal", auth.Principal))
	}
	w.WriteHeader(http.StatusNoContent)
}

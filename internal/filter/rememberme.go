package filter

import (
	"net/http"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/rememberme"
	"github.com/pp23/ldapsecurity/internal/session"
	"go.uber.org/zap"
)

// RememberMeFilter logs in requests that carry no authentication but a
// valid remember-me cookie. Failed auto logins continue unauthenticated.
type RememberMeFilter struct {
	service rememberme.Service
	// store is nil when the chain does not keep sessions
	store  *session.Store
	logger *zap.Logger
}

func NewRememberMeFilter(service rememberme.Service, store *session.Store, logger *zap.Logger) *RememberMeFilter {
	return &RememberMeFilter{service: service, store: store, logger: logging.OrNop(logger)}
}

func (f *RememberMeFilter) Name() string {
	return "RememberMeAuthenticationFilter"
}

func (f *RememberMeFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if authn.FromContext(r.Context()) != nil {
		next.ServeHTTP(w, r)
		return
	}
	auth, err := f.service.AutoLogin(w, r)
	if err != nil {
		f.logger.Info("remember-me login rejected", zap.Error(err))
		next.ServeHTTP(w, r)
		return
	}
	if auth == nil {
		next.ServeHTTP(w, r)
		return
	}
	if f.store != nil {
		if err := f.store.SaveAuthentication(w, r, auth); err != nil {
			f.logger.Error("saving session failed", zap.String("principal", auth.Principal), zap.Error(err))
		}
	}
	next.ServeHTTP(w, r.WithContext(authn.WithAuthentication(r.Context(), auth)))
}

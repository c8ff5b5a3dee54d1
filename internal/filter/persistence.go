package filter

import (
	"net/http"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/session"
	"go.uber.org/zap"
)

// SessionPersistenceFilter restores the authentication kept in the session
// into the request context. Sessions expired by the registry are
// invalidated.
type SessionPersistenceFilter struct {
	store    *session.Store
	registry session.Registry
	policy   string
	logger   *zap.Logger
}

// NewSessionPersistenceFilter accepts a nil registry.
func NewSessionPersistenceFilter(store *session.Store, registry session.Registry, policy string, logger *zap.Logger) *SessionPersistenceFilter {
	return &SessionPersistenceFilter{store: store, registry: registry, policy: policy, logger: logging.OrNop(logger)}
}

func (f *SessionPersistenceFilter) Name() string {
	return "SecurityContextPersistenceFilter"
}

func (f *SessionPersistenceFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if f.store == nil || f.policy == config.SessionStateless {
		next.ServeHTTP(w, r)
		return
	}

	auth, err := f.store.Authentication(r)
	if err != nil {
		f.logger.Error("loading session failed", zap.Error(err))
	}
	if auth != nil {
		if f.expired(r) {
			f.logger.Debug("session expired", zap.String("principal", auth.Principal))
			if err := f.store.Invalidate(w, r); err != nil {
				f.logger.Error("invalidating session failed", zap.Error(err))
			}
		} else {
			r = r.WithContext(authn.WithAuthentication(r.Context(), auth))
		}
	} else if f.policy == config.SessionAlways && !f.store.Exists(r) {
		if err := f.store.Save(w, r); err != nil {
			f.logger.Error("creating session failed", zap.Error(err))
		}
	}
	next.ServeHTTP(w, r)
}

func (f *SessionPersistenceFilter) expired(r *http.Request) bool {
	if f.registry == nil {
		return false
	}
	ctx := r.Context()
	id := f.store.ID(r)
	info, err := f.registry.Info(ctx, id)
	if err != nil {
		f.logger.Error("session registry lookup failed", zap.String("session", id), zap.Error(err))
		return false
	}
	if info == nil {
		return false
	}
	if info.Expired {
		if err := f.registry.Remove(ctx, id); err != nil {
			f.logger.Error("removing session failed", zap.String("session", id), zap.Error(err))
		}
		return true
	}
	if err := f.registry.Refresh(ctx, id); err != nil {
		f.logger.Error("refreshing session failed", zap.String("session", id), zap.Error(err))
	}
	return false
}

package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/logging"
	"go.uber.org/zap"
)

// Strategy runs when a login succeeded, before the session is saved. An
// error rejects the login.
type Strategy interface {
	OnAuthentication(w http.ResponseWriter, r *http.Request, auth *authn.Authentication) error
}

// NullStrategy does nothing.
type NullStrategy struct{}

func (NullStrategy) OnAuthentication(http.ResponseWriter, *http.Request, *authn.Authentication) error {
	return nil
}

// CompositeStrategy runs its strategies in order and stops at the first error.
type CompositeStrategy []Strategy

func (c CompositeStrategy) OnAuthentication(w http.ResponseWriter, r *http.Request, auth *authn.Authentication) error {
	for _, s := range c {
		if err := s.OnAuthentication(w, r, auth); err != nil {
			return err
		}
	}
	return nil
}

// FixationProtection gives the session a fresh id on login. Registered
// sessions are moved to the new id.
type FixationProtection struct {
	Store    *Store
	Registry Registry
	Logger   *zap.Logger
}

func (f *FixationProtection) OnAuthentication(_ http.ResponseWriter, r *http.Request, auth *authn.Authentication) error {
	old, _, err := f.Store.Renew(r)
	if err != nil {
		return err
	}
	logging.OrNop(f.Logger).Debug("session id renewed", zap.String("principal", auth.Principal))
	if f.Registry != nil && old != "" {
		if err := f.Registry.Remove(r.Context(), old); err != nil {
			return fmt.Errorf("remove session %s: %w", old, err)
		}
	}
	return nil
}

// ConcurrentSessionControl limits the sessions of a principal. When the
// limit is reached the least recently used session expires, or the login is
// rejected when PreventsLogin is set.
type ConcurrentSessionControl struct {
	Registry        Registry
	MaximumSessions int
	PreventsLogin   bool
	Logger          *zap.Logger
}

func (c *ConcurrentSessionControl) OnAuthentication(_ http.ResponseWriter, r *http.Request, auth *authn.Authentication) error {
	if c.MaximumSessions <= 0 {
		return nil
	}
	ctx := r.Context()
	infos, err := c.Registry.Sessions(ctx, auth.Principal)
	if err != nil {
		return err
	}
	if len(infos) < c.MaximumSessions {
		return nil
	}
	if c.PreventsLogin {
		return fmt.Errorf("%w: %d of %d for %s", authn.ErrSessionLimitExceeded, len(infos), c.MaximumSessions, auth.Principal)
	}
	return c.expireOldest(ctx, infos, len(infos)-c.MaximumSessions+1)
}

func (c *ConcurrentSessionControl) expireOldest(ctx context.Context, infos []Info, n int) error {
	for _, info := range infos[:n] {
		logging.OrNop(c.Logger).Info("expiring session", zap.String("principal", info.Principal), zap.String("session", info.ID))
		if err := c.Registry.Expire(ctx, info.ID); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSession records the session of the new login in the registry.
type RegisterSession struct {
	Store    *Store
	Registry Registry
}

func (s *RegisterSession) OnAuthentication(_ http.ResponseWriter, r *http.Request, auth *authn.Authentication) error {
	return s.Registry.Register(r.Context(), s.Store.ID(r), auth.Principal)
}

// NewStrategy composes the strategies the properties ask for: concurrent
// session control, fixation protection and registration, in that order.
// registry may be nil when no session limit is configured.
func NewStrategy(props *config.SessionMgtProperties, store *Store, registry Registry, logger *zap.Logger) Strategy {
	var strategies CompositeStrategy
	if registry != nil && props.MaximumSessions > 0 {
		strategies = append(strategies, &ConcurrentSessionControl{
			Registry:        registry,
			MaximumSessions: props.MaximumSessions,
			PreventsLogin:   props.MaxSessionsPreventsLogin,
			Logger:          logger,
		})
	}
	if props.FixationProtection {
		strategies = append(strategies, &FixationProtection{Store: store, Registry: registry, Logger: logger})
	}
	if registry != nil {
		strategies = append(strategies, &RegisterSession{Store: store, Registry: registry})
	}
	switch len(strategies) {
	case 0:
		return NullStrategy{}
	case 1:
		return strategies[0]
	default:
		return strategies
	}
}

// Package ldapsecurity assembles LDAP authentication into ordered HTTP
// security filter chains.
package ldapsecurity

import (
	"context"
	"errors"
	"net/http"

	"github.com/pp23/ldapsecurity/internal/chain"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/logging"
	"go.uber.org/zap"
)

// ErrNoAuthenticationManager is returned when the form login chain has
// neither a manager nor a provider to authenticate with.
var ErrNoAuthenticationManager = errors.New("no authentication manager configured")

// Config the middleware configuration.
type Config = config.Properties

// CreateConfig creates the default configuration. The middleware stays
// disabled until Enabled is set.
func CreateConfig() *Config {
	return config.CreateConfig()
}

// Assemble builds the chain registry for cfg. A disabled configuration
// yields an empty registry and creates no collaborators.
func Assemble(ctx context.Context, cfg *Config, collab *Collaborators) (*chain.Registry, error) {
	if collab == nil {
		collab = &Collaborators{}
	}
	if cfg == nil || !cfg.Enabled {
		return chain.NewRegistry(collab.Logger), nil
	}

	res, err := resolve(ctx, cfg, collab)
	if err != nil {
		return nil, err
	}
	registry, err := register(cfg, res, collab)
	if err != nil {
		res.close()
		return nil, err
	}
	return registry, nil
}

func register(cfg *Config, res *resolved, collab *Collaborators) (*chain.Registry, error) {
	registry := chain.NewRegistry(res.logger)
	variants := []Variant{FormLogin(cfg)}
	if cfg.Jwt != nil && cfg.Jwt.Enabled {
		variants = append(variants, JWTFronted(cfg))
	}
	for _, v := range variants {
		c, err := assembleChain(cfg, v, res, collab)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(c); err != nil {
			return nil, err
		}
		if v.IgnoreLoginURLs {
			if err := registry.Ignore(v.Authc.LoginURLPatterns...); err != nil {
				return nil, err
			}
		}
		res.logger.Info("security chain assembled",
			zap.String("chain", v.Name), zap.Int("order", v.Order), zap.String("path-pattern", v.Authc.PathPattern))
	}
	return registry, nil
}

// New creates the middleware in front of next. When the configuration is
// disabled next is returned unchanged. collab is not modified.
func New(ctx context.Context, next http.Handler, cfg *Config, name string, collab *Collaborators) (http.Handler, error) {
	if cfg == nil || !cfg.Enabled {
		return next, nil
	}
	var own Collaborators
	if collab != nil {
		own = *collab
	}
	collab = &own
	if collab.Logger == nil {
		logger, err := logging.New(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		collab.Logger = logger.Named(name)
	}
	collab.Logger.Info("Starting middleware...", zap.String("name", name))
	logging.LogConfigParams(collab.Logger, cfg)

	registry, err := Assemble(ctx, cfg, collab)
	if err != nil {
		return nil, err
	}
	return registry.Middleware(next), nil
}

package ldapsecurity

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/captcha"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/filter"
	"github.com/pp23/ldapsecurity/internal/handler"
	"github.com/pp23/ldapsecurity/internal/ldapIdp"
	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/provider"
	"github.com/pp23/ldapsecurity/internal/rememberme"
	"github.com/pp23/ldapsecurity/internal/session"
	"github.com/pp23/ldapsecurity/internal/token"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Collaborators are the optional components of the chains. A nil field or
// an empty slice is absent and replaced by a default built from the
// configuration.
type Collaborators struct {
	Logger          *zap.Logger
	LocaleFilter    filter.Filter
	Providers       []authn.Provider
	Listeners       []authn.Listener
	EntryPoints     []handler.MatchedEntryPoint
	SuccessHandlers []handler.MatchedSuccessHandler
	FailureHandlers []handler.MatchedFailureHandler
	Serializer      handler.Serializer
	RememberMe      rememberme.Service
	SessionStrategy session.Strategy
	CaptchaResolver captcha.Resolver
	Manager         authn.Manager
	SessionRegistry session.Registry
	SessionStore    *session.Store
}

// resolved holds the collaborators shared by all chains.
type resolved struct {
	logger       *zap.Logger
	serializer   handler.Serializer
	store        *session.Store
	registry     session.Registry
	strategy     session.Strategy
	rememberMe   rememberme.Service
	captcha      captcha.Resolver
	localeFilter filter.Filter
	ldap         *ldapIdp.Provider
	tokens       *token.Service
	// csrfKey is the session key, nil when the store came from the caller
	csrfKey []byte
	// closers release the clients created here when assembly fails
	closers []io.Closer
}

func (r *resolved) close() {
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			r.logger.Warn("closing client failed", zap.Error(err))
		}
	}
	r.closers = nil
}

func resolve(ctx context.Context, cfg *Config, collab *Collaborators) (_ *resolved, err error) {
	res := &resolved{
		logger:       logging.OrNop(collab.Logger),
		serializer:   collab.Serializer,
		store:        collab.SessionStore,
		registry:     collab.SessionRegistry,
		strategy:     collab.SessionStrategy,
		rememberMe:   collab.RememberMe,
		localeFilter: collab.LocaleFilter,
	}
	if res.serializer == nil {
		res.serializer = handler.JSONSerializer{}
	}
	if res.localeFilter == nil {
		res.localeFilter = filter.NewLocaleContextFilter()
	}
	defer func() {
		if err != nil {
			res.close()
		}
	}()

	sessionMgt := cfg.SessionMgt
	if sessionMgt == nil {
		sessionMgt = config.CreateConfig().SessionMgt
	}
	ttl := time.Duration(sessionMgt.MaxAge) * time.Second
	var client *redis.Client
	if sessionMgt.Redis != nil && sessionMgt.Redis.Addr != "" && (res.store == nil || res.registry == nil) {
		client, err = newRedisClient(ctx, sessionMgt.Redis)
		if err != nil {
			return nil, err
		}
		res.closers = append(res.closers, client)
	}
	if res.store == nil {
		key, err := provider.Secret(sessionMgt.Key, sessionMgt.KeyFrom)
		if err != nil {
			return nil, fmt.Errorf("session key: %w", err)
		}
		var repo session.Repository
		if client != nil {
			repo = session.NewRedisRepository(client, sessionMgt.Redis.KeyPrefix, ttl)
		}
		res.store = session.NewStore(sessionMgt, key, repo)
		res.csrfKey = key
	}
	if res.registry == nil {
		switch {
		case client != nil:
			res.registry = session.NewRedisRegistry(client, sessionMgt.Redis.KeyPrefix, ttl)
		case sessionMgt.MaximumSessions > 0:
			res.registry = session.NewMemoryRegistry()
		}
	}
	if res.strategy == nil {
		res.strategy = session.NewStrategy(sessionMgt, res.store, res.registry, res.logger)
	}

	if res.rememberMe == nil && cfg.RememberMe != nil && cfg.RememberMe.Enabled {
		res.rememberMe = rememberme.NewTokenService(cfg.RememberMe, newTokenRepository(cfg.RememberMe), sessionMgt.CookieSecure, res.logger)
	}

	if cfg.Captcha != nil && cfg.Captcha.Enabled {
		res.captcha = collab.CaptchaResolver
		if res.captcha == nil {
			res.captcha = &captcha.SessionResolver{Store: res.store, Attribute: cfg.Captcha.SessionAttribute}
		}
	}

	if cfg.Ldap != nil && cfg.Ldap.URL != "" {
		p, err := ldapIdp.NewProvider(cfg.Ldap, res.logger)
		if err != nil {
			return nil, err
		}
		res.ldap = p
	}

	if cfg.Jwt != nil && cfg.Jwt.Enabled {
		secret, err := provider.Secret(cfg.Jwt.Secret, cfg.Jwt.SecretFrom)
		if err != nil {
			return nil, fmt.Errorf("jwt secret: %w", err)
		}
		tokens, err := token.NewService(secret, cfg.Jwt.Issuer, cfg.Jwt.TTL)
		if err != nil {
			return nil, err
		}
		res.tokens = tokens
	}
	return res, nil
}

// newRedisClient connects to the Redis instance shared by the session
// repository and registry.
func newRedisClient(ctx context.Context, props *config.RedisProperties) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     props.Addr,
		Password: props.Password,
		DB:       props.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session redis %s: %w", props.Addr, err)
	}
	return client, nil
}

func newTokenRepository(props *config.RememberMeProperties) rememberme.TokenRepository {
	if props.Memcache != nil && len(props.Memcache.Hosts) > 0 {
		return rememberme.NewMemcacheRepository(memcache.New(props.Memcache.Hosts...), props.Validity)
	}
	return rememberme.NewMemoryRepository()
}

// setIfPresent applies value unless it is absent. Absent values never
// replace a default.
func setIfPresent[T any](value T, set func(T)) {
	if isAbsent(value) {
		return
	}
	set(value)
}

// setIfConfigured applies an optional boolean.
func setIfConfigured(value *bool, set func(bool)) {
	if value != nil {
		set(*value)
	}
}

func isAbsent(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	case reflect.String:
		return v.Len() == 0
	}
	return false
}

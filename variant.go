package ldapsecurity

import (
	"fmt"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/chain"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/filter"
	"github.com/pp23/ldapsecurity/internal/handler"
	"github.com/pp23/ldapsecurity/internal/session"
)

// Variant describes which steps the assembly of one chain includes.
type Variant struct {
	Name  string
	Order int
	Authc *config.AuthcProperties
	// LocaleFilter adds the locale filter before the username/password
	// position.
	LocaleFilter bool
	// RegisterProvider registers the LDAP provider with the manager builder
	// ahead of the configured manager.
	RegisterProvider bool
	// IgnoreLoginURLs makes Authc.LoginURLPatterns bypass every chain.
	IgnoreLoginURLs bool
	// StatelessJWT answers logins with a signed token and authenticates
	// bearer tokens instead of sessions.
	StatelessJWT bool
}

// FormLogin is the session based form login chain.
func FormLogin(cfg *Config) Variant {
	return Variant{
		Name:         "ldap",
		Order:        chain.DefaultFilterOrder + 5,
		Authc:        cfg.Authc,
		LocaleFilter: true,
	}
}

// JWTFronted is the chain authenticating against LDAP and answering with
// JWTs.
func JWTFronted(cfg *Config) Variant {
	return Variant{
		Name:             "ldap-jwt",
		Order:            chain.DefaultFilterOrder + 6,
		Authc:            cfg.Jwt.Authc,
		RegisterProvider: true,
		IgnoreLoginURLs:  true,
		StatelessJWT:     true,
	}
}

func (v Variant) manager(res *resolved, collab *Collaborators) (authn.Manager, error) {
	if v.RegisterProvider {
		builder := authn.NewManagerBuilder()
		if res.ldap != nil {
			builder.AuthenticationProvider(res.ldap)
		}
		for _, p := range collab.Providers {
			builder.AuthenticationProvider(p)
		}
		if collab.Manager != nil {
			builder.Parent(collab.Manager)
		}
		if !builder.IsConfigured() {
			return nil, fmt.Errorf("chain %s: %w", v.Name, ErrNoAuthenticationManager)
		}
		return builder.Build(), nil
	}

	if collab.Manager != nil {
		return collab.Manager, nil
	}
	builder := authn.NewManagerBuilder(collab.Providers...)
	if res.ldap != nil {
		builder.AuthenticationProvider(res.ldap)
	}
	if !builder.IsConfigured() {
		return nil, fmt.Errorf("chain %s: %w", v.Name, ErrNoAuthenticationManager)
	}
	return builder.Build(), nil
}

func assembleChain(cfg *Config, v Variant, res *resolved, collab *Collaborators) (*chain.Chain, error) {
	authc := v.Authc
	if authc == nil {
		return nil, fmt.Errorf("chain %s: authc properties are required", v.Name)
	}
	manager, err := v.manager(res, collab)
	if err != nil {
		return nil, err
	}
	logger := res.logger.Named(v.Name)

	entryPoint := handler.EntryPointFor(collab.EntryPoints, handler.DefaultEntryPoint(authc, logger))
	var defaultSuccess handler.SuccessHandler
	if v.StatelessJWT {
		defaultSuccess = &handler.TokenSuccessHandler{Issuer: res.tokens, Serializer: res.serializer, Logger: logger}
	} else {
		defaultSuccess = handler.DefaultSuccessHandler(authc, res.serializer, logger)
	}
	successHandler := handler.SuccessHandlerFor(collab.SuccessHandlers, collab.Listeners, defaultSuccess)
	failureHandler := handler.FailureHandlerFor(collab.FailureHandlers, collab.Listeners,
		handler.DefaultFailureHandler(authc, res.serializer, logger))

	policy := config.SessionIfRequired
	var allowSessionCreation *bool
	if cfg.SessionMgt != nil {
		if cfg.SessionMgt.CreationPolicy != "" {
			policy = cfg.SessionMgt.CreationPolicy
		}
		allowSessionCreation = cfg.SessionMgt.AllowSessionCreation
	}
	if v.StatelessJWT {
		policy = config.SessionStateless
	}
	var store *session.Store
	var strategy session.Strategy
	if policy != config.SessionStateless {
		store = res.store
		strategy = res.strategy
	}

	ldapFilter := filter.NewLdapAuthenticationFilter(res.serializer, authc)
	ldapFilter.SetChainName(v.Name)
	ldapFilter.SetLogger(logger)
	ldapFilter.SetSessionCreationPolicy(policy)
	setIfConfigured(authc.PostOnly, ldapFilter.SetPostOnly)
	setIfConfigured(allowSessionCreation, ldapFilter.SetAllowSessionCreation)
	setIfPresent(manager, ldapFilter.SetAuthenticationManager)
	setIfPresent(entryPoint, ldapFilter.SetEntryPoint)
	setIfPresent(successHandler, ldapFilter.SetSuccessHandler)
	setIfPresent(failureHandler, ldapFilter.SetFailureHandler)
	setIfPresent(res.rememberMe, ldapFilter.SetRememberMeServices)
	setIfPresent(strategy, ldapFilter.SetSessionStrategy)
	setIfPresent(res.captcha, ldapFilter.SetCaptchaResolver)
	setIfPresent(store, ldapFilter.SetSessionStore)

	secure := cfg.SessionMgt != nil && cfg.SessionMgt.CookieSecure
	h := chain.NewHTTPSecurity(v.Name, logger).
		AntMatcher(authc.PathPattern).
		ExceptionHandling(entryPoint)
	if authc.HTTPBasic {
		h.HTTPBasic(manager)
	} else {
		h.DisableHTTPBasic()
	}
	if v.LocaleFilter {
		h.AddFilterBefore(res.localeFilter, chain.PositionUsernamePassword)
	}
	h.AddFilterBefore(ldapFilter, chain.PositionPostRequestAuthentication).
		Cors(authc.Cors).
		Csrf(authc.Csrf, res.csrfKey, secure).
		Headers(authc.Headers)

	if store != nil {
		h.AddFilterAt(filter.NewSessionPersistenceFilter(store, res.registry, policy, logger), chain.PositionSecurityContext)
	}
	logout := filter.NewLogoutFilter(authc.LogoutURL, store, res.registry, res.rememberMe, logger)
	logout.SetPostOnly(authc.Csrf != nil && authc.Csrf.Enabled)
	h.AddFilterAt(logout, chain.PositionLogout)
	if v.StatelessJWT {
		h.AddFilterAt(filter.NewBearerTokenFilter(res.tokens, entryPoint), chain.PositionBearerToken)
	}
	if res.rememberMe != nil {
		h.AddFilterAt(filter.NewRememberMeFilter(res.rememberMe, store, logger), chain.PositionRememberMe)
	}
	h.AddFilterAt(filter.NewAuthorizationFilter(cfg.Forward, authc.RequiredAuthorities, entryPoint), chain.PositionAuthorization)
	return h.Build(v.Order)
}

// Package config holds the properties that drive the security filter
// chains. Properties are loaded once at startup and read-only afterwards.
package config

import (
	"path"
	"time"

	"github.com/pp23/ldapsecurity/internal/ldapIdp"
	"github.com/pp23/ldapsecurity/internal/provider"
)

// Session creation policies.
const (
	SessionAlways     = "always"
	SessionIfRequired = "if_required"
	SessionNever      = "never"
	SessionStateless  = "stateless"
)

// Properties is the security.ldap namespace.
type Properties struct {
	Enabled    bool                  `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	LogLevel   string                `json:"log-level,omitempty" yaml:"log-level,omitempty" mapstructure:"log-level"`
	Ldap       *ldapIdp.Config       `json:"ldap,omitempty" yaml:"ldap,omitempty" mapstructure:"ldap"`
	Authc      *AuthcProperties      `json:"authc,omitempty" yaml:"authc,omitempty" mapstructure:"authc"`
	Jwt        *JwtProperties        `json:"jwt,omitempty" yaml:"jwt,omitempty" mapstructure:"jwt"`
	SessionMgt *SessionMgtProperties `json:"session-mgt,omitempty" yaml:"session-mgt,omitempty" mapstructure:"session-mgt"`
	RememberMe *RememberMeProperties `json:"remember-me,omitempty" yaml:"remember-me,omitempty" mapstructure:"remember-me"`
	Captcha    *CaptchaProperties    `json:"captcha,omitempty" yaml:"captcha,omitempty" mapstructure:"captcha"`
	Forward    *ForwardProperties    `json:"forward,omitempty" yaml:"forward,omitempty" mapstructure:"forward"`
}

// AuthcProperties configure one authentication surface.
type AuthcProperties struct {
	// PathPattern selects the requests handled by the chain (ant style).
	PathPattern string `json:"path-pattern,omitempty" yaml:"path-pattern,omitempty" mapstructure:"path-pattern"`
	// LoginURL is the path the authentication filter processes.
	LoginURL string `json:"login-url,omitempty" yaml:"login-url,omitempty" mapstructure:"login-url"`
	// LogoutURL ends the session and the remember-me login. It only accepts
	// POST while CSRF protection is enabled.
	LogoutURL string `json:"logout-url,omitempty" yaml:"logout-url,omitempty" mapstructure:"logout-url"`
	// LoginURLPatterns bypass every chain. Only the JWT-fronted chain uses them.
	LoginURLPatterns []string `json:"login-url-patterns,omitempty" yaml:"login-url-patterns,omitempty" mapstructure:"login-url-patterns"`
	// HTTPBasic accepts Basic credentials on every request of the chain.
	HTTPBasic bool `json:"http-basic,omitempty" yaml:"http-basic,omitempty" mapstructure:"http-basic"`
	// RequiredAuthorities restricts the chain to authentications holding
	// at least one of them. Empty admits every authentication.
	RequiredAuthorities   []string           `json:"required-authorities,omitempty" yaml:"required-authorities,omitempty" mapstructure:"required-authorities"`
	PostOnly              *bool              `json:"post-only,omitempty" yaml:"post-only,omitempty" mapstructure:"post-only"`
	UsernameParameter     string             `json:"username-parameter,omitempty" yaml:"username-parameter,omitempty" mapstructure:"username-parameter"`
	PasswordParameter     string             `json:"password-parameter,omitempty" yaml:"password-parameter,omitempty" mapstructure:"password-parameter"`
	CaptchaParameter      string             `json:"captcha-parameter,omitempty" yaml:"captcha-parameter,omitempty" mapstructure:"captcha-parameter"`
	SuccessURL            string             `json:"success-url,omitempty" yaml:"success-url,omitempty" mapstructure:"success-url"`
	FailureURL            string             `json:"failure-url,omitempty" yaml:"failure-url,omitempty" mapstructure:"failure-url"`
	LoginPageURL          string             `json:"login-page-url,omitempty" yaml:"login-page-url,omitempty" mapstructure:"login-page-url"`
	WWWAuthenticateHeader bool               `json:"www-authenticate-header,omitempty" yaml:"www-authenticate-header,omitempty" mapstructure:"www-authenticate-header"`
	Realm                 string             `json:"realm,omitempty" yaml:"realm,omitempty" mapstructure:"realm"`
	Cors                  *CorsProperties    `json:"cors,omitempty" yaml:"cors,omitempty" mapstructure:"cors"`
	Csrf                  *CsrfProperties    `json:"csrf,omitempty" yaml:"csrf,omitempty" mapstructure:"csrf"`
	Headers               *HeadersProperties `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`
}

type CorsProperties struct {
	Enabled          bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	AllowedOrigins   []string `json:"allowed-origins,omitempty" yaml:"allowed-origins,omitempty" mapstructure:"allowed-origins"`
	AllowedMethods   []string `json:"allowed-methods,omitempty" yaml:"allowed-methods,omitempty" mapstructure:"allowed-methods"`
	AllowedHeaders   []string `json:"allowed-headers,omitempty" yaml:"allowed-headers,omitempty" mapstructure:"allowed-headers"`
	ExposedHeaders   []string `json:"exposed-headers,omitempty" yaml:"exposed-headers,omitempty" mapstructure:"exposed-headers"`
	AllowCredentials bool     `json:"allow-credentials,omitempty" yaml:"allow-credentials,omitempty" mapstructure:"allow-credentials"`
	MaxAge           int      `json:"max-age,omitempty" yaml:"max-age,omitempty" mapstructure:"max-age"`
}

type CsrfProperties struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	CookieName string `json:"cookie-name,omitempty" yaml:"cookie-name,omitempty" mapstructure:"cookie-name"`
	HeaderName string `json:"header-name,omitempty" yaml:"header-name,omitempty" mapstructure:"header-name"`
	// ParameterName is checked when the header is missing.
	ParameterName   string   `json:"parameter-name,omitempty" yaml:"parameter-name,omitempty" mapstructure:"parameter-name"`
	IgnoredPatterns []string `json:"ignored-patterns,omitempty" yaml:"ignored-patterns,omitempty" mapstructure:"ignored-patterns"`
	// TrustedOrigins lists hosts, not URLs, allowed to send cross-origin writes.
	TrustedOrigins []string `json:"trusted-origins,omitempty" yaml:"trusted-origins,omitempty" mapstructure:"trusted-origins"`
}

type HeadersProperties struct {
	Enabled               bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	FrameOptions          string `json:"frame-options,omitempty" yaml:"frame-options,omitempty" mapstructure:"frame-options"`
	ContentTypeOptions    bool   `json:"content-type-options,omitempty" yaml:"content-type-options,omitempty" mapstructure:"content-type-options"`
	XSSProtection         bool   `json:"xss-protection,omitempty" yaml:"xss-protection,omitempty" mapstructure:"xss-protection"`
	CacheControl          bool   `json:"cache-control,omitempty" yaml:"cache-control,omitempty" mapstructure:"cache-control"`
	HSTSMaxAge            int    `json:"hsts-max-age,omitempty" yaml:"hsts-max-age,omitempty" mapstructure:"hsts-max-age"`
	ReferrerPolicy        string `json:"referrer-policy,omitempty" yaml:"referrer-policy,omitempty" mapstructure:"referrer-policy"`
	ContentSecurityPolicy string `json:"content-security-policy,omitempty" yaml:"content-security-policy,omitempty" mapstructure:"content-security-policy"`
}

// JwtProperties configure the JWT-fronted chain.
type JwtProperties struct {
	Enabled    bool                       `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Authc      *AuthcProperties           `json:"authc,omitempty" yaml:"authc,omitempty" mapstructure:"authc"`
	Secret     string                     `json:"secret,omitempty" yaml:"secret,omitempty" mapstructure:"secret"`
	SecretFrom *provider.ProviderSelector `json:"secret-from,omitempty" yaml:"secret-from,omitempty" mapstructure:"secret-from"`
	Issuer     string                     `json:"issuer,omitempty" yaml:"issuer,omitempty" mapstructure:"issuer"`
	TTL        time.Duration              `json:"ttl,omitempty" yaml:"ttl,omitempty" mapstructure:"ttl"`
}

type SessionMgtProperties struct {
	CreationPolicy       string `json:"creation-policy,omitempty" yaml:"creation-policy,omitempty" mapstructure:"creation-policy"`
	AllowSessionCreation *bool  `json:"allow-session-creation,omitempty" yaml:"allow-session-creation,omitempty" mapstructure:"allow-session-creation"`
	CookieName           string `json:"cookie-name,omitempty" yaml:"cookie-name,omitempty" mapstructure:"cookie-name"`
	CookiePath           string `json:"cookie-path,omitempty" yaml:"cookie-path,omitempty" mapstructure:"cookie-path"`
	CookieDomain         string `json:"cookie-domain,omitempty" yaml:"cookie-domain,omitempty" mapstructure:"cookie-domain"`
	CookieSecure         bool   `json:"cookie-secure,omitempty" yaml:"cookie-secure,omitempty" mapstructure:"cookie-secure"`
	SameSite             string `json:"same-site,omitempty" yaml:"same-site,omitempty" mapstructure:"same-site"`
	// MaxAge of the session cookie in seconds.
	MaxAge  int                        `json:"max-age,omitempty" yaml:"max-age,omitempty" mapstructure:"max-age"`
	Key     string                     `json:"key,omitempty" yaml:"key,omitempty" mapstructure:"key"`
	KeyFrom *provider.ProviderSelector `json:"key-from,omitempty" yaml:"key-from,omitempty" mapstructure:"key-from"`
	// FixationProtection issues a fresh session id on login.
	FixationProtection bool `json:"fixation-protection" yaml:"fixation-protection" mapstructure:"fixation-protection"`
	// MaximumSessions per principal, 0 is unlimited.
	MaximumSessions          int              `json:"maximum-sessions,omitempty" yaml:"maximum-sessions,omitempty" mapstructure:"maximum-sessions"`
	MaxSessionsPreventsLogin bool             `json:"max-sessions-prevents-login,omitempty" yaml:"max-sessions-prevents-login,omitempty" mapstructure:"max-sessions-prevents-login"`
	Redis                    *RedisProperties `json:"redis,omitempty" yaml:"redis,omitempty" mapstructure:"redis"`
}

// RedisProperties select the Redis session registry when Addr is set.
type RedisProperties struct {
	Addr      string `json:"addr,omitempty" yaml:"addr,omitempty" mapstructure:"addr"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty" mapstructure:"db"`
	KeyPrefix string `json:"key-prefix,omitempty" yaml:"key-prefix,omitempty" mapstructure:"key-prefix"`
}

type RememberMeProperties struct {
	Enabled        bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	CookieName     string        `json:"cookie-name,omitempty" yaml:"cookie-name,omitempty" mapstructure:"cookie-name"`
	Parameter      string        `json:"parameter,omitempty" yaml:"parameter,omitempty" mapstructure:"parameter"`
	Validity       time.Duration `json:"validity,omitempty" yaml:"validity,omitempty" mapstructure:"validity"`
	AlwaysRemember bool          `json:"always-remember,omitempty" yaml:"always-remember,omitempty" mapstructure:"always-remember"`
	// Memcache stores the persistent tokens in memcached instead of memory.
	Memcache *MemcacheProperties `json:"memcache,omitempty" yaml:"memcache,omitempty" mapstructure:"memcache"`
}

type MemcacheProperties struct {
	Hosts []string `json:"hosts,omitempty" yaml:"hosts,omitempty" mapstructure:"hosts"`
}

type CaptchaProperties struct {
	Enabled          bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	SessionAttribute string `json:"session-attribute,omitempty" yaml:"session-attribute,omitempty" mapstructure:"session-attribute"`
}

// ForwardProperties control what authenticated requests carry downstream.
type ForwardProperties struct {
	Username         bool   `json:"username" yaml:"username" mapstructure:"username"`
	UsernameHeader   string `json:"username-header,omitempty" yaml:"username-header,omitempty" mapstructure:"username-header"`
	ExtraLdapHeaders bool   `json:"extra-ldap-headers,omitempty" yaml:"extra-ldap-headers,omitempty" mapstructure:"extra-ldap-headers"`
	Authorization    bool   `json:"authorization,omitempty" yaml:"authorization,omitempty" mapstructure:"authorization"`
}

// CreateConfig creates the default properties. The feature is disabled until
// enabled is set.
func CreateConfig() *Properties {
	return &Properties{
		Enabled:  false,
		LogLevel: "INFO",
		Ldap:     ldapIdp.CreateConfig(),
		Authc:    CreateAuthc("/ldap/**", "/ldap/login"),
		Jwt: &JwtProperties{
			Enabled: false,
			Authc:   CreateAuthc("/api/**", "/api/login"),
			Issuer:  "ldapsecurity",
			TTL:     time.Hour,
		},
		SessionMgt: &SessionMgtProperties{
			CreationPolicy:     SessionIfRequired,
			CookieName:         "ldapAuth_session_token",
			CookiePath:         "/",
			SameSite:           "lax",
			MaxAge:             300, // In seconds, default to 5m
			FixationProtection: true,
		},
		RememberMe: &RememberMeProperties{
			Enabled:    false,
			CookieName: "remember-me",
			Parameter:  "remember-me",
			Validity:   14 * 24 * time.Hour,
		},
		Captcha: &CaptchaProperties{
			Enabled:          false,
			SessionAttribute: "captcha",
		},
		Forward: &ForwardProperties{
			Username:       true,
			UsernameHeader: "Username",
		},
	}
}

// CreateAuthc creates the defaults of one authentication surface.
func CreateAuthc(pathPattern, loginURL string) *AuthcProperties {
	return &AuthcProperties{
		PathPattern:           pathPattern,
		LoginURL:              loginURL,
		LogoutURL:             path.Join(path.Dir(loginURL), "logout"),
		UsernameParameter:     "username",
		PasswordParameter:     "password",
		CaptchaParameter:      "captcha",
		WWWAuthenticateHeader: true,
		Cors: &CorsProperties{
			Enabled:        false,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-XSRF-TOKEN"},
			MaxAge:         3600,
		},
		Csrf: &CsrfProperties{
			Enabled:       false,
			CookieName:    "XSRF-TOKEN",
			HeaderName:    "X-XSRF-TOKEN",
			ParameterName: "_csrf",
		},
		Headers: &HeadersProperties{
			Enabled:            true,
			FrameOptions:       "DENY",
			ContentTypeOptions: true,
			XSSProtection:      true,
			CacheControl:       true,
		},
	}
}

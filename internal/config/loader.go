package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Namespace is the key prefix of all properties. Environment variables use
// the upper-cased key with '.' and '-' replaced by '_', e.g.
// SECURITY_LDAP_LDAP_URL.
const Namespace = "security.ldap"

var ErrInvalidConfig = errors.New("invalid configuration")

type document struct {
	Security struct {
		Ldap *Properties `json:"ldap" yaml:"ldap" mapstructure:"ldap"`
	} `json:"security" yaml:"security" mapstructure:"security"`
}

// Load loads properties with priority order:
// 1. Environment variables
// 2. Configuration file (optional, yaml)
// 3. Default values
func Load(path string) (*Properties, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var doc document
	doc.Security.Ldap = CreateConfig()
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(doc.Security.Ldap); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return doc.Security.Ldap, nil
}

// setDefaults registers the defaults of the keys that are commonly set from
// the environment. Viper only resolves environment variables for known keys.
func setDefaults(v *viper.Viper) {
	d := CreateConfig()
	set := func(key string, value interface{}) {
		v.SetDefault(Namespace+"."+key, value)
	}

	set("enabled", d.Enabled)
	set("log-level", d.LogLevel)

	// Directory defaults
	set("ldap.url", d.Ldap.URL)
	set("ldap.port", d.Ldap.Port)
	set("ldap.timeout", d.Ldap.Timeout)
	set("ldap.start-tls", d.Ldap.StartTLS)
	set("ldap.attribute", d.Ldap.Attribute)
	set("ldap.search-filter", d.Ldap.SearchFilter)
	set("ldap.base-dn", d.Ldap.BaseDN)
	set("ldap.bind-dn", d.Ldap.BindDN)
	set("ldap.bind-password", d.Ldap.BindPassword)
	set("ldap.group-base-dn", d.Ldap.GroupBaseDN)

	// Form login defaults
	set("authc.path-pattern", d.Authc.PathPattern)
	set("authc.login-url", d.Authc.LoginURL)
	set("authc.logout-url", d.Authc.LogoutURL)
	set("authc.cors.enabled", d.Authc.Cors.Enabled)
	set("authc.csrf.enabled", d.Authc.Csrf.Enabled)
	set("authc.headers.enabled", d.Authc.Headers.Enabled)

	// JWT defaults
	set("jwt.enabled", d.Jwt.Enabled)
	set("jwt.authc.path-pattern", d.Jwt.Authc.PathPattern)
	set("jwt.authc.login-url", d.Jwt.Authc.LoginURL)
	set("jwt.authc.logout-url", d.Jwt.Authc.LogoutURL)
	set("jwt.secret", d.Jwt.Secret)
	set("jwt.issuer", d.Jwt.Issuer)
	set("jwt.ttl", d.Jwt.TTL)

	// Session defaults
	set("session-mgt.creation-policy", d.SessionMgt.CreationPolicy)
	set("session-mgt.key", d.SessionMgt.Key)
	set("session-mgt.max-age", d.SessionMgt.MaxAge)
	set("session-mgt.maximum-sessions", d.SessionMgt.MaximumSessions)

	set("remember-me.enabled", d.RememberMe.Enabled)
	set("remember-me.validity", d.RememberMe.Validity)
	set("captcha.enabled", d.Captcha.Enabled)

	// optional booleans have no default, nil means not configured
	_ = v.BindEnv(Namespace + ".authc.post-only")
	_ = v.BindEnv(Namespace + ".jwt.authc.post-only")
	_ = v.BindEnv(Namespace + ".session-mgt.allow-session-creation")
}

// FromYaml overlays a yaml document (rooted at security.ldap) onto cfg.
func (cfg *Properties) FromYaml(data []byte) (*Properties, error) {
	var doc document
	doc.Security.Ldap = cfg
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Security.Ldap, nil
}

// Validate reports configuration that cannot be assembled. Disabled
// properties are always valid.
func Validate(p *Properties) error {
	if p == nil || !p.Enabled {
		return nil
	}
	var errs []error
	if p.Ldap == nil || p.Ldap.URL == "" {
		errs = append(errs, errors.New("ldap.url is required"))
	}
	errs = append(errs, validateAuthc("authc", p.Authc)...)
	if p.Jwt != nil && p.Jwt.Enabled {
		errs = append(errs, validateAuthc("jwt.authc", p.Jwt.Authc)...)
		if p.Jwt.TTL <= 0 {
			errs = append(errs, errors.New("jwt.ttl must be positive"))
		}
		if p.Jwt.Secret == "" && p.Jwt.SecretFrom == nil {
			errs = append(errs, errors.New("jwt.secret or jwt.secret-from is required"))
		}
	}
	if p.SessionMgt != nil {
		switch p.SessionMgt.CreationPolicy {
		case "", SessionAlways, SessionIfRequired, SessionNever, SessionStateless:
		default:
			errs = append(errs, fmt.Errorf("session-mgt.creation-policy %q is unknown", p.SessionMgt.CreationPolicy))
		}
		if p.SessionMgt.MaximumSessions < 0 {
			errs = append(errs, errors.New("session-mgt.maximum-sessions must not be negative"))
		}
	}
	if p.RememberMe != nil && p.RememberMe.Enabled {
		if p.RememberMe.CookieName == "" {
			errs = append(errs, errors.New("remember-me.cookie-name is required"))
		}
		if p.RememberMe.Validity <= 0 {
			errs = append(errs, errors.New("remember-me.validity must be positive"))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func validateAuthc(prefix string, a *AuthcProperties) []error {
	if a == nil {
		return []error{fmt.Errorf("%s is required", prefix)}
	}
	var errs []error
	if a.PathPattern == "" {
		errs = append(errs, fmt.Errorf("%s.path-pattern is required", prefix))
	}
	if a.LoginURL == "" {
		errs = append(errs, fmt.Errorf("%s.login-url is required", prefix))
	}
	return errs
}

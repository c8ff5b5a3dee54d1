package ldapIdp

import (
	"time"

	"github.com/pp23/ldapsecurity/internal/provider"
)

// Config describes how to reach the directory and how users are located
// and authorized in it.
type Config struct {
	URL                     string                     `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	Port                    uint16                     `json:"port,omitempty" yaml:"port,omitempty" mapstructure:"port"`
	Timeout                 time.Duration              `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	StartTLS                bool                       `json:"start-tls,omitempty" yaml:"start-tls,omitempty" mapstructure:"start-tls"`
	InsecureSkipVerify      bool                       `json:"insecure-skip-verify,omitempty" yaml:"insecure-skip-verify,omitempty" mapstructure:"insecure-skip-verify"`
	MinVersionTLS           string                     `json:"min-version-tls,omitempty" yaml:"min-version-tls,omitempty" mapstructure:"min-version-tls"`
	MaxVersionTLS           string                     `json:"max-version-tls,omitempty" yaml:"max-version-tls,omitempty" mapstructure:"max-version-tls"`
	CertificateAuthority    string                     `json:"certificate-authority,omitempty" yaml:"certificate-authority,omitempty" mapstructure:"certificate-authority"`
	Attribute               string                     `json:"attribute,omitempty" yaml:"attribute,omitempty" mapstructure:"attribute"`
	SearchFilter            string                     `json:"search-filter,omitempty" yaml:"search-filter,omitempty" mapstructure:"search-filter"`
	BaseDN                  string                     `json:"base-dn,omitempty" yaml:"base-dn,omitempty" mapstructure:"base-dn"`
	BindDN                  string                     `json:"bind-dn,omitempty" yaml:"bind-dn,omitempty" mapstructure:"bind-dn"`
	BindPassword            string                     `json:"bind-password,omitempty" yaml:"bind-password,omitempty" mapstructure:"bind-password"`
	BindPasswordFrom        *provider.ProviderSelector `json:"bind-password-from,omitempty" yaml:"bind-password-from,omitempty" mapstructure:"bind-password-from"`
	GroupBaseDN             string                     `json:"group-base-dn,omitempty" yaml:"group-base-dn,omitempty" mapstructure:"group-base-dn"`
	GroupNameAttribute      string                     `json:"group-name-attribute,omitempty" yaml:"group-name-attribute,omitempty" mapstructure:"group-name-attribute"`
	EnableNestedGroupFilter bool                       `json:"enable-nested-groups-filter,omitempty" yaml:"enable-nested-groups-filter,omitempty" mapstructure:"enable-nested-groups-filter"`
	AllowedGroups           []string                   `json:"allowed-groups,omitempty" yaml:"allowed-groups,omitempty" mapstructure:"allowed-groups"`
	AllowedUsers            []string                   `json:"allowed-users,omitempty" yaml:"allowed-users,omitempty" mapstructure:"allowed-users"`
	Breaker                 *BreakerConfig             `json:"breaker,omitempty" yaml:"breaker,omitempty" mapstructure:"breaker"`
}

// BreakerConfig tunes the circuit breaker guarding directory calls.
type BreakerConfig struct {
	// ConsecutiveFailures of an unreachable directory that open the breaker.
	ConsecutiveFailures uint32 `json:"consecutive-failures,omitempty" yaml:"consecutive-failures,omitempty" mapstructure:"consecutive-failures"`
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `json:"open-timeout,omitempty" yaml:"open-timeout,omitempty" mapstructure:"open-timeout"`
}

// CreateConfig creates the default directory configuration.
func CreateConfig() *Config {
	return &Config{
		URL:                     "",  // Supports: ldap://, ldaps://
		Port:                    389, // Usually 389 or 636
		Timeout:                 10 * time.Second,
		StartTLS:                false,
		InsecureSkipVerify:      false,
		MinVersionTLS:           "tls.VersionTLS12",
		MaxVersionTLS:           "tls.VersionTLS13",
		CertificateAuthority:    "",
		Attribute:               "cn", // Usually uid or sAMAccountname
		SearchFilter:            "",
		BaseDN:                  "",
		BindDN:                  "",
		BindPassword:            "",
		GroupBaseDN:             "",
		GroupNameAttribute:      "cn",
		EnableNestedGroupFilter: false,
		AllowedGroups:           nil,
		AllowedUsers:            nil,
		Breaker: &BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
	}
}

package ldapIdp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/provider"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ProviderName is the Authentication.Source of directory logins.
const ProviderName = "ldap"

// Provider authenticates credentials against the directory. Calls run
// through a circuit breaker that opens after repeated directory outages.
type Provider struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewProvider validates the configuration and resolves the bind password.
func NewProvider(cfg *Config, logger *zap.Logger) (*Provider, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("ldap: url is required")
	}
	c := *cfg
	if c.Attribute == "" {
		c.Attribute = "cn"
	}
	password, err := provider.Secret(c.BindPassword, c.BindPasswordFrom)
	if err != nil {
		return nil, fmt.Errorf("ldap: bind password: %w", err)
	}
	c.BindPassword = string(password)

	logger = logging.OrNop(logger).Named("ldap")
	breakerCfg := c.Breaker
	if breakerCfg == nil {
		breakerCfg = CreateConfig().Breaker
	}
	settings := gobreaker.Settings{
		Name:    "ldap " + c.URL,
		Timeout: breakerCfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return breakerCfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= breakerCfg.ConsecutiveFailures
		},
		// only outages count against the breaker, rejected logins and
		// abandoned requests do not
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, authn.ErrDirectoryUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &Provider{
		cfg:     c,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}, nil
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) Supports(authn.Credentials) bool {
	return true
}

func (p *Provider) Authenticate(ctx context.Context, creds authn.Credentials) (*authn.Authentication, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: empty username or password", authn.ErrBadCredentials)
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.authenticate(ctx, creds)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %w", authn.ErrDirectoryUnavailable, err)
	}
	if err != nil {
		p.logger.Debug("authentication failed", zap.String("username", creds.Username), zap.Error(err))
		return nil, err
	}
	auth := result.(*authn.Authentication)
	p.logger.Debug("authentication succeeded", zap.String("username", auth.Principal), zap.String("dn", auth.DN))
	return auth, nil
}

// authenticate closes the directory connections once ctx is done, which
// aborts a pending bind or search.
func (p *Provider) authenticate(ctx context.Context, creds authn.Credentials) (*authn.Authentication, error) {
	conn, err := Connect(&p.cfg)
	if err != nil {
		return nil, directoryError(ctx, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	ok, entry, err := LdapCheckUser(ctx, conn, &p.cfg, creds.Username, creds.Password)
	if !ok || err != nil {
		if err == nil {
			err = authn.ErrBadCredentials
		}
		return nil, directoryError(ctx, err)
	}

	_, allowed, err := LdapCheckUserAuthorized(conn, &p.cfg, entry, creds.Username)
	if err != nil {
		return nil, directoryError(ctx, err)
	}

	groups, err := LdapUserGroups(conn, &p.cfg, entry, creds.Username)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		// memberships only enrich the authorities
		p.logger.Warn("group lookup failed", zap.String("dn", entry.DN), zap.Error(err))
	}

	return newAuthentication(creds.Username, entry, allowed, groups), nil
}

// directoryError reports the context error instead of the network error a
// closed connection produces.
func directoryError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return classify(err)
}

func newAuthentication(username string, entry *ldap.Entry, allowed, groups []string) *authn.Authentication {
	auth := &authn.Authentication{
		Principal:  username,
		DN:         entry.DN,
		CN:         entry.GetAttributeValue("cn"),
		Attributes: make(map[string]string, len(entry.Attributes)),
		Source:     ProviderName,
	}
	for _, attribute := range entry.Attributes {
		if len(attribute.Values) > 0 {
			auth.Attributes[attribute.Name] = attribute.Values[0]
		}
	}

	seen := make(map[string]bool)
	for _, g := range append(allowed, groups...) {
		name := groupName(g)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		auth.Authorities = append(auth.Authorities, name)
	}
	return auth
}

// groupName returns the first RDN value of a group DN, or the input when it
// is not a DN.
func groupName(group string) string {
	dn, err := ldap.ParseDN(group)
	if err != nil || len(dn.RDNs) == 0 || len(dn.RDNs[0].Attributes) == 0 {
		return group
	}
	return dn.RDNs[0].Attributes[0].Value
}

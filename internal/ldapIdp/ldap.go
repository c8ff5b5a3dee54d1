package ldapIdp

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/metrics"
)

var errUserNotFound = errors.New("search filter return empty result")

func parseTlsVersion(version string) uint16 {
	switch version {
	case "tls.VersionTLS10", "VersionTLS10":
		return tls.VersionTLS10
	case "tls.VersionTLS11", "VersionTLS11":
		return tls.VersionTLS11
	case "tls.VersionTLS12", "VersionTLS12":
		return tls.VersionTLS12
	case "tls.VersionTLS13", "VersionTLS13":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// Connect return a LDAP Connection.
func Connect(config *Config) (*ldap.Conn, error) {
	var conn *ldap.Conn
	var certPool *x509.CertPool

	if config.CertificateAuthority != "" {
		certPool = x509.NewCertPool()
		certPool.AppendCertsFromPEM([]byte(config.CertificateAuthority))
	}

	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, err
	}

	host, _, err := net.SplitHostPort(u.Host)
	if err != nil {
		// we assume that error is due to missing port.
		host = u.Host
	}

	address := u.Scheme + "://" + net.JoinHostPort(host, strconv.FormatUint(uint64(config.Port), 10))

	tlsCfg := &tls.Config{
		InsecureSkipVerify: config.InsecureSkipVerify,
		ServerName:         host,
		RootCAs:            certPool,
		MinVersion:         parseTlsVersion(config.MinVersionTLS),
		MaxVersion:         parseTlsVersion(config.MaxVersionTLS),
	}
	dialer := ldap.DialWithDialer(&net.Dialer{Timeout: config.Timeout})

	switch {
	case u.Scheme == "ldap" && config.StartTLS:
		conn, err = ldap.DialURL(address, dialer)
		if err == nil {
			if err = conn.StartTLS(tlsCfg); err != nil {
				conn.Close()
			}
		}
	case u.Scheme == "ldaps":
		conn, err = ldap.DialURL(address, dialer, ldap.DialWithTLSConfig(tlsCfg))
	default:
		conn, err = ldap.DialURL(address, dialer)
	}

	if err != nil {
		return nil, err
	}
	if config.Timeout > 0 {
		conn.SetTimeout(config.Timeout)
	}

	return conn, nil
}

// SearchMode make search to LDAP and return results.
func SearchMode(conn *ldap.Conn, config *Config, username string) (*ldap.SearchResult, error) {
	if config.BindDN != "" && config.BindPassword != "" {
		err := conn.Bind(config.BindDN, config.BindPassword)
		if err != nil {
			return nil, fmt.Errorf("BindDN Error: %w", err)
		}
	} else {
		_ = conn.UnauthenticatedBind("")
	}

	parsedSearchFilter, err := ParseSearchFilter(config, username)
	if err != nil {
		return nil, err
	}

	search := ldap.NewSearchRequest(
		config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		0,
		false,
		parsedSearchFilter,
		userAttributes(config),
		nil,
	)

	result, err := conn.Search(search)
	if err != nil {
		return nil, err
	}

	switch {
	case len(result.Entries) == 1:
		return result, nil
	case len(result.Entries) < 1:
		return nil, errUserNotFound
	default:
		return nil, fmt.Errorf("search filter return multiple entries (%d)", len(result.Entries))
	}
}

func userAttributes(config *Config) []string {
	attributes := []string{"dn", "cn", "mail", "displayName"}
	if config.Attribute != "" && config.Attribute != "cn" {
		attributes = append(attributes, config.Attribute)
	}
	return attributes
}

// ParseSearchFilter remove spaces and trailing from searchFilter and fills in
// the escaped username as {{.Username}}.
func ParseSearchFilter(config *Config, username string) (string, error) {
	filter := config.SearchFilter

	filter = strings.Trim(filter, "\n\t")
	filter = strings.TrimSpace(filter)
	filter = strings.Replace(filter, "\\", "", -1)

	tmpl, err := template.New("search_template").Parse(filter)
	if err != nil {
		return "", err
	}

	var out bytes.Buffer

	err = tmpl.Execute(&out, struct {
		Username  string
		Attribute string
		BaseDN    string
	}{ldap.EscapeFilter(username), config.Attribute, config.BaseDN})
	if err != nil {
		return "", err
	}

	return out.String(), nil
}

func groupFilter(config *Config, entry *ldap.Entry, username string) string {
	var out bytes.Buffer

	templ := "(|" +
		"(member={{.UserDN}})" +
		"(uniqueMember={{.UserDN}})" +
		"(memberUid={{.Username}})" +
		"{{if .EnableNestedGroupFilter}}" +
		"(member:1.2.840.113556.1.4.1941:={{.UserDN}})" +
		"{{end}}" +
		")"

	template.Must(template.New("group_filter_template").
		Parse(templ)).
		Execute(&out, struct {
			UserDN                  string
			Username                string
			EnableNestedGroupFilter bool
		}{ldap.EscapeFilter(entry.DN), ldap.EscapeFilter(username), config.EnableNestedGroupFilter})

	return out.String()
}

// LdapCheckUserGroups returns the AllowedGroups the user is a member of.
func LdapCheckUserGroups(conn *ldap.Conn, config *Config, entry *ldap.Entry, username string) ([]string, error) {
	if len(config.AllowedGroups) == 0 {
		return nil, nil
	}

	var found []string
	var errs []error
	filter := groupFilter(config, entry, username)

	for _, g := range config.AllowedGroups {
		search := ldap.NewSearchRequest(
			g,
			ldap.ScopeBaseObject,
			ldap.NeverDerefAliases,
			0,
			0,
			false,
			filter,
			[]string{"member", "uniqueMember", "memberUid"},
			nil,
		)

		result, err := conn.Search(search)
		if err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", g, err))
			continue
		}

		if len(result.Entries) > 0 {
			found = append(found, g)
		}
	}

	return found, errors.Join(errs...)
}

// LdapUserGroups returns the names of all groups below GroupBaseDN the user
// is a member of.
func LdapUserGroups(conn *ldap.Conn, config *Config, entry *ldap.Entry, username string) ([]string, error) {
	if config.GroupBaseDN == "" {
		return nil, nil
	}
	nameAttribute := config.GroupNameAttribute
	if nameAttribute == "" {
		nameAttribute = "cn"
	}

	search := ldap.NewSearchRequest(
		config.GroupBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		0,
		false,
		groupFilter(config, entry, username),
		[]string{nameAttribute},
		nil,
	)
	result, err := conn.Search(search)
	if err != nil {
		return nil, err
	}

	groups := make([]string, 0, len(result.Entries))
	for _, e := range result.Entries {
		if name := e.GetAttributeValue(nameAttribute); name != "" {
			groups = append(groups, name)
		}
	}
	return groups, nil
}

// LdapCheckAllowedUsers check if user is explicitly allowed in AllowedUsers list
func LdapCheckAllowedUsers(config *Config, entry *ldap.Entry, username string) bool {
	for _, u := range config.AllowedUsers {
		lowerAllowedUser := strings.ToLower(u)
		if lowerAllowedUser == strings.ToLower(username) || lowerAllowedUser == strings.ToLower(entry.DN) {
			return true
		}
	}
	return false
}

// LdapCheckUser check if user and password are correct.
func LdapCheckUser(ctx context.Context, conn *ldap.Conn, config *Config, username, password string) (bool, *ldap.Entry, error) {
	if config.SearchFilter == "" {
		userDN := fmt.Sprintf("%s=%s,%s", config.Attribute, ldap.EscapeDN(username), config.BaseDN)
		userDN = strings.Trim(userDN, ",")
		err := timedBind(conn, userDN, password)
		return err == nil, ldap.NewEntry(userDN, map[string][]string{config.Attribute: {username}}), err
	}

	result, err := SearchMode(conn, config, username)
	if err != nil {
		return false, &ldap.Entry{}, err
	}

	entry := result.Entries[0]

	// Create a new conn to validate user password. This prevents changing the bind made
	// previously, then LdapCheckUserAuthorized will use same operation mode
	nconn, err := Connect(config)
	if err != nil {
		return false, entry, err
	}
	defer nconn.Close()
	stop := context.AfterFunc(ctx, func() { nconn.Close() })
	defer stop()

	err = timedBind(nconn, entry.DN, password)
	return err == nil, entry, err
}

func timedBind(conn *ldap.Conn, dn, password string) error {
	start := time.Now()
	err := conn.Bind(dn, password)
	result := metrics.OutcomeSuccess
	if err != nil {
		result = metrics.OutcomeFailure
	}
	metrics.LdapBindDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return err
}

// LdapCheckUserAuthorized check if user is authorized post-authentication.
// It returns the allowed groups the user matched.
func LdapCheckUserAuthorized(conn *ldap.Conn, config *Config, entry *ldap.Entry, username string) (bool, []string, error) {
	// Check if authorization is required or simply authentication
	if len(config.AllowedUsers) == 0 && len(config.AllowedGroups) == 0 {
		return true, nil, nil
	}

	groups, err := LdapCheckUserGroups(conn, config, entry, username)

	if LdapCheckAllowedUsers(config, entry, username) || len(groups) > 0 {
		return true, groups, nil
	}

	errMsg := fmt.Sprintf("user '%s' does not match any allowed users nor allowed groups", username)

	if err != nil {
		err = fmt.Errorf("%w: %s: %w", authn.ErrUserNotAuthorized, errMsg, err)
	} else {
		err = fmt.Errorf("%w: %s", authn.ErrUserNotAuthorized, errMsg)
	}

	return false, nil, err
}

// classify maps directory errors onto the authentication sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authn.ErrUserNotAuthorized), errors.Is(err, authn.ErrBadCredentials),
		errors.Is(err, authn.ErrDirectoryUnavailable):
		return err
	case errors.Is(err, errUserNotFound),
		ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials),
		ldap.IsErrorWithCode(err, ldap.ErrorEmptyPassword):
		return fmt.Errorf("%w: %w", authn.ErrBadCredentials, err)
	case ldap.IsErrorWithCode(err, ldap.ErrorNetwork),
		ldap.IsErrorWithCode(err, ldap.LDAPResultBusy),
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable),
		ldap.IsErrorWithCode(err, ldap.LDAPResultServerDown),
		ldap.IsErrorWithCode(err, ldap.LDAPResultTimeout):
		return fmt.Errorf("%w: %w", authn.ErrDirectoryUnavailable, err)
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			return fmt.Errorf("%w: %w", authn.ErrDirectoryUnavailable, err)
		}
		return fmt.Errorf("ldap: %w", err)
	}
}

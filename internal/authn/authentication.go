// Package authn holds the authentication model shared by providers,
// handlers and filters.
package authn

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors. Providers and filters wrap them with fmt.Errorf("...: %w").
var (
	ErrBadCredentials             = errors.New("bad credentials")
	ErrDirectoryUnavailable       = errors.New("directory unavailable")
	ErrUserNotAuthorized          = errors.New("user not authorized")
	ErrMethodNotSupported         = errors.New("authentication method not supported")
	ErrMalformedRequest           = errors.New("malformed authentication request")
	ErrBadCaptcha                 = errors.New("captcha mismatch")
	ErrInsufficientAuthentication = errors.New("full authentication is required to access this resource")
	ErrProviderNotFound           = errors.New("no authentication provider supports the credentials")
	ErrSessionLimitExceeded       = errors.New("maximum sessions exceeded")
	ErrCookieTheft                = errors.New("remember-me cookie theft detected")
	ErrTokenExpired               = errors.New("token expired")
	ErrInvalidToken               = errors.New("invalid token")
	ErrSessionNotSaved            = errors.New("session could not be saved")
)

// IsPreAuthentication reports whether err happened before any credential was
// validated. Such errors are routed to the entry point, all others to the
// failure handler.
func IsPreAuthentication(err error) bool {
	return errors.Is(err, ErrMethodNotSupported) || errors.Is(err, ErrMalformedRequest) ||
		errors.Is(err, ErrInsufficientAuthentication)
}

// Credentials are the username/password pair submitted by a client.
type Credentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Captcha    string `json:"captcha,omitempty"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

// Authentication is the result of a successful authentication.
type Authentication struct {
	Principal   string            `json:"principal"`
	DN          string            `json:"dn,omitempty"`
	CN          string            `json:"cn,omitempty"`
	Authorities []string          `json:"authorities,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	// Source names the provider or filter that established the identity.
	Source string `json:"source,omitempty"`
}

// HasAuthority reports whether the authentication carries the authority,
// compared case-insensitively.
func (a *Authentication) HasAuthority(authority string) bool {
	if a == nil {
		return false
	}
	for _, granted := range a.Authorities {
		if strings.EqualFold(granted, authority) {
			return true
		}
	}
	return false
}

type authenticationKey struct{}

// WithAuthentication stores the authentication in the context.
func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey{}, auth)
}

// FromContext returns the authentication of the request, or nil.
func FromContext(ctx context.Context) *Authentication {
	if auth, ok := ctx.Value(authenticationKey{}).(*Authentication); ok {
		return auth
	}
	return nil
}

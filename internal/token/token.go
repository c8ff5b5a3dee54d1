// Package token issues and validates the HS256 access tokens of the
// JWT-fronted chain.
package token

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pp23/ldapsecurity/internal/authn"
)

// Claims carries the directory identity of the token subject.
type Claims struct {
	DN          string   `json:"dn,omitempty"`
	CN          string   `json:"cn,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
	jwtlib.RegisteredClaims
}

// Service signs and parses tokens with one shared secret.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewService(secret []byte, issuer string, ttl time.Duration) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt: secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt: ttl must be positive")
	}
	return &Service{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for auth and returns it with its expiry.
func (s *Service) Issue(auth *authn.Authentication) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		DN:          auth.DN,
		CN:          auth.CN,
		Authorities: auth.Authorities,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   auth.Principal,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates a token and returns the authentication it stands for.
func (s *Service) Parse(tokenStr string) (*authn.Authentication, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(tokenStr, claims, func(*jwtlib.Token) (interface{}, error) {
		return s.secret, nil
	}, s.parserOptions()...)
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", authn.ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", authn.ErrInvalidToken, err)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing sub claim", authn.ErrInvalidToken)
	}
	return &authn.Authentication{
		Principal:   claims.Subject,
		DN:          claims.DN,
		CN:          claims.CN,
		Authorities: claims.Authorities,
		Source:      "jwt",
	}, nil
}

func (s *Service) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
		jwtlib.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(s.issuer))
	}
	return opts
}

package rememberme

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/utils"
	"go.uber.org/zap"
)

const (
	seriesLength = 24
	tokenLength  = 24
)

// Service issues and checks remember-me cookies.
type Service interface {
	// AutoLogin returns nil without error when the request has no cookie.
	AutoLogin(w http.ResponseWriter, r *http.Request) (*authn.Authentication, error)
	LoginSuccess(w http.ResponseWriter, r *http.Request, auth *authn.Authentication, requested bool)
	LoginFail(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request, auth *authn.Authentication)
}

// NullService never remembers anyone.
type NullService struct{}

func (NullService) AutoLogin(http.ResponseWriter, *http.Request) (*authn.Authentication, error) {
	return nil, nil
}
func (NullService) LoginSuccess(http.ResponseWriter, *http.Request, *authn.Authentication, bool) {}
func (NullService) LoginFail(http.ResponseWriter, *http.Request)                                 {}
func (NullService) Logout(http.ResponseWriter, *http.Request, *authn.Authentication)             {}

// TokenService remembers logins with persistent series/token pairs. Each
// auto login rotates the token. A known series presented with a stale token
// means the cookie was stolen, and all tokens of the user are removed.
type TokenService struct {
	repo           TokenRepository
	cookieName     string
	parameter      string
	validity       time.Duration
	alwaysRemember bool
	secure         bool
	logger         *zap.Logger
	now            func() time.Time
}

func NewTokenService(props *config.RememberMeProperties, repo TokenRepository, secure bool, logger *zap.Logger) *TokenService {
	return &TokenService{
		repo:           repo,
		cookieName:     props.CookieName,
		parameter:      props.Parameter,
		validity:       props.Validity,
		alwaysRemember: props.AlwaysRemember,
		secure:         secure,
		logger:         logging.OrNop(logger).Named("remember-me"),
		now:            time.Now,
	}
}

func (s *TokenService) AutoLogin(w http.ResponseWriter, r *http.Request) (*authn.Authentication, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	series, tokenValue, err := decodeCookie(cookie.Value)
	if err != nil {
		s.cancelCookie(w)
		return nil, fmt.Errorf("%w: %w", authn.ErrInvalidToken, err)
	}

	ctx := r.Context()
	token, err := s.repo.GetTokenForSeries(ctx, series)
	if err != nil {
		return nil, err
	}
	if token == nil {
		s.cancelCookie(w)
		return nil, fmt.Errorf("%w: no persistent token found for series", authn.ErrInvalidToken)
	}
	if token.Token != tokenValue {
		// the series was used with a token that was rotated away
		if err := s.repo.RemoveUserTokens(ctx, token.Username); err != nil {
			s.logger.Error("removing tokens failed", zap.String("username", token.Username), zap.Error(err))
		}
		s.cancelCookie(w)
		s.logger.Warn("cookie theft detected", zap.String("username", token.Username))
		return nil, fmt.Errorf("%w: %s", authn.ErrCookieTheft, token.Username)
	}
	if token.LastUsed.Add(s.validity).Before(s.now()) {
		s.cancelCookie(w)
		return nil, fmt.Errorf("%w: remember-me login has expired", authn.ErrTokenExpired)
	}

	newToken, err := utils.RandString(tokenLength)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.repo.UpdateToken(ctx, series, newToken, now); err != nil {
		return nil, fmt.Errorf("update token: %w", err)
	}
	s.setCookie(w, series, newToken)

	auth := token.Authentication
	auth.Source = "remember-me"
	s.logger.Debug("remember-me login", zap.String("username", token.Username))
	return &auth, nil
}

func (s *TokenService) LoginSuccess(w http.ResponseWriter, r *http.Request, auth *authn.Authentication, requested bool) {
	if !s.alwaysRemember && !requested && !s.requestedByParameter(r) {
		return
	}
	series, err := utils.RandString(seriesLength)
	if err != nil {
		s.logger.Error("creating series failed", zap.Error(err))
		return
	}
	tokenValue, err := utils.RandString(tokenLength)
	if err != nil {
		s.logger.Error("creating token failed", zap.Error(err))
		return
	}
	token := PersistentToken{
		Series:         series,
		Token:          tokenValue,
		Username:       auth.Principal,
		LastUsed:       s.now(),
		Authentication: *auth,
	}
	if err := s.repo.CreateNewToken(r.Context(), token); err != nil {
		s.logger.Error("storing token failed", zap.String("username", auth.Principal), zap.Error(err))
		return
	}
	s.setCookie(w, series, tokenValue)
}

func (s *TokenService) requestedByParameter(r *http.Request) bool {
	switch strings.ToLower(r.FormValue(s.parameter)) {
	case "true", "on", "yes", "1":
		return true
	}
	return false
}

func (s *TokenService) LoginFail(w http.ResponseWriter, _ *http.Request) {
	s.cancelCookie(w)
}

func (s *TokenService) Logout(w http.ResponseWriter, r *http.Request, auth *authn.Authentication) {
	s.cancelCookie(w)
	if auth == nil {
		return
	}
	if err := s.repo.RemoveUserTokens(r.Context(), auth.Principal); err != nil {
		s.logger.Error("removing tokens failed", zap.String("username", auth.Principal), zap.Error(err))
	}
}

func (s *TokenService) setCookie(w http.ResponseWriter, series, tokenValue string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    encodeCookie(series, tokenValue),
		Path:     "/",
		MaxAge:   int(s.validity / time.Second),
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *TokenService) cancelCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   s.secure,
		HttpOnly: true,
	})
}

func encodeCookie(series, tokenValue string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(series + ":" + tokenValue))
}

func decodeCookie(value string) (string, string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return "", "", fmt.Errorf("cookie token was not base64 encoded: %w", err)
	}
	series, tokenValue, ok := strings.Cut(string(decoded), ":")
	if !ok || series == "" || tokenValue == "" {
		return "", "", fmt.Errorf("cookie token did not contain 2 tokens")
	}
	return series, tokenValue, nil
}

package filter

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/captcha"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/handler"
	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/metrics"
	"github.com/pp23/ldapsecurity/internal/rememberme"
	"github.com/pp23/ldapsecurity/internal/session"
	"go.uber.org/zap"
)

// maxLoginBodyBytes bounds login request bodies.
const maxLoginBodyBytes = 1 << 16

// LdapAuthenticationFilter processes logins posted to the login URL. Login
// requests are answered by the entry point, the failure handler or the
// success handler and never reach the downstream handler.
type LdapAuthenticationFilter struct {
	serializer        handler.Serializer
	loginURL          string
	usernameParameter string
	passwordParameter string
	captchaParameter  string

	postOnly             bool
	allowSessionCreation bool
	creationPolicy       string

	manager         authn.Manager
	entryPoint      handler.EntryPoint
	successHandler  handler.SuccessHandler
	failureHandler  handler.FailureHandler
	rememberMe      rememberme.Service
	sessionStrategy session.Strategy
	captcha         captcha.Resolver
	store           *session.Store

	chainName string
	logger    *zap.Logger
}

// NewLdapAuthenticationFilter creates the filter with its defaults: post
// only, session creation allowed, no remember-me, no session strategy and
// JSON responses.
func NewLdapAuthenticationFilter(serializer handler.Serializer, authc *config.AuthcProperties) *LdapAuthenticationFilter {
	if serializer == nil {
		serializer = handler.JSONSerializer{}
	}
	return &LdapAuthenticationFilter{
		serializer:           serializer,
		loginURL:             authc.LoginURL,
		usernameParameter:    authc.UsernameParameter,
		passwordParameter:    authc.PasswordParameter,
		captchaParameter:     authc.CaptchaParameter,
		postOnly:             true,
		allowSessionCreation: true,
		creationPolicy:       config.SessionIfRequired,
		entryPoint: &handler.UnauthorizedEntryPoint{
			WWWAuthenticateHeader: authc.WWWAuthenticateHeader,
			Realm:                 authc.Realm,
		},
		successHandler:  &handler.JSONSuccessHandler{Serializer: serializer},
		failureHandler:  &handler.JSONFailureHandler{Serializer: serializer},
		rememberMe:      rememberme.NullService{},
		sessionStrategy: session.NullStrategy{},
		chainName:       "ldap",
		logger:          zap.NewNop(),
	}
}

func (f *LdapAuthenticationFilter) Name() string {
	return "LdapAuthenticationFilter"
}

func (f *LdapAuthenticationFilter) SetPostOnly(postOnly bool) { f.postOnly = postOnly }

func (f *LdapAuthenticationFilter) SetAllowSessionCreation(allow bool) {
	f.allowSessionCreation = allow
}

func (f *LdapAuthenticationFilter) SetSessionCreationPolicy(policy string) {
	f.creationPolicy = policy
}

func (f *LdapAuthenticationFilter) SetAuthenticationManager(m authn.Manager) { f.manager = m }

func (f *LdapAuthenticationFilter) SetEntryPoint(e handler.EntryPoint) { f.entryPoint = e }

func (f *LdapAuthenticationFilter) SetSuccessHandler(h handler.SuccessHandler) { f.successHandler = h }

func (f *LdapAuthenticationFilter) SetFailureHandler(h handler.FailureHandler) { f.failureHandler = h }

func (f *LdapAuthenticationFilter) SetRememberMeServices(s rememberme.Service) { f.rememberMe = s }

func (f *LdapAuthenticationFilter) SetSessionStrategy(s session.Strategy) { f.sessionStrategy = s }

func (f *LdapAuthenticationFilter) SetCaptchaResolver(c captcha.Resolver) { f.captcha = c }

func (f *LdapAuthenticationFilter) SetSessionStore(s *session.Store) { f.store = s }

func (f *LdapAuthenticationFilter) SetChainName(name string) { f.chainName = name }

func (f *LdapAuthenticationFilter) SetLogger(logger *zap.Logger) { f.logger = logging.OrNop(logger) }

func (f *LdapAuthenticationFilter) PostOnly() bool { return f.postOnly }

func (f *LdapAuthenticationFilter) AllowSessionCreation() bool { return f.allowSessionCreation }

func (f *LdapAuthenticationFilter) SessionCreationPolicy() string { return f.creationPolicy }

func (f *LdapAuthenticationFilter) AuthenticationManager() authn.Manager { return f.manager }

func (f *LdapAuthenticationFilter) EntryPoint() handler.EntryPoint { return f.entryPoint }

func (f *LdapAuthenticationFilter) SuccessHandler() handler.SuccessHandler { return f.successHandler }

func (f *LdapAuthenticationFilter) FailureHandler() handler.FailureHandler { return f.failureHandler }

func (f *LdapAuthenticationFilter) RememberMeServices() rememberme.Service { return f.rememberMe }

func (f *LdapAuthenticationFilter) SessionStrategy() session.Strategy { return f.sessionStrategy }

func (f *LdapAuthenticationFilter) CaptchaResolver() captcha.Resolver { return f.captcha }

// LoginURL is the path processed by the filter.
func (f *LdapAuthenticationFilter) LoginURL() string { return f.loginURL }

func (f *LdapAuthenticationFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if r.URL.Path != f.loginURL {
		next.ServeHTTP(w, r)
		return
	}

	if f.postOnly && r.Method != http.MethodPost {
		f.reject(w, r, fmt.Errorf("%w: %s", authn.ErrMethodNotSupported, r.Method))
		return
	}

	creds, err := f.obtainCredentials(w, r)
	if err != nil {
		f.reject(w, r, err)
		return
	}

	if f.captcha != nil {
		if err := f.captcha.Resolve(w, r, creds.Captcha); err != nil {
			if !errors.Is(err, authn.ErrBadCaptcha) {
				err = fmt.Errorf("%w: %w", authn.ErrBadCaptcha, err)
			}
			f.unsuccessful(w, r, err)
			return
		}
	}

	if f.manager == nil {
		f.unsuccessful(w, r, fmt.Errorf("%w: no authentication manager", authn.ErrProviderNotFound))
		return
	}
	auth, err := f.manager.Authenticate(r.Context(), creds)
	if err != nil {
		if authn.IsPreAuthentication(err) {
			f.reject(w, r, err)
			return
		}
		f.unsuccessful(w, r, err)
		return
	}

	if err := f.sessionStrategy.OnAuthentication(w, r, auth); err != nil {
		f.unsuccessful(w, r, err)
		return
	}
	f.successful(w, r, auth, creds.RememberMe)
}

func (f *LdapAuthenticationFilter) obtainCredentials(w http.ResponseWriter, r *http.Request) (authn.Credentials, error) {
	var creds authn.Credentials
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasSuffix(mediaType, "json") {
		if err := f.serializer.Decode(r.Body, &creds); err != nil {
			return creds, fmt.Errorf("%w: %w", authn.ErrMalformedRequest, err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return creds, fmt.Errorf("%w: %w", authn.ErrMalformedRequest, err)
		}
		creds.Username = r.Form.Get(f.usernameParameter)
		creds.Password = r.Form.Get(f.passwordParameter)
		creds.Captcha = r.Form.Get(f.captchaParameter)
	}
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" {
		return creds, fmt.Errorf("%w: username is required", authn.ErrMalformedRequest)
	}
	return creds, nil
}

// reject hands requests that failed before any credential was checked to
// the entry point.
func (f *LdapAuthenticationFilter) reject(w http.ResponseWriter, r *http.Request, err error) {
	metrics.AuthenticationTotal.WithLabelValues(f.chainName, metrics.OutcomeRejected).Inc()
	f.entryPoint.Commence(w, r, err)
}

func (f *LdapAuthenticationFilter) unsuccessful(w http.ResponseWriter, r *http.Request, err error) {
	metrics.AuthenticationTotal.WithLabelValues(f.chainName, metrics.OutcomeFailure).Inc()
	f.logger.Debug("authentication request failed", zap.String("chain", f.chainName), zap.Error(err))
	f.rememberMe.LoginFail(w, r)
	f.failureHandler.OnAuthenticationFailure(w, r, err)
}

func (f *LdapAuthenticationFilter) successful(w http.ResponseWriter, r *http.Request, auth *authn.Authentication, remember bool) {
	if f.savesSession(r) {
		if err := f.store.SaveAuthentication(w, r, auth); err != nil {
			f.logger.Error("saving session failed", zap.String("principal", auth.Principal), zap.Error(err))
			f.unsuccessful(w, r, fmt.Errorf("%w: %w", authn.ErrSessionNotSaved, err))
			return
		}
	}
	metrics.AuthenticationTotal.WithLabelValues(f.chainName, metrics.OutcomeSuccess).Inc()
	f.rememberMe.LoginSuccess(w, r, auth, remember)
	r = r.WithContext(authn.WithAuthentication(r.Context(), auth))
	f.successHandler.OnAuthenticationSuccess(w, r, auth)
}

func (f *LdapAuthenticationFilter) savesSession(r *http.Request) bool {
	if f.store == nil || !f.allowSessionCreation {
		return false
	}
	switch f.creationPolicy {
	case config.SessionStateless:
		return false
	case config.SessionNever:
		return f.store.Exists(r)
	default:
		return true
	}
}

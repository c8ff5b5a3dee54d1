package handler

import (
	"net/http"
	"time"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/logging"
	"go.uber.org/zap"
)

// JSONSuccessHandler answers 200 with the authentication as body.
type JSONSuccessHandler struct {
	Serializer Serializer
	Logger     *zap.Logger
}

func (h *JSONSuccessHandler) OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, auth *authn.Authentication) {
	logging.OrNop(h.Logger).Info("authentication succeeded", zap.String("principal", auth.Principal), zap.String("source", auth.Source))
	writeResponse(w, h.Serializer, http.StatusOK, auth)
}

// RedirectSuccessHandler redirects to a fixed URL after login.
type RedirectSuccessHandler struct {
	URL string
}

func (h *RedirectSuccessHandler) OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, _ *authn.Authentication) {
	http.Redirect(w, r, h.URL, http.StatusFound)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(auth *authn.Authentication) (string, time.Time, error)
}

// TokenResponse is the body written by TokenSuccessHandler.
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	Principal   string   `json:"principal"`
	Authorities []string `json:"authorities,omitempty"`
}

// TokenSuccessHandler answers a login with a bearer token.
type TokenSuccessHandler struct {
	Issuer     TokenIssuer
	Serializer Serializer
	Logger     *zap.Logger
}

func (h *TokenSuccessHandler) OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, auth *authn.Authentication) {
	logger := logging.OrNop(h.Logger)
	token, expiresAt, err := h.Issuer.Issue(auth)
	if err != nil {
		logger.Error("issuing token failed", zap.String("principal", auth.Principal), zap.Error(err))
		writeResponse(w, h.Serializer, http.StatusInternalServerError, errorBody(http.StatusInternalServerError, "token could not be issued"))
		return
	}
	logger.Info("token issued", zap.String("principal", auth.Principal), zap.Time("expires_at", expiresAt))
	writeResponse(w, h.Serializer, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
		Principal:   auth.Principal,
		Authorities: auth.Authorities,
	})
}

func writeResponse(w http.ResponseWriter, serializer Serializer, status int, body interface{}) {
	if serializer == nil {
		serializer = JSONSerializer{}
	}
	w.Header().Add("Cache-Control", "no-store")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Set("Content-Type", serializer.ContentType())
	w.WriteHeader(status)
	_ = serializer.Encode(w, body)
}

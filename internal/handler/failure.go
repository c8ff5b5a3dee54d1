package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/logging"
	"go.uber.org/zap"
)

// ErrorResponse is the body of failed authentications.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func errorBody(status int, message string) ErrorResponse {
	return ErrorResponse{Status: status, Error: http.StatusText(status), Message: message}
}

// StatusFor maps an authentication error to a response status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, authn.ErrDirectoryUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, authn.ErrSessionNotSaved):
		return http.StatusInternalServerError
	case errors.Is(err, authn.ErrUserNotAuthorized), errors.Is(err, authn.ErrSessionLimitExceeded),
		errors.Is(err, authn.ErrCookieTheft):
		return http.StatusForbidden
	case errors.Is(err, authn.ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, authn.ErrMethodNotSupported):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusUnauthorized
	}
}

// publicMessage hides directory details from clients.
func publicMessage(err error) string {
	for _, sentinel := range []error{
		authn.ErrBadCredentials, authn.ErrDirectoryUnavailable, authn.ErrUserNotAuthorized,
		authn.ErrBadCaptcha, authn.ErrSessionLimitExceeded, authn.ErrCookieTheft,
		authn.ErrTokenExpired, authn.ErrInvalidToken, authn.ErrMalformedRequest,
		authn.ErrMethodNotSupported, authn.ErrProviderNotFound, authn.ErrSessionNotSaved,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "authentication failed"
}

// JSONFailureHandler answers with an ErrorResponse.
type JSONFailureHandler struct {
	Serializer Serializer
	Logger     *zap.Logger
}

func (h *JSONFailureHandler) OnAuthenticationFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	logging.OrNop(h.Logger).Info("authentication failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	writeResponse(w, h.Serializer, status, errorBody(status, publicMessage(err)))
}

// RedirectFailureHandler redirects to a fixed URL with the error in the
// "error" query parameter.
type RedirectFailureHandler struct {
	URL string
}

func (h *RedirectFailureHandler) OnAuthenticationFailure(w http.ResponseWriter, r *http.Request, err error) {
	location, parseErr := url.Parse(h.URL)
	if parseErr != nil {
		http.Error(w, parseErr.Error(), http.StatusInternalServerError)
		return
	}
	v := location.Query()
	v.Set("error", publicMessage(err))
	location.RawQuery = v.Encode()
	http.Redirect(w, r, location.String(), http.StatusFound)
}

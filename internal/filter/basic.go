package filter

import (
	"net/http"
	"strings"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/handler"
	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/metrics"
	"go.uber.org/zap"
)

// BasicAuthenticationFilter authenticates "Authorization: Basic" requests
// against the manager on every request.
type BasicAuthenticationFilter struct {
	manager    authn.Manager
	entryPoint handler.EntryPoint
	chainName  string
	logger     *zap.Logger
}

func NewBasicAuthenticationFilter(manager authn.Manager, entryPoint handler.EntryPoint, chainName string, logger *zap.Logger) *BasicAuthenticationFilter {
	return &BasicAuthenticationFilter{manager: manager, entryPoint: entryPoint, chainName: chainName, logger: logging.OrNop(logger)}
}

func (f *BasicAuthenticationFilter) Name() string {
	return "BasicAuthenticationFilter"
}

func (f *BasicAuthenticationFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if authn.FromContext(r.Context()) != nil {
		next.ServeHTTP(w, r)
		return
	}
	username, password, ok := r.BasicAuth()
	if !ok {
		next.ServeHTTP(w, r)
		return
	}
	username = strings.ToLower(username)

	auth, err := f.manager.Authenticate(r.Context(), authn.Credentials{Username: username, Password: password})
	if err != nil {
		metrics.AuthenticationTotal.WithLabelValues(f.chainName, metrics.OutcomeFailure).Inc()
		f.logger.Info("basic authentication failed", zap.String("username", username), zap.Error(err))
		f.entryPoint.Commence(w, r, err)
		return
	}
	metrics.AuthenticationTotal.WithLabelValues(f.chainName, metrics.OutcomeSuccess).Inc()
	next.ServeHTTP(w, r.WithContext(authn.WithAuthentication(r.Context(), auth)))
}

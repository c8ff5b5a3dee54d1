package filter

import (
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/rs/cors"
)

var errOriginNotAllowed = errors.New("origin not allowed")

// CorsFilter answers preflight requests and decorates cross-origin
// responses. Cross-origin requests from origins outside the allow list are
// rejected.
type CorsFilter struct {
	cors *cors.Cors
}

func NewCorsFilter(props *config.CorsProperties) *CorsFilter {
	opts := cors.Options{
		AllowedOrigins:       props.AllowedOrigins,
		AllowedMethods:       props.AllowedMethods,
		AllowedHeaders:       props.AllowedHeaders,
		ExposedHeaders:       props.ExposedHeaders,
		AllowCredentials:     props.AllowCredentials,
		MaxAge:               props.MaxAge,
		OptionsSuccessStatus: http.StatusNoContent,
	}
	// browsers refuse "*" together with credentials, echo the origin instead
	if props.AllowCredentials && slices.Contains(props.AllowedOrigins, "*") {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(string) bool { return true }
	}
	return &CorsFilter{cors: cors.New(opts)}
}

func (f *CorsFilter) Name() string {
	return "CorsFilter"
}

func (f *CorsFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if origin := r.Header.Get("Origin"); origin != "" && !sameHost(origin, r.Host) && !f.cors.OriginAllowed(r) {
		Forbidden(w, errOriginNotAllowed)
		return
	}
	f.cors.ServeHTTP(w, r, next.ServeHTTP)
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, host)
}

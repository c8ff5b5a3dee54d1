package filter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/handler"
)

// TokenParser validates a bearer token.
type TokenParser interface {
	Parse(token string) (*authn.Authentication, error)
}

// BearerTokenFilter authenticates requests carrying
// "Authorization: Bearer <jwt>". Invalid tokens are answered by the entry
// point, requests without a token pass on unauthenticated.
type BearerTokenFilter struct {
	parser     TokenParser
	entryPoint handler.EntryPoint
}

func NewBearerTokenFilter(parser TokenParser, entryPoint handler.EntryPoint) *BearerTokenFilter {
	return &BearerTokenFilter{parser: parser, entryPoint: entryPoint}
}

func (f *BearerTokenFilter) Name() string {
	return "BearerTokenAuthenticationFilter"
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	return fields[1], true
}

func (f *BearerTokenFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	tokenStr, ok := bearerToken(r)
	if !ok {
		next.ServeHTTP(w, r)
		return
	}
	auth, err := f.parser.Parse(tokenStr)
	if err != nil {
		f.entryPoint.Commence(w, r, fmt.Errorf("bearer token: %w", err))
		return
	}
	next.ServeHTTP(w, r.WithContext(authn.WithAuthentication(r.Context(), auth)))
}

package filter

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/handler"
)

// AuthorizationFilter requires an authenticated request and forwards the
// identity to the downstream handler. With required authorities set, the
// principal must hold at least one of them.
type AuthorizationFilter struct {
	forward     *config.ForwardProperties
	authorities []string
	entryPoint  handler.EntryPoint
}

func NewAuthorizationFilter(forward *config.ForwardProperties, authorities []string, entryPoint handler.EntryPoint) *AuthorizationFilter {
	if forward == nil {
		forward = &config.ForwardProperties{}
	}
	return &AuthorizationFilter{forward: forward, authorities: authorities, entryPoint: entryPoint}
}

func (f *AuthorizationFilter) Name() string {
	return "AuthorizationFilter"
}

func (f *AuthorizationFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	auth := authn.FromContext(r.Context())
	if auth == nil {
		f.entryPoint.Commence(w, r, authn.ErrInsufficientAuthentication)
		return
	}
	if len(f.authorities) > 0 && !slices.ContainsFunc(f.authorities, auth.HasAuthority) {
		Forbidden(w, fmt.Errorf("%w: %s", authn.ErrUserNotAuthorized, auth.Principal))
		return
	}

	// Sanitize Some Headers Infos.
	if f.forward.Username {
		r.URL.User = url.User(auth.Principal)
		if f.forward.UsernameHeader != "" {
			r.Header.Set(f.forward.UsernameHeader, auth.Principal)
		}
		if f.forward.ExtraLdapHeaders && auth.DN != "" {
			r.Header.Set("Ldap-Extra-Attr-DN", auth.DN)
			r.Header.Set("Ldap-Extra-Attr-CN", auth.CN)
		}
	}

	// Prevent expose username and password on Header
	if !f.forward.Authorization {
		r.Header.Del("Authorization")
	}

	next.ServeHTTP(w, r)
}

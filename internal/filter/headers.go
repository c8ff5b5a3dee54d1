package filter

import (
	"net/http"

	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/unrolled/secure"
)

// HeadersFilter writes the configured security response headers.
type HeadersFilter struct {
	secure       *secure.Secure
	cacheControl bool
}

func NewHeadersFilter(props *config.HeadersProperties) *HeadersFilter {
	opts := secure.Options{
		ContentTypeNosniff:    props.ContentTypeOptions,
		BrowserXssFilter:      props.XSSProtection,
		STSSeconds:            int64(props.HSTSMaxAge),
		STSIncludeSubdomains:  true,
		ReferrerPolicy:        props.ReferrerPolicy,
		ContentSecurityPolicy: props.ContentSecurityPolicy,
	}
	if props.FrameOptions == "DENY" {
		opts.FrameDeny = true
	} else {
		opts.CustomFrameOptionsValue = props.FrameOptions
	}
	return &HeadersFilter{secure: secure.New(opts), cacheControl: props.CacheControl}
}

func (f *HeadersFilter) Name() string {
	return "HeaderWriterFilter"
}

func (f *HeadersFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	// the default options never reject a request
	_ = f.secure.Process(w, r)
	if f.cacheControl {
		h := w.Header()
		h.Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
	}
	next.ServeHTTP(w, r)
}

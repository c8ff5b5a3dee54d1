package filter

import (
	"context"
	"net/http"

	"golang.org/x/text/language"
)

// DefaultLocales are negotiated when no tags are configured.
var DefaultLocales = []language.Tag{language.English, language.German, language.French}

type localeKey struct{}

// LocaleFromContext returns the negotiated tag, or language.Und.
func LocaleFromContext(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(localeKey{}).(language.Tag); ok {
		return tag
	}
	return language.Und
}

// LocaleContextFilter negotiates the request language from the "lang"
// parameter, then Accept-Language, against the supported tags.
type LocaleContextFilter struct {
	supported []language.Tag
	matcher   language.Matcher
}

// NewLocaleContextFilter uses DefaultLocales when no tags are given. The
// first tag is the fallback.
func NewLocaleContextFilter(supported ...language.Tag) *LocaleContextFilter {
	if len(supported) == 0 {
		supported = DefaultLocales
	}
	return &LocaleContextFilter{supported: supported, matcher: language.NewMatcher(supported)}
}

func (f *LocaleContextFilter) Name() string {
	return "LocaleContextFilter"
}

// Resolve returns the supported tag that best matches the request.
func (f *LocaleContextFilter) Resolve(r *http.Request) language.Tag {
	var prefs []language.Tag
	if lang := r.URL.Query().Get("lang"); lang != "" {
		if tag, err := language.Parse(lang); err == nil {
			prefs = append(prefs, tag)
		}
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil {
			prefs = append(prefs, tags...)
		}
	}
	_, index, _ := f.matcher.Match(prefs...)
	return f.supported[index]
}

func (f *LocaleContextFilter) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	tag := f.Resolve(r)
	w.Header().Set("Content-Language", tag.String())
	next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), localeKey{}, tag)))
}

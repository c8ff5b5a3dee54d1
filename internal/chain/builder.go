package chain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/filter"
	"github.com/pp23/ldapsecurity/internal/handler"
	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/matcher"
	"go.uber.org/zap"
)

var ErrNoMatcher = errors.New("chain has no request matcher")

type entry struct {
	position int
	seq      int
	filter   filter.Filter
}

// HTTPSecurity collects the filters of one chain. Configuration errors are
// kept and returned by Build.
type HTTPSecurity struct {
	name         string
	matcher      matcher.RequestMatcher
	entryPoint   handler.EntryPoint
	basicManager authn.Manager
	entries      []entry
	errs         []error
	logger       *zap.Logger
}

func NewHTTPSecurity(name string, logger *zap.Logger) *HTTPSecurity {
	return &HTTPSecurity{name: name, logger: logging.OrNop(logger)}
}

// AntMatcher restricts the chain to requests whose path matches pattern.
func (h *HTTPSecurity) AntMatcher(pattern string) *HTTPSecurity {
	m, err := matcher.ForPattern(pattern)
	if err != nil {
		h.errs = append(h.errs, err)
		return h
	}
	h.matcher = m
	return h
}

func (h *HTTPSecurity) RequestMatcher(m matcher.RequestMatcher) *HTTPSecurity {
	h.matcher = m
	return h
}

// ExceptionHandling sets the entry point answering unauthenticated requests.
func (h *HTTPSecurity) ExceptionHandling(entryPoint handler.EntryPoint) *HTTPSecurity {
	h.entryPoint = entryPoint
	return h
}

// HTTPBasic enables Basic authentication against manager. A nil manager
// disables it.
func (h *HTTPSecurity) HTTPBasic(manager authn.Manager) *HTTPSecurity {
	h.basicManager = manager
	return h
}

func (h *HTTPSecurity) DisableHTTPBasic() *HTTPSecurity {
	return h.HTTPBasic(nil)
}

// AddFilterAt adds f at position. Filters sharing a position keep the order
// they were added in.
func (h *HTTPSecurity) AddFilterAt(f filter.Filter, position int) *HTTPSecurity {
	h.entries = append(h.entries, entry{position: position, seq: len(h.entries), filter: f})
	return h
}

func (h *HTTPSecurity) AddFilterBefore(f filter.Filter, position int) *HTTPSecurity {
	return h.AddFilterAt(f, position-1)
}

func (h *HTTPSecurity) Cors(props *config.CorsProperties) *HTTPSecurity {
	if props == nil || !props.Enabled {
		return h
	}
	return h.AddFilterAt(filter.NewCorsFilter(props), PositionCors)
}

// Csrf signs its token cookie with a key derived from key.
func (h *HTTPSecurity) Csrf(props *config.CsrfProperties, key []byte, secure bool) *HTTPSecurity {
	if props == nil || !props.Enabled {
		return h
	}
	f, err := filter.NewCsrfFilter(props, key, secure)
	if err != nil {
		h.errs = append(h.errs, err)
		return h
	}
	return h.AddFilterAt(f, PositionCsrf)
}

func (h *HTTPSecurity) Headers(props *config.HeadersProperties) *HTTPSecurity {
	if props == nil || !props.Enabled {
		return h
	}
	return h.AddFilterAt(filter.NewHeadersFilter(props), PositionHeaders)
}

// Build sorts the filters by position and freezes the chain.
func (h *HTTPSecurity) Build(order int) (*Chain, error) {
	if h.matcher == nil {
		h.errs = append(h.errs, ErrNoMatcher)
	}
	if len(h.errs) > 0 {
		return nil, fmt.Errorf("chain %s: %w", h.name, errors.Join(h.errs...))
	}

	entryPoint := h.entryPoint
	if entryPoint == nil {
		entryPoint = &handler.UnauthorizedEntryPoint{WWWAuthenticateHeader: true, Logger: h.logger}
	}
	entries := append([]entry(nil), h.entries...)
	if h.basicManager != nil {
		basic := filter.NewBasicAuthenticationFilter(h.basicManager, entryPoint, h.name, h.logger)
		entries = append(entries, entry{position: PositionBasicAuthentication, seq: len(entries), filter: basic})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].position != entries[j].position {
			return entries[i].position < entries[j].position
		}
		return entries[i].seq < entries[j].seq
	})

	filters := make([]filter.Filter, len(entries))
	for i, e := range entries {
		filters[i] = e.filter
	}
	return &Chain{name: h.name, order: order, matcher: h.matcher, filters: filters, entryPoint: entryPoint}, nil
}

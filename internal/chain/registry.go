package chain

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/matcher"
	"github.com/pp23/ldapsecurity/internal/metrics"
	"go.uber.org/zap"
)

var ErrDuplicateOrder = errors.New("duplicate chain order")

// Registry holds the chains ordered by ascending order number. A request is
// handled by the first matching chain; ignored requests skip all chains.
type Registry struct {
	chains  []*Chain
	ignored matcher.OrMatcher
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logging.OrNop(logger)}
}

func (r *Registry) Register(c *Chain) error {
	for _, existing := range r.chains {
		if existing.order == c.order {
			return fmt.Errorf("%w: %d used by %s and %s", ErrDuplicateOrder, c.order, existing.name, c.name)
		}
	}
	r.chains = append(r.chains, c)
	sort.Slice(r.chains, func(i, j int) bool { return r.chains[i].order < r.chains[j].order })
	r.logger.Debug("chain registered", zap.String("chain", c.name), zap.Int("order", c.order), zap.Int("filters", len(c.filters)))
	return nil
}

// Ignore excludes requests matching any of the patterns from every chain.
func (r *Registry) Ignore(patterns ...string) error {
	m, err := matcher.AntMatchers(patterns...)
	if err != nil {
		return err
	}
	r.ignored = append(r.ignored, m...)
	return nil
}

func (r *Registry) Chains() []*Chain {
	return append([]*Chain(nil), r.chains...)
}

func (r *Registry) Ignored(req *http.Request) bool {
	return r.ignored.Matches(req)
}

// Match returns the first chain accepting req, or nil.
func (r *Registry) Match(req *http.Request) *Chain {
	if r.Ignored(req) {
		return nil
	}
	for _, c := range r.chains {
		if c.Matches(req) {
			return c
		}
	}
	return nil
}

// Middleware dispatches requests to the matching chain. Unmatched and
// ignored requests go straight to next.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	handlers := make(map[*Chain]http.Handler, len(r.chains))
	for _, c := range r.chains {
		handlers[c] = c.Then(next)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		c := r.Match(req)
		if c == nil {
			next.ServeHTTP(w, req)
			return
		}
		metrics.ChainRequestsTotal.WithLabelValues(c.name).Inc()
		handlers[c].ServeHTTP(w, req)
	})
}

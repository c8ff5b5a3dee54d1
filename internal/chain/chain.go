package chain

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pp23/ldapsecurity/internal/filter"
	"github.com/pp23/ldapsecurity/internal/handler"
	"github.com/pp23/ldapsecurity/internal/matcher"
)

// Chain is an ordered list of filters applied to the requests its matcher
// accepts. It is immutable.
type Chain struct {
	name       string
	order      int
	matcher    matcher.RequestMatcher
	filters    []filter.Filter
	entryPoint handler.EntryPoint
}

func (c *Chain) Name() string {
	return c.name
}

func (c *Chain) Order() int {
	return c.order
}

// Filters returns a copy of the filters in execution order.
func (c *Chain) Filters() []filter.Filter {
	return append([]filter.Filter(nil), c.filters...)
}

func (c *Chain) EntryPoint() handler.EntryPoint {
	return c.entryPoint
}

func (c *Chain) Matches(r *http.Request) bool {
	return c.matcher.Matches(r)
}

// Then wraps next with the filters of the chain, the first filter
// outermost.
func (c *Chain) Then(next http.Handler) http.Handler {
	middlewares := make([]func(http.Handler) http.Handler, len(c.filters))
	for i, f := range c.filters {
		middlewares[i] = filter.Middleware(f)
	}
	return chi.Chain(middlewares...).Handler(next)
}

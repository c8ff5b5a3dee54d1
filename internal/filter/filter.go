// Package filter contains the request interceptors assembled into security
// filter chains.
package filter

import (
	"fmt"
	"net/http"
)

// Filter intercepts a request. It either calls next or writes the response
// itself.
type Filter interface {
	Name() string
	ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler)
}

// Func adapts a function to Filter.
type Func struct {
	FilterName string
	Fn         func(w http.ResponseWriter, r *http.Request, next http.Handler)
}

func (f Func) Name() string {
	return f.FilterName
}

func (f Func) ServeFilter(w http.ResponseWriter, r *http.Request, next http.Handler) {
	f.Fn(w, r, next)
}

// Middleware adapts f to the func(http.Handler) http.Handler shape used by
// chi.
func Middleware(f Filter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.ServeFilter(w, r, next)
		})
	}
}

// Forbidden writes a 403 in the same plain text format as the 401 challenge.
func Forbidden(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(fmt.Sprintf("%d %s\nError: %s\n", http.StatusForbidden, http.StatusText(http.StatusForbidden), err)))
}

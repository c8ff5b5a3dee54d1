// Package handler routes authentication outcomes: pre-authentication errors
// go to an entry point, failures to a failure handler and successes to a
// success handler.
package handler

import (
	"net/http"

	"github.com/pp23/ldapsecurity/internal/authn"
)

// EntryPoint challenges a request that must authenticate first.
type EntryPoint interface {
	Commence(w http.ResponseWriter, r *http.Request, err error)
}

// EntryPointFunc adapts a function to EntryPoint.
type EntryPointFunc func(w http.ResponseWriter, r *http.Request, err error)

func (f EntryPointFunc) Commence(w http.ResponseWriter, r *http.Request, err error) {
	f(w, r, err)
}

type SuccessHandler interface {
	OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, auth *authn.Authentication)
}

type SuccessHandlerFunc func(w http.ResponseWriter, r *http.Request, auth *authn.Authentication)

func (f SuccessHandlerFunc) OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, auth *authn.Authentication) {
	f(w, r, auth)
}

type FailureHandler interface {
	OnAuthenticationFailure(w http.ResponseWriter, r *http.Request, err error)
}

type FailureHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)

func (f FailureHandlerFunc) OnAuthenticationFailure(w http.ResponseWriter, r *http.Request, err error) {
	f(w, r, err)
}

// MatchedEntryPoint is an entry point that only serves some requests.
type MatchedEntryPoint interface {
	EntryPoint
	Supports(r *http.Request) bool
}

type MatchedSuccessHandler interface {
	SuccessHandler
	Supports(r *http.Request, auth *authn.Authentication) bool
}

type MatchedFailureHandler interface {
	FailureHandler
	Supports(r *http.Request, err error) bool
}

type compositeEntryPoint struct {
	candidates []MatchedEntryPoint
	fallback   EntryPoint
}

// EntryPointFor combines the candidates into one entry point. The first
// candidate supporting the request commences; fallback serves the rest.
func EntryPointFor(candidates []MatchedEntryPoint, fallback EntryPoint) EntryPoint {
	if len(candidates) == 0 {
		return fallback
	}
	return &compositeEntryPoint{candidates: candidates, fallback: fallback}
}

func (c *compositeEntryPoint) Commence(w http.ResponseWriter, r *http.Request, err error) {
	for _, candidate := range c.candidates {
		if candidate.Supports(r) {
			candidate.Commence(w, r, err)
			return
		}
	}
	c.fallback.Commence(w, r, err)
}

type compositeSuccessHandler struct {
	candidates []MatchedSuccessHandler
	listeners  []authn.Listener
	fallback   SuccessHandler
}

// SuccessHandlerFor combines the candidates into one success handler.
// Listeners are notified before the response is written.
func SuccessHandlerFor(candidates []MatchedSuccessHandler, listeners []authn.Listener, fallback SuccessHandler) SuccessHandler {
	if len(candidates) == 0 && len(listeners) == 0 {
		return fallback
	}
	return &compositeSuccessHandler{candidates: candidates, listeners: listeners, fallback: fallback}
}

func (c *compositeSuccessHandler) OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, auth *authn.Authentication) {
	for _, l := range c.listeners {
		l.OnSuccess(r, auth)
	}
	for _, candidate := range c.candidates {
		if candidate.Supports(r, auth) {
			candidate.OnAuthenticationSuccess(w, r, auth)
			return
		}
	}
	c.fallback.OnAuthenticationSuccess(w, r, auth)
}

type compositeFailureHandler struct {
	candidates []MatchedFailureHandler
	listeners  []authn.Listener
	fallback   FailureHandler
}

// FailureHandlerFor combines the candidates into one failure handler.
// Listeners are notified before the response is written.
func FailureHandlerFor(candidates []MatchedFailureHandler, listeners []authn.Listener, fallback FailureHandler) FailureHandler {
	if len(candidates) == 0 && len(listeners) == 0 {
		return fallback
	}
	return &compositeFailureHandler{candidates: candidates, listeners: listeners, fallback: fallback}
}

func (c *compositeFailureHandler) OnAuthenticationFailure(w http.ResponseWriter, r *http.Request, err error) {
	for _, l := range c.listeners {
		l.OnFailure(r, err)
	}
	for _, candidate := range c.candidates {
		if candidate.Supports(r, err) {
			candidate.OnAuthenticationFailure(w, r, err)
			return
		}
	}
	c.fallback.OnAuthenticationFailure(w, r, err)
}

package authn

import "net/http"

// Listener observes authentication outcomes.
type Listener interface {
	OnSuccess(r *http.Request, auth *Authentication)
	OnFailure(r *http.Request, err error)
}

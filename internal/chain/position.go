// Package chain builds security filter chains and dispatches requests to the
// first chain whose matcher accepts them.
package chain

// DefaultFilterOrder is the order of the default security chain. Chains of
// this module are registered relative to it.
const DefaultFilterOrder = -100

// Well known filter positions. Filters added before or after a position get
// the position -1 or +1.
const (
	PositionSecurityContext           = 400
	PositionHeaders                   = 500
	PositionCors                      = 600
	PositionCsrf                      = 700
	PositionLogout                    = 800
	PositionUsernamePassword          = 1900
	PositionPostRequestAuthentication = 2000
	PositionBearerToken               = 2100
	PositionBasicAuthentication       = 2400
	PositionRememberMe                = 2600
	PositionAuthorization             = 3200
)

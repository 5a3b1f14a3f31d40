package access

import "errors"

var (
	// ErrAuthentication indicates a missing, malformed or expired identity token.
	ErrAuthentication = errors.New("access: authentication failed")
	// ErrTenantSuspended indicates the token references a tenant whose
	// subscription is no longer active.
	ErrTenantSuspended = errors.New("access: tenant suspended")
	// ErrDenied is the uniform error surfaced for any denied operation.
	// Callers must not reveal which rule fired nor whether the target exists.
	ErrDenied = errors.New("access: not authorized")
	// ErrBypassNotPermitted indicates an invalid bypass request (wrong role,
	// missing justification, or target equals the home tenant).
	ErrBypassNotPermitted = errors.New("access: bypass not permitted")
	// ErrNoPrincipal indicates a unit of work reached the engine without a
	// resolved principal attached to its context.
	ErrNoPrincipal = errors.New("access: no principal in context")
)

package shared

import "errors"

// Sentinel errors shared across domain packages. Handlers map these onto
// the HTTP taxonomy in platform/httpx.
var (
	// ErrNotFound indicates the referenced resource does not exist, or exists
	// outside the caller's tenant scope.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique key collision (role code, email).
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates malformed input or a missing cross-reference.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the caller lacks a required permission or tried
	// to mutate a system role.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or expired session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

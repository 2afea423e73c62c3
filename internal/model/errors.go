package model

import "errors"

// Sentinel errors returned by repositories, the catalog, the state machine and
// the orchestrator sub-services. The API layer maps these to HTTP status codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrSystemProtected   = errors.New("system template protected")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrApprovalRequired  = errors.New("approval required")
)

// errors/engine_errors.go
package errors

import "errors"

// Infrastructure faults raised by Evaluate. Policy-driven denials are never
// errors; they surface as ordinary DENY decisions with a reason code.
var (
	ErrAuditUnavailable       = errors.New("audit sink unavailable")
	ErrPolicyStoreUnavailable = errors.New("policy store unavailable")

	ErrDatabaseOperation = errors.New("database operation failed")
	ErrInternalServer    = errors.New("internal server error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidPagination = errors.New("invalid pagination parameters")
	ErrInvalidReportSpec = errors.New("invalid report specification")
)

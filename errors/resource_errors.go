// errors/resource_errors.go

package errors

import "errors"

var (
	ErrResourceNotFound    = errors.New("resource not found")
	ErrInvalidResourceData = errors.New("invalid resource data")
	ErrResourceConflict    = errors.New("resource conflict")

	ErrPrincipalNotFound    = errors.New("principal not found")
	ErrInvalidPrincipalData = errors.New("invalid principal data")
)

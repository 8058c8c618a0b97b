package errors

import "errors"

var (
	ErrRoleNotFound    = errors.New("role not found")
	ErrRoleConflict    = errors.New("role conflict")
	ErrInvalidRoleData = errors.New("invalid role data")

	ErrPermissionNotFound    = errors.New("permission not found")
	ErrPermissionConflict    = errors.New("permission conflict")
	ErrInvalidPermissionData = errors.New("invalid permission data")

	ErrGrantNotFound    = errors.New("resource grant not found")
	ErrGrantConflict    = errors.New("resource grant conflict")
	ErrGrantRevoked     = errors.New("resource grant already revoked")
	ErrInvalidGrantData = errors.New("invalid resource grant data")
)

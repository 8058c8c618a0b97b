package model

import (
	"fmt"
	"time"
)

// AccessRequest is the input to a single authorization evaluation.
type AccessRequest struct {
	PrincipalID string         `json:"principal_id" binding:"required"`
	ResourceID  string         `json:"resource_id" binding:"required"`
	Action      string         `json:"action" binding:"required"`
	Context     RequestContext `json:"context"`
	Timestamp   time.Time      `json:"timestamp,omitempty"`
}

// RequestContext carries the caller-supplied environment a conditional rule
// may be evaluated against. The engine never derives these values itself;
// session accounting and MFA state belong to the identity service.
type RequestContext struct {
	IPAddress   string `json:"ip_address"`
	DeviceType  string `json:"device_type"`
	MFAVerified bool   `json:"mfa_verified"`
	// SessionCount is the caller's current number of concurrent sessions.
	SessionCount int `json:"current_session_count"`
}

// Fingerprint returns a stable key fragment for decision caching. Two
// contexts with the same fingerprint are indistinguishable to every
// conditional predicate kind.
func (rc RequestContext) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%t|%d", rc.IPAddress, rc.DeviceType, rc.MFAVerified, rc.SessionCount)
}

// model/rules.go
package model

import "time"

// SubjectType identifies whether a rule binds to a principal or a role.
type SubjectType string

const (
	SubjectPrincipal SubjectType = "principal"
	SubjectRole      SubjectType = "role"
)

// TemporalRule defines when a permission on a resource is active for a
// subject. Times are "HH:MM" wall-clock values interpreted in Timezone;
// DaysOfWeek uses ISO numbering, 1 (Monday) through 7 (Sunday). A window
// whose EndTime precedes its StartTime wraps past midnight.
type TemporalRule struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	SubjectType  SubjectType `json:"subject_type"`
	SubjectID    string      `json:"subject_id"`
	ResourceID   string      `json:"resource_id"`
	PermissionID string      `json:"permission_id"`
	StartTime    string      `json:"start_time"`
	EndTime      string      `json:"end_time"`
	DaysOfWeek   []int       `json:"days_of_week"`
	Timezone     string      `json:"timezone"`
	CreatedBy    string      `json:"created_by,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// ConditionalRule gates a permission on request context. Each predicate is a
// typed field rather than an open-ended map, so unknown predicate kinds fail
// validation instead of being silently ignored. Absent predicates are not
// evaluated: open by omission, closed by presence.
type ConditionalRule struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	SubjectType  SubjectType `json:"subject_type"`
	SubjectID    string      `json:"subject_id"`
	ResourceID   string      `json:"resource_id"`
	PermissionID string      `json:"permission_id"`

	AllowedIPRanges       []string `json:"allowed_ip_ranges,omitempty"` // CIDR notation
	AllowedDeviceTypes    []string `json:"allowed_device_types,omitempty"`
	RequireMFA            *bool    `json:"require_mfa,omitempty"`
	MaxConcurrentSessions *int     `json:"max_concurrent_sessions,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasPredicates reports whether at least one predicate is present. A rule
// with an empty bundle would gate nothing and is rejected at validation.
func (r *ConditionalRule) HasPredicates() bool {
	return len(r.AllowedIPRanges) > 0 ||
		len(r.AllowedDeviceTypes) > 0 ||
		r.RequireMFA != nil ||
		r.MaxConcurrentSessions != nil
}

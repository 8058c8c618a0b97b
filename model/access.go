// model/access.go
package model

import "time"

type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Level orders roles by seniority for tie-break reporting in decision
	// traces. It never grants permissions: a role holds exactly the
	// permissions listed in PermissionIDs, nothing is inherited.
	Level         int       `json:"level"`
	PermissionIDs []string  `json:"permission_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Permission struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ResourceType string   `json:"resource_type"`
	Actions      []string `json:"actions"` // e.g., "read", "write", "export"
	// TemporalGated marks the permission as unusable without a currently
	// matching temporal rule on the granting path.
	TemporalGated bool      `json:"temporal_gated"`
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AllowsAction reports whether the permission's action set covers action.
func (p *Permission) AllowsAction(action string) bool {
	for _, a := range p.Actions {
		if a == action {
			return true
		}
	}
	return false
}

type Principal struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	RoleAssignments []RoleAssignment `json:"role_assignments"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type RoleAssignment struct {
	RoleID      string     `json:"role_id"`
	AssignedBy  string     `json:"assigned_by,omitempty"`
	EffectiveAt time.Time  `json:"effective_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the assignment is in effect at the given instant.
func (ra *RoleAssignment) ActiveAt(at time.Time) bool {
	if at.Before(ra.EffectiveAt) {
		return false
	}
	if ra.ExpiresAt != nil && !at.Before(*ra.ExpiresAt) {
		return false
	}
	return true
}

type ResourceGrant struct {
	ID           string     `json:"id"`
	PrincipalID  string     `json:"principal_id"`
	ResourceID   string     `json:"resource_id"`
	PermissionID string     `json:"permission_id"`
	GrantedBy    string     `json:"granted_by"`
	GrantedAt    time.Time  `json:"granted_at"`
	RevokedBy    string     `json:"revoked_by,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Revoked reports whether the grant has been explicitly revoked. Revocation
// is a record on the grant, never a physical erase of its history.
func (g *ResourceGrant) Revoked() bool {
	return g.RevokedAt != nil
}

type RoleSearchCriteria struct {
	Name     string `json:"name,omitempty"`
	MinLevel int    `json:"min_level,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

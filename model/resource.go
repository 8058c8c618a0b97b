// model/resource.go
package model

import "time"

type Resource struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Type           string    `json:"type"`           // e.g., "DOCUMENT", "APPLICATION", "API"
	Classification string    `json:"classification"` // e.g., "public", "internal", "confidential", "restricted"
	Department     string    `json:"department,omitempty"`
	OwnerID        string    `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ResourceSearchCriteria struct {
	Type           string `json:"type,omitempty"`
	Classification string `json:"classification,omitempty"`
	Department     string `json:"department,omitempty"`
	OwnerID        string `json:"owner_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

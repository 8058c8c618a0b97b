// audit/model.go
package audit

import (
	"encoding/json"
	"time"

	pdp_model "github.com/aegis-authz/aegis/pdp/model"
)

// DecisionRecord is one immutable line of the decision trail. Every Evaluate
// call produces exactly one, whether it was computed fresh or served from
// cache.
type DecisionRecord struct {
	ID              string                     `json:"id"`
	Timestamp       time.Time                  `json:"timestamp"`
	PrincipalID     string                     `json:"principal_id"`
	ResourceID      string                     `json:"resource_id"`
	Action          string                     `json:"action"`
	Outcome         string                     `json:"outcome"`
	Reason          string                     `json:"reason"`
	Trace           []pdp_model.PathEvaluation `json:"trace,omitempty"`
	SnapshotVersion int64                      `json:"snapshot_version"`
	Context         *pdp_model.RequestContext  `json:"context,omitempty"`
	ChangeDetails   json.RawMessage            `json:"change_details,omitempty"`
}

// Filter narrows a query over the decision trail. Zero values mean "any".
type Filter struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	PrincipalID string    `json:"principal_id"`
	ResourceID  string    `json:"resource_id"`
	Outcome     string    `json:"outcome"`
	Limit       int       `json:"limit"`
}

// ReportSpec describes a compliance report over the decision trail. Denied
// decisions are excluded unless IncludeFailedAttempts is set.
type ReportSpec struct {
	ReportType            string    `json:"report_type"`
	From                  time.Time `json:"from" binding:"required"`
	To                    time.Time `json:"to" binding:"required"`
	PrincipalID           string    `json:"principal_id"`
	IncludeFailedAttempts bool      `json:"include_failed_attempts"`
}

// Report summarizes decisions over a window, bucketed by the report type's
// dimension.
type Report struct {
	ReportType  string         `json:"report_type"`
	From        time.Time      `json:"from"`
	To          time.Time      `json:"to"`
	Total       int            `json:"total"`
	Allowed     int            `json:"allowed"`
	Denied      int            `json:"denied"`
	Buckets     map[string]int `json:"buckets"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Report types accepted by ReportSpec.ReportType.
const (
	ReportByPrincipal = "by_principal"
	ReportByResource  = "by_resource"
	ReportByReason    = "by_reason"
	ReportByOutcome   = "by_outcome"
)

package model

import "time"

// Outcome of an authorization decision.
const (
	OutcomeAllow = "allow"
	OutcomeDeny  = "deny"
)

// Reason codes attached to decisions. Policy-driven denials carry one of the
// first three; the last two mark infrastructure faults that failed closed.
const (
	ReasonAllowed                = "Allowed"
	ReasonNoGrantingPath         = "NoGrantingPath"
	ReasonOutsideTemporalWindow  = "OutsideTemporalWindow"
	ReasonConditionNotMet        = "ConditionNotMet"
	ReasonAuditUnavailable       = "AuditUnavailable"
	ReasonPolicyStoreUnavailable = "PolicyStoreUnavailable"
)

// Verdict of a single granting path within a decision trace.
const (
	VerdictGranted  = "granted"
	VerdictRejected = "rejected"
)

// Decision is the result of evaluating an AccessRequest against one policy
// snapshot. It is a pure function of the snapshot and the request: identical
// inputs against an unchanged snapshot version yield an identical decision.
type Decision struct {
	Outcome         string           `json:"outcome"`
	Reason          string           `json:"reason"`
	Trace           []PathEvaluation `json:"trace,omitempty"`
	SnapshotVersion int64            `json:"snapshot_version"`
	EvaluatedAt     time.Time        `json:"evaluated_at"`
}

// Allowed reports whether the decision grants access.
func (d *Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

// PathEvaluation records the verdict for one candidate granting path:
// a role→permission edge or a direct resource grant.
type PathEvaluation struct {
	// Source identifies the path origin, "role:<id>" or "grant:<id>".
	Source       string `json:"source"`
	PermissionID string `json:"permission_id"`
	Verdict      string `json:"verdict"`
	Reason       string `json:"reason,omitempty"`
	// RoleLevel is reported for role paths so tie-breaks are visible in
	// audit review. It carries no authorization weight.
	RoleLevel int `json:"role_level,omitempty"`
	// FailedPredicate names the predicate that rejected the path when
	// Reason is ConditionNotMet.
	FailedPredicate string `json:"failed_predicate,omitempty"`
	// RuleIDs lists the temporal/conditional rules consulted on this path.
	RuleIDs []string `json:"rule_ids,omitempty"`
}

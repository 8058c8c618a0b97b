package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegis-authz/aegis/audit"
	aegis_errors "github.com/aegis-authz/aegis/errors"
	logger "github.com/aegis-authz/aegis/logging"
	"github.com/aegis-authz/aegis/model"
	pdp_model "github.com/aegis-authz/aegis/pdp/model"
	"github.com/aegis-authz/aegis/util"
)

// PolicySnapshot is the read contract the evaluator needs from one pinned
// policy version. All lookups observe the same consistent state.
type PolicySnapshot interface {
	Version() int64
	RolesForPrincipal(principalID string, at time.Time) []*model.Role
	PermissionByID(id string) (*model.Permission, bool)
	ResourceByID(id string) (*model.Resource, bool)
	GrantsFor(principalID, resourceID string) []*model.ResourceGrant
	TemporalRulesFor(subjectIDs []string, resourceID, permissionID string) []*model.TemporalRule
	ConditionalRulesFor(subjectIDs []string, resourceID, permissionID string) []*model.ConditionalRule
}

// SnapshotProvider hands the evaluator a snapshot at the start of each call.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (PolicySnapshot, error)
}

// ProviderFunc adapts a function to the SnapshotProvider interface.
type ProviderFunc func(ctx context.Context) (PolicySnapshot, error)

func (f ProviderFunc) Snapshot(ctx context.Context) (PolicySnapshot, error) {
	return f(ctx)
}

// Evaluator is the decision engine. Evaluations are independent and share no
// state beyond the snapshot each one pins; the decision itself is a pure
// function of snapshot plus request.
type Evaluator struct {
	store    SnapshotProvider
	cache    DecisionCache
	audit    audit.Service
	notifier *util.NotificationService
	now      func() time.Time
}

func NewEvaluator(store SnapshotProvider, cache DecisionCache, auditService audit.Service, notifier *util.NotificationService) *Evaluator {
	return &Evaluator{
		store:    store,
		cache:    cache,
		audit:    auditService,
		notifier: notifier,
		now:      time.Now,
	}
}

// Evaluate decides ALLOW/DENY for the request and records the full trace
// before returning. Policy-driven denials are ordinary decisions; only
// infrastructure faults return an error, and those always fail closed.
func (e *Evaluator) Evaluate(ctx context.Context, request *pdp_model.AccessRequest) (*pdp_model.Decision, error) {
	// Callers are trusted enforcement points; an explicit request timestamp
	// pins the evaluation instant for replay and testing.
	now := e.now()
	if !request.Timestamp.IsZero() {
		now = request.Timestamp
	}

	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		logger.Error("Policy snapshot fetch failed, failing closed",
			zap.Error(err),
			zap.String("principalID", request.PrincipalID))
		decision := &pdp_model.Decision{
			Outcome:     pdp_model.OutcomeDeny,
			Reason:      pdp_model.ReasonPolicyStoreUnavailable,
			EvaluatedAt: now,
		}
		// The denial is still recorded; a sink failure here must not pass
		// silently either.
		if recErr := e.record(ctx, request, decision); recErr != nil {
			logger.Error("Audit record enqueue failed during store outage",
				zap.Error(recErr),
				zap.String("principalID", request.PrincipalID),
				zap.String("resourceID", request.ResourceID))
			if e.notifier != nil {
				e.notifier.NotifyOperationalFault(ctx, "audit-sink", recErr)
			}
		}
		return decision, aegis_errors.ErrPolicyStoreUnavailable
	}

	decision := e.lookupCached(ctx, snap.Version(), request)
	if decision == nil {
		decision = decide(snap, request, now)
		e.storeCached(ctx, snap.Version(), request, decision)
	}

	if err := e.record(ctx, request, decision); err != nil {
		// An ALLOW without an audit trail must not leave the engine.
		logger.Error("Audit record enqueue failed, failing closed",
			zap.Error(err),
			zap.String("principalID", request.PrincipalID),
			zap.String("resourceID", request.ResourceID))
		if e.notifier != nil {
			e.notifier.NotifyOperationalFault(ctx, "audit-sink", err)
		}
		return &pdp_model.Decision{
			Outcome:         pdp_model.OutcomeDeny,
			Reason:          pdp_model.ReasonAuditUnavailable,
			SnapshotVersion: snap.Version(),
			EvaluatedAt:     now,
		}, aegis_errors.ErrAuditUnavailable
	}

	return decision, nil
}

func (e *Evaluator) lookupCached(ctx context.Context, version int64, request *pdp_model.AccessRequest) *pdp_model.Decision {
	if e.cache == nil {
		return nil
	}
	cached, err := e.cache.Get(ctx, cacheKey(version, request))
	if err != nil {
		logger.Warn("Decision cache lookup failed", zap.Error(err))
		return nil
	}
	return cached
}

func (e *Evaluator) storeCached(ctx context.Context, version int64, request *pdp_model.AccessRequest, decision *pdp_model.Decision) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, cacheKey(version, request), decision); err != nil {
		logger.Warn("Decision cache store failed", zap.Error(err))
	}
}

func (e *Evaluator) record(ctx context.Context, request *pdp_model.AccessRequest, decision *pdp_model.Decision) error {
	rc := request.Context
	return e.audit.Record(ctx, audit.DecisionRecord{
		ID:              uuid.New().String(),
		Timestamp:       e.now(),
		PrincipalID:     request.PrincipalID,
		ResourceID:      request.ResourceID,
		Action:          request.Action,
		Outcome:         decision.Outcome,
		Reason:          decision.Reason,
		Trace:           decision.Trace,
		SnapshotVersion: decision.SnapshotVersion,
		Context:         &rc,
	})
}

// candidatePath is one potential justification for ALLOW: a role→permission
// edge or a direct resource grant.
type candidatePath struct {
	source     string
	permission *model.Permission
	roleLevel  int
	// subjectIDs are the identities rules may bind to on this path: the
	// principal itself and, for role paths, the role.
	subjectIDs []string
}

// decide runs the pure decision algorithm against one snapshot.
func decide(snap PolicySnapshot, request *pdp_model.AccessRequest, now time.Time) *pdp_model.Decision {
	decision := &pdp_model.Decision{
		Outcome:         pdp_model.OutcomeDeny,
		SnapshotVersion: snap.Version(),
		EvaluatedAt:     now,
	}

	paths := resolvePaths(snap, request, now)
	if len(paths) == 0 {
		decision.Reason = pdp_model.ReasonNoGrantingPath
		return decision
	}

	var granted []pdp_model.PathEvaluation
	var rejected []pdp_model.PathEvaluation

	for _, path := range paths {
		eval := pdp_model.PathEvaluation{
			Source:       path.source,
			PermissionID: path.permission.ID,
			RoleLevel:    path.roleLevel,
		}

		temporalRules := snap.TemporalRulesFor(path.subjectIDs, request.ResourceID, path.permission.ID)
		for _, rule := range temporalRules {
			eval.RuleIDs = append(eval.RuleIDs, rule.ID)
		}
		rejectedByTime := false
		if len(temporalRules) > 0 {
			rejectedByTime = !anyTemporalMatch(temporalRules, now)
		} else if path.permission.TemporalGated {
			// A temporal-gated permission with no active window rule is
			// not currently grantable.
			rejectedByTime = true
		}
		if rejectedByTime {
			eval.Verdict = pdp_model.VerdictRejected
			eval.Reason = pdp_model.ReasonOutsideTemporalWindow
			rejected = append(rejected, eval)
			continue
		}

		conditionalRules := snap.ConditionalRulesFor(path.subjectIDs, request.ResourceID, path.permission.ID)
		for _, rule := range conditionalRules {
			eval.RuleIDs = append(eval.RuleIDs, rule.ID)
		}
		if len(conditionalRules) > 0 {
			if ok, predicate := anyConditionSatisfied(conditionalRules, request.Context); !ok {
				eval.Verdict = pdp_model.VerdictRejected
				eval.Reason = pdp_model.ReasonConditionNotMet
				eval.FailedPredicate = predicate
				rejected = append(rejected, eval)
				continue
			}
		}

		eval.Verdict = pdp_model.VerdictGranted
		granted = append(granted, eval)
	}

	// Permissive union: any surviving path grants access. Rejected paths
	// stay in the trace for audit review but do not override an allow.
	if len(granted) > 0 {
		decision.Outcome = pdp_model.OutcomeAllow
		decision.Reason = pdp_model.ReasonAllowed
		decision.Trace = append(granted, rejected...)
		return decision
	}

	// Most specific reason first: the last-evaluated rejection leads.
	for i, j := 0, len(rejected)-1; i < j; i, j = i+1, j-1 {
		rejected[i], rejected[j] = rejected[j], rejected[i]
	}
	decision.Trace = rejected
	decision.Reason = rejected[0].Reason
	return decision
}

// resolvePaths unions role-derived permissions with direct grants covering
// the requested action.
func resolvePaths(snap PolicySnapshot, request *pdp_model.AccessRequest, now time.Time) []candidatePath {
	var paths []candidatePath

	resource, resourceKnown := snap.ResourceByID(request.ResourceID)

	// Roles never grant implicitly: only the permissions explicitly listed
	// on each active role are considered, and only when the permission's
	// resource type matches the addressed resource.
	if resourceKnown {
		for _, role := range snap.RolesForPrincipal(request.PrincipalID, now) {
			for _, permissionID := range role.PermissionIDs {
				permission, ok := snap.PermissionByID(permissionID)
				if !ok {
					continue
				}
				if permission.ResourceType != resource.Type || !permission.AllowsAction(request.Action) {
					continue
				}
				paths = append(paths, candidatePath{
					source:     "role:" + role.ID,
					permission: permission,
					roleLevel:  role.Level,
					subjectIDs: []string{request.PrincipalID, role.ID},
				})
			}
		}
	}

	// Direct grants address the resource by identifier, so they apply even
	// when the resource is not registered with a type. Revoked grants are
	// history, not paths.
	for _, grant := range snap.GrantsFor(request.PrincipalID, request.ResourceID) {
		if grant.Revoked() {
			continue
		}
		permission, ok := snap.PermissionByID(grant.PermissionID)
		if !ok || !permission.AllowsAction(request.Action) {
			continue
		}
		paths = append(paths, candidatePath{
			source:     "grant:" + grant.ID,
			permission: permission,
			subjectIDs: []string{request.PrincipalID},
		})
	}

	return paths
}

// pdp/engine/evaluator_test.go
package engine_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-authz/aegis/audit"
	aegis_errors "github.com/aegis-authz/aegis/errors"
	logger "github.com/aegis-authz/aegis/logging"
	"github.com/aegis-authz/aegis/model"
	"github.com/aegis-authz/aegis/pdp/engine"
	pdp_model "github.com/aegis-authz/aegis/pdp/model"
	"github.com/aegis-authz/aegis/store"
	"github.com/aegis-authz/aegis/util"
)

func TestMain(m *testing.M) {
	logger.InitLogger(os.TempDir())
	defer logger.Sync()
	os.Exit(m.Run())
}

// mapCache is an in-process DecisionCache for tests.
type mapCache struct {
	entries map[string]*pdp_model.Decision
	hits    int
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*pdp_model.Decision)}
}

func (c *mapCache) Get(ctx context.Context, key string) (*pdp_model.Decision, error) {
	if d, ok := c.entries[key]; ok {
		c.hits++
		return d, nil
	}
	return nil, nil
}

func (c *mapCache) Set(ctx context.Context, key string, decision *pdp_model.Decision) error {
	c.entries[key] = decision
	c.sets++
	return nil
}

// fixture wires a memory-only policy store to a fresh evaluator.
type fixture struct {
	store     *store.Store
	repo      *audit.MemoryRepository
	audit     audit.Service
	cache     *mapCache
	evaluator *engine.Evaluator

	permission *model.Permission
	role       *model.Role
	resource   *model.Resource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := store.New(util.NewEventBus(), nil)
	repo := audit.NewMemoryRepository()
	auditService := audit.NewService(repo, audit.Options{QueueSize: 64, EnqueueTimeout: time.Second, Workers: 1})
	t.Cleanup(func() { auditService.Close() })

	cache := newMapCache()
	provider := engine.ProviderFunc(func(ctx context.Context) (engine.PolicySnapshot, error) {
		return st.Snapshot(ctx)
	})
	evaluator := engine.NewEvaluator(provider, cache, auditService, util.NewNotificationService())

	permission, err := st.CreatePermission(ctx, model.Permission{
		Name:         "document:read",
		ResourceType: "DOCUMENT",
		Actions:      []string{"read"},
	})
	require.NoError(t, err)

	role, err := st.CreateRole(ctx, model.Role{
		Name:          "analyst",
		Level:         10,
		PermissionIDs: []string{permission.ID},
	})
	require.NoError(t, err)

	resource, err := st.CreateResource(ctx, model.Resource{
		ID:             "doc-1",
		Name:           "Quarterly Report",
		Type:           "DOCUMENT",
		Classification: "internal",
		OwnerID:        "system",
	})
	require.NoError(t, err)

	return &fixture{
		store:      st,
		repo:       repo,
		audit:      auditService,
		cache:      cache,
		evaluator:  evaluator,
		permission: permission,
		role:       role,
		resource:   resource,
	}
}

func (f *fixture) assignRole(t *testing.T, principalID string) {
	t.Helper()
	// Effective well before every pinned evaluation instant, so the suite
	// does not depend on the wall clock.
	_, err := f.store.AssignRoleToPrincipal(context.Background(), principalID, model.RoleAssignment{
		RoleID:      f.role.ID,
		AssignedBy:  "test",
		EffectiveAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func readRequest(principalID string) *pdp_model.AccessRequest {
	return &pdp_model.AccessRequest{
		PrincipalID: principalID,
		ResourceID:  "doc-1",
		Action:      "read",
	}
}

func TestEvaluateDefaultDeny(t *testing.T) {
	f := newFixture(t)

	decision, err := f.evaluator.Evaluate(context.Background(), readRequest("stranger"))
	require.NoError(t, err)
	assert.Equal(t, pdp_model.OutcomeDeny, decision.Outcome)
	assert.Equal(t, pdp_model.ReasonNoGrantingPath, decision.Reason)
	assert.Empty(t, decision.Trace)
}

func TestEvaluateRoleGrantsAccess(t *testing.T) {
	f := newFixture(t)
	f.assignRole(t, "alice")

	decision, err := f.evaluator.Evaluate(context.Background(), readRequest("alice"))
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
	assert.Equal(t, pdp_model.ReasonAllowed, decision.Reason)
	require.Len(t, decision.Trace, 1)
	assert.Equal(t, "role:"+f.role.ID, decision.Trace[0].Source)
	assert.Equal(t, pdp_model.VerdictGranted, decision.Trace[0].Verdict)
	assert.Equal(t, 10, decision.Trace[0].RoleLevel)
}

func TestEvaluateActionNotCovered(t *testing.T) {
	f := newFixture(t)
	f.assignRole(t, "alice")

	request := readRequest("alice")
	request.Action = "delete"
	decision, err := f.evaluator.Evaluate(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, pdp_model.OutcomeDeny, decision.Outcome)
	assert.Equal(t, pdp_model.ReasonNoGrantingPath, decision.Reason)
}

func TestEvaluateDirectGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.store.CreateGrant(ctx, model.ResourceGrant{
		PrincipalID:  "bob",
		ResourceID:   f.resource.ID,
		PermissionID: f.permission.ID,
		GrantedBy:    "test",
	})
	require.NoError(t, err)

	decision, err := f.evaluator.Evaluate(ctx, readRequest("bob"))
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
	require.Len(t, decision.Trace, 1)
	assert.Equal(t, "grant:"+grant.ID, decision.Trace[0].Source)

	// Revocation takes effect on the next evaluation.
	_, err = f.store.RevokeGrant(ctx, grant.ID, "test")
	require.NoError(t, err)

	decision, err = f.evaluator.Evaluate(ctx, readRequest("bob"))
	require.NoError(t, err)
	assert.Equal(t, pdp_model.OutcomeDeny, decision.Outcome)
	assert.Equal(t, pdp_model.ReasonNoGrantingPath, decision.Reason)
}

func TestEvaluateExpiredRoleAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	_, err := f.store.AssignRoleToPrincipal(ctx, "carol", model.RoleAssignment{
		RoleID:      f.role.ID,
		AssignedBy:  "test",
		EffectiveAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt:   &expired,
	})
	require.NoError(t, err)

	decision, err := f.evaluator.Evaluate(ctx, readRequest("carol"))
	require.NoError(t, err)
	assert.Equal(t, pdp_model.OutcomeDeny, decision.Outcome)
	assert.Equal(t, pdp_model.ReasonNoGrantingPath, decision.Reason)
}

func TestEvaluateTemporalWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	_, err := f.store.CreateTemporalRule(ctx, model.TemporalRule{
		Name:         "business-hours",
		SubjectType:  model.SubjectRole,
		SubjectID:    f.role.ID,
		ResourceID:   f.resource.ID,
		PermissionID: f.permission.ID,
		StartTime:    "09:00",
		EndTime:      "17:00",
		DaysOfWeek:   []int{1, 2, 3, 4, 5},
		Timezone:     "UTC",
	})
	require.NoError(t, err)

	// Wednesday 10:00 UTC, inside the window.
	request := readRequest("alice")
	request.Timestamp = time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)
	decision, err := f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
	require.Len(t, decision.Trace, 1)
	assert.Len(t, decision.Trace[0].RuleIDs, 1)

	// Wednesday 20:00 UTC, outside the window.
	request = readRequest("alice")
	request.Timestamp = time.Date(2024, 7, 3, 20, 0, 0, 0, time.UTC)
	decision, err = f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, pdp_model.OutcomeDeny, decision.Outcome)
	assert.Equal(t, pdp_model.ReasonOutsideTemporalWindow, decision.Reason)

	// Saturday 10:00 UTC, wrong day.
	request = readRequest("alice")
	request.Timestamp = time.Date(2024, 7, 6, 10, 0, 0, 0, time.UTC)
	decision, err = f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, pdp_model.ReasonOutsideTemporalWindow, decision.Reason)
}

func TestEvaluateOvernightWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	_, err := f.store.CreateTemporalRule(ctx, model.TemporalRule{
		Name:         "night-shift",
		SubjectType:  model.SubjectRole,
		SubjectID:    f.role.ID,
		ResourceID:   f.resource.ID,
		PermissionID: f.permission.ID,
		StartTime:    "22:00",
		EndTime:      "06:00",
		DaysOfWeek:   []int{3}, // Wednesday
		Timezone:     "UTC",
	})
	require.NoError(t, err)

	// Wednesday 23:00, inside the late segment.
	request := readRequest("alice")
	request.Timestamp = time.Date(2024, 7, 3, 23, 0, 0, 0, time.UTC)
	decision, err := f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.True(t, decision.Allowed())

	// Thursday 02:00, the early segment of Wednesday's window.
	request = readRequest("alice")
	request.Timestamp = time.Date(2024, 7, 4, 2, 0, 0, 0, time.UTC)
	decision, err = f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.True(t, decision.Allowed())

	// Wednesday 02:00 does not belong to Wednesday's window.
	request = readRequest("alice")
	request.Timestamp = time.Date(2024, 7, 3, 2, 0, 0, 0, time.UTC)
	decision, err = f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, pdp_model.ReasonOutsideTemporalWindow, decision.Reason)
}

func TestEvaluateTemporalGatedPermissionWithoutRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gated, err := f.store.CreatePermission(ctx, model.Permission{
		Name:          "document:export",
		ResourceType:  "DOCUMENT",
		Actions:       []string{"export"},
		TemporalGated: true,
	})
	require.NoError(t, err)
	_, err = f.store.AssignPermissionToRole(ctx, f.role.ID, gated.ID)
	require.NoError(t, err)
	f.assignRole(t, "alice")

	request := readRequest("alice")
	request.Action = "export"
	decision, err := f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, pdp_model.OutcomeDeny, decision.Outcome)
	assert.Equal(t, pdp_model.ReasonOutsideTemporalWindow, decision.Reason)
}

func TestEvaluateConditionalRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	mfa := true
	_, err := f.store.CreateConditionalRule(ctx, model.ConditionalRule{
		Name:            "corp-network-mfa",
		SubjectType:     model.SubjectRole,
		SubjectID:       f.role.ID,
		ResourceID:      f.resource.ID,
		PermissionID:    f.permission.ID,
		AllowedIPRanges: []string{"10.0.0.0/8"},
		RequireMFA:      &mfa,
	})
	require.NoError(t, err)

	// All predicates hold.
	request := readRequest("alice")
	request.Context = pdp_model.RequestContext{IPAddress: "10.1.2.3", MFAVerified: true}
	decision, err := f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.True(t, decision.Allowed())

	// Off-network caller.
	request = readRequest("alice")
	request.Context = pdp_model.RequestContext{IPAddress: "192.168.1.1", MFAVerified: true}
	decision, err = f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, pdp_model.ReasonConditionNotMet, decision.Reason)
	require.Len(t, decision.Trace, 1)
	assert.Equal(t, engine.PredicateIPAddress, decision.Trace[0].FailedPredicate)

	// On-network but no MFA.
	request = readRequest("alice")
	request.Context = pdp_model.RequestContext{IPAddress: "10.1.2.3", MFAVerified: false}
	decision, err = f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, pdp_model.ReasonConditionNotMet, decision.Reason)
	assert.Equal(t, engine.PredicateMFA, decision.Trace[0].FailedPredicate)
}

func TestEvaluateSessionCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	maxSessions := 3
	_, err := f.store.CreateConditionalRule(ctx, model.ConditionalRule{
		Name:                  "session-cap",
		SubjectType:           model.SubjectRole,
		SubjectID:             f.role.ID,
		ResourceID:            f.resource.ID,
		PermissionID:          f.permission.ID,
		MaxConcurrentSessions: &maxSessions,
	})
	require.NoError(t, err)

	request := readRequest("alice")
	request.Context = pdp_model.RequestContext{SessionCount: 3}
	decision, err := f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.True(t, decision.Allowed())

	request = readRequest("alice")
	request.Context = pdp_model.RequestContext{SessionCount: 4}
	decision, err = f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, pdp_model.ReasonConditionNotMet, decision.Reason)
	assert.Equal(t, engine.PredicateSessionCap, decision.Trace[0].FailedPredicate)
}

func TestEvaluatePermissiveUnion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	// The role path is gated shut; a direct grant still wins.
	_, err := f.store.CreateTemporalRule(ctx, model.TemporalRule{
		Name:         "never-matches-today",
		SubjectType:  model.SubjectRole,
		SubjectID:    f.role.ID,
		ResourceID:   f.resource.ID,
		PermissionID: f.permission.ID,
		StartTime:    "09:00",
		EndTime:      "17:00",
		DaysOfWeek:   []int{6}, // Saturday only
		Timezone:     "UTC",
	})
	require.NoError(t, err)
	_, err = f.store.CreateGrant(ctx, model.ResourceGrant{
		PrincipalID:  "alice",
		ResourceID:   f.resource.ID,
		PermissionID: f.permission.ID,
		GrantedBy:    "test",
	})
	require.NoError(t, err)

	request := readRequest("alice")
	request.Timestamp = time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC) // Wednesday
	decision, err := f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
	require.Len(t, decision.Trace, 2)
	// Granted paths lead the trace; the rejected role path is retained.
	assert.Equal(t, pdp_model.VerdictGranted, decision.Trace[0].Verdict)
	assert.Equal(t, pdp_model.VerdictRejected, decision.Trace[1].Verdict)
	assert.Equal(t, pdp_model.ReasonOutsideTemporalWindow, decision.Trace[1].Reason)
}

func TestEvaluateDeterministicForSameSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	request := readRequest("alice")
	request.Timestamp = time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)

	first, err := f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	second, err := f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)

	assert.Equal(t, first.Outcome, second.Outcome)
	assert.Equal(t, first.Reason, second.Reason)
	assert.Equal(t, first.SnapshotVersion, second.SnapshotVersion)
	// The second evaluation was served from cache, yet both were audited.
	assert.Equal(t, 1, f.cache.sets)
	assert.Equal(t, 1, f.cache.hits)
}

func TestEvaluateCacheInvalidatedByPolicyChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.store.CreateGrant(ctx, model.ResourceGrant{
		PrincipalID:  "bob",
		ResourceID:   f.resource.ID,
		PermissionID: f.permission.ID,
		GrantedBy:    "test",
	})
	require.NoError(t, err)

	request := readRequest("bob")
	request.Timestamp = time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)

	decision, err := f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.True(t, decision.Allowed())

	_, err = f.store.RevokeGrant(ctx, grant.ID, "test")
	require.NoError(t, err)

	// Same request, new snapshot version: the cached ALLOW is unreachable.
	decision, err = f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, pdp_model.OutcomeDeny, decision.Outcome)
	assert.Equal(t, 0, f.cache.hits)
}

func TestEvaluateAuditCompleteness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	request := readRequest("alice")
	request.Timestamp = time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := f.evaluator.Evaluate(ctx, request)
		require.NoError(t, err)
	}
	require.NoError(t, f.audit.Close())

	// One record per evaluation, cache hits included.
	assert.Equal(t, 5, f.repo.Len())
}

func TestEvaluateFailsClosedWhenAuditDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	require.NoError(t, f.audit.Close())

	decision, err := f.evaluator.Evaluate(ctx, readRequest("alice"))
	require.ErrorIs(t, err, aegis_errors.ErrAuditUnavailable)
	require.NotNil(t, decision)
	assert.Equal(t, pdp_model.OutcomeDeny, decision.Outcome)
	assert.Equal(t, pdp_model.ReasonAuditUnavailable, decision.Reason)
}

func TestEvaluateFailsClosedWhenStoreDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	f.store.Close()

	decision, err := f.evaluator.Evaluate(ctx, readRequest("alice"))
	require.ErrorIs(t, err, aegis_errors.ErrPolicyStoreUnavailable)
	require.NotNil(t, decision)
	assert.Equal(t, pdp_model.OutcomeDeny, decision.Outcome)
	assert.Equal(t, pdp_model.ReasonPolicyStoreUnavailable, decision.Reason)
}

func TestEvaluateFailsClosedWhenStoreAndAuditDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	require.NoError(t, f.audit.Close())
	f.store.Close()

	// The store outage is the reason reported to the caller; the sink
	// failure is escalated separately without masking it.
	decision, err := f.evaluator.Evaluate(ctx, readRequest("alice"))
	require.ErrorIs(t, err, aegis_errors.ErrPolicyStoreUnavailable)
	require.NotNil(t, decision)
	assert.Equal(t, pdp_model.OutcomeDeny, decision.Outcome)
	assert.Equal(t, pdp_model.ReasonPolicyStoreUnavailable, decision.Reason)
	assert.Equal(t, 0, f.repo.Len())
}

func TestEvaluatePrincipalBoundRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assignRole(t, "alice")

	// A rule bound to the principal applies to role-derived paths too.
	_, err := f.store.CreateTemporalRule(ctx, model.TemporalRule{
		Name:         "alice-weekends-only",
		SubjectType:  model.SubjectPrincipal,
		SubjectID:    "alice",
		ResourceID:   f.resource.ID,
		PermissionID: f.permission.ID,
		StartTime:    "00:00",
		EndTime:      "23:59",
		DaysOfWeek:   []int{6, 7},
		Timezone:     "UTC",
	})
	require.NoError(t, err)

	request := readRequest("alice")
	request.Timestamp = time.Date(2024, 7, 3, 10, 0, 0, 0, time.UTC) // Wednesday
	decision, err := f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, pdp_model.ReasonOutsideTemporalWindow, decision.Reason)

	request.Timestamp = time.Date(2024, 7, 6, 10, 0, 0, 0, time.UTC) // Saturday
	decision, err = f.evaluator.Evaluate(ctx, request)
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
}

// store/store.go
package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	aegis_errors "github.com/aegis-authz/aegis/errors"
	logger "github.com/aegis-authz/aegis/logging"
	"github.com/aegis-authz/aegis/model"
	"github.com/aegis-authz/aegis/util"
)

// Store is the versioned policy store. Reads are lock-free against an atomic
// snapshot pointer; writes serialize behind a mutex, clone the current
// snapshot, apply the mutation, optionally write through to persistence, and
// publish the successor with a bumped version. In-flight evaluations keep
// whatever snapshot they pinned and never observe a half-applied change.
type Store struct {
	mu        sync.Mutex
	current   atomic.Pointer[Snapshot]
	events    *util.EventBus
	persist   Persistence
	available atomic.Bool
}

// New creates a Store. persist may be nil for a memory-only store.
func New(events *util.EventBus, persist Persistence) *Store {
	s := &Store{events: events, persist: persist}
	s.current.Store(newSnapshot())
	s.available.Store(true)
	return s
}

// Hydrate loads policy state from persistence, replacing the current
// snapshot. A no-op for memory-only stores.
func (s *Store) Hydrate(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.EnsureSchema(ctx); err != nil {
		return err
	}
	snap, err := s.persist.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.version = s.current.Load().version + 1
	s.current.Store(snap)
	logger.Info("Policy store hydrated", zap.Int64("version", snap.version))
	return nil
}

// Snapshot returns the current policy snapshot. Fails with
// ErrPolicyStoreUnavailable once the store is closed; no permission can be
// inferred without a consistent snapshot.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	if !s.available.Load() {
		return nil, aegis_errors.ErrPolicyStoreUnavailable
	}
	return s.current.Load(), nil
}

// Close marks the store unavailable. Subsequent evaluations fail closed.
func (s *Store) Close() {
	s.available.Store(false)
}

// publish swaps in the mutated snapshot with a bumped version and announces
// the change on the event bus.
func (s *Store) publish(ctx context.Context, next *Snapshot, change util.PolicyChange) {
	next.version++
	change.Version = next.version
	s.current.Store(next)
	if s.events != nil {
		s.events.Publish(ctx, util.EventPolicyChanged, change)
	}
}

// CreateRole stores a new role. Duplicate active names are rejected.
func (s *Store) CreateRole(ctx context.Context, role model.Role) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if _, exists := snap.roleByName(role.Name); exists {
		return nil, aegis_errors.ErrRoleConflict
	}
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	if _, exists := snap.roles[role.ID]; exists {
		return nil, aegis_errors.ErrRoleConflict
	}
	for _, permissionID := range role.PermissionIDs {
		if _, ok := snap.permissions[permissionID]; !ok {
			return nil, aegis_errors.ErrPermissionNotFound
		}
	}
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now

	next := snap.clone()
	next.roles[role.ID] = &role
	if s.persist != nil {
		if err := s.persist.SaveRole(ctx, &role); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, next, util.PolicyChange{Entity: "role", EntityID: role.ID, ChangeType: "created"})
	return &role, nil
}

// UpdateRole replaces a role's metadata and permission list. The stored
// entry is replaced, never edited, so published snapshots stay immutable.
func (s *Store) UpdateRole(ctx context.Context, role model.Role) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	existing, ok := snap.roles[role.ID]
	if !ok {
		return nil, aegis_errors.ErrRoleNotFound
	}
	if other, exists := snap.roleByName(role.Name); exists && other.ID != role.ID {
		return nil, aegis_errors.ErrRoleConflict
	}
	for _, permissionID := range role.PermissionIDs {
		if _, ok := snap.permissions[permissionID]; !ok {
			return nil, aegis_errors.ErrPermissionNotFound
		}
	}
	role.CreatedAt = existing.CreatedAt
	role.UpdatedAt = time.Now()

	next := snap.clone()
	next.roles[role.ID] = &role
	if s.persist != nil {
		if err := s.persist.SaveRole(ctx, &role); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, next, util.PolicyChange{Entity: "role", EntityID: role.ID, ChangeType: "updated"})
	return &role, nil
}

// AssignPermissionToRole appends a permission to a role's explicit list.
func (s *Store) AssignPermissionToRole(ctx context.Context, roleID, permissionID string) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	role, ok := snap.roles[roleID]
	if !ok {
		return nil, aegis_errors.ErrRoleNotFound
	}
	if _, ok := snap.permissions[permissionID]; !ok {
		return nil, aegis_errors.ErrPermissionNotFound
	}
	for _, existing := range role.PermissionIDs {
		if existing == permissionID {
			return role, nil
		}
	}
	updated := *role
	updated.PermissionIDs = append(append([]string(nil), role.PermissionIDs...), permissionID)
	updated.UpdatedAt = time.Now()

	next := snap.clone()
	next.roles[roleID] = &updated
	if s.persist != nil {
		if err := s.persist.SaveRole(ctx, &updated); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, next, util.PolicyChange{Entity: "role", EntityID: roleID, ChangeType: "updated"})
	return &updated, nil
}

// CreatePermission stores a new permission. Permissions referenced by active
// grants are immutable; changes create a new version entry instead.
func (s *Store) CreatePermission(ctx context.Context, permission model.Permission) (*model.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if _, exists := snap.permissionByName(permission.Name); exists {
		return nil, aegis_errors.ErrPermissionConflict
	}
	if permission.ID == "" {
		permission.ID = uuid.New().String()
	}
	if _, exists := snap.permissions[permission.ID]; exists {
		return nil, aegis_errors.ErrPermissionConflict
	}
	now := time.Now()
	permission.Version = 1
	permission.CreatedAt = now
	permission.UpdatedAt = now

	next := snap.clone()
	next.permissions[permission.ID] = &permission
	if s.persist != nil {
		if err := s.persist.SavePermission(ctx, &permission); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, next, util.PolicyChange{Entity: "permission", EntityID: permission.ID, ChangeType: "created"})
	return &permission, nil
}

// AssignRoleToPrincipal records a role assignment. The principal entry is
// created on first assignment; principal lifecycle is owned by the identity
// subsystem, this store only mirrors the assignment edge.
func (s *Store) AssignRoleToPrincipal(ctx context.Context, principalID string, assignment model.RoleAssignment) (*model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if _, ok := snap.roles[assignment.RoleID]; !ok {
		return nil, aegis_errors.ErrRoleNotFound
	}
	if assignment.EffectiveAt.IsZero() {
		assignment.EffectiveAt = time.Now()
	}

	var updated model.Principal
	if existing, ok := snap.principals[principalID]; ok {
		updated = *existing
		updated.RoleAssignments = append(append([]model.RoleAssignment(nil), existing.RoleAssignments...), assignment)
	} else {
		updated = model.Principal{ID: principalID, CreatedAt: time.Now()}
		updated.RoleAssignments = []model.RoleAssignment{assignment}
	}
	updated.UpdatedAt = time.Now()

	next := snap.clone()
	next.principals[principalID] = &updated
	if s.persist != nil {
		if err := s.persist.SavePrincipal(ctx, &updated); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, next, util.PolicyChange{
		Entity: "principal", EntityID: principalID, ChangeType: "updated", PrincipalID: principalID,
	})
	return &updated, nil
}

// CreateResource stores a new resource.
func (s *Store) CreateResource(ctx context.Context, resource model.Resource) (*model.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if resource.ID == "" {
		resource.ID = uuid.New().String()
	}
	if _, exists := snap.resources[resource.ID]; exists {
		return nil, aegis_errors.ErrResourceConflict
	}
	now := time.Now()
	resource.CreatedAt = now
	resource.UpdatedAt = now

	next := snap.clone()
	next.resources[resource.ID] = &resource
	if s.persist != nil {
		if err := s.persist.SaveResource(ctx, &resource); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, next, util.PolicyChange{Entity: "resource", EntityID: resource.ID, ChangeType: "created", ResourceID: resource.ID})
	return &resource, nil
}

// CreateGrant records a direct resource grant. Grants are additive only; a
// duplicate active grant for the same triple is a conflict.
func (s *Store) CreateGrant(ctx context.Context, grant model.ResourceGrant) (*model.ResourceGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if _, ok := snap.resources[grant.ResourceID]; !ok {
		return nil, aegis_errors.ErrResourceNotFound
	}
	if _, ok := snap.permissions[grant.PermissionID]; !ok {
		return nil, aegis_errors.ErrPermissionNotFound
	}
	key := grantKey(grant.PrincipalID, grant.ResourceID)
	for _, existing := range snap.grants[key] {
		if !existing.Revoked() && existing.PermissionID == grant.PermissionID {
			return nil, aegis_errors.ErrGrantConflict
		}
	}
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now()
	}

	next := snap.clone()
	next.grants[key] = append(next.grants[key], &grant)
	if s.persist != nil {
		if err := s.persist.SaveGrant(ctx, &grant); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, next, util.PolicyChange{
		Entity: "grant", EntityID: grant.ID, ChangeType: "created",
		PrincipalID: grant.PrincipalID, ResourceID: grant.ResourceID,
	})
	return &grant, nil
}

// RevokeGrant marks a grant revoked. The grant record stays in history;
// revocation is an appended fact, not an erase.
func (s *Store) RevokeGrant(ctx context.Context, grantID, revokedBy string) (*model.ResourceGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	var key string
	var index int
	var found *model.ResourceGrant
	for k, bucket := range snap.grants {
		for i, g := range bucket {
			if g.ID == grantID {
				key, index, found = k, i, g
				break
			}
		}
		if found != nil {
			break
		}
	}
	if found == nil {
		return nil, aegis_errors.ErrGrantNotFound
	}
	if found.Revoked() {
		return nil, aegis_errors.ErrGrantRevoked
	}

	revoked := *found
	now := time.Now()
	revoked.RevokedAt = &now
	revoked.RevokedBy = revokedBy

	next := snap.clone()
	next.grants[key][index] = &revoked
	if s.persist != nil {
		if err := s.persist.SaveGrant(ctx, &revoked); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, next, util.PolicyChange{
		Entity: "grant", EntityID: grantID, ChangeType: "revoked",
		PrincipalID: revoked.PrincipalID, ResourceID: revoked.ResourceID,
	})
	if s.events != nil {
		s.events.Publish(ctx, util.EventGrantRevoked, revoked)
	}
	return &revoked, nil
}

// CreateTemporalRule stores a temporal rule. A rule whose name collides with
// an active rule on the same (subject, resource, permission) triple is a
// conflict.
func (s *Store) CreateTemporalRule(ctx context.Context, rule model.TemporalRule) (*model.TemporalRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if err := s.checkRuleRefs(snap, rule.SubjectType, rule.SubjectID, rule.ResourceID, rule.PermissionID); err != nil {
		return nil, err
	}
	key := ruleKey(rule.SubjectID, rule.ResourceID, rule.PermissionID)
	for _, existing := range snap.temporalRules[key] {
		if existing.Name == rule.Name {
			return nil, aegis_errors.ErrTemporalRuleConflict
		}
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now()

	next := snap.clone()
	next.temporalRules[key] = append(next.temporalRules[key], &rule)
	if s.persist != nil {
		if err := s.persist.SaveTemporalRule(ctx, &rule); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, next, util.PolicyChange{Entity: "temporal_rule", EntityID: rule.ID, ChangeType: "created", ResourceID: rule.ResourceID})
	return &rule, nil
}

// CreateConditionalRule stores a conditional rule under the same conflict
// semantics as temporal rules.
func (s *Store) CreateConditionalRule(ctx context.Context, rule model.ConditionalRule) (*model.ConditionalRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current.Load()
	if err := s.checkRuleRefs(snap, rule.SubjectType, rule.SubjectID, rule.ResourceID, rule.PermissionID); err != nil {
		return nil, err
	}
	key := ruleKey(rule.SubjectID, rule.ResourceID, rule.PermissionID)
	for _, existing := range snap.conditionalRules[key] {
		if existing.Name == rule.Name {
			return nil, aegis_errors.ErrConditionalRuleConflict
		}
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now()

	next := snap.clone()
	next.conditionalRules[key] = append(next.conditionalRules[key], &rule)
	if s.persist != nil {
		if err := s.persist.SaveConditionalRule(ctx, &rule); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, next, util.PolicyChange{Entity: "conditional_rule", EntityID: rule.ID, ChangeType: "created", ResourceID: rule.ResourceID})
	return &rule, nil
}

func (s *Store) checkRuleRefs(snap *Snapshot, subjectType model.SubjectType, subjectID, resourceID, permissionID string) error {
	switch subjectType {
	case model.SubjectRole:
		if _, ok := snap.roles[subjectID]; !ok {
			return aegis_errors.ErrRoleNotFound
		}
	case model.SubjectPrincipal:
		// Principals may be referenced before their first role assignment;
		// the identity subsystem owns their lifecycle.
	}
	if _, ok := snap.resources[resourceID]; !ok {
		return aegis_errors.ErrResourceNotFound
	}
	if _, ok := snap.permissions[permissionID]; !ok {
		return aegis_errors.ErrPermissionNotFound
	}
	return nil
}

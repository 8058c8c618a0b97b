// service/policy_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	aegis_errors "github.com/aegis-authz/aegis/errors"
	logger "github.com/aegis-authz/aegis/logging"
	"github.com/aegis-authz/aegis/model"
	"github.com/aegis-authz/aegis/pdp/engine"
	pdp_model "github.com/aegis-authz/aegis/pdp/model"
	"github.com/aegis-authz/aegis/store"
	"github.com/aegis-authz/aegis/util"
)

// IPolicyService defines the interface for policy administration operations
type IPolicyService interface {
	CreateRole(ctx context.Context, role model.Role) (*model.Role, error)
	UpdateRole(ctx context.Context, role model.Role) (*model.Role, error)
	AssignPermissionToRole(ctx context.Context, roleID, permissionID string) (*model.Role, error)
	GetRole(ctx context.Context, roleID string) (*model.Role, error)
	ListRoles(ctx context.Context, limit, offset int) ([]*model.Role, error)
	SearchRoles(ctx context.Context, criteria model.RoleSearchCriteria) ([]*model.Role, error)
	CreatePermission(ctx context.Context, permission model.Permission) (*model.Permission, error)
	GetPermission(ctx context.Context, permissionID string) (*model.Permission, error)
	ListPermissions(ctx context.Context, limit, offset int) ([]*model.Permission, error)
	AssignRoleToPrincipal(ctx context.Context, principalID string, assignment model.RoleAssignment) (*model.Principal, error)
	GetPrincipal(ctx context.Context, principalID string) (*model.Principal, error)
	CreateResource(ctx context.Context, resource model.Resource) (*model.Resource, error)
	GetResource(ctx context.Context, resourceID string) (*model.Resource, error)
	ListResources(ctx context.Context, limit, offset int) ([]*model.Resource, error)
	SearchResources(ctx context.Context, criteria model.ResourceSearchCriteria) ([]*model.Resource, error)
	CreateGrant(ctx context.Context, grant model.ResourceGrant) (*model.ResourceGrant, error)
	RevokeGrant(ctx context.Context, grantID, revokedBy string) (*model.ResourceGrant, error)
	ListGrants(ctx context.Context, principalID, resourceID string) ([]*model.ResourceGrant, error)
	BulkGrantResourceAccess(ctx context.Context, resourceID, permissionID, grantedBy string, principalIDs []string) ([]*model.ResourceGrant, error)
	CreateTemporalRule(ctx context.Context, rule model.TemporalRule) (*model.TemporalRule, error)
	ListTemporalRules(ctx context.Context, limit, offset int) ([]*model.TemporalRule, error)
	CreateConditionalRule(ctx context.Context, rule model.ConditionalRule) (*model.ConditionalRule, error)
	ListConditionalRules(ctx context.Context, limit, offset int) ([]*model.ConditionalRule, error)
	CheckConditionalRules(ctx context.Context, principalID, resourceID, permissionID string, rc pdp_model.RequestContext) (*ConditionalRuleCheck, error)
	PolicyVersion(ctx context.Context) (int64, error)
}

// ConditionalRuleCheckResult reports one rule's verdict against a supplied
// context.
type ConditionalRuleCheckResult struct {
	RuleID          string `json:"rule_id"`
	RuleName        string `json:"rule_name"`
	Satisfied       bool   `json:"satisfied"`
	FailedPredicate string `json:"failed_predicate,omitempty"`
}

// ConditionalRuleCheck aggregates the verdicts of every conditional rule bound
// to a (principal, resource, permission) triple.
type ConditionalRuleCheck struct {
	Satisfied bool                         `json:"satisfied"`
	Results   []ConditionalRuleCheckResult `json:"results"`
}

// PolicyService handles business logic for policy administration: validation
// ahead of the store, change notifications behind it.
type PolicyService struct {
	store           *store.Store
	validationUtil  *util.ValidationUtil
	notificationSvc *util.NotificationService
	eventBus        *util.EventBus
}

var _ IPolicyService = &PolicyService{}

// NewPolicyService creates a new instance of PolicyService
func NewPolicyService(policyStore *store.Store, validationUtil *util.ValidationUtil, notificationSvc *util.NotificationService, eventBus *util.EventBus) *PolicyService {
	service := &PolicyService{
		store:           policyStore,
		validationUtil:  validationUtil,
		notificationSvc: notificationSvc,
		eventBus:        eventBus,
	}

	// Set up event subscriptions
	eventBus.Subscribe(util.EventPolicyChanged, service.handlePolicyChanged)
	eventBus.Subscribe(util.EventGrantRevoked, service.handleGrantRevoked)

	return service
}

func (s *PolicyService) handlePolicyChanged(ctx context.Context, event util.Event) error {
	change, ok := event.Payload.(util.PolicyChange)
	if !ok {
		logger.Error("Invalid event payload type", zap.Any("payload", event.Payload))
		return fmt.Errorf("invalid event payload type: %T", event.Payload)
	}
	logger.Info("Policy change event received",
		zap.String("entity", change.Entity),
		zap.String("entityID", change.EntityID),
		zap.String("changeType", change.ChangeType),
		zap.Int64("version", change.Version))

	if err := s.notificationSvc.NotifyPolicyChange(ctx, change); err != nil {
		logger.Warn("Failed to send policy change notification",
			zap.Error(err), zap.String("entityID", change.EntityID))
	}
	return nil
}

func (s *PolicyService) handleGrantRevoked(ctx context.Context, event util.Event) error {
	grant, ok := event.Payload.(model.ResourceGrant)
	if !ok {
		logger.Error("Invalid event payload type", zap.Any("payload", event.Payload))
		return fmt.Errorf("invalid event payload type: %T", event.Payload)
	}
	logger.Info("Grant revoked event received",
		zap.String("grantID", grant.ID),
		zap.String("principalID", grant.PrincipalID),
		zap.String("resourceID", grant.ResourceID))
	return s.notificationSvc.NotifyAdmins(ctx,
		fmt.Sprintf("grant %s revoked for principal %s on resource %s", grant.ID, grant.PrincipalID, grant.ResourceID))
}

// CreateRole validates and stores a new role.
func (s *PolicyService) CreateRole(ctx context.Context, role model.Role) (*model.Role, error) {
	if err := s.validationUtil.ValidateRole(role); err != nil {
		return nil, fmt.Errorf("invalid role: %w", err)
	}
	created, err := s.store.CreateRole(ctx, role)
	if err != nil {
		logger.Error("Failed to create role", zap.Error(err), zap.String("roleName", role.Name))
		return nil, err
	}
	logger.Info("Role created successfully", zap.String("roleID", created.ID))
	return created, nil
}

// UpdateRole validates and replaces an existing role.
func (s *PolicyService) UpdateRole(ctx context.Context, role model.Role) (*model.Role, error) {
	if err := s.validationUtil.ValidateRole(role); err != nil {
		return nil, fmt.Errorf("invalid role: %w", err)
	}
	updated, err := s.store.UpdateRole(ctx, role)
	if err != nil {
		logger.Error("Failed to update role", zap.Error(err), zap.String("roleID", role.ID))
		return nil, err
	}
	logger.Info("Role updated successfully", zap.String("roleID", updated.ID))
	return updated, nil
}

// AssignPermissionToRole appends a permission to a role's explicit list.
func (s *PolicyService) AssignPermissionToRole(ctx context.Context, roleID, permissionID string) (*model.Role, error) {
	updated, err := s.store.AssignPermissionToRole(ctx, roleID, permissionID)
	if err != nil {
		logger.Error("Failed to assign permission to role",
			zap.Error(err), zap.String("roleID", roleID), zap.String("permissionID", permissionID))
		return nil, err
	}
	return updated, nil
}

// GetRole retrieves a role by ID.
func (s *PolicyService) GetRole(ctx context.Context, roleID string) (*model.Role, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	role, ok := snap.RoleByID(roleID)
	if !ok {
		return nil, aegis_errors.ErrRoleNotFound
	}
	return role, nil
}

// ListRoles returns all roles, paginated.
func (s *PolicyService) ListRoles(ctx context.Context, limit, offset int) ([]*model.Role, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return paginate(snap.Roles(), limit, offset), nil
}

// SearchRoles filters roles by the given criteria.
func (s *PolicyService) SearchRoles(ctx context.Context, criteria model.RoleSearchCriteria) ([]*model.Role, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var matched []*model.Role
	for _, role := range snap.Roles() {
		if criteria.Name != "" && role.Name != criteria.Name {
			continue
		}
		if criteria.MinLevel > 0 && role.Level < criteria.MinLevel {
			continue
		}
		matched = append(matched, role)
	}
	return paginate(matched, criteria.Limit, criteria.Offset), nil
}

// CreatePermission validates and stores a new permission.
func (s *PolicyService) CreatePermission(ctx context.Context, permission model.Permission) (*model.Permission, error) {
	if err := s.validationUtil.ValidatePermission(permission); err != nil {
		return nil, fmt.Errorf("invalid permission: %w", err)
	}
	created, err := s.store.CreatePermission(ctx, permission)
	if err != nil {
		logger.Error("Failed to create permission", zap.Error(err), zap.String("permissionName", permission.Name))
		return nil, err
	}
	logger.Info("Permission created successfully", zap.String("permissionID", created.ID))
	return created, nil
}

// GetPermission retrieves a permission by ID.
func (s *PolicyService) GetPermission(ctx context.Context, permissionID string) (*model.Permission, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	permission, ok := snap.PermissionByID(permissionID)
	if !ok {
		return nil, aegis_errors.ErrPermissionNotFound
	}
	return permission, nil
}

// ListPermissions returns all permissions, paginated.
func (s *PolicyService) ListPermissions(ctx context.Context, limit, offset int) ([]*model.Permission, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return paginate(snap.Permissions(), limit, offset), nil
}

// AssignRoleToPrincipal records a role assignment for a principal.
func (s *PolicyService) AssignRoleToPrincipal(ctx context.Context, principalID string, assignment model.RoleAssignment) (*model.Principal, error) {
	if principalID == "" {
		return nil, fmt.Errorf("principal ID cannot be empty")
	}
	if assignment.RoleID == "" {
		return nil, fmt.Errorf("assignment role ID cannot be empty")
	}
	updated, err := s.store.AssignRoleToPrincipal(ctx, principalID, assignment)
	if err != nil {
		logger.Error("Failed to assign role to principal",
			zap.Error(err), zap.String("principalID", principalID), zap.String("roleID", assignment.RoleID))
		return nil, err
	}
	logger.Info("Role assigned to principal",
		zap.String("principalID", principalID), zap.String("roleID", assignment.RoleID))
	return updated, nil
}

// GetPrincipal retrieves a principal and its role assignments.
func (s *PolicyService) GetPrincipal(ctx context.Context, principalID string) (*model.Principal, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	principal, ok := snap.PrincipalByID(principalID)
	if !ok {
		return nil, aegis_errors.ErrPrincipalNotFound
	}
	return principal, nil
}

// CreateResource validates and registers a new resource.
func (s *PolicyService) CreateResource(ctx context.Context, resource model.Resource) (*model.Resource, error) {
	if err := s.validationUtil.ValidateResource(resource); err != nil {
		return nil, fmt.Errorf("invalid resource: %w", err)
	}
	created, err := s.store.CreateResource(ctx, resource)
	if err != nil {
		logger.Error("Failed to create resource", zap.Error(err), zap.String("resourceName", resource.Name))
		return nil, err
	}
	logger.Info("Resource created successfully", zap.String("resourceID", created.ID))
	return created, nil
}

// GetResource retrieves a resource by ID.
func (s *PolicyService) GetResource(ctx context.Context, resourceID string) (*model.Resource, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	resource, ok := snap.ResourceByID(resourceID)
	if !ok {
		return nil, aegis_errors.ErrResourceNotFound
	}
	return resource, nil
}

// ListResources returns all resources, paginated.
func (s *PolicyService) ListResources(ctx context.Context, limit, offset int) ([]*model.Resource, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return paginate(snap.Resources(), limit, offset), nil
}

// SearchResources filters resources by the given criteria.
func (s *PolicyService) SearchResources(ctx context.Context, criteria model.ResourceSearchCriteria) ([]*model.Resource, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var matched []*model.Resource
	for _, resource := range snap.Resources() {
		if criteria.Type != "" && resource.Type != criteria.Type {
			continue
		}
		if criteria.Classification != "" && resource.Classification != criteria.Classification {
			continue
		}
		if criteria.Department != "" && resource.Department != criteria.Department {
			continue
		}
		if criteria.OwnerID != "" && resource.OwnerID != criteria.OwnerID {
			continue
		}
		matched = append(matched, resource)
	}
	return paginate(matched, criteria.Limit, criteria.Offset), nil
}

// CreateGrant validates and records a direct resource grant.
func (s *PolicyService) CreateGrant(ctx context.Context, grant model.ResourceGrant) (*model.ResourceGrant, error) {
	if err := s.validationUtil.ValidateGrant(grant); err != nil {
		return nil, fmt.Errorf("invalid grant: %w", err)
	}
	created, err := s.store.CreateGrant(ctx, grant)
	if err != nil {
		logger.Error("Failed to create grant",
			zap.Error(err), zap.String("principalID", grant.PrincipalID), zap.String("resourceID", grant.ResourceID))
		return nil, err
	}
	logger.Info("Grant created successfully", zap.String("grantID", created.ID))
	return created, nil
}

// RevokeGrant marks a grant revoked. The record stays in history.
func (s *PolicyService) RevokeGrant(ctx context.Context, grantID, revokedBy string) (*model.ResourceGrant, error) {
	if revokedBy == "" {
		return nil, fmt.Errorf("revocation must record who revoked")
	}
	revoked, err := s.store.RevokeGrant(ctx, grantID, revokedBy)
	if err != nil {
		logger.Error("Failed to revoke grant", zap.Error(err), zap.String("grantID", grantID))
		return nil, err
	}
	logger.Info("Grant revoked", zap.String("grantID", grantID), zap.String("revokedBy", revokedBy))
	return revoked, nil
}

// ListGrants returns every grant recorded for a principal on a resource,
// revoked history included.
func (s *PolicyService) ListGrants(ctx context.Context, principalID, resourceID string) ([]*model.ResourceGrant, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.GrantsFor(principalID, resourceID), nil
}

// BulkGrantResourceAccess grants the same permission on one resource to many
// principals concurrently. Store writes serialize internally; the fan-out
// parallelizes validation and keeps the first error.
func (s *PolicyService) BulkGrantResourceAccess(ctx context.Context, resourceID, permissionID, grantedBy string, principalIDs []string) ([]*model.ResourceGrant, error) {
	grants := make([]*model.ResourceGrant, len(principalIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, principalID := range principalIDs {
		i, principalID := i, principalID
		g.Go(func() error {
			grant, err := s.CreateGrant(gctx, model.ResourceGrant{
				PrincipalID:  principalID,
				ResourceID:   resourceID,
				PermissionID: permissionID,
				GrantedBy:    grantedBy,
			})
			if err != nil {
				return fmt.Errorf("grant for principal %s: %w", principalID, err)
			}
			grants[i] = grant
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return grants, nil
}

// CreateTemporalRule validates and stores a temporal rule.
func (s *PolicyService) CreateTemporalRule(ctx context.Context, rule model.TemporalRule) (*model.TemporalRule, error) {
	if err := s.validationUtil.ValidateTemporalRule(rule); err != nil {
		return nil, fmt.Errorf("%w: %v", aegis_errors.ErrInvalidTemporalRuleData, err)
	}
	created, err := s.store.CreateTemporalRule(ctx, rule)
	if err != nil {
		logger.Error("Failed to create temporal rule", zap.Error(err), zap.String("ruleName", rule.Name))
		return nil, err
	}
	logger.Info("Temporal rule created", zap.String("ruleID", created.ID))
	return created, nil
}

// ListTemporalRules returns all temporal rules, paginated.
func (s *PolicyService) ListTemporalRules(ctx context.Context, limit, offset int) ([]*model.TemporalRule, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return paginate(snap.TemporalRules(), limit, offset), nil
}

// CreateConditionalRule validates and stores a conditional rule.
func (s *PolicyService) CreateConditionalRule(ctx context.Context, rule model.ConditionalRule) (*model.ConditionalRule, error) {
	if err := s.validationUtil.ValidateConditionalRule(rule); err != nil {
		return nil, fmt.Errorf("%w: %v", aegis_errors.ErrInvalidConditionalRuleData, err)
	}
	created, err := s.store.CreateConditionalRule(ctx, rule)
	if err != nil {
		logger.Error("Failed to create conditional rule", zap.Error(err), zap.String("ruleName", rule.Name))
		return nil, err
	}
	logger.Info("Conditional rule created", zap.String("ruleID", created.ID))
	return created, nil
}

// ListConditionalRules returns all conditional rules, paginated.
func (s *PolicyService) ListConditionalRules(ctx context.Context, limit, offset int) ([]*model.ConditionalRule, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return paginate(snap.ConditionalRules(), limit, offset), nil
}

// CheckConditionalRules evaluates every conditional rule bound to the given
// (principal, resource, permission) triple against a supplied context. It is
// a dry run over the predicate layer only: no decision is produced and no
// audit record is written. A triple with no bound rules is satisfied.
func (s *PolicyService) CheckConditionalRules(ctx context.Context, principalID, resourceID, permissionID string, rc pdp_model.RequestContext) (*ConditionalRuleCheck, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.PermissionByID(permissionID); !ok {
		return nil, aegis_errors.ErrPermissionNotFound
	}

	subjectIDs := []string{principalID}
	for _, role := range snap.RolesForPrincipal(principalID, time.Now()) {
		subjectIDs = append(subjectIDs, role.ID)
	}

	rules := snap.ConditionalRulesFor(subjectIDs, resourceID, permissionID)
	check := &ConditionalRuleCheck{Satisfied: len(rules) == 0}
	for _, rule := range rules {
		ok, predicate := engine.ConditionSatisfied(rule, rc)
		if ok {
			check.Satisfied = true
		}
		check.Results = append(check.Results, ConditionalRuleCheckResult{
			RuleID:          rule.ID,
			RuleName:        rule.Name,
			Satisfied:       ok,
			FailedPredicate: predicate,
		})
	}
	return check, nil
}

// PolicyVersion reports the current snapshot version.
func (s *PolicyService) PolicyVersion(ctx context.Context) (int64, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Version(), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

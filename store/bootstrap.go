// store/bootstrap.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	aegis_errors "github.com/aegis-authz/aegis/errors"
	logger "github.com/aegis-authz/aegis/logging"
	"github.com/aegis-authz/aegis/model"
)

// Identifiers for the store's own administration policy. Mutation endpoints
// are themselves guarded by an Evaluate call against this permission.
const (
	AdminResourceID     = "policy-store"
	AdminResourceType   = "POLICY_STORE"
	AdminAction         = "administer"
	AdminRoleName       = "rbac-administrator"
	AdminPermissionName = "rbac:administer"
)

// EnsureBootstrapPolicy seeds the administration role, permission, and
// resource, and assigns the role to the configured bootstrap principals.
// Idempotent: existing entities are reused, existing assignments kept.
func EnsureBootstrapPolicy(ctx context.Context, s *Store, adminPrincipals []string) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	permission, ok := snap.permissionByName(AdminPermissionName)
	if !ok {
		permission, err = s.CreatePermission(ctx, model.Permission{
			Name:         AdminPermissionName,
			Description:  "Administer roles, permissions, grants, and rules",
			ResourceType: AdminResourceType,
			Actions:      []string{AdminAction, "read"},
		})
		if err != nil {
			return fmt.Errorf("failed to seed admin permission: %w", err)
		}
	}

	if _, ok = snap.resources[AdminResourceID]; !ok {
		_, err = s.CreateResource(ctx, model.Resource{
			ID:             AdminResourceID,
			Name:           "Policy Store",
			Description:    "The access-control policy store itself",
			Type:           AdminResourceType,
			Classification: "restricted",
			OwnerID:        "system",
		})
		if err != nil && !errors.Is(err, aegis_errors.ErrResourceConflict) {
			return fmt.Errorf("failed to seed admin resource: %w", err)
		}
	}

	role, ok := snap.roleByName(AdminRoleName)
	if !ok {
		role, err = s.CreateRole(ctx, model.Role{
			Name:          AdminRoleName,
			Description:   "Full administration of the policy store",
			Level:         100,
			PermissionIDs: []string{permission.ID},
		})
		if err != nil {
			return fmt.Errorf("failed to seed admin role: %w", err)
		}
	}

	for _, principalID := range adminPrincipals {
		if alreadyAssigned(snap, principalID, role.ID) {
			continue
		}
		if _, err := s.AssignRoleToPrincipal(ctx, principalID, model.RoleAssignment{
			RoleID:      role.ID,
			AssignedBy:  "bootstrap",
			EffectiveAt: time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to assign admin role to %s: %w", principalID, err)
		}
		logger.Info("Bootstrap admin principal assigned",
			zap.String("principalID", principalID),
			zap.String("roleID", role.ID))
	}
	return nil
}

func alreadyAssigned(snap *Snapshot, principalID, roleID string) bool {
	principal, ok := snap.principals[principalID]
	if !ok {
		return false
	}
	for _, assignment := range principal.RoleAssignments {
		if assignment.RoleID == roleID {
			return true
		}
	}
	return false
}

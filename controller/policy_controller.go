// controller/policy_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	aegis_errors "github.com/aegis-authz/aegis/errors"
	"github.com/aegis-authz/aegis/model"
	pdp_model "github.com/aegis-authz/aegis/pdp/model"
	"github.com/aegis-authz/aegis/service"
	"github.com/aegis-authz/aegis/util"
	helper_util "github.com/aegis-authz/aegis/util/helper"
)

type PolicyController struct {
	policyService service.IPolicyService
}

func NewPolicyController(policyService service.IPolicyService) *PolicyController {
	return &PolicyController{
		policyService: policyService,
	}
}

// RegisterRoutes registers the policy administration routes. The router wraps
// this group in the admin guard; every mutation here is itself subject to an
// access evaluation.
func (pc *PolicyController) RegisterRoutes(r *gin.RouterGroup) {
	roles := r.Group("/roles")
	{
		roles.POST("", pc.CreateRole)
		roles.PUT("/:id", pc.UpdateRole)
		roles.GET("/:id", pc.GetRole)
		roles.GET("", pc.ListRoles)
		roles.POST("/search", pc.SearchRoles)
		roles.POST("/:id/permissions/:permissionId", pc.AssignPermissionToRole)
	}
	permissions := r.Group("/permissions")
	{
		permissions.POST("", pc.CreatePermission)
		permissions.GET("/:id", pc.GetPermission)
		permissions.GET("", pc.ListPermissions)
	}
	principals := r.Group("/principals")
	{
		principals.GET("/:id", pc.GetPrincipal)
		principals.POST("/:id/roles", pc.AssignRoleToPrincipal)
	}
	resources := r.Group("/resources")
	{
		resources.POST("", pc.CreateResource)
		resources.GET("/:id", pc.GetResource)
		resources.GET("", pc.ListResources)
		resources.POST("/search", pc.SearchResources)
	}
	grants := r.Group("/grants")
	{
		grants.POST("", pc.CreateGrant)
		grants.POST("/bulk", pc.BulkGrant)
		grants.DELETE("/:id", pc.RevokeGrant)
		grants.GET("", pc.ListGrants)
	}
	temporalRules := r.Group("/temporal-rules")
	{
		temporalRules.POST("", pc.CreateTemporalRule)
		temporalRules.GET("", pc.ListTemporalRules)
	}
	conditionalRules := r.Group("/conditional-rules")
	{
		conditionalRules.POST("", pc.CreateConditionalRule)
		conditionalRules.GET("", pc.ListConditionalRules)
		conditionalRules.POST("/check", pc.CheckConditionalRules)
	}
	r.GET("/policy-version", pc.PolicyVersion)
}

// CreateRole endpoint
func (pc *PolicyController) CreateRole(c *gin.Context) {
	var role model.Role
	if err := c.ShouldBindJSON(&role); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid role data", aegis_errors.ErrInvalidRoleData)
		return
	}

	createdRole, err := pc.policyService.CreateRole(c, role)
	if err != nil {
		switch {
		case errors.Is(err, aegis_errors.ErrRoleConflict):
			util.RespondWithError(c, http.StatusConflict, "Role already exists", err)
		case errors.Is(err, aegis_errors.ErrPermissionNotFound):
			util.RespondWithError(c, http.StatusBadRequest, "Referenced permission not found", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create role", err)
		}
		return
	}

	c.JSON(http.StatusCreated, createdRole)
}

// UpdateRole endpoint
func (pc *PolicyController) UpdateRole(c *gin.Context) {
	roleID := c.Param("id")
	var role model.Role
	if err := c.ShouldBindJSON(&role); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid role data", err)
		return
	}
	role.ID = roleID

	updatedRole, err := pc.policyService.UpdateRole(c, role)
	if err != nil {
		switch {
		case errors.Is(err, aegis_errors.ErrRoleNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Role not found", err)
		case errors.Is(err, aegis_errors.ErrRoleConflict):
			util.RespondWithError(c, http.StatusConflict, "Role name already in use", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to update role", err)
		}
		return
	}

	c.JSON(http.StatusOK, updatedRole)
}

// GetRole endpoint
func (pc *PolicyController) GetRole(c *gin.Context) {
	roleID := c.Param("id")

	role, err := pc.policyService.GetRole(c, roleID)
	if err != nil {
		if errors.Is(err, aegis_errors.ErrRoleNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Role not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve role", err)
		}
		return
	}

	c.JSON(http.StatusOK, role)
}

// ListRoles endpoint
func (pc *PolicyController) ListRoles(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	roles, err := pc.policyService.ListRoles(c, limit, offset)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list roles", err)
		return
	}

	c.JSON(http.StatusOK, roles)
}

// SearchRoles endpoint
func (pc *PolicyController) SearchRoles(c *gin.Context) {
	var criteria model.RoleSearchCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid search criteria", err)
		return
	}

	roles, err := pc.policyService.SearchRoles(c, criteria)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to search roles", err)
		return
	}

	c.JSON(http.StatusOK, roles)
}

// AssignPermissionToRole endpoint
func (pc *PolicyController) AssignPermissionToRole(c *gin.Context) {
	roleID := c.Param("id")
	permissionID := c.Param("permissionId")

	updatedRole, err := pc.policyService.AssignPermissionToRole(c, roleID, permissionID)
	if err != nil {
		switch {
		case errors.Is(err, aegis_errors.ErrRoleNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Role not found", err)
		case errors.Is(err, aegis_errors.ErrPermissionNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Permission not found", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to assign permission", err)
		}
		return
	}

	c.JSON(http.StatusOK, updatedRole)
}

// CreatePermission endpoint
func (pc *PolicyController) CreatePermission(c *gin.Context) {
	var permission model.Permission
	if err := c.ShouldBindJSON(&permission); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid permission data", aegis_errors.ErrInvalidPermissionData)
		return
	}

	createdPermission, err := pc.policyService.CreatePermission(c, permission)
	if err != nil {
		if errors.Is(err, aegis_errors.ErrPermissionConflict) {
			util.RespondWithError(c, http.StatusConflict, "Permission already exists", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create permission", err)
		}
		return
	}

	c.JSON(http.StatusCreated, createdPermission)
}

// GetPermission endpoint
func (pc *PolicyController) GetPermission(c *gin.Context) {
	permissionID := c.Param("id")

	permission, err := pc.policyService.GetPermission(c, permissionID)
	if err != nil {
		if errors.Is(err, aegis_errors.ErrPermissionNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Permission not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve permission", err)
		}
		return
	}

	c.JSON(http.StatusOK, permission)
}

// ListPermissions endpoint
func (pc *PolicyController) ListPermissions(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	permissions, err := pc.policyService.ListPermissions(c, limit, offset)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list permissions", err)
		return
	}

	c.JSON(http.StatusOK, permissions)
}

// GetPrincipal endpoint
func (pc *PolicyController) GetPrincipal(c *gin.Context) {
	principalID := c.Param("id")

	principal, err := pc.policyService.GetPrincipal(c, principalID)
	if err != nil {
		if errors.Is(err, aegis_errors.ErrPrincipalNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Principal not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve principal", err)
		}
		return
	}

	c.JSON(http.StatusOK, principal)
}

// AssignRoleToPrincipal endpoint
func (pc *PolicyController) AssignRoleToPrincipal(c *gin.Context) {
	principalID := c.Param("id")
	var assignment model.RoleAssignment
	if err := c.ShouldBindJSON(&assignment); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid role assignment", err)
		return
	}
	if assignment.AssignedBy == "" {
		callerID, err := util.GetPrincipalIDFromContext(c)
		if err != nil {
			util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", aegis_errors.ErrUnauthorized)
			return
		}
		assignment.AssignedBy = callerID
	}

	principal, err := pc.policyService.AssignRoleToPrincipal(c, principalID, assignment)
	if err != nil {
		if errors.Is(err, aegis_errors.ErrRoleNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Role not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to assign role", err)
		}
		return
	}

	c.JSON(http.StatusOK, principal)
}

// CreateResource endpoint
func (pc *PolicyController) CreateResource(c *gin.Context) {
	var resource model.Resource
	if err := c.ShouldBindJSON(&resource); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid resource data", aegis_errors.ErrInvalidResourceData)
		return
	}

	createdResource, err := pc.policyService.CreateResource(c, resource)
	if err != nil {
		if errors.Is(err, aegis_errors.ErrResourceConflict) {
			util.RespondWithError(c, http.StatusConflict, "Resource already exists", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create resource", err)
		}
		return
	}

	c.JSON(http.StatusCreated, createdResource)
}

// GetResource endpoint
func (pc *PolicyController) GetResource(c *gin.Context) {
	resourceID := c.Param("id")

	resource, err := pc.policyService.GetResource(c, resourceID)
	if err != nil {
		if errors.Is(err, aegis_errors.ErrResourceNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Resource not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve resource", err)
		}
		return
	}

	c.JSON(http.StatusOK, resource)
}

// ListResources endpoint
func (pc *PolicyController) ListResources(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	resources, err := pc.policyService.ListResources(c, limit, offset)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list resources", err)
		return
	}

	c.JSON(http.StatusOK, resources)
}

// SearchResources endpoint
func (pc *PolicyController) SearchResources(c *gin.Context) {
	var criteria model.ResourceSearchCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid search criteria", err)
		return
	}

	resources, err := pc.policyService.SearchResources(c, criteria)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to search resources", err)
		return
	}

	c.JSON(http.StatusOK, resources)
}

// CreateGrant endpoint
func (pc *PolicyController) CreateGrant(c *gin.Context) {
	var grant model.ResourceGrant
	if err := c.ShouldBindJSON(&grant); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid grant data", aegis_errors.ErrInvalidGrantData)
		return
	}
	if grant.GrantedBy == "" {
		callerID, err := util.GetPrincipalIDFromContext(c)
		if err != nil {
			util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", aegis_errors.ErrUnauthorized)
			return
		}
		grant.GrantedBy = callerID
	}

	createdGrant, err := pc.policyService.CreateGrant(c, grant)
	if err != nil {
		switch {
		case errors.Is(err, aegis_errors.ErrGrantConflict):
			util.RespondWithError(c, http.StatusConflict, "Equivalent active grant exists", err)
		case errors.Is(err, aegis_errors.ErrResourceNotFound):
			util.RespondWithError(c, http.StatusBadRequest, "Resource not found", err)
		case errors.Is(err, aegis_errors.ErrPermissionNotFound):
			util.RespondWithError(c, http.StatusBadRequest, "Permission not found", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create grant", err)
		}
		return
	}

	c.JSON(http.StatusCreated, createdGrant)
}

type bulkGrantRequest struct {
	ResourceID   string   `json:"resource_id" binding:"required"`
	PermissionID string   `json:"permission_id" binding:"required"`
	PrincipalIDs []string `json:"principal_ids" binding:"required"`
}

// BulkGrant endpoint
func (pc *PolicyController) BulkGrant(c *gin.Context) {
	var request bulkGrantRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid bulk grant request", err)
		return
	}
	callerID, err := util.GetPrincipalIDFromContext(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", aegis_errors.ErrUnauthorized)
		return
	}

	grants, err := pc.policyService.BulkGrantResourceAccess(c, request.ResourceID, request.PermissionID, callerID, request.PrincipalIDs)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to create grants", err)
		return
	}

	c.JSON(http.StatusCreated, grants)
}

// RevokeGrant endpoint
func (pc *PolicyController) RevokeGrant(c *gin.Context) {
	grantID := c.Param("id")
	callerID, err := util.GetPrincipalIDFromContext(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", aegis_errors.ErrUnauthorized)
		return
	}

	revokedGrant, err := pc.policyService.RevokeGrant(c, grantID, callerID)
	if err != nil {
		switch {
		case errors.Is(err, aegis_errors.ErrGrantNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Grant not found", err)
		case errors.Is(err, aegis_errors.ErrGrantRevoked):
			util.RespondWithError(c, http.StatusConflict, "Grant already revoked", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to revoke grant", err)
		}
		return
	}

	c.JSON(http.StatusOK, revokedGrant)
}

// ListGrants endpoint
func (pc *PolicyController) ListGrants(c *gin.Context) {
	principalID := c.Query("principal_id")
	resourceID := c.Query("resource_id")
	if principalID == "" || resourceID == "" {
		util.RespondWithError(c, http.StatusBadRequest, "principal_id and resource_id are required", aegis_errors.ErrInvalidGrantData)
		return
	}

	grants, err := pc.policyService.ListGrants(c, principalID, resourceID)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list grants", err)
		return
	}

	c.JSON(http.StatusOK, grants)
}

// CreateTemporalRule endpoint
func (pc *PolicyController) CreateTemporalRule(c *gin.Context) {
	var rule model.TemporalRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid temporal rule data", aegis_errors.ErrInvalidTemporalRuleData)
		return
	}

	createdRule, err := pc.policyService.CreateTemporalRule(c, rule)
	if err != nil {
		switch {
		case errors.Is(err, aegis_errors.ErrInvalidTemporalRuleData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid temporal rule", err)
		case errors.Is(err, aegis_errors.ErrTemporalRuleConflict):
			util.RespondWithError(c, http.StatusConflict, "Temporal rule already exists", err)
		case errors.Is(err, aegis_errors.ErrRoleNotFound),
			errors.Is(err, aegis_errors.ErrResourceNotFound),
			errors.Is(err, aegis_errors.ErrPermissionNotFound):
			util.RespondWithError(c, http.StatusBadRequest, "Rule references unknown entity", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create temporal rule", err)
		}
		return
	}

	c.JSON(http.StatusCreated, createdRule)
}

// ListTemporalRules endpoint
func (pc *PolicyController) ListTemporalRules(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	rules, err := pc.policyService.ListTemporalRules(c, limit, offset)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list temporal rules", err)
		return
	}

	c.JSON(http.StatusOK, rules)
}

// CreateConditionalRule endpoint
func (pc *PolicyController) CreateConditionalRule(c *gin.Context) {
	var rule model.ConditionalRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid conditional rule data", aegis_errors.ErrInvalidConditionalRuleData)
		return
	}

	createdRule, err := pc.policyService.CreateConditionalRule(c, rule)
	if err != nil {
		switch {
		case errors.Is(err, aegis_errors.ErrInvalidConditionalRuleData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid conditional rule", err)
		case errors.Is(err, aegis_errors.ErrConditionalRuleConflict):
			util.RespondWithError(c, http.StatusConflict, "Conditional rule already exists", err)
		case errors.Is(err, aegis_errors.ErrRoleNotFound),
			errors.Is(err, aegis_errors.ErrResourceNotFound),
			errors.Is(err, aegis_errors.ErrPermissionNotFound):
			util.RespondWithError(c, http.StatusBadRequest, "Rule references unknown entity", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create conditional rule", err)
		}
		return
	}

	c.JSON(http.StatusCreated, createdRule)
}

// ListConditionalRules endpoint
func (pc *PolicyController) ListConditionalRules(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	rules, err := pc.policyService.ListConditionalRules(c, limit, offset)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list conditional rules", err)
		return
	}

	c.JSON(http.StatusOK, rules)
}

type conditionalRuleCheckRequest struct {
	PrincipalID  string                   `json:"principal_id" binding:"required"`
	ResourceID   string                   `json:"resource_id" binding:"required"`
	PermissionID string                   `json:"permission_id" binding:"required"`
	Context      pdp_model.RequestContext `json:"context"`
}

// CheckConditionalRules endpoint. Dry-runs the conditional predicates for a
// triple against a supplied context without producing a decision.
func (pc *PolicyController) CheckConditionalRules(c *gin.Context) {
	var request conditionalRuleCheckRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid conditional rule check", err)
		return
	}

	check, err := pc.policyService.CheckConditionalRules(c, request.PrincipalID, request.ResourceID, request.PermissionID, request.Context)
	if err != nil {
		if errors.Is(err, aegis_errors.ErrPermissionNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Permission not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to check conditional rules", err)
		}
		return
	}

	c.JSON(http.StatusOK, check)
}

// PolicyVersion endpoint
func (pc *PolicyController) PolicyVersion(c *gin.Context) {
	version, err := pc.policyService.PolicyVersion(c)
	if err != nil {
		util.RespondWithError(c, http.StatusServiceUnavailable, "Policy store unavailable", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"version": version})
}

// controller/policy_controller_test.go
package controller_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-authz/aegis/controller"
	"github.com/aegis-authz/aegis/model"
	"github.com/aegis-authz/aegis/pdp/engine"
	"github.com/aegis-authz/aegis/service"
	"github.com/aegis-authz/aegis/store"
	"github.com/aegis-authz/aegis/util"
)

func newPolicyRouter() (*gin.Engine, *store.Store) {
	st := store.New(util.NewEventBus(), nil)
	policyService := service.NewPolicyService(st, util.NewValidationUtil(), util.NewNotificationService(), util.NewEventBus())
	policyController := controller.NewPolicyController(policyService)

	router := gin.New()
	// Stand in for the auth middleware.
	router.Use(func(c *gin.Context) {
		c.Set("principalID", "admin")
		c.Next()
	})
	policyController.RegisterRoutes(router.Group("/"))
	return router, st
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestPolicyController(t *testing.T) {
	router, st := newPolicyRouter()

	var permission model.Permission
	var role model.Role
	var grant model.ResourceGrant

	t.Run("CreatePermission_Success", func(t *testing.T) {
		w := doJSON(router, "POST", "/permissions",
			`{"name":"document:read","resource_type":"DOCUMENT","actions":["read"]}`)
		require.Equal(t, http.StatusCreated, w.Code)
		require.NoError(t, json.NewDecoder(w.Body).Decode(&permission))
		assert.NotEmpty(t, permission.ID)
	})

	t.Run("CreatePermission_Conflict", func(t *testing.T) {
		w := doJSON(router, "POST", "/permissions",
			`{"name":"document:read","resource_type":"DOCUMENT","actions":["read"]}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("CreateRole_Success", func(t *testing.T) {
		body := fmt.Sprintf(`{"name":"analyst","level":10,"permission_ids":[%q]}`, permission.ID)
		w := doJSON(router, "POST", "/roles", body)
		require.Equal(t, http.StatusCreated, w.Code)
		require.NoError(t, json.NewDecoder(w.Body).Decode(&role))
	})

	t.Run("CreateRole_UnknownPermission", func(t *testing.T) {
		w := doJSON(router, "POST", "/roles", `{"name":"broken","permission_ids":["ghost"]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("GetRole_NotFound", func(t *testing.T) {
		w := doJSON(router, "GET", "/roles/ghost", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("CreateResource_Success", func(t *testing.T) {
		w := doJSON(router, "POST", "/resources",
			`{"id":"doc-1","name":"Quarterly Report","type":"DOCUMENT","classification":"internal","owner_id":"system"}`)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("AssignRoleToPrincipal_Success", func(t *testing.T) {
		body := fmt.Sprintf(`{"role_id":%q}`, role.ID)
		w := doJSON(router, "POST", "/principals/alice/roles", body)
		require.Equal(t, http.StatusOK, w.Code)

		var principal model.Principal
		require.NoError(t, json.NewDecoder(w.Body).Decode(&principal))
		require.Len(t, principal.RoleAssignments, 1)
		// The caller identity backfills AssignedBy.
		assert.Equal(t, "admin", principal.RoleAssignments[0].AssignedBy)
	})

	t.Run("CreateGrant_Success", func(t *testing.T) {
		body := fmt.Sprintf(`{"principal_id":"bob","resource_id":"doc-1","permission_id":%q}`, permission.ID)
		w := doJSON(router, "POST", "/grants", body)
		require.Equal(t, http.StatusCreated, w.Code)
		require.NoError(t, json.NewDecoder(w.Body).Decode(&grant))
		assert.Equal(t, "admin", grant.GrantedBy)
	})

	t.Run("CreateGrant_Duplicate", func(t *testing.T) {
		body := fmt.Sprintf(`{"principal_id":"bob","resource_id":"doc-1","permission_id":%q}`, permission.ID)
		w := doJSON(router, "POST", "/grants", body)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("RevokeGrant_Success", func(t *testing.T) {
		w := doJSON(router, "DELETE", "/grants/"+grant.ID, "")
		require.Equal(t, http.StatusOK, w.Code)

		var revoked model.ResourceGrant
		require.NoError(t, json.NewDecoder(w.Body).Decode(&revoked))
		assert.True(t, revoked.Revoked())
		assert.Equal(t, "admin", revoked.RevokedBy)
	})

	t.Run("RevokeGrant_AlreadyRevoked", func(t *testing.T) {
		w := doJSON(router, "DELETE", "/grants/"+grant.ID, "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("CreateTemporalRule_Success", func(t *testing.T) {
		body := fmt.Sprintf(`{
			"name":"business-hours","subject_type":"role","subject_id":%q,
			"resource_id":"doc-1","permission_id":%q,
			"start_time":"09:00","end_time":"17:00","days_of_week":[1,2,3,4,5],"timezone":"UTC"
		}`, role.ID, permission.ID)
		w := doJSON(router, "POST", "/temporal-rules", body)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("CreateTemporalRule_BadDayOfWeek", func(t *testing.T) {
		body := fmt.Sprintf(`{
			"name":"bad-days","subject_type":"role","subject_id":%q,
			"resource_id":"doc-1","permission_id":%q,
			"start_time":"09:00","end_time":"17:00","days_of_week":[0,8],"timezone":"UTC"
		}`, role.ID, permission.ID)
		w := doJSON(router, "POST", "/temporal-rules", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("CreateConditionalRule_EmptyPredicates", func(t *testing.T) {
		body := fmt.Sprintf(`{
			"name":"empty","subject_type":"role","subject_id":%q,
			"resource_id":"doc-1","permission_id":%q
		}`, role.ID, permission.ID)
		w := doJSON(router, "POST", "/conditional-rules", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("CreateConditionalRule_Success", func(t *testing.T) {
		body := fmt.Sprintf(`{
			"name":"corp-network","subject_type":"role","subject_id":%q,
			"resource_id":"doc-1","permission_id":%q,
			"allowed_ip_ranges":["10.0.0.0/8"],"require_mfa":true
		}`, role.ID, permission.ID)
		w := doJSON(router, "POST", "/conditional-rules", body)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("CheckConditionalRules_Satisfied", func(t *testing.T) {
		body := fmt.Sprintf(`{
			"principal_id":"alice","resource_id":"doc-1","permission_id":%q,
			"context":{"ip_address":"10.1.2.3","mfa_verified":true}
		}`, permission.ID)
		w := doJSON(router, "POST", "/conditional-rules/check", body)
		require.Equal(t, http.StatusOK, w.Code)

		var check service.ConditionalRuleCheck
		require.NoError(t, json.NewDecoder(w.Body).Decode(&check))
		assert.True(t, check.Satisfied)
		require.Len(t, check.Results, 1)
	})

	t.Run("CheckConditionalRules_FailedPredicate", func(t *testing.T) {
		body := fmt.Sprintf(`{
			"principal_id":"alice","resource_id":"doc-1","permission_id":%q,
			"context":{"ip_address":"192.168.1.1","mfa_verified":true}
		}`, permission.ID)
		w := doJSON(router, "POST", "/conditional-rules/check", body)
		require.Equal(t, http.StatusOK, w.Code)

		var check service.ConditionalRuleCheck
		require.NoError(t, json.NewDecoder(w.Body).Decode(&check))
		assert.False(t, check.Satisfied)
		require.Len(t, check.Results, 1)
		assert.Equal(t, engine.PredicateIPAddress, check.Results[0].FailedPredicate)
	})

	t.Run("CheckConditionalRules_UnknownPermission", func(t *testing.T) {
		w := doJSON(router, "POST", "/conditional-rules/check",
			`{"principal_id":"alice","resource_id":"doc-1","permission_id":"ghost","context":{}}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("ListRoles_Paginated", func(t *testing.T) {
		w := doJSON(router, "GET", "/roles?limit=10&offset=0", "")
		require.Equal(t, http.StatusOK, w.Code)

		var roles []*model.Role
		require.NoError(t, json.NewDecoder(w.Body).Decode(&roles))
		assert.Len(t, roles, 1)
	})

	t.Run("PolicyVersion_TracksMutations", func(t *testing.T) {
		w := doJSON(router, "GET", "/policy-version", "")
		require.Equal(t, http.StatusOK, w.Code)

		var payload map[string]int64
		require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))
		snap, err := st.Snapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, snap.Version(), payload["version"])
	})
}

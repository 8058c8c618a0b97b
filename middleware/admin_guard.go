// middleware/admin_guard.go

package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	aegis_errors "github.com/aegis-authz/aegis/errors"
	logger "github.com/aegis-authz/aegis/logging"
	pdp_model "github.com/aegis-authz/aegis/pdp/model"
	"github.com/aegis-authz/aegis/service"
	"github.com/aegis-authz/aegis/store"
	"github.com/aegis-authz/aegis/util"
)

// AdminGuard protects policy mutation routes with the engine's own decision
// path: the caller must be allowed to administer the policy store. The guard
// consumes the same default-deny, fail-closed semantics as any other
// evaluation.
func AdminGuard(accessService service.IAccessService) gin.HandlerFunc {
	return func(c *gin.Context) {
		principalID, err := util.GetPrincipalIDFromContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		decision, err := accessService.Evaluate(c, pdp_model.AccessRequest{
			PrincipalID: principalID,
			ResourceID:  store.AdminResourceID,
			Action:      store.AdminAction,
			Context: pdp_model.RequestContext{
				IPAddress: c.ClientIP(),
			},
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, aegis_errors.ErrAuditUnavailable) || errors.Is(err, aegis_errors.ErrPolicyStoreUnavailable) {
				status = http.StatusServiceUnavailable
			}
			logger.Error("Admin guard evaluation failed",
				zap.Error(err), zap.String("principalID", principalID))
			c.JSON(status, gin.H{"error": "Policy administration unavailable"})
			c.Abort()
			return
		}
		if !decision.Allowed() {
			logger.Warn("Admin access denied",
				zap.String("principalID", principalID),
				zap.String("reason", decision.Reason))
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden", "reason": decision.Reason})
			c.Abort()
			return
		}

		c.Next()
	}
}

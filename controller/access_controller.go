// controller/access_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	aegis_errors "github.com/aegis-authz/aegis/errors"
	pdp_model "github.com/aegis-authz/aegis/pdp/model"
	"github.com/aegis-authz/aegis/service"
	"github.com/aegis-authz/aegis/util"
)

type AccessController struct {
	accessService service.IAccessService
}

func NewAccessController(accessService service.IAccessService) *AccessController {
	return &AccessController{
		accessService: accessService,
	}
}

// RegisterRoutes registers the API routes
func (ac *AccessController) RegisterRoutes(r *gin.RouterGroup) {
	access := r.Group("/access")
	{
		access.POST("/evaluate", ac.Evaluate)
	}
}

// Evaluate endpoint. A policy DENY is a successful evaluation and returns
// 200; 503 is reserved for fail-closed infrastructure denials, which are
// retryable.
func (ac *AccessController) Evaluate(c *gin.Context) {
	var request pdp_model.AccessRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid access request", err)
		return
	}

	decision, err := ac.accessService.Evaluate(c, request)
	if err != nil {
		switch {
		case errors.Is(err, aegis_errors.ErrAuditUnavailable),
			errors.Is(err, aegis_errors.ErrPolicyStoreUnavailable):
			c.JSON(http.StatusServiceUnavailable, decision)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to evaluate access", aegis_errors.ErrInternalServer)
		}
		return
	}

	c.JSON(http.StatusOK, decision)
}

// controller/audit_controller.go
package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aegis-authz/aegis/audit"
	aegis_errors "github.com/aegis-authz/aegis/errors"
	"github.com/aegis-authz/aegis/util"
	helper_util "github.com/aegis-authz/aegis/util/helper"
)

type AuditController struct {
	auditService audit.Service
}

func NewAuditController(auditService audit.Service) *AuditController {
	return &AuditController{
		auditService: auditService,
	}
}

// RegisterRoutes registers the audit query routes.
func (ac *AuditController) RegisterRoutes(r *gin.RouterGroup) {
	auditGroup := r.Group("/audit")
	{
		auditGroup.GET("/decisions", ac.QueryDecisions)
		auditGroup.GET("/principals/:id/trail", ac.PrincipalTrail)
		auditGroup.POST("/reports", ac.GenerateReport)
	}
}

// QueryDecisions endpoint
func (ac *AuditController) QueryDecisions(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid audit query", err)
		return
	}

	records, err := ac.auditService.Query(c, filter)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to query decision trail", err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// PrincipalTrail endpoint
func (ac *AuditController) PrincipalTrail(c *gin.Context) {
	principalID := c.Param("id")
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid limit", aegis_errors.ErrInvalidPagination)
			return
		}
		limit = parsed
	}

	records, err := ac.auditService.PrincipalTrail(c, principalID, limit)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve principal trail", err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// GenerateReport endpoint
func (ac *AuditController) GenerateReport(c *gin.Context) {
	var spec audit.ReportSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid report specification", aegis_errors.ErrInvalidReportSpec)
		return
	}

	report, err := ac.auditService.GenerateReport(c, spec)
	if err != nil {
		if errors.Is(err, aegis_errors.ErrInvalidReportSpec) {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid report specification", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to generate report", err)
		}
		return
	}

	c.JSON(http.StatusOK, report)
}

func parseFilter(c *gin.Context) (audit.Filter, error) {
	var filter audit.Filter
	if raw := c.Query("from"); raw != "" {
		from, err := helper_util.ParseTime(raw)
		if err != nil {
			return filter, err
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := helper_util.ParseTime(raw)
		if err != nil {
			return filter, err
		}
		filter.To = to
	}
	filter.PrincipalID = c.Query("principal_id")
	filter.ResourceID = c.Query("resource_id")
	filter.Outcome = c.Query("outcome")
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filter, aegis_errors.ErrInvalidPagination
		}
		filter.Limit = limit
	}
	return filter, nil
}

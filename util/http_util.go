// util/http_util.go
package util

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	aegis_errors "github.com/aegis-authz/aegis/errors"
	logger "github.com/aegis-authz/aegis/logging"
)

func RespondWithError(c *gin.Context, code int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.JSON(code, gin.H{"error": message})
}

func GetPrincipalIDFromContext(c *gin.Context) (string, error) {
	principalID, exists := c.Get("principalID")
	if !exists {
		return "", aegis_errors.ErrUnauthorized
	}
	id, ok := principalID.(string)
	if !ok || id == "" {
		return "", aegis_errors.ErrUnauthorized
	}
	return id, nil
}

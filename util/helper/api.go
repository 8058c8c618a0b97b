// util/helper/api.go

// Package helper_util carries small request-parsing helpers shared by the
// HTTP controllers.
package helper_util

import (
	"strconv"

	"github.com/gin-gonic/gin"

	aegis_errors "github.com/aegis-authz/aegis/errors"
)

// GetPaginationParams reads the limit and offset query parameters, defaulting
// to 10 and 0. Non-numeric or negative values are rejected.
func GetPaginationParams(c *gin.Context) (limit int, offset int, err error) {
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil {
		return 0, 0, aegis_errors.ErrInvalidPagination
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		return 0, 0, aegis_errors.ErrInvalidPagination
	}
	if limit < 0 || offset < 0 {
		return 0, 0, aegis_errors.ErrInvalidPagination
	}
	return limit, offset, nil
}

// util/helper/api_test.go

package helper_util

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aegis_errors "github.com/aegis-authz/aegis/errors"
)

func paginationContext(query string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/items"+query, nil)
	return c
}

func TestGetPaginationParams(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limit, offset, err := GetPaginationParams(paginationContext(""))
	require.NoError(t, err)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 0, offset)

	limit, offset, err = GetPaginationParams(paginationContext("?limit=25&offset=50"))
	require.NoError(t, err)
	assert.Equal(t, 25, limit)
	assert.Equal(t, 50, offset)

	_, _, err = GetPaginationParams(paginationContext("?limit=ten"))
	assert.ErrorIs(t, err, aegis_errors.ErrInvalidPagination)

	_, _, err = GetPaginationParams(paginationContext("?offset=-1"))
	assert.ErrorIs(t, err, aegis_errors.ErrInvalidPagination)
}

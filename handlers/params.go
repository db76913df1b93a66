package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/vinetrail/vinetrail-backend/errors"
)

// PaginationParams holds limit/offset query values.
type PaginationParams struct {
	Limit  int
	Offset int
}

// getPaginationParams extracts and validates pagination parameters from the request
func getPaginationParams(c *gin.Context, defaultLimit, defaultOffset int) PaginationParams {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", strconv.Itoa(defaultOffset)))
	if err != nil || offset < 0 {
		offset = defaultOffset
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}

// idParam parses the numeric :id path parameter. On failure the error is
// already set on the context.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperrors.ValidationFailed("Invalid proposal id", "id must be a positive integer"))
		return 0, false
	}
	return id, true
}

// bindJSON binds the request body; binding errors are rendered by ErrorHandler.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return false
	}
	return true
}

package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vinetrail/vinetrail-backend/errors"
	"github.com/vinetrail/vinetrail-backend/logger"
)

type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"` // For HTTP status code as string
}

// ErrorHandler renders the last error pushed with c.Error as
// {type, message, code, error_code?, details?}. AppError extras are merged into the body.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		err := last.Err

		// Handle AppError
		if appError, ok := errors.As(err); ok {
			statusCode := appError.GetHTTPStatus()
			logger.LogHTTPError(c, err, statusCode, fmt.Sprintf("%s error", appError.Type))

			response := gin.H{
				"type":    string(appError.Type),
				"message": appError.Message,
				"code":    strconv.Itoa(statusCode),
			}
			if appError.Code != "" {
				response["error_code"] = appError.Code
			}

			// Details are shown for client errors, never for server-side failures
			// unless debugging.
			if appError.Detail != "" && (statusCode < http.StatusInternalServerError || gin.IsDebugging()) {
				response["details"] = appError.Detail
			}
			for k, v := range appError.Extras {
				if _, reserved := response[k]; !reserved {
					response[k] = v
				}
			}

			c.JSON(statusCode, response)
			return
		}

		// Handle Gin binding errors - which come as public errors
		if last.Type == gin.ErrorTypeBind {
			logger.LogHTTPError(c, err, http.StatusBadRequest, "Request binding error")

			c.JSON(http.StatusBadRequest, gin.H{
				"type":    string(errors.ValidationError),
				"message": "Invalid request body",
				"code":    "400",
				"details": err.Error(),
			})
			return
		}

		// Handle unknown errors
		logger.LogHTTPError(c, err, http.StatusInternalServerError, "Unexpected server error")

		response := gin.H{
			"type":    string(errors.ServerError),
			"message": "Internal Server Error",
			"code":    "500",
		}
		if gin.IsDebugging() {
			response["details"] = err.Error()
		}
		c.JSON(http.StatusInternalServerError, response)
	}
}

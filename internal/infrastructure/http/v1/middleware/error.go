package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"almacen/internal/core/apperror"
	"almacen/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			details := appErr.Details
			if details == nil {
				details = map[string]any{}
			}
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				// Internal messages may carry driver text.
				c.JSON(appErr.HTTPStatus, gin.H{
					"code":    appErr.Code,
					"message": "Internal server error",
					"details": map[string]any{"request_id": c.GetString("request_id")},
				})
				return
			}
			c.JSON(appErr.HTTPStatus, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": details,
			})
			return
		}

		logger.Error(c.Request.Context(), "unhandled error",
			"error", err,
		)

		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{
				"request_id": c.GetString("request_id"),
			},
		})
	}
}

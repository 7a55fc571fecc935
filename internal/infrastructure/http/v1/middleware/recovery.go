package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"almacen/internal/core/apperror"
	"almacen/pkg/logger"
)

// Recovery turns a handler panic into a 500 response. It sits outside the
// request logger and error handler, so it logs the request itself and
// writes the error body directly.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			fields := []any{
				"panic", fmt.Sprint(rec),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"route", c.FullPath(),
				"client_ip", c.ClientIP(),
				"stack", string(debug.Stack()),
			}
			if actor, ok := GetActor(c); ok {
				fields = append(fields, "actor", actor.UserID, "actor_role", string(actor.Role))
			}
			logger.Error(c.Request.Context(), "panic recovered", fields...)

			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic in %s %s: %v", c.Request.Method, c.FullPath(), rec)))
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{"request_id": c.GetString("request_id")},
			})
		}()
		c.Next()
	}
}

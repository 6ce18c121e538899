package middleware

import (
	"errors"
	"net/http"

	"properpakistan-api/internal/delivery/http/response"
	"properpakistan-api/pkg/apperror"
	"properpakistan-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Check if there are errors appended to the context
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			var appErr *apperror.AppError
			if errors.As(err, &appErr) {
				if appErr.Err != nil {
					logger.Log.Error("Request failed", "status", appErr.Code, "error", appErr.Err, "path", c.FullPath())
				}
				response.Error(c, appErr.Code, appErr.Message, nil)
			} else {
				// Never expose internal error details to clients
				reqID, _ := c.Get("RequestID")
				logger.Log.Error("Internal Server Error", "error", err, "path", c.FullPath(), "request_id", reqID)
				response.Error(c, http.StatusInternalServerError, "An unexpected error occurred. Please try again later.", nil)
			}
		}
	}
}

// NotFound renders unknown routes in the standard envelope.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, "Route not found", nil)
	}
}

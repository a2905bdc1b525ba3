package util

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// SafeErrorResponse returns a JSON error response, logging details but only exposing safe info to users
func SafeErrorResponse(c *gin.Context, statusCode int, userMessage string, err error) {
	if err != nil {
		slog.Error(userMessage,
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", statusCode),
			slog.String("error", err.Error()))
	}

	response := gin.H{
		"success": false,
		"message": userMessage,
	}

	// Only include detailed error outside release mode
	if gin.Mode() != gin.ReleaseMode && err != nil {
		response["error"] = err.Error()
	}

	c.JSON(statusCode, response)
}

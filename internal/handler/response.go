package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// responseEnvelope is the body of every read API response.
type responseEnvelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, responseEnvelope{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    withRequestID(c, meta),
	})
}

// Error writes a failure envelope whose code mirrors the HTTP status.
func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.AbortWithStatusJSON(status, responseEnvelope{
		Code:    status,
		Message: message,
		Meta:    withRequestID(c, meta),
	})
}

// withRequestID copies meta and adds the id set by RequestIDMiddleware.
func withRequestID(c *gin.Context, meta map[string]any) map[string]any {
	id := c.GetString(requestIDHeader)
	if id == "" {
		return meta
	}
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["request_id"] = id
	return out
}

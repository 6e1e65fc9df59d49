package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/lookupcache/pkg/errors"
	"github.com/charlesng35/lookupcache/pkg/response"
)

// Health returns a simple status payload used when no health manager is configured.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}

// NotConfigured reports a route whose backing component is disabled.
func NotConfigured(c *gin.Context) {
	response.Error(c, appErrors.New(appErrors.ErrNotFound.Code, "Endpoint not configured", http.StatusNotFound))
}

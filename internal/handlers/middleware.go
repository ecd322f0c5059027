package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const machineRefKey = "machineRef"

// machineRefMiddleware validates the :id path segment (a machine ID or name).
func (h *Handler) machineRefMiddleware(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("id"))
	if ref == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "machine id or name is required",
		})
		return
	}
	c.Set(machineRefKey, ref)
	c.Next()
}

func machineRef(c *gin.Context) string {
	return c.GetString(machineRefKey)
}

package handlers

import (
	"errors"
	"net/http"

	"machine_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

const statusOK = "ok"

// Centralized error logging and response. Known service errors map to 4xx.
func (h *Handler) writeError(c *gin.Context, userMsg, logKey string, err error, kv ...interface{}) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUnknownMachine), errors.Is(err, service.ErrJobNotFound):
		code = http.StatusNotFound
		userMsg = err.Error()
	case errors.Is(err, service.ErrInvalidTimeRange), errors.Is(err, service.ErrInvalidScope):
		code = http.StatusBadRequest
		userMsg = err.Error()
	}
	if h.log != nil && code == http.StatusInternalServerError {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(code, gin.H{"error": userMsg})
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Interval event stream
// @Description  WebSocket stream of interval.opened / interval.closed events. Optional ?machine=<id> filter.
// @Tags         system
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream disabled"})
		return
	}
	h.events.ServeHTTP(c.Writer, c.Request)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      Heal activity log
// @Description  Closes extra open intervals on every machine that has more than one.
// @Tags         maintenance
// @Produce      json
// @Success      200  {object}  service.HealReport
// @Failure      500  {object}  map[string]interface{}
// @Router       /api/v1/maintenance/heal [post]
func (h *Handler) healAll(c *gin.Context) {
	report, err := h.services.HealAll(c.Request.Context())
	if err != nil {
		if h.log != nil {
			h.log.Errorw("heal_all_failed", "err", err, "machines", report.Machines, "closed", report.Closed)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "heal incomplete", "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

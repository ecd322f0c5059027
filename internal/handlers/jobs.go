package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      Job OEE
// @Tags         metrics
// @Produce      json
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  kpi.JobMetrics
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/jobs/{id}/oee [get]
func (h *Handler) getJobOEE(c *gin.Context) {
	m, err := h.services.JobOEE(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, errComputeOEE, "job_oee_failed", err, "job_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, m)
}

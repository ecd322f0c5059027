package handlers

import (
	"errors"
	"io"
	"net/http"

	"machine_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errLoadState       = "failed to load state"
	errLoadIntervals   = "failed to load intervals"
	errMarkOffline     = "failed to mark machine offline"
	errComputeOEE      = "failed to compute oee"
	errLoadDowntime    = "failed to load downtime"
	errComputeUtil     = "failed to compute utilization"
	errInvalidBodyPref = "invalid body: "
)

// OfflineRequest is the optional payload of POST /machines/{id}/offline.
type OfflineRequest struct {
	// When the machine went offline; defaults to now.
	At string `json:"at,omitempty" example:"2024-01-06T08:00:00Z"`
	// Skip when the machine showed activity after this instant; defaults to At.
	NotSeenSince string `json:"not_seen_since,omitempty" example:"2024-01-06T07:55:00Z"`
	Source       string `json:"source,omitempty" example:"gateway"`
}

// @Summary      Current state
// @Description  The open activity interval of a machine, or null when it has none.
// @Tags         machines
// @Produce      json
// @Param        id   path      string  true  "Machine ID or name"
// @Success      200  {object}  map[string]interface{}  "state"
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/machines/{id}/state [get]
func (h *Handler) getState(c *gin.Context) {
	st, err := h.services.CurrentState(c.Request.Context(), machineRef(c))
	if err != nil {
		h.writeError(c, errLoadState, "machine_get_state_failed", err, "machine", machineRef(c))
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": st})
}

// @Summary      Activity timeline
// @Description  Deduplicated intervals clamped to [from, to]. Defaults to the last 24 hours. If 'to' is date-only, it is treated as end-of-day inclusive.
// @Tags         machines
// @Produce      json
// @Param        id    path   string  true   "Machine ID or name"
// @Param        from  query  string  false  "Start of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD')"  example(2024-01-05)
// @Param        to    query  string  false  "End of range. Date-only treated as end of day."  example(2024-01-06)
// @Success      200   {object}  map[string]interface{}  "count, intervals"
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/machines/{id}/intervals [get]
func (h *Handler) getIntervals(c *gin.Context) {
	r, msg := parseRange(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	ivs, err := h.services.Timeline(c.Request.Context(), machineRef(c), r)
	if err != nil {
		h.writeError(c, errLoadIntervals, "machine_intervals_failed", err, "machine", machineRef(c), "from", r.From, "to", r.To)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(ivs),
		"intervals": ivs,
	})
}

// @Summary      Mark offline
// @Description  Opens an Offline interval unless the machine reported after not_seen_since. Idempotent.
// @Tags         machines
// @Accept       json
// @Produce      json
// @Param        id    path  string          true   "Machine ID or name"
// @Param        body  body  OfflineRequest  false  "Offline payload"
// @Success      200   {object}  map[string]interface{}  "status, state"
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/machines/{id}/offline [post]
func (h *Handler) markOffline(c *gin.Context) {
	var body OfflineRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	req := service.OfflineRequest{MachineID: machineRef(c), Source: body.Source}
	var err error
	if body.At != "" {
		if req.At, err = parseQueryTime(body.At); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return
		}
	}
	if body.NotSeenSince != "" {
		if req.NotSeenSince, err = parseQueryTime(body.NotSeenSince); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	if err := h.services.MarkOffline(ctx, req); err != nil {
		h.writeError(c, errMarkOffline, "machine_mark_offline_failed", err, "machine", req.MachineID)
		return
	}
	resp := gin.H{"status": statusOK}
	if st, err := h.services.CurrentState(ctx, req.MachineID); err == nil {
		resp["state"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Machine OEE
// @Description  Planned-time-weighted OEE over the non-cancelled jobs overlapping [from, to].
// @Tags         metrics
// @Produce      json
// @Param        id    path   string  true   "Machine ID or name"
// @Param        from  query  string  false  "Start of range"
// @Param        to    query  string  false  "End of range"
// @Success      200   {object}  kpi.Summary
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/machines/{id}/oee [get]
func (h *Handler) getMachineOEE(c *gin.Context) {
	r, msg := parseRange(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	sum, err := h.services.MachineOEE(c.Request.Context(), machineRef(c), r)
	if err != nil {
		h.writeError(c, errComputeOEE, "machine_oee_failed", err, "machine", machineRef(c))
		return
	}
	c.JSON(http.StatusOK, sum)
}

// @Summary      Downtime breakdown
// @Description  Downtime per normalized reason, sorted by duration.
// @Tags         metrics
// @Produce      json
// @Param        id    path   string  true   "Machine ID or name"
// @Param        from  query  string  false  "Start of range"
// @Param        to    query  string  false  "End of range"
// @Success      200   {object}  map[string]interface{}  "count, buckets"
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/machines/{id}/downtime [get]
func (h *Handler) getDowntime(c *gin.Context) {
	r, msg := parseRange(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	buckets, err := h.services.Downtime(c.Request.Context(), machineRef(c), r)
	if err != nil {
		h.writeError(c, errLoadDowntime, "machine_downtime_failed", err, "machine", machineRef(c))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(buckets),
		"buckets": buckets,
	})
}

// @Summary      Utilization
// @Description  Running time over the period. scope=completed counts only running time inside completed jobs.
// @Tags         metrics
// @Produce      json
// @Param        id     path   string  true   "Machine ID or name"
// @Param        from   query  string  false  "Start of range"
// @Param        to     query  string  false  "End of range"
// @Param        scope  query  string  false  "all or completed"  Enums(all,completed)
// @Success      200    {object}  kpi.UtilizationResult
// @Failure      400    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /api/v1/machines/{id}/utilization [get]
func (h *Handler) getUtilization(c *gin.Context) {
	r, msg := parseRange(c)
	if msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	res, err := h.services.Utilization(c.Request.Context(), machineRef(c), r, c.Query("scope"))
	if err != nil {
		h.writeError(c, errComputeUtil, "machine_utilization_failed", err, "machine", machineRef(c))
		return
	}
	c.JSON(http.StatusOK, res)
}

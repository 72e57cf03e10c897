package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/KainCH/omniasylum-sub001/pkg/api/warden"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// GetCounters returns the tenant's current counter snapshot.
func (h *Handlers) GetCounters(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	counters, err := h.dispatcher.Counters(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, warden.CounterResponse{Counters: counters})
}

// IncrementCounter bumps one counter and fans the change out.
func (h *Handlers) IncrementCounter(c *gin.Context) {
	h.mutateCounter(c, true)
}

// DecrementCounter lowers one counter, flooring at zero. Decrementing at zero
// still returns 200 with the unchanged state.
func (h *Handlers) DecrementCounter(c *gin.Context) {
	h.mutateCounter(c, false)
}

func (h *Handlers) mutateCounter(c *gin.Context, up bool) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	kind, err := models.ParseCounterKind(c.Param("kind"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if kind == models.KindBits {
		h.writeError(c, fmt.Errorf("%w: bits only change through cheer events", models.ErrInvalidInput))
		return
	}

	var counters models.Counters
	if up {
		counters, err = h.dispatcher.Increment(c.Request.Context(), tenantID, kind, "api")
	} else {
		counters, err = h.dispatcher.Decrement(c.Request.Context(), tenantID, kind, "api")
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, warden.CounterResponse{Counters: counters})
}

// ResetCounters zeros deaths, swears and screams. Bits and the stream markers
// survive a reset.
func (h *Handlers) ResetCounters(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	counters, err := h.dispatcher.Reset(c.Request.Context(), tenantID, "api")
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, warden.CounterResponse{Counters: counters})
}

// ExportCounters renders the counters for external consumers. The text format
// is a single line suitable for OBS text sources.
func (h *Handlers) ExportCounters(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	counters, err := h.dispatcher.Counters(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if c.Query("format") == "text" {
		line := fmt.Sprintf("Deaths: %d | Swears: %d | Screams: %d | Bits: %d",
			counters.Deaths, counters.Swears, counters.Screams, counters.Bits)
		c.String(http.StatusOK, line)
		return
	}
	c.JSON(http.StatusOK, warden.CounterResponse{Counters: counters})
}

// SaveSeries snapshots the current counters under a name.
func (h *Handlers) SaveSeries(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	var req warden.SaveSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", models.ErrInvalidInput, err))
		return
	}
	if strings.TrimSpace(req.SeriesName) == "" {
		h.writeError(c, fmt.Errorf("%w: seriesName is required", models.ErrInvalidInput))
		return
	}

	snap, err := h.dispatcher.SaveSeries(c.Request.Context(), tenantID, req.SeriesName, req.Description)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// LoadSeries restores a snapshot onto the current counters.
func (h *Handlers) LoadSeries(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	var req warden.LoadSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SeriesID == "" {
		h.writeError(c, fmt.Errorf("%w: seriesId is required", models.ErrInvalidInput))
		return
	}

	counters, err := h.dispatcher.LoadSeries(c.Request.Context(), tenantID, req.SeriesID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, warden.CounterResponse{Counters: counters})
}

// ListSeries lists the tenant's snapshots.
func (h *Handlers) ListSeries(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	list, err := h.repo.ListSeries(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, warden.SeriesListResponse{Series: list})
}

// DeleteSeries removes one snapshot.
func (h *Handlers) DeleteSeries(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	seriesID := c.Param("seriesId")
	if _, err := h.repo.GetSeries(c.Request.Context(), tenantID, seriesID); err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.repo.DeleteSeries(c.Request.Context(), tenantID, seriesID); err != nil {
		h.writeError(c, err)
		return
	}
	respondOK(c, "series deleted")
}

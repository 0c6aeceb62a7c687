package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"booking-assistant-backend/internal/store"
)

// GetStatus handles GET /api/status with the live connection counters.
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Stats())
}

type bookingStatsResponse struct {
	Total    int64                `json:"total"`
	Outcomes []store.OutcomeCount `json:"outcomes"`
}

// GetBookingStats handles GET /api/stats/bookings.
func (h *Handler) GetBookingStats(c *gin.Context) {
	counts, err := h.store.BookingStats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load booking stats", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve booking stats"})
		return
	}

	resp := bookingStatsResponse{Outcomes: counts}
	if resp.Outcomes == nil {
		resp.Outcomes = []store.OutcomeCount{}
	}
	for _, oc := range counts {
		resp.Total += oc.Count
	}
	c.JSON(http.StatusOK, resp)
}

// Health handles GET /.
func Health(c *gin.Context) {
	c.String(http.StatusOK, "Booking assistant server is up and running")
}

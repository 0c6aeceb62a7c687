package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"booking-assistant-backend/internal/registry"
	"booking-assistant-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	webpush  *webpush.Options
	registry *registry.Registry
	ws       WSConfig
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, webpushOptions *webpush.Options, reg *registry.Registry, ws WSConfig, logger *zap.Logger) *Handler {
	return &Handler{
		store:    s,
		webpush:  webpushOptions,
		registry: reg,
		ws:       ws,
		logger:   logger.Named("api"),
	}
}

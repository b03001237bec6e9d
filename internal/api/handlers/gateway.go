package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/api/request"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/repository"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/validation"
)

// GatewayHandler handles gateway credential HTTP requests
type GatewayHandler struct {
	gatewayConfigs *repository.GatewayConfigRepository
}

// NewGatewayHandler creates a new GatewayHandler
func NewGatewayHandler(gatewayConfigs *repository.GatewayConfigRepository) *GatewayHandler {
	return &GatewayHandler{
		gatewayConfigs: gatewayConfigs,
	}
}

// SaveConfig handles PUT requests storing Flex credentials for an
// institution. The token is encrypted before it reaches storage and never
// echoed back.
//
// Endpoint: PUT /api/gateway/config
func (h *GatewayHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var req request.GatewayConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "invalid request body",
			"detail": err.Error(),
		})
		return
	}

	if err := validation.ValidateGatewayConfig(req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "invalid gateway config",
			"detail": err.Error(),
		})
		return
	}

	err := h.gatewayConfigs.SaveConfig(model.GatewayConfig{
		Institution:       req.Institution,
		FlexToken:         req.FlexToken,
		FlexQueryID:       req.FlexQueryID,
		AutoImportEnabled: req.AutoImportEnabled,
	})
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "failed to save gateway config",
			"detail": err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

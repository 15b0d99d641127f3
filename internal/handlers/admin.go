package handlers

import (
	"log/slog"
	"net/http"

	"feedbackhub/internal/models"
	"feedbackhub/internal/services"
	"feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
)

// AdminHandler 集成管理，权限在 service 里检查
type AdminHandler struct {
	integrations *services.IntegrationService
	log          *slog.Logger
}

func NewAdminHandler(integrations *services.IntegrationService, log *slog.Logger) *AdminHandler {
	return &AdminHandler{integrations: integrations, log: log}
}

func (h *AdminHandler) ListIntegrations(c *gin.Context) {
	integrations, err := h.integrations.ListIntegrations(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"integrations": integrations})
}

func (h *AdminHandler) CreateIntegration(c *gin.Context) {
	var in services.CreateIntegrationInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	integration, err := h.integrations.CreateIntegration(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, integration)
}

// SetStatus 暂停 / 重新启用
func (h *AdminHandler) SetStatus(c *gin.Context) {
	var in struct {
		Status models.IntegrationStatus `json:"status" binding:"required"`
	}
	if !bindJSON(c, h.log, &in) {
		return
	}
	if err := h.integrations.SetStatus(c.Request.Context(), principal(c), c.Param("id"), in.Status); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) AddMapping(c *gin.Context) {
	var in services.MappingInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	mapping, err := h.integrations.AddMapping(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, mapping)
}

func (h *AdminHandler) ToggleMapping(c *gin.Context) {
	var in struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if !bindJSON(c, h.log, &in) {
		return
	}
	err := h.integrations.SetMappingEnabled(c.Request.Context(), principal(c), c.Param("id"), c.Param("mid"), *in.Enabled)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) Deliveries(c *gin.Context) {
	limit := utils.QueryInt(c.Query("limit"), 50, 200)
	deliveries, err := h.integrations.ListDeliveries(c.Request.Context(), principal(c), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

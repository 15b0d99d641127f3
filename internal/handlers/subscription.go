package handlers

import (
	"log/slog"
	"net/http"

	"feedbackhub/internal/apperrors"
	"feedbackhub/internal/models"
	"feedbackhub/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SubscriptionHandler 帖子订阅与个人通知偏好
type SubscriptionHandler struct {
	db            *gorm.DB
	subscriptions *services.SubscriptionService
	log           *slog.Logger
}

func NewSubscriptionHandler(db *gorm.DB, subscriptions *services.SubscriptionService, log *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{db: db, subscriptions: subscriptions, log: log}
}

func (h *SubscriptionHandler) postExists(c *gin.Context, postID string) bool {
	var count int64
	if err := h.db.WithContext(c.Request.Context()).Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
		respondError(c, h.log, apperrors.Database("post", err))
		return false
	}
	if count == 0 {
		respondError(c, h.log, apperrors.NotFound("post", "post not found"))
		return false
	}
	return true
}

func (h *SubscriptionHandler) Status(c *gin.Context) {
	status, err := h.subscriptions.GetSubscriptionStatus(c.Request.Context(), principal(c).ID, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Subscribe 手动订阅，已订阅时保持原状
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	postID := c.Param("id")
	if !h.postExists(c, postID) {
		return
	}
	p := principal(c)
	if err := h.subscriptions.SubscribeToPost(c.Request.Context(), p.ID, postID, models.SubscriptionReasonManual); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.Status(c)
}

func (h *SubscriptionHandler) UpdateLevel(c *gin.Context) {
	var in struct {
		Level services.SubscriptionLevel `json:"level" binding:"required"`
	}
	if !bindJSON(c, h.log, &in) {
		return
	}
	postID := c.Param("id")
	if !h.postExists(c, postID) {
		return
	}
	if err := h.subscriptions.UpdateSubscriptionLevel(c.Request.Context(), principal(c).ID, postID, in.Level); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.Status(c)
}

func (h *SubscriptionHandler) Unsubscribe(c *gin.Context) {
	if err := h.subscriptions.UnsubscribeFromPost(c.Request.Context(), principal(c).ID, c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SubscriptionHandler) Preferences(c *gin.Context) {
	prefs, err := h.subscriptions.GetNotificationPreferences(c.Request.Context(), principal(c).ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *SubscriptionHandler) UpdatePreferences(c *gin.Context) {
	var update services.PreferencesUpdate
	if !bindJSON(c, h.log, &update) {
		return
	}
	prefs, err := h.subscriptions.UpdateNotificationPreferences(c.Request.Context(), principal(c).ID, update)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

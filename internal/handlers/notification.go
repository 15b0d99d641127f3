package handlers

import (
	"log/slog"
	"net/http"

	"feedbackhub/internal/apperrors"
	"feedbackhub/internal/middleware"
	"feedbackhub/internal/models"
	"feedbackhub/internal/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// NotificationHandler 站内收件箱
type NotificationHandler struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewNotificationHandler(db *gorm.DB, log *slog.Logger) *NotificationHandler {
	return &NotificationHandler{db: db, log: log}
}

func (h *NotificationHandler) List(c *gin.Context) {
	p := principal(c)
	page := utils.QueryInt(c.Query("page"), 1, 0)
	limit := utils.QueryInt(c.Query("limit"), 20, 50)

	query := h.db.WithContext(c.Request.Context()).Model(&models.Notification{}).Where("principal_id = ?", p.ID)
	if c.Query("unread") == "true" {
		query = query.Where("is_read = ?", false)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, h.log, apperrors.Database("notification", err))
		return
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		respondError(c, h.log, apperrors.Database("notification", err))
		return
	}

	unread, _ := c.Get(middleware.UnreadCountKey)
	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"total":         total,
		"unread":        unread,
		"page":          page,
		"limit":         limit,
	})
}

func (h *NotificationHandler) Read(c *gin.Context) {
	res := h.db.WithContext(c.Request.Context()).Model(&models.Notification{}).
		Where("id = ? AND principal_id = ?", c.Param("id"), principal(c).ID).
		Update("is_read", true)
	if res.Error != nil {
		respondError(c, h.log, apperrors.Database("notification", res.Error))
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, h.log, apperrors.NotFound("notification", "notification not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) ReadAll(c *gin.Context) {
	res := h.db.WithContext(c.Request.Context()).Model(&models.Notification{}).
		Where("principal_id = ? AND is_read = ?", principal(c).ID, false).
		Update("is_read", true)
	if res.Error != nil {
		respondError(c, h.log, apperrors.Database("notification", res.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": res.RowsAffected})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	res := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND principal_id = ?", c.Param("id"), principal(c).ID).
		Delete(&models.Notification{})
	if res.Error != nil {
		respondError(c, h.log, apperrors.Database("notification", res.Error))
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, h.log, apperrors.NotFound("notification", "notification not found"))
		return
	}
	c.Status(http.StatusNoContent)
}

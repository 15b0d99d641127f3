package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"feedbackhub/internal/hooks"
	"feedbackhub/internal/logger"
	"feedbackhub/internal/services"

	"github.com/gin-gonic/gin"
)

// UnsubscribeHandler 邮件里的一键退订链接，无需登录
type UnsubscribeHandler struct {
	unsubscribe   *services.UnsubscribeService
	portalBaseURL string
	log           *slog.Logger
}

func NewUnsubscribeHandler(unsubscribe *services.UnsubscribeService, portalBaseURL string, log *slog.Logger) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		unsubscribe:   unsubscribe,
		portalBaseURL: strings.TrimRight(portalBaseURL, "/"),
		log:           log,
	}
}

// Show GET /unsubscribe?token=...；未知、已用、过期的 token 都显示同一个失效页面
func (h *UnsubscribeHandler) Show(c *gin.Context) {
	data := gin.H{
		"Title":          "Unsubscribe",
		"PreferencesURL": h.portalBaseURL + "/settings/notifications",
	}

	token := c.Query("token")
	if token == "" {
		Render(c, http.StatusBadRequest, "unsubscribe.html", data)
		return
	}

	result, err := h.unsubscribe.ProcessUnsubscribeToken(c.Request.Context(), token)
	if err != nil {
		logger.FromContext(c.Request.Context(), h.log).Error("process unsubscribe token failed", "error", err)
		data["Error"] = "We couldn't process your request. Please try again later."
		Render(c, http.StatusInternalServerError, "error.html", data)
		return
	}
	if result == nil {
		Render(c, http.StatusOK, "unsubscribe.html", data)
		return
	}

	data["Result"] = result
	if result.Post != nil {
		data["Post"] = result.Post
		data["PostURL"] = hooks.PostURL(h.portalBaseURL, result.Post.BoardSlug, result.Post.ID)
	}
	Render(c, http.StatusOK, "unsubscribe.html", data)
}

// OneClick POST /unsubscribe?token=...，邮件客户端的一键退订 (RFC 8058)，不渲染页面
func (h *UnsubscribeHandler) OneClick(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if _, err := h.unsubscribe.ProcessUnsubscribeToken(c.Request.Context(), token); err != nil {
		logger.FromContext(c.Request.Context(), h.log).Error("one-click unsubscribe failed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

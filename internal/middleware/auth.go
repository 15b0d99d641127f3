package middleware

import (
	"errors"
	"log/slog"

	"feedbackhub/internal/apperrors"
	"feedbackhub/internal/logger"
	"feedbackhub/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	PrincipalKey        = "principal"
	UnreadCountKey      = "unread_count"
	SessionPrincipalKey = "principal_id"
)

// LoadPrincipal 从 session 读取 principal 并放入 context；登录本身由宿主应用完成
func LoadPrincipal(conn *gorm.DB, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		principalID, ok := session.Get(SessionPrincipalKey).(string)
		if !ok || principalID == "" {
			c.Next()
			return
		}

		var principal models.Principal
		err := conn.WithContext(c.Request.Context()).Preload("User").Where("id = ?", principalID).Take(&principal).Error
		switch {
		case err == nil:
			c.Set(PrincipalKey, &principal)
			c.Request = c.Request.WithContext(logger.WithPrincipalID(c.Request.Context(), principal.ID))

			var count int64
			conn.WithContext(c.Request.Context()).Model(&models.Notification{}).
				Where("principal_id = ? AND is_read = ?", principal.ID, false).Count(&count)
			c.Set(UnreadCountKey, count)
		case errors.Is(err, gorm.ErrRecordNotFound):
			// principal 已被删除，清掉失效的 session
			session.Delete(SessionPrincipalKey)
			_ = session.Save()
		default:
			logger.FromContext(c.Request.Context(), log).Error("load principal failed", "error", err)
		}
		c.Next()
	}
}

// RequirePrincipal 未登录返回 401
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentPrincipal(c); !ok {
			appErr := apperrors.Unauthorized("login required")
			c.AbortWithStatusJSON(appErr.HTTPCode, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			})
			return
		}
		c.Next()
	}
}

func CurrentPrincipal(c *gin.Context) (*models.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*models.Principal)
	return p, ok && p != nil
}

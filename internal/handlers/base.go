package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"feedbackhub/internal/apperrors"
	"feedbackhub/internal/logger"
	"feedbackhub/internal/middleware"
	"feedbackhub/internal/models"

	"github.com/gin-gonic/gin"
)

// Render 注入页面公共变量
func Render(c *gin.Context, code int, name string, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}
	if p, ok := middleware.CurrentPrincipal(c); ok {
		obj["CurrentPrincipal"] = p
	}
	obj["CurrentPath"] = c.Request.URL.Path
	c.HTML(code, name, obj)
}

// respondError AppError 按自身 HTTP 码输出，其他错误一律 500 且不暴露细节
func respondError(c *gin.Context, log *slog.Logger, err error) {
	appErr := apperrors.From(err)
	if appErr.HTTPCode >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), log).Error("request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}
	body := gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Details != nil {
		body["details"] = appErr.Details
	}
	c.JSON(appErr.HTTPCode, body)
}

// bindJSON 解析失败统一按校验错误返回
func bindJSON(c *gin.Context, log *slog.Logger, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, log, apperrors.Validation("request", "invalid request body"))
		return false
	}
	return true
}

// principal RequirePrincipal 之后调用
func principal(c *gin.Context) *models.Principal {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		panic(errors.New("handler mounted without RequirePrincipal"))
	}
	return p
}

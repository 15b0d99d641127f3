package router

import (
	"log/slog"
	"net/http"

	"feedbackhub/internal/handlers"
	"feedbackhub/internal/middleware"
	"feedbackhub/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const sessionName = "feedbackhub_session"

// Deps 路由需要的全部依赖，由 app 组装
type Deps struct {
	DB            *gorm.DB
	Feedback      *services.FeedbackService
	Subscriptions *services.SubscriptionService
	Unsubscribe   *services.UnsubscribeService
	Integrations  *services.IntegrationService
	PortalBaseURL string
	SessionSecret string
	Secure        bool
	// QueueDepth 健康检查里报告后台队列积压
	QueueDepth    func() int
	Log           *slog.Logger
}

// New 创建 engine：session、模板、中间件和全部路由
func New(deps Deps) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(deps.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 3600,
		HttpOnly: true,
		Secure:   deps.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	renderer, err := handlers.LoadTemplates()
	if err != nil {
		return nil, err
	}
	r.HTMLRender = renderer

	r.Use(middleware.RequestID(deps.Log))
	r.Use(middleware.LoadPrincipal(deps.DB, deps.Log))

	RegisterRoutes(r, deps)
	return r, nil
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	feedbackHandler := handlers.NewFeedbackHandler(deps.Feedback, deps.Log)
	subscriptionHandler := handlers.NewSubscriptionHandler(deps.DB, deps.Subscriptions, deps.Log)
	notificationHandler := handlers.NewNotificationHandler(deps.DB, deps.Log)
	unsubscribeHandler := handlers.NewUnsubscribeHandler(deps.Unsubscribe, deps.PortalBaseURL, deps.Log)
	adminHandler := handlers.NewAdminHandler(deps.Integrations, deps.Log)

	// 公共路由 (Public Routes)
	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if deps.QueueDepth != nil {
			body["queue_depth"] = deps.QueueDepth()
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/unsubscribe", unsubscribeHandler.Show)      // 邮件退订确认页
	r.POST("/unsubscribe", unsubscribeHandler.OneClick) // 邮件客户端一键退订

	// 受保护路由 (Protected Routes)
	api := r.Group("/api")
	api.Use(middleware.RequirePrincipal())
	{
		api.POST("/posts", feedbackHandler.CreatePost)              // 提交反馈
		api.POST("/posts/:id/comments", feedbackHandler.AddComment) // 发表评论
		api.POST("/posts/:id/vote", feedbackHandler.Vote)           // 投票
		api.PUT("/posts/:id/status", feedbackHandler.ChangeStatus)  // 修改状态（团队成员）
		api.POST("/changelogs", feedbackHandler.PublishChangelog)   // 发布更新日志（团队成员）

		api.GET("/posts/:id/subscription", subscriptionHandler.Status)         // 订阅状态
		api.POST("/posts/:id/subscription", subscriptionHandler.Subscribe)     // 手动订阅
		api.PUT("/posts/:id/subscription", subscriptionHandler.UpdateLevel)    // 修改订阅级别
		api.DELETE("/posts/:id/subscription", subscriptionHandler.Unsubscribe) // 取消订阅

		api.GET("/me/notification-preferences", subscriptionHandler.Preferences)         // 通知偏好
		api.PATCH("/me/notification-preferences", subscriptionHandler.UpdatePreferences) // 修改通知偏好

		api.GET("/notifications", notificationHandler.List)              // 收件箱
		api.POST("/notifications/read-all", notificationHandler.ReadAll) // 全部标记为已读
		api.POST("/notifications/:id/read", notificationHandler.Read)    // 标记单条为已读
		api.DELETE("/notifications/:id", notificationHandler.Delete)     // 删除单条通知
	}

	// 集成管理路由 (Admin Routes)
	admin := r.Group("/api/admin")
	admin.Use(middleware.RequirePrincipal())
	{
		admin.GET("/integrations", adminHandler.ListIntegrations)                // 集成列表
		admin.POST("/integrations", adminHandler.CreateIntegration)              // 连接集成
		admin.PUT("/integrations/:id/status", adminHandler.SetStatus)            // 暂停 / 重新启用
		admin.POST("/integrations/:id/mappings", adminHandler.AddMapping)        // 新增事件映射
		admin.PUT("/integrations/:id/mappings/:mid", adminHandler.ToggleMapping) // 启用 / 停用映射
		admin.GET("/integrations/:id/deliveries", adminHandler.Deliveries)       // 投递记录
	}
}

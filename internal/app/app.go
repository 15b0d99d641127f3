package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"feedbackhub/internal/config"
	"feedbackhub/internal/db"
	"feedbackhub/internal/events"
	"feedbackhub/internal/hooks"
	"feedbackhub/internal/queue"
	"feedbackhub/internal/router"
	"feedbackhub/internal/secrets"
	"feedbackhub/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var ErrAlreadyStarted = errors.New("app already started")

// App 持有数据库、后台队列和 HTTP server 的生命周期
type App struct {
	cfg    *config.Config
	log    *slog.Logger
	db     *gorm.DB
	queue  *queue.Queue
	engine *gin.Engine

	Dispatcher    *events.Dispatcher
	Feedback      *services.FeedbackService
	Subscriptions *services.SubscriptionService

	mu       sync.Mutex
	started  bool
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	serveErr chan error

	// 启动日志每个 App 只打一次
	banner sync.Once
}

// New 连接数据库、迁移、初始化默认状态，然后组装全部组件
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		return nil, err
	}
	if err := db.SeedStatuses(conn, log); err != nil {
		return nil, fmt.Errorf("seed statuses: %w", err)
	}
	return Build(cfg, conn, log)
}

// Build 在已有连接上组装组件，不做迁移
func Build(cfg *config.Config, conn *gorm.DB, log *slog.Logger) (*App, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var box *secrets.Box
	if cfg.Security.EncryptionKey != "" {
		b, err := secrets.NewBox(cfg.Security.EncryptionKey)
		if err != nil {
			return nil, err
		}
		box = b
	} else {
		log.Warn("ENCRYPTION_KEY not set, integrations with stored credentials will be skipped")
	}

	registry := hooks.DefaultRegistry(&http.Client{Timeout: cfg.Hooks.Timeout})
	executor, err := services.NewHookExecutor(conn, registry, cfg.Hooks.Timeout, log)
	if err != nil {
		return nil, err
	}

	q := queue.New(queue.Options{
		Workers:     cfg.Hooks.Workers,
		Capacity:    cfg.Hooks.QueueCapacity,
		MaxAttempts: cfg.Hooks.MaxAttempts,
		RetryDelay:  cfg.Hooks.RetryDelay,
	}, log)

	subscriptions := services.NewSubscriptionService(conn, log)
	unsubscribe := services.NewUnsubscribeService(conn, subscriptions, log)
	notifier, err := services.NewNotifier(conn, unsubscribe, services.NewMailer(cfg, log), cfg.Portal.BaseURL, log)
	if err != nil {
		return nil, err
	}
	resolver := services.NewTargetResolver(conn, services.NewWorkspaceSettingsReader(conn), subscriptions, box, cfg.Portal.BaseURL, log)
	dispatcher := events.NewDispatcher(services.NewEventProcessor(resolver, notifier, executor, q, log), log)
	feedback := services.NewFeedbackService(conn, subscriptions, dispatcher, log)

	engine, err := router.New(router.Deps{
		DB:            conn,
		Feedback:      feedback,
		Subscriptions: subscriptions,
		Unsubscribe:   unsubscribe,
		Integrations:  services.NewIntegrationService(conn, box, registry, log),
		PortalBaseURL: cfg.Portal.BaseURL,
		SessionSecret: cfg.Session.Secret,
		Secure:        cfg.IsProduction(),
		QueueDepth:    q.Depth,
		Log:           log,
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	return &App{
		cfg:           cfg,
		log:           log,
		db:            conn,
		queue:         q,
		engine:        engine,
		Dispatcher:    dispatcher,
		Feedback:      feedback,
		Subscriptions: subscriptions,
		serveErr:      make(chan error, 1),
	}, nil
}

func (a *App) Handler() http.Handler { return a.engine }

// Start 启动 worker 并开始监听；监听失败直接返回
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	a.started = true
	a.listener = ln

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.queue.Start(workerCtx)

	a.server = &http.Server{
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serveErr <- err
		}
		close(a.serveErr)
	}()

	a.banner.Do(func() {
		a.log.Info("feedbackhub server started",
			"addr", ln.Addr().String(),
			"env", a.cfg.Server.Env,
			"portal", a.cfg.Portal.BaseURL,
			"hook_workers", a.cfg.Hooks.Workers,
		)
	})
	return nil
}

// Addr 实际监听地址，端口为 0 时有用
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Errors server 意外退出时收到错误
func (a *App) Errors() <-chan error { return a.serveErr }

// Shutdown 先停 HTTP，再排空队列，最后关闭数据库
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}

	drained := make(chan struct{})
	go func() {
		a.queue.Close()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("drain job queue: %w", ctx.Err()))
	}
	if a.cancel != nil {
		a.cancel()
	}

	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	a.log.Info("feedbackhub server stopped")
	return errors.Join(errs...)
}

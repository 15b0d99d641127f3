package db

import (
	"fmt"
	"log/slog"

	"feedbackhub/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 连接 Postgres
func Open(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return conn, nil
}

// Migrate 自动迁移全部模型
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.User{},
		&models.Principal{},
		&models.WorkspaceSettings{},
		&models.Board{},
		&models.PostStatus{},
		&models.Post{},
		&models.Comment{},
		&models.Vote{},
		&models.Changelog{},
		// 订阅与通知
		&models.PostSubscription{},
		&models.NotificationPreference{},
		&models.UnsubscribeToken{},
		&models.Notification{},
		// 集成
		&models.Integration{},
		&models.IntegrationEventMapping{},
		&models.HookDelivery{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// SeedStatuses 初始化默认的帖子状态
func SeedStatuses(conn *gorm.DB, log *slog.Logger) error {
	var count int64
	if err := conn.Model(&models.PostStatus{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Debug("post statuses already seeded, skipping")
		return nil
	}

	statuses := []models.PostStatus{
		{Name: "Open", Slug: "open", Color: "#6b7280", IsDefault: true},
		{Name: "Planned", Slug: "planned", Color: "#3b82f6"},
		{Name: "In Progress", Slug: "in-progress", Color: "#f59e0b"},
		{Name: "Complete", Slug: "complete", Color: "#10b981"},
		{Name: "Closed", Slug: "closed", Color: "#ef4444"},
	}
	if err := conn.Create(&statuses).Error; err != nil {
		return fmt.Errorf("seed post statuses: %w", err)
	}
	log.Info("initial post statuses created", "count", len(statuses))
	return nil
}

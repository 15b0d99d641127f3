package models

import (
	"time"

	"gorm.io/datatypes"
)

type IntegrationStatus string

const (
	IntegrationStatusActive IntegrationStatus = "active"
	IntegrationStatusPaused IntegrationStatus = "paused"
	IntegrationStatusError  IntegrationStatus = "error" // 认证失效，需要重新连接
)

// Integration 工作区连接的外部服务；Secrets 为加密后的凭证，Metadata 为明文配置（组织名、rootUrl 等）
type Integration struct {
	BaseModel
	Type      string            `gorm:"type:varchar(30);not null;index" json:"type"` // slack, webhook, trello, azure_devops
	Name      string            `json:"name"`
	Status    IntegrationStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	Secrets   string            `gorm:"type:text" json:"-"`
	Metadata  datatypes.JSONMap `json:"metadata"`
	LastError string            `gorm:"type:text" json:"last_error"`

	Mappings []IntegrationEventMapping `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"mappings,omitempty"`
}

// IntegrationEventMapping 某个事件类型触发该集成的一个动作，Target 为集成自定义的寻址信息
type IntegrationEventMapping struct {
	BaseModel
	IntegrationID string         `gorm:"type:varchar(36);not null;index" json:"integration_id"`
	EventType     string         `gorm:"type:varchar(40);not null;index" json:"event_type"`
	Target        datatypes.JSON `json:"target"` // e.g. {"channelId":"C123"}
	Enabled       bool           `gorm:"not null" json:"enabled"`
}

type HookDeliveryStatus string

const (
	HookDeliveryStatusSuccess HookDeliveryStatus = "success"
	HookDeliveryStatusFailed  HookDeliveryStatus = "failed"
)

// HookDelivery 记录每次 hook 执行结果
type HookDelivery struct {
	BaseModel
	EventID       string             `gorm:"type:varchar(36);not null;index:idx_delivery_event_mapping" json:"event_id"`
	EventType     string             `gorm:"type:varchar(40);not null" json:"event_type"`
	IntegrationID string             `gorm:"type:varchar(36);not null;index" json:"integration_id"`
	MappingID     string             `gorm:"type:varchar(36);not null;index:idx_delivery_event_mapping" json:"mapping_id"`
	HookType      string             `gorm:"type:varchar(30);not null" json:"hook_type"`
	Status        HookDeliveryStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Attempt       int                `gorm:"not null;default:1" json:"attempt"`
	ExternalID    string             `json:"external_id"`
	ExternalURL   string             `json:"external_url"`
	Error         string             `gorm:"type:text" json:"error"`
	ShouldRetry   bool               `json:"should_retry"`
	DurationMs    int64              `json:"duration_ms"`
	CompletedAt   time.Time          `json:"completed_at"`
}

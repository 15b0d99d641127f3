package models

import "time"

type UnsubscribeAction string

const (
	UnsubscribeActionPost UnsubscribeAction = "unsubscribe_post"
	UnsubscribeActionAll  UnsubscribeAction = "unsubscribe_all"
)

func (a UnsubscribeAction) Valid() bool {
	return a == UnsubscribeActionPost || a == UnsubscribeActionAll
}

// UnsubscribeToken 邮件中的一次性退订凭证，只能通过 used_at IS NULL 的条件更新消费一次
type UnsubscribeToken struct {
	BaseModel
	Token       string            `gorm:"size:128;uniqueIndex;not null" json:"-"`
	PrincipalID string            `gorm:"type:varchar(36);not null;index" json:"principal_id"`
	PostID      *string           `gorm:"type:varchar(36)" json:"post_id"` // nil 表示全部
	Action      UnsubscribeAction `gorm:"type:varchar(30);not null" json:"action"`
	ExpiresAt   time.Time         `gorm:"not null;index" json:"expires_at"`
	UsedAt      *time.Time        `json:"used_at"`
}

func (UnsubscribeToken) TableName() string { return "unsubscribe_tokens" }

package models

// NotificationPreference 按需创建；没有行时使用默认值（全部开启、未静音）
type NotificationPreference struct {
	BaseModel
	PrincipalID       string `gorm:"type:varchar(36);not null;uniqueIndex" json:"principal_id"`
	EmailStatusChange bool   `gorm:"not null" json:"email_status_change"`
	EmailNewComment   bool   `gorm:"not null" json:"email_new_comment"`
	EmailMuted        bool   `gorm:"not null" json:"email_muted"` // 全局开关，优先于帖子订阅
}

func (NotificationPreference) TableName() string { return "notification_preferences" }

package models

import "time"

type Changelog struct {
	BaseModel
	Title       string     `gorm:"not null" json:"title"`
	Content     string     `gorm:"type:text" json:"content"` // markdown
	PrincipalID string     `gorm:"type:varchar(36);index" json:"principal_id"`
	PublishedAt *time.Time `gorm:"index" json:"published_at"`
}

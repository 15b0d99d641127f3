package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vote 每个 principal 对每个帖子最多一票，由 (principal_id, post_id) 唯一索引保证
type Vote struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	PrincipalID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_vote_principal_post" json:"principal_id"`
	PostID      string    `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_vote_principal_post" json:"post_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

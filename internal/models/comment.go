package models

type Comment struct {
	BaseModel
	PostID      string    `gorm:"type:varchar(36);not null;index" json:"post_id"`
	Post        Post      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	PrincipalID string    `gorm:"type:varchar(36);not null;index" json:"principal_id"`
	Principal   Principal `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"principal"`
	ParentID    *string   `gorm:"type:varchar(36);index" json:"parent_id"` // Nullable for top-level comments
	Content     string    `gorm:"type:text;not null" json:"content"`
	IsTeam      bool      `gorm:"default:false" json:"is_team"` // 团队成员的官方回复
}

package models

// PostStatus 路线图状态，例如 open / planned / in_progress / complete
type PostStatus struct {
	BaseModel
	Name      string `gorm:"not null" json:"name"`
	Slug      string `gorm:"uniqueIndex;not null" json:"slug"`
	Color     string `gorm:"size:20" json:"color"`
	IsDefault bool   `gorm:"default:false" json:"is_default"`
}

type Post struct {
	BaseModel
	BoardID     string      `gorm:"type:varchar(36);not null;index" json:"board_id"`
	Board       Board       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"board"`
	PrincipalID string      `gorm:"type:varchar(36);not null;index" json:"principal_id"` // 作者
	Principal   Principal   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"principal"`
	StatusID    *string     `gorm:"type:varchar(36);index" json:"status_id"`
	Status      *PostStatus `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"status,omitempty"`
	Title       string      `gorm:"not null" json:"title"`
	Content     string      `gorm:"type:text" json:"content"`
	VoteCount   int         `gorm:"default:0" json:"vote_count"`

	// 非数据库字段，用于查询时填充
	CommentCount int `gorm:"-" json:"comment_count"`
}

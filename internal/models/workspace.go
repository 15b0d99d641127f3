package models

// WorkspaceSettings 单租户部署只有一行；不存在表示工作区尚未初始化
type WorkspaceSettings struct {
	BaseModel
	Name string `gorm:"not null" json:"name"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"`
}

func (WorkspaceSettings) TableName() string { return "workspace_settings" }

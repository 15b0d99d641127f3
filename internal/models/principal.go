package models

type PrincipalType string

const (
	PrincipalTypeUser      PrincipalType = "user"      // 团队成员或已注册的门户用户
	PrincipalTypeAnonymous PrincipalType = "anonymous" // 匿名门户访客
	PrincipalTypeService   PrincipalType = "service"   // API key / 集成
)

// Principal 统一团队成员、门户用户与服务身份，订阅与权限都挂在它上面
type Principal struct {
	BaseModel
	Type        PrincipalType `gorm:"type:varchar(20);not null;default:'user'" json:"type"`
	Role        string        `gorm:"size:20;default:'user';not null" json:"role"` // admin, member, user
	UserID      *string       `gorm:"type:varchar(36);uniqueIndex" json:"user_id"` // service principal 没有 user
	User        *User         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user,omitempty"`
	DisplayName string        `json:"display_name"`
}

func (p *Principal) IsAdmin() bool {
	return p.Role == "admin" || p.Role == "member"
}

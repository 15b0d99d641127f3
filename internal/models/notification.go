package models

type NotificationType string

const (
	NotificationTypeStatusChanged NotificationType = "status_changed"
	NotificationTypeNewComment    NotificationType = "new_comment"
)

// Notification 站内收件箱，每个成功投递的订阅者一行
type Notification struct {
	BaseModel
	PrincipalID      string           `gorm:"type:varchar(36);not null;index" json:"principal_id"` // Receiver
	ActorPrincipalID *string          `gorm:"type:varchar(36);index" json:"actor_principal_id"`    // Sender
	EventID          string           `gorm:"type:varchar(36);index" json:"event_id"`
	PostID           *string          `gorm:"type:varchar(36);index" json:"post_id"`
	Type             NotificationType `gorm:"type:varchar(30);not null" json:"type"`
	Title            string           `gorm:"not null" json:"title"`
	Body             string           `gorm:"type:text" json:"body"`
	IsRead           bool             `gorm:"default:false;index" json:"is_read"`
}

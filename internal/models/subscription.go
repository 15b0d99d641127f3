package models

type SubscriptionReason string

const (
	SubscriptionReasonAuthor         SubscriptionReason = "author"
	SubscriptionReasonVote           SubscriptionReason = "vote"
	SubscriptionReasonComment        SubscriptionReason = "comment"
	SubscriptionReasonManual         SubscriptionReason = "manual"
	SubscriptionReasonFeedbackAuthor SubscriptionReason = "feedback_author"
)

func (r SubscriptionReason) Valid() bool {
	switch r {
	case SubscriptionReasonAuthor, SubscriptionReasonVote, SubscriptionReasonComment,
		SubscriptionReasonManual, SubscriptionReasonFeedbackAuthor:
		return true
	}
	return false
}

// PostSubscription 每个 (principal, post) 至多一行；取消订阅直接删除该行
type PostSubscription struct {
	BaseModel
	PostID              string             `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_subscription_principal_post" json:"post_id"`
	PrincipalID         string             `gorm:"type:varchar(36);not null;uniqueIndex:idx_subscription_principal_post" json:"principal_id"`
	Reason              SubscriptionReason `gorm:"type:varchar(20);not null" json:"reason"`
	NotifyComments      bool               `gorm:"not null" json:"notify_comments"`
	NotifyStatusChanges bool               `gorm:"not null" json:"notify_status_changes"`
}

func (PostSubscription) TableName() string { return "post_subscriptions" }

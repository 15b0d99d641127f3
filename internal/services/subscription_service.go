package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedbackhub/internal/apperrors"
	"feedbackhub/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionLevel string

const (
	SubscriptionLevelAll        SubscriptionLevel = "all"
	SubscriptionLevelStatusOnly SubscriptionLevel = "status_only"
	SubscriptionLevelNone       SubscriptionLevel = "none"
)

func (l SubscriptionLevel) Valid() bool {
	return l == SubscriptionLevelAll || l == SubscriptionLevelStatusOnly || l == SubscriptionLevelNone
}

// flags level -> (notifyComments, notifyStatusChanges)
func (l SubscriptionLevel) flags() (bool, bool) {
	return l == SubscriptionLevelAll, true
}

// levelFromFlags 两个开关都关闭时返回 none（正常流程到不了这个状态，none 会直接删行）
func levelFromFlags(notifyComments, notifyStatusChanges bool) SubscriptionLevel {
	switch {
	case notifyComments && notifyStatusChanges:
		return SubscriptionLevelAll
	case notifyStatusChanges:
		return SubscriptionLevelStatusOnly
	default:
		return SubscriptionLevelNone
	}
}

// SubscriberEvent 订阅者关心的事件类别
type SubscriberEvent string

const (
	SubscriberEventComment      SubscriberEvent = "comment"
	SubscriberEventStatusChange SubscriberEvent = "status_change"
)

type SubscriptionStatus struct {
	Subscribed          bool                       `json:"subscribed"`
	NotifyComments      bool                       `json:"notify_comments"`
	NotifyStatusChanges bool                       `json:"notify_status_changes"`
	Reason              *models.SubscriptionReason `json:"reason"`
	Level               SubscriptionLevel          `json:"level"`
}

// Subscriber 订阅者及其投递地址
type Subscriber struct {
	PrincipalID string                    `json:"principal_id"`
	UserID      string                    `json:"user_id"`
	Email       string                    `json:"email"`
	Name        string                    `json:"name"`
	DisplayName string                    `json:"display_name"`
	Reason      models.SubscriptionReason `json:"reason"`
}

type NotificationPreferences struct {
	EmailStatusChange bool `json:"email_status_change"`
	EmailNewComment   bool `json:"email_new_comment"`
	EmailMuted        bool `json:"email_muted"`
}

// DefaultNotificationPreferences 没有存储行时使用
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		EmailStatusChange: true,
		EmailNewComment:   true,
		EmailMuted:        false,
	}
}

// PreferencesUpdate nil 表示不修改
type PreferencesUpdate struct {
	EmailStatusChange *bool `json:"email_status_change"`
	EmailNewComment   *bool `json:"email_new_comment"`
	EmailMuted        *bool `json:"email_muted"`
}

type storeOptions struct {
	tx    *gorm.DB
	level SubscriptionLevel
}

type StoreOption func(*storeOptions)

// WithTx 在调用方的事务里执行（例如评论与自动订阅一起提交）
func WithTx(tx *gorm.DB) StoreOption {
	return func(o *storeOptions) { o.tx = tx }
}

func WithLevel(level SubscriptionLevel) StoreOption {
	return func(o *storeOptions) { o.level = level }
}

// SubscriptionService 帖子订阅与通知偏好
type SubscriptionService struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

func NewSubscriptionService(db *gorm.DB, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{db: db, log: log, now: time.Now}
}

func (s *SubscriptionService) conn(ctx context.Context, opts []StoreOption) (*gorm.DB, storeOptions) {
	o := storeOptions{level: SubscriptionLevelAll}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tx != nil {
		return o.tx.WithContext(ctx), o
	}
	return s.db.WithContext(ctx), o
}

var subscriptionConflict = []clause.Column{{Name: "post_id"}, {Name: "principal_id"}}

// SubscribeToPost 已有订阅时不做任何修改（保留第一次的 reason 与开关）
func (s *SubscriptionService) SubscribeToPost(ctx context.Context, principalID, postID string, reason models.SubscriptionReason, opts ...StoreOption) error {
	db, o := s.conn(ctx, opts)

	if !reason.Valid() {
		return apperrors.Validation("subscription", fmt.Sprintf("invalid subscription reason %q", reason))
	}
	if o.level != SubscriptionLevelAll && o.level != SubscriptionLevelStatusOnly {
		return apperrors.Validation("subscription", fmt.Sprintf("invalid subscription level %q", o.level))
	}

	notifyComments, notifyStatus := o.level.flags()
	sub := models.PostSubscription{
		PostID:              postID,
		PrincipalID:         principalID,
		Reason:              reason,
		NotifyComments:      notifyComments,
		NotifyStatusChanges: notifyStatus,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   subscriptionConflict,
		DoNothing: true,
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("subscribe principal %s to post %s: %w", principalID, postID, err)
	}
	return nil
}

// UnsubscribeFromPost 删除订阅，不存在时也不报错
func (s *SubscriptionService) UnsubscribeFromPost(ctx context.Context, principalID, postID string, opts ...StoreOption) error {
	db, _ := s.conn(ctx, opts)

	err := db.Where("principal_id = ? AND post_id = ?", principalID, postID).
		Delete(&models.PostSubscription{}).Error
	if err != nil {
		return fmt.Errorf("unsubscribe principal %s from post %s: %w", principalID, postID, err)
	}
	return nil
}

// UpdateSubscriptionLevel none 等同于取消订阅；其余按 level 设置开关，新建时 reason 为 manual
func (s *SubscriptionService) UpdateSubscriptionLevel(ctx context.Context, principalID, postID string, level SubscriptionLevel) error {
	if !level.Valid() {
		return apperrors.Validation("subscription", fmt.Sprintf("invalid subscription level %q", level))
	}
	if level == SubscriptionLevelNone {
		return s.UnsubscribeFromPost(ctx, principalID, postID)
	}

	notifyComments, notifyStatus := level.flags()
	sub := models.PostSubscription{
		PostID:              postID,
		PrincipalID:         principalID,
		Reason:              models.SubscriptionReasonManual,
		NotifyComments:      notifyComments,
		NotifyStatusChanges: notifyStatus,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: subscriptionConflict,
		DoUpdates: clause.Assignments(map[string]any{
			"notify_comments":       notifyComments,
			"notify_status_changes": notifyStatus,
			"updated_at":            s.now(),
		}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("update subscription level: %w", err)
	}
	return nil
}

// GetSubscriptionStatus 没有订阅时返回 subscribed=false / level=none / reason=nil
func (s *SubscriptionService) GetSubscriptionStatus(ctx context.Context, principalID, postID string) (SubscriptionStatus, error) {
	var sub models.PostSubscription
	err := s.db.WithContext(ctx).
		Where("principal_id = ? AND post_id = ?", principalID, postID).
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SubscriptionStatus{Level: SubscriptionLevelNone}, nil
	}
	if err != nil {
		return SubscriptionStatus{}, fmt.Errorf("get subscription status: %w", err)
	}

	reason := sub.Reason
	return SubscriptionStatus{
		Subscribed:          true,
		NotifyComments:      sub.NotifyComments,
		NotifyStatusChanges: sub.NotifyStatusChanges,
		Reason:              &reason,
		Level:               levelFromFlags(sub.NotifyComments, sub.NotifyStatusChanges),
	}, nil
}

// GetSubscribersForEvent 对应开关打开的订阅者，连表取邮箱。
// 服务身份没有 user，内连接会把它们排除。
func (s *SubscriptionService) GetSubscribersForEvent(ctx context.Context, postID string, event SubscriberEvent) ([]Subscriber, error) {
	q := s.db.WithContext(ctx).
		Table("post_subscriptions AS ps").
		Select("ps.principal_id, ps.reason, p.user_id, p.display_name, u.email, u.name").
		Joins("JOIN principals AS p ON p.id = ps.principal_id").
		Joins("JOIN users AS u ON u.id = p.user_id").
		Where("ps.post_id = ?", postID)

	switch event {
	case SubscriberEventComment:
		q = q.Where("ps.notify_comments = ?", true)
	case SubscriberEventStatusChange:
		q = q.Where("ps.notify_status_changes = ?", true)
	default:
		return nil, apperrors.Validation("subscription", fmt.Sprintf("invalid subscriber event %q", event))
	}

	var subscribers []Subscriber
	if err := q.Scan(&subscribers).Error; err != nil {
		return nil, fmt.Errorf("get subscribers for post %s: %w", postID, err)
	}
	return subscribers, nil
}

// GetNotificationPreferences 读不到时返回默认值，不会建行
func (s *SubscriptionService) GetNotificationPreferences(ctx context.Context, principalID string, opts ...StoreOption) (NotificationPreferences, error) {
	db, _ := s.conn(ctx, opts)

	var row models.NotificationPreference
	err := db.Where("principal_id = ?", principalID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultNotificationPreferences(), nil
	}
	if err != nil {
		return NotificationPreferences{}, fmt.Errorf("get notification preferences: %w", err)
	}
	return prefsFromRow(row), nil
}

// BatchGetNotificationPreferences 一次查询，缺失的 id 填默认值
func (s *SubscriptionService) BatchGetNotificationPreferences(ctx context.Context, principalIDs []string) (map[string]NotificationPreferences, error) {
	result := make(map[string]NotificationPreferences, len(principalIDs))
	if len(principalIDs) == 0 {
		return result, nil
	}

	var rows []models.NotificationPreference
	if err := s.db.WithContext(ctx).Where("principal_id IN ?", principalIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("batch get notification preferences: %w", err)
	}

	for _, id := range principalIDs {
		result[id] = DefaultNotificationPreferences()
	}
	for _, row := range rows {
		result[row.PrincipalID] = prefsFromRow(row)
	}
	return result, nil
}

// UpdateNotificationPreferences 单条 upsert：已存在则只改传入的字段，不存在则用默认值补齐
func (s *SubscriptionService) UpdateNotificationPreferences(ctx context.Context, principalID string, update PreferencesUpdate, opts ...StoreOption) (NotificationPreferences, error) {
	db, _ := s.conn(ctx, opts)

	prefs := DefaultNotificationPreferences()
	assignments := map[string]any{"updated_at": s.now()}
	if update.EmailStatusChange != nil {
		prefs.EmailStatusChange = *update.EmailStatusChange
		assignments["email_status_change"] = *update.EmailStatusChange
	}
	if update.EmailNewComment != nil {
		prefs.EmailNewComment = *update.EmailNewComment
		assignments["email_new_comment"] = *update.EmailNewComment
	}
	if update.EmailMuted != nil {
		prefs.EmailMuted = *update.EmailMuted
		assignments["email_muted"] = *update.EmailMuted
	}

	row := models.NotificationPreference{
		PrincipalID:       principalID,
		EmailStatusChange: prefs.EmailStatusChange,
		EmailNewComment:   prefs.EmailNewComment,
		EmailMuted:        prefs.EmailMuted,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "principal_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&row).Error
	if err != nil {
		return NotificationPreferences{}, fmt.Errorf("update notification preferences: %w", err)
	}

	return s.GetNotificationPreferences(ctx, principalID, opts...)
}

func prefsFromRow(row models.NotificationPreference) NotificationPreferences {
	return NotificationPreferences{
		EmailStatusChange: row.EmailStatusChange,
		EmailNewComment:   row.EmailNewComment,
		EmailMuted:        row.EmailMuted,
	}
}

package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"feedbackhub/internal/apperrors"
	"feedbackhub/internal/models"

	"gorm.io/gorm"
)

const (
	UnsubscribeTokenTTL = 30 * 24 * time.Hour
	tokenBytes          = 32
)

// TokenRequest 批量生成时的一项
type TokenRequest struct {
	PrincipalID string
	PostID      *string
	Action      models.UnsubscribeAction
}

// UnsubscribedPost 确认页展示用
type UnsubscribedPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	BoardSlug string `json:"board_slug"`
}

type UnsubscribeResult struct {
	Action      models.UnsubscribeAction `json:"action"`
	PrincipalID string                   `json:"principal_id"`
	PostID      *string                  `json:"post_id"`
	Post        *UnsubscribedPost        `json:"post,omitempty"`
}

// UnsubscribeService 邮件退订链接
type UnsubscribeService struct {
	db            *gorm.DB
	subscriptions *SubscriptionService
	log           *slog.Logger
	now           func() time.Time
}

func NewUnsubscribeService(db *gorm.DB, subscriptions *SubscriptionService, log *slog.Logger) *UnsubscribeService {
	return &UnsubscribeService{db: db, subscriptions: subscriptions, log: log, now: time.Now}
}

// newToken 32 字节随机数，hex 编码；不含任何结构，只能查库
func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *UnsubscribeService) GenerateUnsubscribeToken(ctx context.Context, principalID string, postID *string, action models.UnsubscribeAction) (string, error) {
	if !action.Valid() {
		return "", apperrors.Validation("unsubscribe", fmt.Sprintf("invalid unsubscribe action %q", action))
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	row := models.UnsubscribeToken{
		Token:       token,
		PrincipalID: principalID,
		PostID:      postID,
		Action:      action,
		ExpiresAt:   s.now().Add(UnsubscribeTokenTTL),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("store unsubscribe token: %w", err)
	}
	return token, nil
}

// BatchGenerateUnsubscribeTokens 每项一个 token，一次批量插入；同一 principal 出现多次时以最后一项为准
func (s *UnsubscribeService) BatchGenerateUnsubscribeTokens(ctx context.Context, requests []TokenRequest) (map[string]string, error) {
	result := make(map[string]string, len(requests))
	if len(requests) == 0 {
		return result, nil
	}

	expiresAt := s.now().Add(UnsubscribeTokenTTL)
	rows := make([]models.UnsubscribeToken, 0, len(requests))
	for _, req := range requests {
		if !req.Action.Valid() {
			return nil, apperrors.Validation("unsubscribe", fmt.Sprintf("invalid unsubscribe action %q", req.Action))
		}
		token, err := newToken()
		if err != nil {
			return nil, err
		}
		rows = append(rows, models.UnsubscribeToken{
			Token:       token,
			PrincipalID: req.PrincipalID,
			PostID:      req.PostID,
			Action:      req.Action,
			ExpiresAt:   expiresAt,
		})
		result[req.PrincipalID] = token
	}

	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("store unsubscribe tokens: %w", err)
	}
	return result, nil
}

// ProcessUnsubscribeToken 消费 token 并执行退订。
// 未知、已使用、已过期、并发下被别人先消费、principal 已删除，都返回 nil 结果而不是错误。
func (s *UnsubscribeService) ProcessUnsubscribeToken(ctx context.Context, token string) (*UnsubscribeResult, error) {
	if token == "" {
		return nil, nil
	}

	var row models.UnsubscribeToken
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup unsubscribe token: %w", err)
	}

	now := s.now()
	if row.UsedAt != nil || !now.Before(row.ExpiresAt) {
		return nil, nil
	}

	var result *UnsubscribeResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 条件更新保证只能消费一次
		res := tx.Model(&models.UnsubscribeToken{}).
			Where("token = ? AND used_at IS NULL", token).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}

		var principal models.Principal
		if err := tx.Where("id = ?", row.PrincipalID).Take(&principal).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		out := &UnsubscribeResult{
			Action:      row.Action,
			PrincipalID: row.PrincipalID,
			PostID:      row.PostID,
		}
		if row.PostID != nil {
			var post models.Post
			err := tx.Preload("Board").Where("id = ?", *row.PostID).Take(&post).Error
			switch {
			case err == nil:
				out.Post = &UnsubscribedPost{ID: post.ID, Title: post.Title, BoardSlug: post.Board.Slug}
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		switch row.Action {
		case models.UnsubscribeActionPost:
			if row.PostID != nil {
				if err := s.subscriptions.UnsubscribeFromPost(ctx, row.PrincipalID, *row.PostID, WithTx(tx)); err != nil {
					return err
				}
			}
		case models.UnsubscribeActionAll:
			muted := true
			if _, err := s.subscriptions.UpdateNotificationPreferences(ctx, row.PrincipalID, PreferencesUpdate{EmailMuted: &muted}, WithTx(tx)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown unsubscribe action %q", row.Action)
		}

		result = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("process unsubscribe token: %w", err)
	}

	if result != nil {
		s.log.Info("unsubscribe token processed",
			"principal_id", result.PrincipalID,
			"action", result.Action,
		)
	}
	return result, nil
}

// UnsubscribeURL {baseURL}/unsubscribe?token=...
func UnsubscribeURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/unsubscribe?token=" + url.QueryEscape(token)
}

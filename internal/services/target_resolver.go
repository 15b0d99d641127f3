package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"feedbackhub/internal/events"
	"feedbackhub/internal/hooks"
	"feedbackhub/internal/models"
	"feedbackhub/internal/secrets"

	"gorm.io/gorm"
)

// HookContext 每个事件只构建一次，传给该事件的所有 hook 目标
type HookContext struct {
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	WorkspaceSlug string `json:"workspace_slug"`
	PortalBaseURL string `json:"portal_base_url"`
}

// WorkspaceSettingsReader 读取工作区设置；未初始化时返回 (nil, nil)
type WorkspaceSettingsReader interface {
	GetWorkspaceSettings(ctx context.Context) (*models.WorkspaceSettings, error)
}

type gormWorkspaceSettings struct {
	db *gorm.DB
}

func NewWorkspaceSettingsReader(db *gorm.DB) WorkspaceSettingsReader {
	return &gormWorkspaceSettings{db: db}
}

func (r *gormWorkspaceSettings) GetWorkspaceSettings(ctx context.Context) (*models.WorkspaceSettings, error) {
	var settings models.WorkspaceSettings
	err := r.db.WithContext(ctx).Order("created_at ASC").Take(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// HookTarget 一个待执行的集成动作
type HookTarget struct {
	IntegrationID   string          `json:"integration_id"`
	IntegrationType string          `json:"integration_type"`
	MappingID       string          `json:"mapping_id"`
	Target          json.RawMessage `json:"target"`
	Config          hooks.Config    `json:"-"`
}

// TargetResolver 计算事件的两类接收方：邮件订阅者与集成 hook
type TargetResolver struct {
	db            *gorm.DB
	settings      WorkspaceSettingsReader
	subscriptions *SubscriptionService
	box           *secrets.Box
	portalBaseURL string
	log           *slog.Logger
}

func NewTargetResolver(db *gorm.DB, settings WorkspaceSettingsReader, subscriptions *SubscriptionService, box *secrets.Box, portalBaseURL string, log *slog.Logger) *TargetResolver {
	return &TargetResolver{
		db:            db,
		settings:      settings,
		subscriptions: subscriptions,
		box:           box,
		portalBaseURL: strings.TrimRight(portalBaseURL, "/"),
		log:           log,
	}
}

// BuildHookContext 工作区未初始化时返回 nil，调用方应跳过 hook 解析
func (r *TargetResolver) BuildHookContext(ctx context.Context) (*HookContext, error) {
	settings, err := r.settings.GetWorkspaceSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load workspace settings: %w", err)
	}
	if settings == nil {
		return nil, nil
	}
	return &HookContext{
		WorkspaceID:   settings.ID,
		WorkspaceName: settings.Name,
		WorkspaceSlug: settings.Slug,
		PortalBaseURL: r.portalBaseURL,
	}, nil
}

// ResolveNotificationRecipients 订阅者减去触发者本人，再按通知偏好过滤
func (r *TargetResolver) ResolveNotificationRecipients(ctx context.Context, event *events.Event) ([]Subscriber, error) {
	var (
		postID   string
		category SubscriberEvent
	)
	switch d := event.Data.(type) {
	case events.PostStatusChangedData:
		postID, category = d.Post.ID, SubscriberEventStatusChange
	case events.CommentCreatedData:
		postID, category = d.Post.ID, SubscriberEventComment
	case events.PostCreatedData, events.ChangelogPublishedData:
		return nil, nil
	default:
		return nil, fmt.Errorf("resolve recipients: unhandled event data %T", event.Data)
	}

	subscribers, err := r.subscriptions.GetSubscribersForEvent(ctx, postID, category)
	if err != nil {
		return nil, err
	}

	actorID := ""
	if event.Actor != nil {
		actorID = event.Actor.ActorPrincipalID()
	}

	candidates := make([]Subscriber, 0, len(subscribers))
	ids := make([]string, 0, len(subscribers))
	for _, sub := range subscribers {
		if sub.PrincipalID == actorID {
			continue
		}
		candidates = append(candidates, sub)
		ids = append(ids, sub.PrincipalID)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	prefs, err := r.subscriptions.BatchGetNotificationPreferences(ctx, ids)
	if err != nil {
		return nil, err
	}

	recipients := make([]Subscriber, 0, len(candidates))
	for _, sub := range candidates {
		p, ok := prefs[sub.PrincipalID]
		if !ok {
			p = DefaultNotificationPreferences()
		}
		if p.EmailMuted {
			continue
		}
		if category == SubscriberEventStatusChange && !p.EmailStatusChange {
			continue
		}
		if category == SubscriberEventComment && !p.EmailNewComment {
			continue
		}
		recipients = append(recipients, sub)
	}
	return recipients, nil
}

// ResolveHookTargets 当前事件类型上已启用的映射，且集成处于 active 状态
func (r *TargetResolver) ResolveHookTargets(ctx context.Context, event *events.Event, hookCtx *HookContext) ([]HookTarget, error) {
	if hookCtx == nil {
		return nil, nil
	}

	var integrations []models.Integration
	err := r.db.WithContext(ctx).
		Preload("Mappings", "event_type = ? AND enabled = ?", string(event.Type), true).
		Where("status = ?", models.IntegrationStatusActive).
		Find(&integrations).Error
	if err != nil {
		return nil, fmt.Errorf("load integrations: %w", err)
	}

	var targets []HookTarget
	for _, integration := range integrations {
		if len(integration.Mappings) == 0 {
			continue
		}

		creds, err := r.openCredentials(integration)
		if err != nil {
			r.log.Error("skipping integration with unreadable credentials",
				"integration_id", integration.ID,
				"type", integration.Type,
				"error", err,
			)
			continue
		}

		cfg := hooks.Config{
			AccessToken:    creds.AccessToken,
			APIKey:         creds.APIKey,
			Secret:         creds.Secret,
			Metadata:       map[string]any(integration.Metadata),
			RootURL:        hookCtx.PortalBaseURL,
			WorkspaceName:  hookCtx.WorkspaceName,
			WorkspaceSlug:  hookCtx.WorkspaceSlug,
			IdempotencyKey: event.ID,
		}
		for _, m := range integration.Mappings {
			targets = append(targets, HookTarget{
				IntegrationID:   integration.ID,
				IntegrationType: integration.Type,
				MappingID:       m.ID,
				Target:          json.RawMessage(m.Target),
				Config:          cfg,
			})
		}
	}
	return targets, nil
}

func (r *TargetResolver) openCredentials(integration models.Integration) (secrets.Credentials, error) {
	if integration.Secrets == "" {
		return secrets.Credentials{}, nil
	}
	if r.box == nil {
		return secrets.Credentials{}, errors.New("no encryption key configured")
	}
	return r.box.OpenCredentials(integration.Secrets)
}

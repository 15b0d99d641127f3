package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"feedbackhub/internal/apperrors"
	"feedbackhub/internal/events"
	"feedbackhub/internal/hooks"
	"feedbackhub/internal/models"
	"feedbackhub/internal/secrets"
	"feedbackhub/internal/validator"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CreateIntegrationInput struct {
	Type        string              `json:"type" validate:"required"`
	Name        string              `json:"name" validate:"max=100"`
	Credentials secrets.Credentials `json:"credentials"`
	Metadata    map[string]any      `json:"metadata"`
}

type MappingInput struct {
	EventType events.EventType `json:"event_type" validate:"required"`
	Target    json.RawMessage  `json:"target"`
	Enabled   *bool            `json:"enabled"`
}

// IntegrationService 团队成员管理集成、事件映射，查看投递记录
type IntegrationService struct {
	db       *gorm.DB
	box      *secrets.Box
	registry *hooks.Registry
	validate *validator.Validator
	log      *slog.Logger
}

func NewIntegrationService(db *gorm.DB, box *secrets.Box, registry *hooks.Registry, log *slog.Logger) *IntegrationService {
	return &IntegrationService{
		db:       db,
		box:      box,
		registry: registry,
		validate: validator.New(),
		log:      log,
	}
}

func requireTeam(actor *models.Principal) error {
	if !actor.IsAdmin() {
		return apperrors.Forbidden("only team members can manage integrations")
	}
	return nil
}

func (s *IntegrationService) CreateIntegration(ctx context.Context, actor *models.Principal, in CreateIntegrationInput) (*models.Integration, error) {
	if err := requireTeam(actor); err != nil {
		return nil, err
	}
	if err := s.validate.Validate(in); err != nil {
		var vErr *validator.ValidationError
		if errors.As(err, &vErr) {
			return nil, apperrors.Validation("integration", "invalid input").WithDetails(vErr.Errors)
		}
		return nil, err
	}
	if _, ok := s.registry.Get(in.Type); !ok {
		types := s.registry.Types()
		slices.Sort(types)
		return nil, apperrors.Validation("integration", fmt.Sprintf("unknown integration type %q", in.Type)).
			WithDetails(map[string]any{"supported": types})
	}

	integration := models.Integration{
		Type:     in.Type,
		Name:     in.Name,
		Status:   models.IntegrationStatusActive,
		Metadata: datatypes.JSONMap(in.Metadata),
	}
	if in.Credentials != (secrets.Credentials{}) {
		if s.box == nil {
			return nil, apperrors.Validation("integration", "credential storage is not configured")
		}
		sealed, err := s.box.SealCredentials(in.Credentials)
		if err != nil {
			return nil, apperrors.Internal(fmt.Errorf("seal credentials: %w", err))
		}
		integration.Secrets = sealed
	}

	if err := s.db.WithContext(ctx).Create(&integration).Error; err != nil {
		return nil, apperrors.Database("integration", err)
	}
	s.log.Info("integration connected", "integration_id", integration.ID, "type", integration.Type, "principal_id", actor.ID)
	return &integration, nil
}

func (s *IntegrationService) ListIntegrations(ctx context.Context, actor *models.Principal) ([]models.Integration, error) {
	if err := requireTeam(actor); err != nil {
		return nil, err
	}
	var integrations []models.Integration
	err := s.db.WithContext(ctx).Preload("Mappings").Order("created_at ASC").Find(&integrations).Error
	if err != nil {
		return nil, apperrors.Database("integration", err)
	}
	return integrations, nil
}

func (s *IntegrationService) loadIntegration(ctx context.Context, id string) (*models.Integration, error) {
	var integration models.Integration
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("integration", "integration not found")
	}
	if err != nil {
		return nil, apperrors.Database("integration", err)
	}
	return &integration, nil
}

// AddMapping 新映射默认启用
func (s *IntegrationService) AddMapping(ctx context.Context, actor *models.Principal, integrationID string, in MappingInput) (*models.IntegrationEventMapping, error) {
	if err := requireTeam(actor); err != nil {
		return nil, err
	}
	if !in.EventType.Valid() {
		return nil, apperrors.Validation("integration", fmt.Sprintf("unknown event type %q", in.EventType))
	}
	if len(in.Target) > 0 && !json.Valid(in.Target) {
		return nil, apperrors.Validation("integration", "target must be valid JSON")
	}
	integration, err := s.loadIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	mapping := models.IntegrationEventMapping{
		IntegrationID: integration.ID,
		EventType:     string(in.EventType),
		Target:        datatypes.JSON(in.Target),
		Enabled:       in.Enabled == nil || *in.Enabled,
	}
	if err := s.db.WithContext(ctx).Create(&mapping).Error; err != nil {
		return nil, apperrors.Database("integration", err)
	}
	return &mapping, nil
}

func (s *IntegrationService) SetMappingEnabled(ctx context.Context, actor *models.Principal, integrationID, mappingID string, enabled bool) error {
	if err := requireTeam(actor); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.IntegrationEventMapping{}).
		Where("id = ? AND integration_id = ?", mappingID, integrationID).
		Update("enabled", enabled)
	if res.Error != nil {
		return apperrors.Database("integration", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("integration", "mapping not found")
	}
	return nil
}

// SetStatus 暂停或重新启用；重新启用会清掉认证失败留下的错误
func (s *IntegrationService) SetStatus(ctx context.Context, actor *models.Principal, integrationID string, status models.IntegrationStatus) error {
	if err := requireTeam(actor); err != nil {
		return err
	}
	if status != models.IntegrationStatusActive && status != models.IntegrationStatusPaused {
		return apperrors.Validation("integration", fmt.Sprintf("status must be %q or %q", models.IntegrationStatusActive, models.IntegrationStatusPaused))
	}
	updates := map[string]any{"status": status}
	if status == models.IntegrationStatusActive {
		updates["last_error"] = ""
	}
	res := s.db.WithContext(ctx).Model(&models.Integration{}).Where("id = ?", integrationID).Updates(updates)
	if res.Error != nil {
		return apperrors.Database("integration", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("integration", "integration not found")
	}
	return nil
}

// ListDeliveries 最近的投递记录，新的在前
func (s *IntegrationService) ListDeliveries(ctx context.Context, actor *models.Principal, integrationID string, limit int) ([]models.HookDelivery, error) {
	if err := requireTeam(actor); err != nil {
		return nil, err
	}
	if _, err := s.loadIntegration(ctx, integrationID); err != nil {
		return nil, err
	}
	var deliveries []models.HookDelivery
	err := s.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Order("completed_at DESC").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, apperrors.Database("integration", err)
	}
	return deliveries, nil
}

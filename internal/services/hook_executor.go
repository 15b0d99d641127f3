package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"feedbackhub/internal/events"
	"feedbackhub/internal/hooks"
	"feedbackhub/internal/models"
	"feedbackhub/internal/utils"

	"gorm.io/gorm"
)

const (
	DefaultHookTimeout = 15 * time.Second
	recentSuccessTTL   = time.Hour
)

type HookJob struct {
	Event  *events.Event
	Target HookTarget
}

// HookExecutor 执行单个 hook 目标并记录结果。
// 已成功过的 (事件, 映射) 不再执行，避免重试时重复创建外部对象。
type HookExecutor struct {
	db       *gorm.DB
	registry *hooks.Registry
	timeout  time.Duration
	recent   *utils.TTLCache[bool]
	log      *slog.Logger
	now      func() time.Time
}

func NewHookExecutor(db *gorm.DB, registry *hooks.Registry, timeout time.Duration, log *slog.Logger) (*HookExecutor, error) {
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	recent, err := utils.NewTTLCache[bool](2048)
	if err != nil {
		return nil, err
	}
	return &HookExecutor{
		db:       db,
		registry: registry,
		timeout:  timeout,
		recent:   recent,
		log:      log,
		now:      time.Now,
	}, nil
}

func deliveryKey(eventID, mappingID string) string {
	return eventID + ":" + mappingID
}

func (e *HookExecutor) Execute(ctx context.Context, job HookJob, attempt uint) hooks.Result {
	target := job.Target
	log := e.log.With(
		"event_id", job.Event.ID,
		"event_type", job.Event.Type,
		"integration_id", target.IntegrationID,
		"hook_type", target.IntegrationType,
		"attempt", attempt,
	)

	done, err := e.alreadyDelivered(ctx, job)
	if err != nil {
		log.Warn("delivery lookup failed, executing anyway", "error", err)
	}
	if done {
		log.Info("hook already delivered, skipping")
		return hooks.Skipped()
	}

	handler, ok := e.registry.Get(target.IntegrationType)
	if !ok {
		res := hooks.Result{Error: fmt.Sprintf("unknown hook type %q", target.IntegrationType)}
		e.record(ctx, job, attempt, res, 0, log)
		return res
	}

	start := e.now()
	res := e.run(ctx, handler, job)
	duration := e.now().Sub(start)

	e.record(ctx, job, attempt, res, duration, log)

	switch {
	case res.Success:
		e.recent.Set(deliveryKey(job.Event.ID, target.MappingID), true, recentSuccessTTL)
		log.Info("hook delivered", "external_id", res.ExternalID, "duration", duration)
	case res.AuthFailure:
		log.Warn("hook authentication failed, marking integration", "error", res.Error)
		e.markIntegrationError(ctx, target.IntegrationID, res.Error, log)
	default:
		log.Warn("hook failed", "error", res.Error, "should_retry", res.ShouldRetry, "duration", duration)
	}
	return res
}

// run 带超时执行；handler 不理会 ctx 也会在超时后返回可重试失败，panic 视为不可重试
func (e *HookExecutor) run(ctx context.Context, handler hooks.Handler, job HookJob) hooks.Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ch := make(chan hooks.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("hook panicked", "panic", r, "stack", string(debug.Stack()))
				ch <- hooks.Result{Error: fmt.Sprintf("hook panicked: %v", r), ShouldRetry: false}
			}
		}()
		ch <- handler.Run(ctx, job.Event, job.Target.Target, job.Target.Config)
	}()

	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		return hooks.Result{
			Error:       fmt.Sprintf("hook timed out: %v", ctx.Err()),
			ShouldRetry: true,
		}
	}
}

func (e *HookExecutor) alreadyDelivered(ctx context.Context, job HookJob) (bool, error) {
	key := deliveryKey(job.Event.ID, job.Target.MappingID)
	if _, ok := e.recent.Get(key); ok {
		return true, nil
	}

	var count int64
	err := e.db.WithContext(ctx).Model(&models.HookDelivery{}).
		Where("event_id = ? AND mapping_id = ? AND status = ?", job.Event.ID, job.Target.MappingID, models.HookDeliveryStatusSuccess).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		e.recent.Set(key, true, recentSuccessTTL)
		return true, nil
	}
	return false, nil
}

func (e *HookExecutor) record(ctx context.Context, job HookJob, attempt uint, res hooks.Result, duration time.Duration, log *slog.Logger) {
	status := models.HookDeliveryStatusFailed
	if res.Success {
		status = models.HookDeliveryStatusSuccess
	}
	delivery := models.HookDelivery{
		EventID:       job.Event.ID,
		EventType:     string(job.Event.Type),
		IntegrationID: job.Target.IntegrationID,
		MappingID:     job.Target.MappingID,
		HookType:      job.Target.IntegrationType,
		Status:        status,
		Attempt:       int(attempt),
		ExternalID:    res.ExternalID,
		ExternalURL:   res.ExternalURL,
		Error:         res.Error,
		ShouldRetry:   res.ShouldRetry,
		DurationMs:    duration.Milliseconds(),
		CompletedAt:   e.now(),
	}
	if err := e.db.WithContext(context.WithoutCancel(ctx)).Create(&delivery).Error; err != nil {
		log.Error("failed to record hook delivery", "error", err)
	}
}

func (e *HookExecutor) markIntegrationError(ctx context.Context, integrationID, message string, log *slog.Logger) {
	err := e.db.WithContext(context.WithoutCancel(ctx)).Model(&models.Integration{}).
		Where("id = ?", integrationID).
		Updates(map[string]any{
			"status":     models.IntegrationStatusError,
			"last_error": message,
		}).Error
	if err != nil {
		log.Error("failed to mark integration error", "error", err)
	}
}

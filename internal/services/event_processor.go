package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feedbackhub/internal/events"
	"feedbackhub/internal/hooks"
	"feedbackhub/internal/queue"
)

// JobQueue 后台队列
type JobQueue interface {
	Enqueue(job queue.Job) error
}

// NotificationDeliverer 订阅者通知投递
type NotificationDeliverer interface {
	Deliver(ctx context.Context, event *events.Event, recipients []Subscriber) error
}

// HookRunner 执行单个 hook 目标
type HookRunner interface {
	Execute(ctx context.Context, job HookJob, attempt uint) hooks.Result
}

// EventProcessor 解析事件接收方并入队；实际的网络调用在后台 worker 中执行
type EventProcessor struct {
	resolver *TargetResolver
	notifier NotificationDeliverer
	hooks    HookRunner
	queue    JobQueue
	log      *slog.Logger
}

func NewEventProcessor(resolver *TargetResolver, notifier NotificationDeliverer, runner HookRunner, q JobQueue, log *slog.Logger) *EventProcessor {
	return &EventProcessor{
		resolver: resolver,
		notifier: notifier,
		hooks:    runner,
		queue:    q,
		log:      log,
	}
}

// ProcessEvent 通知和 hook 互相独立：一边失败不影响另一边入队，错误汇总返回给分发器记录
func (p *EventProcessor) ProcessEvent(ctx context.Context, event *events.Event) error {
	var errs []error

	recipients, err := p.resolver.ResolveNotificationRecipients(ctx, event)
	if err != nil {
		errs = append(errs, fmt.Errorf("resolve recipients: %w", err))
	} else if len(recipients) > 0 {
		if err := p.queue.Enqueue(p.notifyJob(event, recipients)); err != nil {
			errs = append(errs, fmt.Errorf("enqueue notifications: %w", err))
		}
	}

	// HookContext 每个事件只构建一次
	hookCtx, err := p.resolver.BuildHookContext(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("build hook context: %w", err))
		return errors.Join(errs...)
	}
	if hookCtx == nil {
		p.log.Debug("workspace not provisioned, skipping hooks", "event_id", event.ID)
		return errors.Join(errs...)
	}

	targets, err := p.resolver.ResolveHookTargets(ctx, event, hookCtx)
	if err != nil {
		errs = append(errs, fmt.Errorf("resolve hook targets: %w", err))
		return errors.Join(errs...)
	}
	for _, target := range targets {
		if err := p.queue.Enqueue(p.hookJob(event, target)); err != nil {
			errs = append(errs, fmt.Errorf("enqueue hook %s/%s: %w", target.IntegrationType, target.MappingID, err))
		}
	}

	p.log.Debug("event resolved",
		"event_id", event.ID,
		"event_type", event.Type,
		"recipients", len(recipients),
		"hook_targets", len(targets),
	)
	return errors.Join(errs...)
}

func (p *EventProcessor) notifyJob(event *events.Event, recipients []Subscriber) queue.Job {
	return queue.Job{
		Kind:    queue.KindNotify,
		Name:    "notify:" + string(event.Type),
		EventID: event.ID,
		Run: func(ctx context.Context, attempt uint) error {
			err := p.notifier.Deliver(ctx, event, recipients)
			if errors.Is(err, ErrDeliveryNotStarted) {
				return queue.Retryable(err)
			}
			return err
		},
	}
}

func (p *EventProcessor) hookJob(event *events.Event, target HookTarget) queue.Job {
	return queue.Job{
		Kind:    queue.KindHook,
		Name:    "hook:" + target.IntegrationType,
		EventID: event.ID,
		Run: func(ctx context.Context, attempt uint) error {
			res := p.hooks.Execute(ctx, HookJob{Event: event, Target: target}, attempt)
			if res.Success {
				return nil
			}
			err := errors.New(res.Error)
			if res.ShouldRetry {
				return queue.Retryable(err)
			}
			return err
		},
	}
}

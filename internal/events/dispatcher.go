package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"feedbackhub/internal/logger"
	"feedbackhub/internal/validator"

	"github.com/google/uuid"
)

// Processor 解析事件的接收方并投递到后台队列
type Processor interface {
	ProcessEvent(ctx context.Context, event *Event) error
}

type ProcessorFunc func(ctx context.Context, event *Event) error

func (f ProcessorFunc) ProcessEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

var ErrMissingActor = errors.New("events: actor is required")

// Dispatcher 事件入口。Dispatch* 不返回错误：下游失败只记日志，
// 不能影响触发事件的业务操作（评论、改状态等）。
type Dispatcher struct {
	processor Processor
	validate  *validator.Validator
	log       *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewDispatcher(processor Processor, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		processor: processor,
		validate:  validator.New(),
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NewEvent 构造并校验事件信封
func (d *Dispatcher) NewEvent(actor Actor, data Data) (*Event, error) {
	if actor == nil {
		return nil, ErrMissingActor
	}
	if data == nil {
		return nil, errors.New("events: data is required")
	}
	if err := d.validate.Validate(data); err != nil {
		return nil, fmt.Errorf("events: invalid %s payload: %w", data.EventType(), err)
	}
	return &Event{
		ID:        d.newID(),
		Timestamp: d.now().UTC(),
		Actor:     actor,
		Type:      data.EventType(),
		Data:      data,
	}, nil
}

func (d *Dispatcher) DispatchPostCreated(ctx context.Context, actor Actor, post PostSnapshot) {
	d.build(ctx, actor, PostCreatedData{Post: post})
}

func (d *Dispatcher) DispatchPostStatusChanged(ctx context.Context, actor Actor, post PostRef, previous *StatusSnapshot, next StatusSnapshot) {
	d.build(ctx, actor, PostStatusChangedData{
		Post:           post,
		PreviousStatus: previous,
		NewStatus:      next,
	})
}

func (d *Dispatcher) DispatchCommentCreated(ctx context.Context, actor Actor, comment CommentSnapshot, post PostRef) {
	d.build(ctx, actor, CommentCreatedData{Comment: comment, Post: post})
}

func (d *Dispatcher) DispatchChangelogPublished(ctx context.Context, actor Actor, changelog ChangelogSnapshot) {
	d.build(ctx, actor, ChangelogPublishedData{Changelog: changelog})
}

func (d *Dispatcher) build(ctx context.Context, actor Actor, data Data) {
	event, err := d.NewEvent(actor, data)
	if err != nil {
		logger.FromContext(ctx, d.log).Error("dropping invalid event",
			"type", data.EventType(),
			"error", err,
		)
		return
	}
	d.DispatchEvent(ctx, event)
}

// DispatchEvent 同步执行 ProcessEvent（解析 + 入队），错误与 panic 都在这里吞掉并记录。
// 使用脱离取消的 context：请求结束不应中断已经开始的入队。
func (d *Dispatcher) DispatchEvent(ctx context.Context, event *Event) {
	ctx = logger.WithEventID(context.WithoutCancel(ctx), event.ID)
	log := logger.FromContext(ctx, d.log).With("event_type", event.Type)

	defer func() {
		if r := recover(); r != nil {
			log.Error("event processing panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	start := d.now()
	if err := d.processor.ProcessEvent(ctx, event); err != nil {
		log.Error("event processing failed", "error", err)
		return
	}
	log.Debug("event processed", "duration", d.now().Sub(start))
}

package services

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"feedbackhub/internal/events"
	"feedbackhub/internal/hooks"
	"feedbackhub/internal/logger"
	"feedbackhub/internal/models"
	"feedbackhub/internal/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newExecutor(t *testing.T, handler hooks.Handler, timeout time.Duration) (*gorm.DB, *HookExecutor) {
	t.Helper()
	conn := testhelpers.NewTestDB(t)
	registry := hooks.NewRegistry()
	registry.Register("fake", handler)

	exec, err := NewHookExecutor(conn, registry, timeout, logger.Discard())
	require.NoError(t, err)
	return conn, exec
}

func fakeJob(integrationID string) HookJob {
	return HookJob{
		Event: &events.Event{ID: "evt-1", Type: events.TypePostCreated, Actor: events.ServiceActor{PrincipalID: "p1"}},
		Target: HookTarget{
			IntegrationID:   integrationID,
			IntegrationType: "fake",
			MappingID:       "m1",
			Target:          json.RawMessage(`{}`),
		},
	}
}

func TestHookExecutor_RecordsSuccessAndSkipsRepeat(t *testing.T) {
	var calls int32
	conn, exec := newExecutor(t, hooks.HandlerFunc(func(ctx context.Context, e *events.Event, target json.RawMessage, cfg hooks.Config) hooks.Result {
		atomic.AddInt32(&calls, 1)
		return hooks.Succeeded("ext-1", "https://ext/1")
	}), time.Second)

	res := exec.Execute(context.Background(), fakeJob("i1"), 1)
	assert.True(t, res.Success)
	assert.Equal(t, "ext-1", res.ExternalID)

	res = exec.Execute(context.Background(), fakeJob("i1"), 2)
	assert.True(t, res.Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var deliveries []models.HookDelivery
	require.NoError(t, conn.Find(&deliveries).Error)
	require.Len(t, deliveries, 1)
	assert.Equal(t, models.HookDeliveryStatusSuccess, deliveries[0].Status)
	assert.Equal(t, "https://ext/1", deliveries[0].ExternalURL)
	assert.Equal(t, "m1", deliveries[0].MappingID)
}

func TestHookExecutor_SkipsWhenSuccessAlreadyRecorded(t *testing.T) {
	var calls int32
	conn, exec := newExecutor(t, hooks.HandlerFunc(func(ctx context.Context, e *events.Event, target json.RawMessage, cfg hooks.Config) hooks.Result {
		atomic.AddInt32(&calls, 1)
		return hooks.Succeeded("", "")
	}), time.Second)

	// 另一个进程已经投递过
	require.NoError(t, conn.Create(&models.HookDelivery{
		EventID: "evt-1", EventType: "post.created", IntegrationID: "i1", MappingID: "m1",
		HookType: "fake", Status: models.HookDeliveryStatusSuccess, Attempt: 1,
	}).Error)

	res := exec.Execute(context.Background(), fakeJob("i1"), 1)
	assert.True(t, res.Success)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestHookExecutor_RetryableFailureRecorded(t *testing.T) {
	conn, exec := newExecutor(t, hooks.HandlerFunc(func(ctx context.Context, e *events.Event, target json.RawMessage, cfg hooks.Config) hooks.Result {
		return hooks.Failed(&hooks.HTTPError{StatusCode: 503})
	}), time.Second)

	res := exec.Execute(context.Background(), fakeJob("i1"), 1)
	assert.False(t, res.Success)
	assert.True(t, res.ShouldRetry)

	var delivery models.HookDelivery
	require.NoError(t, conn.Take(&delivery).Error)
	assert.Equal(t, models.HookDeliveryStatusFailed, delivery.Status)
	assert.True(t, delivery.ShouldRetry)
	assert.Equal(t, 1, delivery.Attempt)
}

func TestHookExecutor_AuthFailureMarksIntegration(t *testing.T) {
	conn, exec := newExecutor(t, hooks.HandlerFunc(func(ctx context.Context, e *events.Event, target json.RawMessage, cfg hooks.Config) hooks.Result {
		return hooks.Failed(&hooks.HTTPError{StatusCode: 401, Body: "token revoked"})
	}), time.Second)

	integration := models.Integration{Type: "fake", Status: models.IntegrationStatusActive}
	require.NoError(t, conn.Create(&integration).Error)

	res := exec.Execute(context.Background(), fakeJob(integration.ID), 1)
	assert.False(t, res.Success)
	assert.False(t, res.ShouldRetry)

	require.NoError(t, conn.Take(&integration, "id = ?", integration.ID).Error)
	assert.Equal(t, models.IntegrationStatusError, integration.Status)
	assert.Contains(t, integration.LastError, "401")
}

func TestHookExecutor_TimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	_, exec := newExecutor(t, hooks.HandlerFunc(func(ctx context.Context, e *events.Event, target json.RawMessage, cfg hooks.Config) hooks.Result {
		<-release // 故意忽略 ctx
		return hooks.Succeeded("", "")
	}), 20*time.Millisecond)

	res := exec.Execute(context.Background(), fakeJob("i1"), 1)
	assert.False(t, res.Success)
	assert.True(t, res.ShouldRetry)
	assert.Contains(t, res.Error, "timed out")
}

func TestHookExecutor_PanicIsTerminal(t *testing.T) {
	_, exec := newExecutor(t, hooks.HandlerFunc(func(ctx context.Context, e *events.Event, target json.RawMessage, cfg hooks.Config) hooks.Result {
		panic("nil map")
	}), time.Second)

	res := exec.Execute(context.Background(), fakeJob("i1"), 1)
	assert.False(t, res.Success)
	assert.False(t, res.ShouldRetry)
	assert.Contains(t, res.Error, "panicked")
}

func TestHookExecutor_UnknownType(t *testing.T) {
	_, exec := newExecutor(t, hooks.HandlerFunc(func(ctx context.Context, e *events.Event, target json.RawMessage, cfg hooks.Config) hooks.Result {
		return hooks.Succeeded("", "")
	}), time.Second)

	job := fakeJob("i1")
	job.Target.IntegrationType = "hubspot"
	res := exec.Execute(context.Background(), job, 1)
	assert.False(t, res.Success)
	assert.False(t, res.ShouldRetry)
}

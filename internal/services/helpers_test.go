package services

import (
	"context"
	"sync"
	"testing"

	"feedbackhub/internal/events"
	"feedbackhub/internal/logger"
	"feedbackhub/internal/models"
	"feedbackhub/internal/queue"
	"feedbackhub/internal/testhelpers"

	"gorm.io/gorm"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *recordingQueue) Enqueue(job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) byKind(kind queue.Kind) []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []queue.Job
	for _, j := range q.jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

type recordingMailer struct {
	mu     sync.Mutex
	sent   []Email
	failTo map[string]error
}

func (m *recordingMailer) Send(ctx context.Context, email Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failTo[email.To]; err != nil {
		return err
	}
	m.sent = append(m.sent, email)
	return nil
}

type recordingNotifier struct {
	mu         sync.Mutex
	recipients [][]Subscriber
}

func (n *recordingNotifier) Deliver(ctx context.Context, event *events.Event, recipients []Subscriber) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recipients = append(n.recipients, recipients)
	return nil
}

// countingSettings 统计工作区设置的读取次数
type countingSettings struct {
	WorkspaceSettingsReader
	mu    sync.Mutex
	calls int
}

func (c *countingSettings) GetWorkspaceSettings(ctx context.Context) (*models.WorkspaceSettings, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.WorkspaceSettingsReader.GetWorkspaceSettings(ctx)
}

func newSubscriptionService(t *testing.T) (*gorm.DB, *SubscriptionService) {
	t.Helper()
	conn := testhelpers.NewTestDB(t)
	return conn, NewSubscriptionService(conn, logger.Discard())
}

func ptr[T any](v T) *T { return &v }

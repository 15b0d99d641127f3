package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"feedbackhub/internal/events"
	"feedbackhub/internal/logger"
	"feedbackhub/internal/models"
	"feedbackhub/internal/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newNotifier(t *testing.T, mailer Mailer) (*gorm.DB, *Notifier) {
	t.Helper()
	conn, subs := newSubscriptionService(t)
	tokens := NewUnsubscribeService(conn, subs, logger.Discard())
	n, err := NewNotifier(conn, tokens, mailer, "https://feedback.acme.com", logger.Discard())
	require.NoError(t, err)
	return conn, n
}

func commentEventFor(postID string) *events.Event {
	return &events.Event{
		ID:    "evt-9",
		Type:  events.TypeCommentCreated,
		Actor: events.UserActor{PrincipalID: "bob-principal", UserID: "bob", Email: "bob@example.com"},
		Data: events.CommentCreatedData{
			Comment: events.CommentSnapshot{ID: "c1", Content: "Looks **great**", AuthorName: "Bob"},
			Post:    events.PostRef{ID: postID, Title: "Dark mode", BoardSlug: "features"},
		},
	}
}

func TestNotifier_DeliversEmailAndInbox(t *testing.T) {
	mailer := &recordingMailer{}
	conn, n := newNotifier(t, mailer)
	alice := testhelpers.CreateUserPrincipal(t, conn, "alice")

	err := n.Deliver(context.Background(), commentEventFor("post_1"), []Subscriber{
		{PrincipalID: alice.ID, Email: "alice@example.com", Name: "alice"},
	})
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	email := mailer.sent[0]
	assert.Equal(t, "alice@example.com", email.To)
	assert.Contains(t, email.Subject, "New comment from Bob")
	assert.Contains(t, email.HTMLBody, "<strong>great</strong>")
	assert.Contains(t, email.HTMLBody, "https://feedback.acme.com/b/features/posts/post_1")
	assert.Contains(t, email.HTMLBody, "https://feedback.acme.com/unsubscribe?token=")
	assert.True(t, strings.HasPrefix(email.Headers["List-Unsubscribe"], "<https://feedback.acme.com/unsubscribe?token="))
	assert.Equal(t, "List-Unsubscribe=One-Click", email.Headers["List-Unsubscribe-Post"])

	var token models.UnsubscribeToken
	require.NoError(t, conn.Take(&token).Error)
	assert.Equal(t, alice.ID, token.PrincipalID)
	assert.Equal(t, models.UnsubscribeActionPost, token.Action)
	assert.Contains(t, email.HTMLBody, token.Token)

	var inbox []models.Notification
	require.NoError(t, conn.Find(&inbox).Error)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotificationTypeNewComment, inbox[0].Type)
	assert.Equal(t, "evt-9", inbox[0].EventID)
	assert.Equal(t, "Looks great", inbox[0].Body)
}

func TestNotifier_PerRecipientFailureDoesNotStopBatch(t *testing.T) {
	mailer := &recordingMailer{failTo: map[string]error{"bad@example.com": errors.New("mailbox full")}}
	conn, n := newNotifier(t, mailer)

	err := n.Deliver(context.Background(), commentEventFor("post_1"), []Subscriber{
		{PrincipalID: "p-bad", Email: "bad@example.com"},
		{PrincipalID: "p-good", Email: "good@example.com"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox full")
	assert.NotErrorIs(t, err, ErrDeliveryNotStarted)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "good@example.com", mailer.sent[0].To)

	var count int64
	conn.Model(&models.Notification{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestNotifier_StatusChangedTemplate(t *testing.T) {
	mailer := &recordingMailer{}
	_, n := newNotifier(t, mailer)

	ev := &events.Event{
		ID:    "evt-10",
		Type:  events.TypePostStatusChanged,
		Actor: events.ServiceActor{PrincipalID: "svc", DisplayName: "Roadmap bot"},
		Data: events.PostStatusChangedData{
			Post:           events.PostRef{ID: "post_1", Title: "Dark mode", BoardSlug: "features"},
			PreviousStatus: &events.StatusSnapshot{Name: "Open", Slug: "open"},
			NewStatus:      events.StatusSnapshot{Name: "Planned", Slug: "planned", Color: "#3b82f6"},
		},
	}
	require.NoError(t, n.Deliver(context.Background(), ev, []Subscriber{{PrincipalID: "p1", Email: "a@example.com"}}))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "[Dark mode] Status changed to Planned", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].HTMLBody, "<strong>Open</strong>")
	assert.Contains(t, mailer.sent[0].HTMLBody, "Planned")
}

func TestNotifier_IgnoresEventsWithoutEmails(t *testing.T) {
	mailer := &recordingMailer{}
	_, n := newNotifier(t, mailer)

	ev := &events.Event{Type: events.TypeChangelogPublished, Data: events.ChangelogPublishedData{}}
	require.NoError(t, n.Deliver(context.Background(), ev, []Subscriber{{PrincipalID: "p1", Email: "a@example.com"}}))
	assert.Empty(t, mailer.sent)
}

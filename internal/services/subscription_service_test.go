package services

import (
	"context"
	"errors"
	"testing"

	"feedbackhub/internal/apperrors"
	"feedbackhub/internal/models"
	"feedbackhub/internal/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSubscribeToPost_Idempotent(t *testing.T) {
	conn, svc := newSubscriptionService(t)
	ctx := context.Background()
	alice := testhelpers.CreateUserPrincipal(t, conn, "alice")
	post := testhelpers.CreatePost(t, conn, testhelpers.CreateBoard(t, conn, "features"), alice, "Dark mode")

	require.NoError(t, svc.SubscribeToPost(ctx, alice.ID, post.ID, models.SubscriptionReasonAuthor))
	require.NoError(t, svc.SubscribeToPost(ctx, alice.ID, post.ID, models.SubscriptionReasonVote, WithLevel(SubscriptionLevelStatusOnly)))

	var rows []models.PostSubscription
	require.NoError(t, conn.Where("principal_id = ? AND post_id = ?", alice.ID, post.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, models.SubscriptionReasonAuthor, rows[0].Reason)
	assert.True(t, rows[0].NotifyComments)
	assert.True(t, rows[0].NotifyStatusChanges)
}

func TestSubscribeToPost_StatusOnlyLevel(t *testing.T) {
	conn, svc := newSubscriptionService(t)
	ctx := context.Background()
	alice := testhelpers.CreateUserPrincipal(t, conn, "alice")
	post := testhelpers.CreatePost(t, conn, testhelpers.CreateBoard(t, conn, "features"), alice, "Dark mode")

	require.NoError(t, svc.SubscribeToPost(ctx, alice.ID, post.ID, models.SubscriptionReasonManual, WithLevel(SubscriptionLevelStatusOnly)))

	status, err := svc.GetSubscriptionStatus(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, status.NotifyComments)
	assert.True(t, status.NotifyStatusChanges)
	assert.Equal(t, SubscriptionLevelStatusOnly, status.Level)
}

func TestSubscribeToPost_Validation(t *testing.T) {
	conn, svc := newSubscriptionService(t)
	ctx := context.Background()

	err := svc.SubscribeToPost(ctx, "p1", "post_1", models.SubscriptionReason("stalker"))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	err = svc.SubscribeToPost(ctx, "p1", "post_1", models.SubscriptionReasonManual, WithLevel(SubscriptionLevelNone))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))

	var count int64
	conn.Model(&models.PostSubscription{}).Count(&count)
	assert.Zero(t, count)
}

func TestSubscribeToPost_JoinsCallerTransaction(t *testing.T) {
	conn, svc := newSubscriptionService(t)
	ctx := context.Background()
	alice := testhelpers.CreateUserPrincipal(t, conn, "alice")
	post := testhelpers.CreatePost(t, conn, testhelpers.CreateBoard(t, conn, "features"), alice, "Dark mode")

	rollback := errors.New("rollback")
	err := conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.SubscribeToPost(ctx, alice.ID, post.ID, models.SubscriptionReasonComment, WithTx(tx)))
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	status, err := svc.GetSubscriptionStatus(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, status.Subscribed)
}

func TestUpdateSubscriptionLevel_RoundTrip(t *testing.T) {
	conn, svc := newSubscriptionService(t)
	ctx := context.Background()
	alice := testhelpers.CreateUserPrincipal(t, conn, "alice")
	post := testhelpers.CreatePost(t, conn, testhelpers.CreateBoard(t, conn, "features"), alice, "Dark mode")

	require.NoError(t, svc.UpdateSubscriptionLevel(ctx, alice.ID, post.ID, SubscriptionLevelAll))
	status, err := svc.GetSubscriptionStatus(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, SubscriptionStatus{
		Subscribed:          true,
		NotifyComments:      true,
		NotifyStatusChanges: true,
		Reason:              ptr(models.SubscriptionReasonManual),
		Level:               SubscriptionLevelAll,
	}, status)

	require.NoError(t, svc.UpdateSubscriptionLevel(ctx, alice.ID, post.ID, SubscriptionLevelStatusOnly))
	status, err = svc.GetSubscriptionStatus(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, status.NotifyComments)
	assert.True(t, status.NotifyStatusChanges)
	assert.Equal(t, SubscriptionLevelStatusOnly, status.Level)

	require.NoError(t, svc.UpdateSubscriptionLevel(ctx, alice.ID, post.ID, SubscriptionLevelNone))
	status, err = svc.GetSubscriptionStatus(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, SubscriptionStatus{Level: SubscriptionLevelNone}, status)

	var count int64
	conn.Model(&models.PostSubscription{}).Count(&count)
	assert.Zero(t, count)

	assert.Error(t, svc.UpdateSubscriptionLevel(ctx, alice.ID, post.ID, SubscriptionLevel("loud")))
}

func TestUpdateSubscriptionLevel_KeepsOriginalReason(t *testing.T) {
	conn, svc := newSubscriptionService(t)
	ctx := context.Background()
	alice := testhelpers.CreateUserPrincipal(t, conn, "alice")
	post := testhelpers.CreatePost(t, conn, testhelpers.CreateBoard(t, conn, "features"), alice, "Dark mode")

	require.NoError(t, svc.SubscribeToPost(ctx, alice.ID, post.ID, models.SubscriptionReasonAuthor))
	require.NoError(t, svc.UpdateSubscriptionLevel(ctx, alice.ID, post.ID, SubscriptionLevelStatusOnly))

	status, err := svc.GetSubscriptionStatus(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionReasonAuthor, *status.Reason)
	assert.Equal(t, SubscriptionLevelStatusOnly, status.Level)
}

func TestUnsubscribeFromPost_Idempotent(t *testing.T) {
	conn, svc := newSubscriptionService(t)
	ctx := context.Background()
	alice := testhelpers.CreateUserPrincipal(t, conn, "alice")
	post := testhelpers.CreatePost(t, conn, testhelpers.CreateBoard(t, conn, "features"), alice, "Dark mode")

	require.NoError(t, svc.SubscribeToPost(ctx, alice.ID, post.ID, models.SubscriptionReasonAuthor))
	require.NoError(t, svc.UnsubscribeFromPost(ctx, alice.ID, post.ID))
	require.NoError(t, svc.UnsubscribeFromPost(ctx, alice.ID, post.ID))

	status, err := svc.GetSubscriptionStatus(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, status.Subscribed)
	assert.Nil(t, status.Reason)
}

func TestLevelFromFlags(t *testing.T) {
	assert.Equal(t, SubscriptionLevelAll, levelFromFlags(true, true))
	assert.Equal(t, SubscriptionLevelStatusOnly, levelFromFlags(false, true))
	assert.Equal(t, SubscriptionLevelNone, levelFromFlags(false, false))
	assert.Equal(t, SubscriptionLevelNone, levelFromFlags(true, false))
}

func TestGetSubscribersForEvent(t *testing.T) {
	conn, svc := newSubscriptionService(t)
	ctx := context.Background()
	alice := testhelpers.CreateUserPrincipal(t, conn, "alice")
	bob := testhelpers.CreateUserPrincipal(t, conn, "bob")
	bot := testhelpers.CreateServicePrincipal(t, conn, "bot")
	post := testhelpers.CreatePost(t, conn, testhelpers.CreateBoard(t, conn, "features"), alice, "Dark mode")

	require.NoError(t, svc.SubscribeToPost(ctx, alice.ID, post.ID, models.SubscriptionReasonAuthor))
	require.NoError(t, svc.SubscribeToPost(ctx, bob.ID, post.ID, models.SubscriptionReasonVote, WithLevel(SubscriptionLevelStatusOnly)))
	require.NoError(t, svc.SubscribeToPost(ctx, bot.ID, post.ID, models.SubscriptionReasonManual))

	commenters, err := svc.GetSubscribersForEvent(ctx, post.ID, SubscriberEventComment)
	require.NoError(t, err)
	require.Len(t, commenters, 1)
	assert.Equal(t, alice.ID, commenters[0].PrincipalID)
	assert.Equal(t, "alice@example.com", commenters[0].Email)
	assert.Equal(t, models.SubscriptionReasonAuthor, commenters[0].Reason)

	statusSubs, err := svc.GetSubscribersForEvent(ctx, post.ID, SubscriberEventStatusChange)
	require.NoError(t, err)
	ids := []string{}
	for _, s := range statusSubs {
		ids = append(ids, s.PrincipalID)
	}
	assert.ElementsMatch(t, []string{alice.ID, bob.ID}, ids)

	_, err = svc.GetSubscribersForEvent(ctx, post.ID, SubscriberEvent("vote"))
	assert.Error(t, err)
}

func TestNotificationPreferences_DefaultsWithoutWrite(t *testing.T) {
	conn, svc := newSubscriptionService(t)
	ctx := context.Background()

	prefs, err := svc.GetNotificationPreferences(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, DefaultNotificationPreferences(), prefs)

	var count int64
	conn.Model(&models.NotificationPreference{}).Count(&count)
	assert.Zero(t, count)
}

func TestUpdateNotificationPreferences_MergesProvidedFields(t *testing.T) {
	_, svc := newSubscriptionService(t)
	ctx := context.Background()

	prefs, err := svc.UpdateNotificationPreferences(ctx, "p1", PreferencesUpdate{EmailNewComment: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, NotificationPreferences{EmailStatusChange: true, EmailNewComment: false, EmailMuted: false}, prefs)

	prefs, err = svc.UpdateNotificationPreferences(ctx, "p1", PreferencesUpdate{EmailMuted: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, NotificationPreferences{EmailStatusChange: true, EmailNewComment: false, EmailMuted: true}, prefs)

	prefs, err = svc.UpdateNotificationPreferences(ctx, "p1", PreferencesUpdate{})
	require.NoError(t, err)
	assert.True(t, prefs.EmailMuted)
	assert.False(t, prefs.EmailNewComment)
}

func TestBatchGetNotificationPreferences(t *testing.T) {
	_, svc := newSubscriptionService(t)
	ctx := context.Background()

	_, err := svc.UpdateNotificationPreferences(ctx, "p1", PreferencesUpdate{EmailMuted: ptr(true)})
	require.NoError(t, err)

	prefs, err := svc.BatchGetNotificationPreferences(ctx, []string{"p1", "p2"})
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.True(t, prefs["p1"].EmailMuted)
	assert.Equal(t, DefaultNotificationPreferences(), prefs["p2"])

	empty, err := svc.BatchGetNotificationPreferences(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"feedbackhub/internal/events"
	"feedbackhub/internal/hooks"
	"feedbackhub/internal/models"
	"feedbackhub/internal/utils"

	"gorm.io/gorm"
)

//go:embed templates/email/*.html
var emailTemplates embed.FS

// ErrDeliveryNotStarted 还没有发出任何邮件就失败，整批可以安全重试
var ErrDeliveryNotStarted = errors.New("notification delivery not started")

// Notifier 订阅者邮件与站内通知。
// 单个收件人失败只记录，不重试整批（避免重复邮件）。
type Notifier struct {
	db            *gorm.DB
	tokens        *UnsubscribeService
	mailer        Mailer
	portalBaseURL string
	tmpl          *template.Template
	log           *slog.Logger
}

func NewNotifier(db *gorm.DB, tokens *UnsubscribeService, mailer Mailer, portalBaseURL string, log *slog.Logger) (*Notifier, error) {
	tmpl, err := template.ParseFS(emailTemplates, "templates/email/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Notifier{
		db:            db,
		tokens:        tokens,
		mailer:        mailer,
		portalBaseURL: strings.TrimRight(portalBaseURL, "/"),
		tmpl:          tmpl,
		log:           log,
	}, nil
}

type emailData struct {
	Subject        string
	RecipientName  string
	ActorName      string
	PostTitle      string
	PostURL        string
	Body           template.HTML
	IsTeam         bool
	PreviousStatus string
	NewStatus      string
	StatusColor    string
	UnsubscribeURL string
	PreferencesURL string
}

// notificationContent 一个事件对应的邮件内容（收件人无关部分）
type notificationContent struct {
	template string
	kind     models.NotificationType
	subject  string
	postID   string
	inbox    string
	data     emailData
}

func (n *Notifier) content(event *events.Event) (*notificationContent, error) {
	actorName := events.ActorName(event.Actor)

	switch d := event.Data.(type) {
	case events.PostStatusChangedData:
		prev := ""
		if d.PreviousStatus != nil {
			prev = d.PreviousStatus.Name
		}
		return &notificationContent{
			template: "status_changed.html",
			kind:     models.NotificationTypeStatusChanged,
			subject:  fmt.Sprintf("[%s] Status changed to %s", d.Post.Title, d.NewStatus.Name),
			postID:   d.Post.ID,
			inbox:    fmt.Sprintf("Status changed to %s", d.NewStatus.Name),
			data: emailData{
				ActorName:      actorName,
				PostTitle:      d.Post.Title,
				PostURL:        hooks.PostURL(n.portalBaseURL, d.Post.BoardSlug, d.Post.ID),
				PreviousStatus: prev,
				NewStatus:      d.NewStatus.Name,
				StatusColor:    d.NewStatus.Color,
			},
		}, nil
	case events.CommentCreatedData:
		if d.Comment.AuthorName != "" {
			actorName = d.Comment.AuthorName
		}
		return &notificationContent{
			template: "new_comment.html",
			kind:     models.NotificationTypeNewComment,
			subject:  fmt.Sprintf("[%s] New comment from %s", d.Post.Title, orDefault(actorName, "someone")),
			postID:   d.Post.ID,
			inbox:    utils.MarkdownExcerpt(d.Comment.Content, 200),
			data: emailData{
				ActorName: orDefault(actorName, "Someone"),
				PostTitle: d.Post.Title,
				PostURL:   hooks.PostURL(n.portalBaseURL, d.Post.BoardSlug, d.Post.ID),
				Body:      utils.RenderMarkdown(d.Comment.Content),
				IsTeam:    d.Comment.IsTeam,
			},
		}, nil
	case events.PostCreatedData, events.ChangelogPublishedData:
		return nil, nil
	default:
		return nil, fmt.Errorf("notifier: unhandled event data %T", event.Data)
	}
}

// Deliver 给每个收件人发邮件并写站内通知
func (n *Notifier) Deliver(ctx context.Context, event *events.Event, recipients []Subscriber) error {
	if len(recipients) == 0 {
		return nil
	}
	content, err := n.content(event)
	if err != nil || content == nil {
		return err
	}

	postID := content.postID
	requests := make([]TokenRequest, 0, len(recipients))
	for _, r := range recipients {
		requests = append(requests, TokenRequest{
			PrincipalID: r.PrincipalID,
			PostID:      &postID,
			Action:      models.UnsubscribeActionPost,
		})
	}
	tokens, err := n.tokens.BatchGenerateUnsubscribeTokens(ctx, requests)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryNotStarted, err)
	}

	var (
		errs    []error
		sent    int
		inbox   = make([]models.Notification, 0, len(recipients))
		actorID *string
	)
	if event.Actor != nil {
		id := event.Actor.ActorPrincipalID()
		actorID = &id
	}

	for _, r := range recipients {
		unsubscribeURL := UnsubscribeURL(n.portalBaseURL, tokens[r.PrincipalID])

		data := content.data
		data.Subject = content.subject
		data.RecipientName = orDefault(r.Name, orDefault(r.DisplayName, "there"))
		data.UnsubscribeURL = unsubscribeURL
		data.PreferencesURL = n.portalBaseURL + "/settings/notifications"

		var body bytes.Buffer
		if err := n.tmpl.ExecuteTemplate(&body, content.template, data); err != nil {
			errs = append(errs, fmt.Errorf("render email for %s: %w", r.PrincipalID, err))
			continue
		}

		err := n.mailer.Send(ctx, Email{
			To:       r.Email,
			ToName:   r.Name,
			Subject:  content.subject,
			HTMLBody: body.String(),
			Headers: map[string]string{
				"List-Unsubscribe":      "<" + unsubscribeURL + ">",
				"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("email %s: %w", r.PrincipalID, err))
		} else {
			sent++
		}

		inbox = append(inbox, models.Notification{
			PrincipalID:      r.PrincipalID,
			ActorPrincipalID: actorID,
			EventID:          event.ID,
			PostID:           &postID,
			Type:             content.kind,
			Title:            content.data.PostTitle,
			Body:             content.inbox,
		})
	}

	if len(inbox) > 0 {
		if err := n.db.WithContext(ctx).Create(&inbox).Error; err != nil {
			errs = append(errs, fmt.Errorf("store inbox notifications: %w", err))
		}
	}

	n.log.Info("notifications delivered",
		"event_id", event.ID,
		"event_type", event.Type,
		"recipients", len(recipients),
		"emails_sent", sent,
		"failures", len(errs),
	)
	return errors.Join(errs...)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedbackhub/internal/apperrors"
	"feedbackhub/internal/events"
	"feedbackhub/internal/models"
	"feedbackhub/internal/validator"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventDispatcher 事件出口，调用方永远看不到下游失败
type EventDispatcher interface {
	DispatchPostCreated(ctx context.Context, actor events.Actor, post events.PostSnapshot)
	DispatchPostStatusChanged(ctx context.Context, actor events.Actor, post events.PostRef, previous *events.StatusSnapshot, next events.StatusSnapshot)
	DispatchCommentCreated(ctx context.Context, actor events.Actor, comment events.CommentSnapshot, post events.PostRef)
	DispatchChangelogPublished(ctx context.Context, actor events.Actor, changelog events.ChangelogSnapshot)
}

type CreatePostInput struct {
	BoardID string `json:"board_id" validate:"required"`
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"max=20000"`
	// 团队成员代用户提交反馈
	OnBehalfOf *string `json:"on_behalf_of"`
}

type AddCommentInput struct {
	Content  string  `json:"content" validate:"required,max=10000"`
	ParentID *string `json:"parent_id"`
}

type PublishChangelogInput struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"required"`
}

// FeedbackService 产生事件的业务操作：发帖、评论、投票、改状态、发布更新日志。
// 事件都在事务提交之后分发。
type FeedbackService struct {
	db            *gorm.DB
	subscriptions *SubscriptionService
	dispatcher    EventDispatcher
	validate      *validator.Validator
	log           *slog.Logger
	now           func() time.Time
}

func NewFeedbackService(db *gorm.DB, subscriptions *SubscriptionService, dispatcher EventDispatcher, log *slog.Logger) *FeedbackService {
	return &FeedbackService{
		db:            db,
		subscriptions: subscriptions,
		dispatcher:    dispatcher,
		validate:      validator.New(),
		log:           log,
		now:           time.Now,
	}
}

// ActorFor principal -> 事件 actor；需要预加载 User
func ActorFor(p *models.Principal) events.Actor {
	in := events.ActorInput{
		PrincipalID: p.ID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
	}
	if p.User != nil {
		in.Email = p.User.Email
	}
	return events.BuildEventActor(in)
}

func principalName(p *models.Principal) string {
	if p.User != nil && p.User.Name != "" {
		return p.User.Name
	}
	return p.DisplayName
}

func (s *FeedbackService) validationError(err error) error {
	var vErr *validator.ValidationError
	if errors.As(err, &vErr) {
		return apperrors.Validation("feedback", "invalid input").WithDetails(vErr.Errors)
	}
	return err
}

func (s *FeedbackService) loadPost(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Preload("Board").Preload("Status").Where("id = ?", postID).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("post", "post not found")
	}
	if err != nil {
		return nil, apperrors.Database("post", err)
	}
	return &post, nil
}

// CreatePost 作者自动订阅（代提交时被代表的用户以 feedback_author 订阅）
func (s *FeedbackService) CreatePost(ctx context.Context, actor *models.Principal, in CreatePostInput) (*models.Post, error) {
	if err := s.validate.Validate(in); err != nil {
		return nil, s.validationError(err)
	}

	var board models.Board
	if err := s.db.WithContext(ctx).Where("id = ?", in.BoardID).Take(&board).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("board", "board not found")
		}
		return nil, apperrors.Database("board", err)
	}

	author := actor
	reason := models.SubscriptionReasonAuthor
	if in.OnBehalfOf != nil && *in.OnBehalfOf != actor.ID {
		if !actor.IsAdmin() {
			return nil, apperrors.Forbidden("only team members can submit feedback on behalf of others")
		}
		var p models.Principal
		if err := s.db.WithContext(ctx).Preload("User").Where("id = ?", *in.OnBehalfOf).Take(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NotFound("principal", "principal not found")
			}
			return nil, apperrors.Database("principal", err)
		}
		author = &p
		reason = models.SubscriptionReasonFeedbackAuthor
	}

	post := models.Post{
		BoardID:     board.ID,
		PrincipalID: author.ID,
		Title:       in.Title,
		Content:     in.Content,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var status models.PostStatus
		err := tx.Where("is_default = ?", true).Take(&status).Error
		switch {
		case err == nil:
			post.StatusID = &status.ID
			post.Status = &status
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Omit(clause.Associations).Create(&post).Error; err != nil {
			return err
		}
		return s.subscriptions.SubscribeToPost(ctx, author.ID, post.ID, reason, WithTx(tx))
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.Board = board

	snapshot := events.PostSnapshot{
		ID:         post.ID,
		Title:      post.Title,
		Content:    post.Content,
		BoardID:    board.ID,
		BoardSlug:  board.Slug,
		AuthorName: principalName(author),
	}
	if author.User != nil {
		snapshot.AuthorEmail = author.User.Email
	}
	if post.Status != nil {
		snapshot.StatusSlug = post.Status.Slug
	}
	s.dispatcher.DispatchPostCreated(ctx, ActorFor(actor), snapshot)
	return &post, nil
}

// AddComment 评论与评论者的自动订阅在同一事务中提交
func (s *FeedbackService) AddComment(ctx context.Context, actor *models.Principal, postID string, in AddCommentInput) (*models.Comment, error) {
	if err := s.validate.Validate(in); err != nil {
		return nil, s.validationError(err)
	}
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	comment := models.Comment{
		PostID:      post.ID,
		PrincipalID: actor.ID,
		ParentID:    in.ParentID,
		Content:     in.Content,
		IsTeam:      actor.IsAdmin(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.ParentID != nil {
			var count int64
			if err := tx.Model(&models.Comment{}).Where("id = ? AND post_id = ?", *in.ParentID, post.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return apperrors.NotFound("comment", "parent comment not found")
			}
		}
		if err := tx.Omit(clause.Associations).Create(&comment).Error; err != nil {
			return err
		}
		return s.subscriptions.SubscribeToPost(ctx, actor.ID, post.ID, models.SubscriptionReasonComment, WithTx(tx))
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("add comment: %w", err)
	}

	s.dispatcher.DispatchCommentCreated(ctx, ActorFor(actor),
		events.CommentSnapshot{
			ID:         comment.ID,
			Content:    comment.Content,
			AuthorName: principalName(actor),
			ParentID:   comment.ParentID,
			IsTeam:     comment.IsTeam,
		},
		events.PostRef{ID: post.ID, Title: post.Title, BoardSlug: post.Board.Slug},
	)
	return &comment, nil
}

// Vote 每人一票；首次投票时以 vote 订阅帖子。返回是否新投了一票
func (s *FeedbackService) Vote(ctx context.Context, actor *models.Principal, postID string) (bool, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return false, err
	}

	voted := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "principal_id"}, {Name: "post_id"}},
			DoNothing: true,
		}).Create(&models.Vote{PrincipalID: actor.ID, PostID: post.ID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		voted = true

		if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("vote_count", gorm.Expr("vote_count + ?", 1)).Error; err != nil {
			return err
		}
		return s.subscriptions.SubscribeToPost(ctx, actor.ID, post.ID, models.SubscriptionReasonVote, WithTx(tx))
	})
	if err != nil {
		return false, fmt.Errorf("vote: %w", err)
	}
	return voted, nil
}

// ChangeStatus 仅团队成员；状态未变化时不产生事件
func (s *FeedbackService) ChangeStatus(ctx context.Context, actor *models.Principal, postID, statusSlug string) (*models.Post, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only team members can change post status")
	}
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	var status models.PostStatus
	if err := s.db.WithContext(ctx).Where("slug = ?", statusSlug).Take(&status).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Validation("post", fmt.Sprintf("unknown status %q", statusSlug))
		}
		return nil, apperrors.Database("post", err)
	}
	if post.StatusID != nil && *post.StatusID == status.ID {
		return post, nil
	}

	var previous *events.StatusSnapshot
	if post.Status != nil {
		previous = &events.StatusSnapshot{
			ID:    post.Status.ID,
			Name:  post.Status.Name,
			Slug:  post.Status.Slug,
			Color: post.Status.Color,
		}
	}

	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", post.ID).
		Update("status_id", status.ID).Error; err != nil {
		return nil, fmt.Errorf("change status: %w", err)
	}
	post.StatusID = &status.ID
	post.Status = &status

	s.dispatcher.DispatchPostStatusChanged(ctx, ActorFor(actor),
		events.PostRef{ID: post.ID, Title: post.Title, BoardSlug: post.Board.Slug},
		previous,
		events.StatusSnapshot{ID: status.ID, Name: status.Name, Slug: status.Slug, Color: status.Color},
	)
	return post, nil
}

func (s *FeedbackService) PublishChangelog(ctx context.Context, actor *models.Principal, in PublishChangelogInput) (*models.Changelog, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only team members can publish changelogs")
	}
	if err := s.validate.Validate(in); err != nil {
		return nil, s.validationError(err)
	}

	now := s.now()
	changelog := models.Changelog{
		Title:       in.Title,
		Content:     in.Content,
		PrincipalID: actor.ID,
		PublishedAt: &now,
	}
	if err := s.db.WithContext(ctx).Create(&changelog).Error; err != nil {
		return nil, fmt.Errorf("publish changelog: %w", err)
	}

	s.dispatcher.DispatchChangelogPublished(ctx, ActorFor(actor), events.ChangelogSnapshot{
		ID:      changelog.ID,
		Title:   changelog.Title,
		Content: changelog.Content,
	})
	return &changelog, nil
}

package handlers

import (
	"log/slog"
	"net/http"

	"feedbackhub/internal/services"

	"github.com/gin-gonic/gin"
)

// FeedbackHandler 会产生事件的写操作
type FeedbackHandler struct {
	feedback *services.FeedbackService
	log      *slog.Logger
}

func NewFeedbackHandler(feedback *services.FeedbackService, log *slog.Logger) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback, log: log}
}

func (h *FeedbackHandler) CreatePost(c *gin.Context) {
	var in services.CreatePostInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	post, err := h.feedback.CreatePost(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *FeedbackHandler) AddComment(c *gin.Context) {
	var in services.AddCommentInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	comment, err := h.feedback.AddComment(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *FeedbackHandler) Vote(c *gin.Context) {
	voted, err := h.feedback.Vote(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voted": voted})
}

func (h *FeedbackHandler) ChangeStatus(c *gin.Context) {
	var in struct {
		Status string `json:"status" binding:"required"`
	}
	if !bindJSON(c, h.log, &in) {
		return
	}
	post, err := h.feedback.ChangeStatus(c.Request.Context(), principal(c), c.Param("id"), in.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *FeedbackHandler) PublishChangelog(c *gin.Context) {
	var in services.PublishChangelogInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	changelog, err := h.feedback.PublishChangelog(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, changelog)
}

package events

// Data 各事件类型的载荷
type Data interface {
	EventType() EventType
	isData()
}

type PostSnapshot struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Content     string `json:"content"`
	BoardID     string `json:"boardId" validate:"required"`
	BoardSlug   string `json:"boardSlug" validate:"required"`
	AuthorName  string `json:"authorName"`
	AuthorEmail string `json:"authorEmail,omitempty"`
	StatusSlug  string `json:"statusSlug,omitempty"`
}

// PostRef 评论、状态变更事件中引用的帖子
type PostRef struct {
	ID        string `json:"id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	BoardSlug string `json:"boardSlug" validate:"required"`
}

type StatusSnapshot struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	Slug  string `json:"slug" validate:"required"`
	Color string `json:"color,omitempty"`
}

type CommentSnapshot struct {
	ID         string  `json:"id" validate:"required"`
	Content    string  `json:"content" validate:"required"`
	AuthorName string  `json:"authorName"`
	ParentID   *string `json:"parentId,omitempty"`
	IsTeam     bool    `json:"isTeam"`
}

type ChangelogSnapshot struct {
	ID      string `json:"id" validate:"required"`
	Title   string `json:"title" validate:"required"`
	Content string `json:"content"`
}

type PostCreatedData struct {
	Post PostSnapshot `json:"post"`
}

type PostStatusChangedData struct {
	Post           PostRef         `json:"post"`
	PreviousStatus *StatusSnapshot `json:"previousStatus"` // nil: 之前没有状态
	NewStatus      StatusSnapshot  `json:"newStatus"`
}

type CommentCreatedData struct {
	Comment CommentSnapshot `json:"comment"`
	Post    PostRef         `json:"post"`
}

type ChangelogPublishedData struct {
	Changelog ChangelogSnapshot `json:"changelog"`
}

func (PostCreatedData) EventType() EventType        { return TypePostCreated }
func (PostStatusChangedData) EventType() EventType  { return TypePostStatusChanged }
func (CommentCreatedData) EventType() EventType     { return TypeCommentCreated }
func (ChangelogPublishedData) EventType() EventType { return TypeChangelogPublished }

func (PostCreatedData) isData()        {}
func (PostStatusChangedData) isData()  {}
func (CommentCreatedData) isData()     {}
func (ChangelogPublishedData) isData() {}

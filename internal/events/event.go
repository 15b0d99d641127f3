// Package events 定义领域事件信封和分发器。
//
// Actor 与 Data 都是封闭接口（未导出的标记方法），消费方用 type switch 穷举处理，
// 未知分支按错误处理。
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	TypePostCreated        EventType = "post.created"
	TypePostStatusChanged  EventType = "post.status_changed"
	TypeCommentCreated     EventType = "comment.created"
	TypeChangelogPublished EventType = "changelog.published"
)

// AllTypes 集成映射可选的事件类型
var AllTypes = []EventType{
	TypePostCreated,
	TypePostStatusChanged,
	TypeCommentCreated,
	TypeChangelogPublished,
}

func (t EventType) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event 一次性的事件信封，不落库
type Event struct {
	ID        string
	Timestamp time.Time
	Actor     Actor
	Type      EventType
	Data      Data
}

// PostID 事件关联的帖子，changelog 事件返回空串
func (e *Event) PostID() string {
	switch d := e.Data.(type) {
	case PostCreatedData:
		return d.Post.ID
	case PostStatusChangedData:
		return d.Post.ID
	case CommentCreatedData:
		return d.Post.ID
	case ChangelogPublishedData:
		return ""
	default:
		return ""
	}
}

// PostTitle 用于邮件与外部消息标题
func (e *Event) PostTitle() string {
	switch d := e.Data.(type) {
	case PostCreatedData:
		return d.Post.Title
	case PostStatusChangedData:
		return d.Post.Title
	case CommentCreatedData:
		return d.Post.Title
	case ChangelogPublishedData:
		return d.Changelog.Title
	default:
		return ""
	}
}

type eventJSON struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	Actor     json.RawMessage `json:"actor"`
	Data      Data            `json:"data"`
}

// MarshalJSON webhook 等外部消费者看到的格式，actor 带 type 判别字段
func (e Event) MarshalJSON() ([]byte, error) {
	actor, err := marshalActor(e.Actor)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventJSON{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Type:      e.Type,
		Actor:     actor,
		Data:      e.Data,
	})
}

func marshalActor(actor Actor) ([]byte, error) {
	switch a := actor.(type) {
	case UserActor:
		return json.Marshal(struct {
			Type string `json:"type"`
			UserActor
		}{"user", a})
	case ServiceActor:
		return json.Marshal(struct {
			Type string `json:"type"`
			ServiceActor
		}{"service", a})
	default:
		return nil, fmt.Errorf("events: unknown actor %T", actor)
	}
}

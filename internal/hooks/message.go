package hooks

import (
	"fmt"
	"strings"

	"feedbackhub/internal/events"
	"feedbackhub/internal/utils"
)

const excerptLength = 280

// PostURL 门户中帖子的链接
func PostURL(rootURL, boardSlug, postID string) string {
	return fmt.Sprintf("%s/b/%s/posts/%s", strings.TrimRight(rootURL, "/"), boardSlug, postID)
}

func ChangelogURL(rootURL, changelogID string) string {
	return fmt.Sprintf("%s/changelog/%s", strings.TrimRight(rootURL, "/"), changelogID)
}

// Message 各 hook 共用的摘要
type Message struct {
	Title string
	Text  string
	URL   string
}

// BuildMessage 按事件类型穷举生成外部消息
func BuildMessage(event *events.Event, rootURL string) (Message, error) {
	actor := events.ActorName(event.Actor)

	switch d := event.Data.(type) {
	case events.PostCreatedData:
		return Message{
			Title: d.Post.Title,
			Text:  fmt.Sprintf("New feedback from %s: %s", orSomeone(d.Post.AuthorName), utils.MarkdownExcerpt(d.Post.Content, excerptLength)),
			URL:   PostURL(rootURL, d.Post.BoardSlug, d.Post.ID),
		}, nil
	case events.PostStatusChangedData:
		from := "none"
		if d.PreviousStatus != nil {
			from = d.PreviousStatus.Name
		}
		return Message{
			Title: d.Post.Title,
			Text:  fmt.Sprintf("Status changed from %s to %s by %s", from, d.NewStatus.Name, orSomeone(actor)),
			URL:   PostURL(rootURL, d.Post.BoardSlug, d.Post.ID),
		}, nil
	case events.CommentCreatedData:
		return Message{
			Title: d.Post.Title,
			Text:  fmt.Sprintf("New comment from %s: %s", orSomeone(d.Comment.AuthorName), utils.MarkdownExcerpt(d.Comment.Content, excerptLength)),
			URL:   PostURL(rootURL, d.Post.BoardSlug, d.Post.ID),
		}, nil
	case events.ChangelogPublishedData:
		return Message{
			Title: d.Changelog.Title,
			Text:  "Changelog published: " + utils.MarkdownExcerpt(d.Changelog.Content, excerptLength),
			URL:   ChangelogURL(rootURL, d.Changelog.ID),
		}, nil
	default:
		return Message{}, fmt.Errorf("hooks: unhandled event data %T", event.Data)
	}
}

func orSomeone(name string) string {
	if name == "" {
		return "someone"
	}
	return name
}

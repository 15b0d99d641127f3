package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"feedbackhub/internal/events"
)

const trelloAPIBase = "https://api.trello.com"

// TrelloHook 新帖子在指定列表建卡片，其他事件跳过
type TrelloHook struct {
	HTTPClient *http.Client
	BaseURL    string
}

type trelloTarget struct {
	ListID string `json:"listId"`
}

type trelloCard struct {
	ID       string `json:"id"`
	ShortURL string `json:"shortUrl"`
}

func (h *TrelloHook) Run(ctx context.Context, event *events.Event, target json.RawMessage, cfg Config) Result {
	data, ok := event.Data.(events.PostCreatedData)
	if !ok {
		return Skipped()
	}

	var t trelloTarget
	if err := decodeTarget(target, &t); err != nil {
		return Result{Error: err.Error()}
	}
	if t.ListID == "" {
		return Result{Error: "trello: listId is required"}
	}
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return Failed(&AuthError{Err: errors.New("trello: missing api key or token")})
	}

	msg, err := BuildMessage(event, cfg.RootURL)
	if err != nil {
		return Result{Error: err.Error()}
	}

	q := url.Values{}
	q.Set("key", cfg.APIKey)
	q.Set("token", cfg.AccessToken)

	// trello 没有幂等键，描述里带上事件 id 便于人工排查重复卡片
	payload := map[string]string{
		"idList": t.ListID,
		"name":   data.Post.Title,
		"desc":   fmt.Sprintf("%s\n\n%s\n\nfeedbackhub-event:%s", msg.Text, msg.URL, event.ID),
		"pos":    "top",
	}

	var card trelloCard
	endpoint := h.baseURL() + "/1/cards?" + q.Encode()
	if err := doJSON(ctx, h.client(), http.MethodPost, endpoint, nil, payload, &card); err != nil {
		return Failed(err)
	}
	return Succeeded(card.ID, card.ShortURL)
}

func (h *TrelloHook) baseURL() string {
	if h.BaseURL != "" {
		return h.BaseURL
	}
	return trelloAPIBase
}

func (h *TrelloHook) client() *http.Client {
	if h.HTTPClient != nil {
		return h.HTTPClient
	}
	return http.DefaultClient
}

package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"feedbackhub/internal/events"

	"golang.org/x/oauth2"
)

const slackAPIBase = "https://slack.com/api"

// SlackHook 通过 chat.postMessage 发送到频道，适用于全部事件
type SlackHook struct {
	HTTPClient *http.Client
	BaseURL    string // 测试时指向 httptest
}

type slackTarget struct {
	ChannelID string `json:"channelId"`
}

type slackResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// slack 返回 200 + ok:false，按错误码区分
var slackAuthErrors = map[string]bool{
	"not_authed":       true,
	"invalid_auth":     true,
	"account_inactive": true,
	"token_revoked":    true,
	"token_expired":    true,
	"missing_scope":    true,
}

func (h *SlackHook) Run(ctx context.Context, event *events.Event, target json.RawMessage, cfg Config) Result {
	var t slackTarget
	if err := decodeTarget(target, &t); err != nil {
		return Result{Error: err.Error()}
	}
	if t.ChannelID == "" {
		return Result{Error: "slack: channelId is required"}
	}
	if cfg.AccessToken == "" {
		return Failed(&AuthError{Err: errors.New("slack: missing access token")})
	}

	msg, err := BuildMessage(event, cfg.RootURL)
	if err != nil {
		return Result{Error: err.Error()}
	}

	payload := map[string]any{
		"channel":      t.ChannelID,
		"text":         fmt.Sprintf("*<%s|%s>*\n%s", msg.URL, msg.Title, msg.Text),
		"unfurl_links": false,
	}

	var resp slackResponse
	if err := doJSON(ctx, h.client(ctx, cfg.AccessToken), http.MethodPost, h.baseURL()+"/chat.postMessage", nil, payload, &resp); err != nil {
		return Failed(err)
	}
	if !resp.OK {
		return Failed(slackError(resp.Error))
	}
	return Succeeded(resp.Channel+":"+resp.TS, "")
}

func (h *SlackHook) baseURL() string {
	if h.BaseURL != "" {
		return h.BaseURL
	}
	return slackAPIBase
}

// client 基于 oauth2 静态 token 的 Bearer 客户端
func (h *SlackHook) client(ctx context.Context, token string) *http.Client {
	if h.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, h.HTTPClient)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}

func slackError(code string) error {
	err := fmt.Errorf("slack: %s", code)
	switch {
	case slackAuthErrors[code]:
		return &AuthError{Err: err}
	case code == "ratelimited" || code == "internal_error" || code == "fatal_error" || code == "service_unavailable":
		return &RetryableError{Err: err}
	default:
		return err
	}
}

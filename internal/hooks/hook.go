// Package hooks 实现各类集成动作（Slack、Webhook、Trello、Azure DevOps）。
// Handler 从不返回 error：所有失败都折叠成 Result，由执行器决定是否重试。
package hooks

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"feedbackhub/internal/events"
)

// Config 解密后的凭证加集成元数据
type Config struct {
	AccessToken string
	APIKey      string
	Secret      string
	Metadata    map[string]any

	// 来自 HookContext
	RootURL       string
	WorkspaceName string
	WorkspaceSlug string

	// 外部 API 支持时作为幂等键发送，取事件 id
	IdempotencyKey string
}

// MetaString 读取字符串类型的元数据
func (c Config) MetaString(key string) string {
	if c.Metadata == nil {
		return ""
	}
	if s, ok := c.Metadata[key].(string); ok {
		return s
	}
	return ""
}

type Result struct {
	Success     bool   `json:"success"`
	ExternalID  string `json:"externalId,omitempty"`
	ExternalURL string `json:"externalUrl,omitempty"`
	Error       string `json:"error,omitempty"`
	ShouldRetry bool   `json:"shouldRetry"`

	// 401/403，集成需要重新连接
	AuthFailure bool `json:"-"`
}

func Succeeded(externalID, externalURL string) Result {
	return Result{Success: true, ExternalID: externalID, ExternalURL: externalURL}
}

// Skipped 事件类型不适用，视为成功
func Skipped() Result {
	return Result{Success: true}
}

type Handler interface {
	Run(ctx context.Context, event *events.Event, target json.RawMessage, cfg Config) Result
}

type HandlerFunc func(ctx context.Context, event *events.Event, target json.RawMessage, cfg Config) Result

func (f HandlerFunc) Run(ctx context.Context, event *events.Event, target json.RawMessage, cfg Config) Result {
	return f(ctx, event, target, cfg)
}

const (
	TypeSlack       = "slack"
	TypeWebhook     = "webhook"
	TypeTrello      = "trello"
	TypeAzureDevOps = "azure_devops"
)

// Registry hook 类型 -> Handler
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// DefaultRegistry 注册全部内置 hook，共用一个 HTTP client
func DefaultRegistry(client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	r := NewRegistry()
	r.Register(TypeSlack, &SlackHook{HTTPClient: client})
	r.Register(TypeWebhook, &WebhookHook{HTTPClient: client})
	r.Register(TypeTrello, &TrelloHook{HTTPClient: client})
	r.Register(TypeAzureDevOps, &AzureDevOpsHook{HTTPClient: client})
	return r
}

func (r *Registry) Register(hookType string, h Handler) {
	r.handlers[hookType] = h
}

func (r *Registry) Get(hookType string) (Handler, bool) {
	h, ok := r.handlers[hookType]
	return h, ok
}

// Types 已注册的 hook 类型
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

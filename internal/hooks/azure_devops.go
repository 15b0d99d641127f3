package hooks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"feedbackhub/internal/events"

	"golang.org/x/oauth2"
)

const azureDevOpsBase = "https://dev.azure.com"

// AzureDevOpsHook 新帖子创建工作项，其他事件跳过。
// 鉴权：有 AccessToken 时走 OAuth Bearer，否则用 PAT（Basic）。
type AzureDevOpsHook struct {
	HTTPClient *http.Client
}

type azureTarget struct {
	Project      string `json:"project"`
	WorkItemType string `json:"workItemType"`
}

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type azureWorkItem struct {
	ID    int `json:"id"`
	Links struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"_links"`
}

func (h *AzureDevOpsHook) Run(ctx context.Context, event *events.Event, target json.RawMessage, cfg Config) Result {
	data, ok := event.Data.(events.PostCreatedData)
	if !ok {
		return Skipped()
	}

	var t azureTarget
	if err := decodeTarget(target, &t); err != nil {
		return Result{Error: err.Error()}
	}
	if t.Project == "" {
		return Result{Error: "azure_devops: project is required"}
	}
	if t.WorkItemType == "" {
		t.WorkItemType = "Issue"
	}
	if cfg.AccessToken == "" && cfg.APIKey == "" {
		return Failed(&AuthError{Err: errors.New("azure_devops: missing credentials")})
	}

	// rootUrl 支持自建 Azure DevOps Server
	root := cfg.MetaString("rootUrl")
	if root == "" {
		org := cfg.MetaString("organization")
		if org == "" {
			return Result{Error: "azure_devops: organization is required"}
		}
		root = azureDevOpsBase + "/" + url.PathEscape(org)
	}

	msg, err := BuildMessage(event, cfg.RootURL)
	if err != nil {
		return Result{Error: err.Error()}
	}

	ops := []patchOp{
		{Op: "add", Path: "/fields/System.Title", Value: data.Post.Title},
		{Op: "add", Path: "/fields/System.Description", Value: fmt.Sprintf(`<p>%s</p><p><a href="%s">%s</a></p>`, html.EscapeString(msg.Text), msg.URL, msg.URL)},
		{Op: "add", Path: "/fields/System.Tags", Value: "feedbackhub; event-" + event.ID},
		{Op: "add", Path: "/relations/-", Value: map[string]any{
			"rel": "Hyperlink",
			"url": msg.URL,
		}},
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json-patch+json")
	if cfg.AccessToken == "" {
		headers.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(":"+cfg.APIKey)))
	}

	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/$%s?api-version=7.1",
		strings.TrimRight(root, "/"), url.PathEscape(t.Project), url.PathEscape(t.WorkItemType))

	var item azureWorkItem
	if err := doJSON(ctx, h.client(ctx, cfg.AccessToken), http.MethodPost, endpoint, headers, ops, &item); err != nil {
		return Failed(err)
	}
	return Succeeded(fmt.Sprintf("%d", item.ID), item.Links.HTML.Href)
}

func (h *AzureDevOpsHook) client(ctx context.Context, token string) *http.Client {
	base := h.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	if token == "" {
		return base
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

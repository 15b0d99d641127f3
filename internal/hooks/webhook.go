package hooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"feedbackhub/internal/events"
)

const (
	HeaderEvent          = "X-Feedbackhub-Event"
	HeaderEventID        = "X-Feedbackhub-Event-Id"
	HeaderTimestamp      = "X-Feedbackhub-Timestamp"
	HeaderSignature      = "X-Feedbackhub-Signature"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// WebhookHook 把事件 JSON POST 到用户配置的地址，适用于全部事件。
// 签名：sha256=HMAC(secret, "<timestamp>.<body>")
type WebhookHook struct {
	HTTPClient *http.Client
	Now        func() time.Time
}

type webhookTarget struct {
	URL string `json:"url"`
}

func (h *WebhookHook) Run(ctx context.Context, event *events.Event, target json.RawMessage, cfg Config) Result {
	var t webhookTarget
	if err := decodeTarget(target, &t); err != nil {
		return Result{Error: err.Error()}
	}
	u, err := url.Parse(t.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Result{Error: fmt.Sprintf("webhook: invalid url %q", t.URL)}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return Result{Error: fmt.Sprintf("webhook: encode event: %v", err)}
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	ts := strconv.FormatInt(now().Unix(), 10)

	headers := http.Header{}
	headers.Set(HeaderEvent, string(event.Type))
	headers.Set(HeaderEventID, event.ID)
	headers.Set(HeaderTimestamp, ts)
	if cfg.IdempotencyKey != "" {
		headers.Set(HeaderIdempotencyKey, cfg.IdempotencyKey)
	}
	if cfg.Secret != "" {
		headers.Set(HeaderSignature, "sha256="+Sign(cfg.Secret, ts, body))
	}

	if err := doRaw(ctx, h.client(), http.MethodPost, t.URL, headers, bytes.NewReader(body), nil); err != nil {
		return Failed(err)
	}
	return Succeeded(event.ID, "")
}

func (h *WebhookHook) client() *http.Client {
	if h.HTTPClient != nil {
		return h.HTTPClient
	}
	return http.DefaultClient
}

// Sign 计算 webhook 签名，接收方用同样的方式校验
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

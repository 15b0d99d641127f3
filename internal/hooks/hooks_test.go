package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"feedbackhub/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postCreatedEvent() *events.Event {
	return &events.Event{
		ID:        "evt-1",
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Actor:     events.UserActor{PrincipalID: "p1", UserID: "u1", Email: "a@example.com"},
		Type:      events.TypePostCreated,
		Data: events.PostCreatedData{Post: events.PostSnapshot{
			ID: "post_1", Title: "Dark mode", Content: "Please add **dark** mode",
			BoardID: "b1", BoardSlug: "features", AuthorName: "Alice",
		}},
	}
}

func commentCreatedEvent() *events.Event {
	return &events.Event{
		ID:    "evt-2",
		Actor: events.ServiceActor{PrincipalID: "p2", DisplayName: "bot"},
		Type:  events.TypeCommentCreated,
		Data: events.CommentCreatedData{
			Comment: events.CommentSnapshot{ID: "c1", Content: "+1", AuthorName: "Bob"},
			Post:    events.PostRef{ID: "post_1", Title: "Dark mode", BoardSlug: "features"},
		},
	}
}

func TestFailedClassification(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		retry bool
		auth  bool
	}{
		{"401", &HTTPError{StatusCode: 401}, false, true},
		{"403", &HTTPError{StatusCode: 403}, false, true},
		{"429", &HTTPError{StatusCode: 429}, true, false},
		{"500", &HTTPError{StatusCode: 500}, true, false},
		{"503 wrapped", fmt.Errorf("call: %w", &HTTPError{StatusCode: 503}), true, false},
		{"400", &HTTPError{StatusCode: 400}, false, false},
		{"404", &HTTPError{StatusCode: 404}, false, false},
		{"deadline", context.DeadlineExceeded, true, false},
		{"canceled", context.Canceled, false, false},
		{"unexpected eof", io.ErrUnexpectedEOF, true, false},
		{"plain", errors.New("bad input"), false, false},
		{"slack auth", slackError("invalid_auth"), false, true},
		{"slack ratelimited", slackError("ratelimited"), true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Failed(tc.err)
			assert.False(t, res.Success)
			assert.Equal(t, tc.retry, res.ShouldRetry)
			assert.Equal(t, tc.auth, res.AuthFailure)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestTypeMismatchIsNoop(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	trello := &TrelloHook{HTTPClient: server.Client(), BaseURL: server.URL}
	azure := &AzureDevOpsHook{HTTPClient: server.Client()}
	cfg := Config{AccessToken: "tok", APIKey: "key", Metadata: map[string]any{"rootUrl": server.URL}}

	res := trello.Run(context.Background(), commentCreatedEvent(), json.RawMessage(`{"listId":"L1"}`), cfg)
	assert.Equal(t, Result{Success: true}, res)

	res = azure.Run(context.Background(), commentCreatedEvent(), json.RawMessage(`{"project":"P"}`), cfg)
	assert.Equal(t, Result{Success: true}, res)

	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestSlackHook_PostsMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "C123", body["channel"])
		assert.Contains(t, body["text"], "https://feedback.acme.com/b/features/posts/post_1")

		json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C123", "ts": "1700.01"})
	}))
	defer server.Close()

	h := &SlackHook{HTTPClient: server.Client(), BaseURL: server.URL}
	res := h.Run(context.Background(), postCreatedEvent(), json.RawMessage(`{"channelId":"C123"}`),
		Config{AccessToken: "xoxb-test", RootURL: "https://feedback.acme.com"})

	assert.True(t, res.Success, res.Error)
	assert.Equal(t, "C123:1700.01", res.ExternalID)
}

func TestSlackHook_InvalidAuthNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "invalid_auth"})
	}))
	defer server.Close()

	h := &SlackHook{HTTPClient: server.Client(), BaseURL: server.URL}
	res := h.Run(context.Background(), postCreatedEvent(), json.RawMessage(`{"channelId":"C123"}`), Config{AccessToken: "x"})

	assert.False(t, res.Success)
	assert.False(t, res.ShouldRetry)
	assert.True(t, res.AuthFailure)
}

func TestWebhookHook_SignsAndSendsIdempotencyKey(t *testing.T) {
	now := time.Unix(1700000000, 0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "evt-1", r.Header.Get(HeaderIdempotencyKey))
		assert.Equal(t, "post.created", r.Header.Get(HeaderEvent))
		assert.Equal(t, "1700000000", r.Header.Get(HeaderTimestamp))
		assert.Equal(t, "sha256="+Sign("s3cret", "1700000000", body), r.Header.Get(HeaderSignature))

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "evt-1", payload["id"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	h := &WebhookHook{HTTPClient: server.Client(), Now: func() time.Time { return now }}
	target, _ := json.Marshal(map[string]string{"url": server.URL + "/hook"})
	res := h.Run(context.Background(), postCreatedEvent(), target, Config{Secret: "s3cret", IdempotencyKey: "evt-1"})

	assert.True(t, res.Success, res.Error)
}

func TestWebhookHook_StatusClassification(t *testing.T) {
	for status, retry := range map[int]bool{500: true, 429: true, 401: false, 422: false} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		h := &WebhookHook{HTTPClient: server.Client()}
		target, _ := json.Marshal(map[string]string{"url": server.URL})
		res := h.Run(context.Background(), postCreatedEvent(), target, Config{})

		assert.False(t, res.Success, "status %d", status)
		assert.Equal(t, retry, res.ShouldRetry, "status %d", status)
		server.Close()
	}
}

func TestWebhookHook_InvalidURL(t *testing.T) {
	h := &WebhookHook{}
	res := h.Run(context.Background(), postCreatedEvent(), json.RawMessage(`{"url":"ftp://x"}`), Config{})
	assert.False(t, res.Success)
	assert.False(t, res.ShouldRetry)
}

func TestTrelloHook_CreatesCard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1/cards", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "L1", body["idList"])
		assert.Contains(t, body["desc"], "feedbackhub-event:evt-1")

		json.NewEncoder(w).Encode(map[string]string{"id": "card1", "shortUrl": "https://trello.com/c/abc"})
	}))
	defer server.Close()

	h := &TrelloHook{HTTPClient: server.Client(), BaseURL: server.URL}
	res := h.Run(context.Background(), postCreatedEvent(), json.RawMessage(`{"listId":"L1"}`), Config{APIKey: "key", AccessToken: "tok"})

	assert.Equal(t, Succeeded("card1", "https://trello.com/c/abc"), res)
}

func TestAzureDevOpsHook_CreatesWorkItemWithPAT(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Proj/_apis/wit/workitems/$Bug", r.URL.Path)
		assert.Equal(t, "application/json-patch+json", r.Header.Get("Content-Type"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "", user)
		assert.Equal(t, "pat", pass)

		var ops []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ops))
		assert.Equal(t, "Dark mode", ops[0]["value"])

		w.Write([]byte(`{"id":42,"_links":{"html":{"href":"https://dev.azure.com/acme/Proj/_workitems/edit/42"}}}`))
	}))
	defer server.Close()

	h := &AzureDevOpsHook{HTTPClient: server.Client()}
	res := h.Run(context.Background(), postCreatedEvent(), json.RawMessage(`{"project":"Proj","workItemType":"Bug"}`),
		Config{APIKey: "pat", Metadata: map[string]any{"rootUrl": server.URL}})

	assert.True(t, res.Success, res.Error)
	assert.Equal(t, "42", res.ExternalID)
	assert.Equal(t, "https://dev.azure.com/acme/Proj/_workitems/edit/42", res.ExternalURL)
}

func TestBuildMessage_AllEventTypes(t *testing.T) {
	prev := &events.StatusSnapshot{Name: "Open", Slug: "open"}
	cases := []*events.Event{
		postCreatedEvent(),
		commentCreatedEvent(),
		{Type: events.TypePostStatusChanged, Actor: events.ServiceActor{DisplayName: "bot"}, Data: events.PostStatusChangedData{
			Post: events.PostRef{ID: "post_1", Title: "Dark mode", BoardSlug: "features"}, PreviousStatus: prev,
			NewStatus: events.StatusSnapshot{Name: "Planned", Slug: "planned"},
		}},
		{Type: events.TypeChangelogPublished, Actor: events.ServiceActor{}, Data: events.ChangelogPublishedData{
			Changelog: events.ChangelogSnapshot{ID: "cl1", Title: "v2", Content: "shipped"},
		}},
	}
	for _, ev := range cases {
		msg, err := BuildMessage(ev, "https://x.io/")
		require.NoError(t, err, ev.Type)
		assert.NotEmpty(t, msg.Title)
		assert.Contains(t, msg.URL, "https://x.io/")
	}

	_, err := BuildMessage(&events.Event{}, "https://x.io")
	assert.Error(t, err)
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(nil)
	for _, typ := range []string{TypeSlack, TypeWebhook, TypeTrello, TypeAzureDevOps} {
		_, ok := r.Get(typ)
		assert.True(t, ok, typ)
	}
	_, ok := r.Get("hubspot")
	assert.False(t, ok)
}

package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vsavkov/appcrew/internal/llm"
)

func TestAdapter_Complete_OpenAIChatCompletions(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"c1","model":"gpt-4o","choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"plan ready"}}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`))
	}))
	defer srv.Close()

	a := NewAdapter(Config{Provider: "openai", APIKey: "k", BaseURL: srv.URL})
	resp, err := a.Complete(context.Background(), llm.Request{
		Model:    "gpt-4o",
		System:   "You are a Business Analyst.",
		Messages: []llm.Message{{Role: llm.RoleUser, Name: "user", Content: "Build a todo app"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("path: %q", gotPath)
	}
	if gotAuth != "Bearer k" {
		t.Fatalf("authorization: %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o" {
		t.Fatalf("model: %v", gotBody["model"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d want 2 (%v)", len(msgs), msgs)
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "You are a Business Analyst." {
		t.Fatalf("system message: %v", first)
	}
	second, _ := msgs[1].(map[string]any)
	if second["name"] != "user" {
		t.Fatalf("name: %v", second["name"])
	}
	if resp.Text() != "plan ready" {
		t.Fatalf("text: %q", resp.Text())
	}
	if resp.Usage.TotalTokens != 13 || resp.Finish.Reason != "stop" {
		t.Fatalf("usage/finish: %+v %+v", resp.Usage, resp.Finish)
	}
}

func TestAdapter_Complete_AzureDeploymentRouting(t *testing.T) {
	var gotPath, gotVersion, gotKey, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"c2","choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	a := NewAdapter(Config{Provider: "azure_openai", APIKey: "secret", BaseURL: srv.URL + "/", Azure: true, APIVersion: "2024-06-01"})
	resp, err := a.Complete(context.Background(), llm.Request{Model: "my-gpt4o", Messages: []llm.Message{llm.User("Hello")}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotPath != "/openai/deployments/my-gpt4o/chat/completions" {
		t.Fatalf("path: %q", gotPath)
	}
	if gotVersion != "2024-06-01" {
		t.Fatalf("api-version: %q", gotVersion)
	}
	if gotKey != "secret" || gotAuth != "" {
		t.Fatalf("auth headers: api-key=%q authorization=%q", gotKey, gotAuth)
	}
	if _, ok := gotBody["model"]; ok {
		t.Fatalf("azure body should not carry model: %v", gotBody)
	}
	if resp.Model != "my-gpt4o" || resp.Text() != "hello" {
		t.Fatalf("resp: %+v", resp)
	}
}

func TestAdapter_Complete_HTTPErrorsMapToUnifiedTaxonomy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"429","message":"Rate limit is exceeded"}}`))
	}))
	defer srv.Close()

	a := NewAdapter(Config{Provider: "openai", APIKey: "k", BaseURL: srv.URL})
	_, err := a.Complete(context.Background(), llm.Request{Model: "m", Messages: []llm.Message{llm.User("hi")}})
	var rl *llm.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %T (%v)", err, err)
	}
	if rl.RetryAfter() == nil || rl.RetryAfter().Seconds() != 3 {
		t.Fatalf("retry-after: %v", rl.RetryAfter())
	}
	if !llm.IsRetryable(err) {
		t.Fatalf("rate limit should be retryable")
	}
}

func TestAdapter_Complete_AuthFailureIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Access denied due to invalid subscription key"}}`))
	}))
	defer srv.Close()

	a := NewAdapter(Config{Provider: "azure_openai", APIKey: "bad", BaseURL: srv.URL, Azure: true})
	_, err := a.Complete(context.Background(), llm.Request{Model: "d", Messages: []llm.Message{llm.User("hi")}})
	if !llm.IsAuthenticationError(err) {
		t.Fatalf("expected AuthenticationError, got %T (%v)", err, err)
	}
	if llm.IsRetryable(err) {
		t.Fatalf("auth errors must not be retryable")
	}
}

func TestAdapter_Complete_MissingChoicesIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c3","choices":[]}`))
	}))
	defer srv.Close()

	a := NewAdapter(Config{Provider: "openai", APIKey: "k", BaseURL: srv.URL})
	_, err := a.Complete(context.Background(), llm.Request{Model: "m", Messages: []llm.Message{llm.User("hi")}})
	var me *llm.MalformedResponseError
	if !errors.As(err, &me) {
		t.Fatalf("expected MalformedResponseError, got %T (%v)", err, err)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"BusinessAnalyst": "BusinessAnalyst",
		"Product Owner":   "Product_Owner",
		"  team/lead! ":   "teamlead",
		"":                "",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Fatalf("sanitizeName(%q)=%q want %q", in, got, want)
		}
	}
}

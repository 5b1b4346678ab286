package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vsavkov/appcrew/internal/llm"
	"github.com/vsavkov/appcrew/internal/providerspec"
)

type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Path     string

	// Azure selects deployment-scoped routing: {model} in Path is replaced by
	// the request model (the deployment name), api-version is appended, and
	// the key is sent in the api-key header instead of a bearer token.
	Azure      bool
	APIVersion string

	OptionsKey   string
	ExtraHeaders map[string]string
	HTTPClient   *http.Client
}

type Adapter struct {
	cfg    Config
	client *http.Client
}

const defaultRequestTimeout = 10 * time.Minute

func init() {
	llm.RegisterAdapterFactory(providerspec.ProtocolOpenAIChatCompletions, fromSpec)
	llm.RegisterAdapterFactory(providerspec.ProtocolAzureChatCompletions, fromSpec)
}

func fromSpec(spec providerspec.Spec, env llm.EnvSettings) (llm.ProviderAdapter, error) {
	if spec.API == nil {
		return nil, fmt.Errorf("provider %s has no api contract", spec.Key)
	}
	return NewAdapter(Config{
		Provider:   spec.Key,
		APIKey:     env.APIKey,
		BaseURL:    env.BaseURL,
		Path:       spec.API.DefaultPath,
		Azure:      spec.API.Protocol == providerspec.ProtocolAzureChatCompletions,
		APIVersion: env.APIVersion,
	}), nil
}

func NewAdapter(cfg Config) *Adapter {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if strings.TrimSpace(cfg.Path) == "" {
		if cfg.Azure {
			cfg.Path = "/openai/deployments/{model}/chat/completions"
		} else {
			cfg.Path = "/v1/chat/completions"
		}
	}
	if strings.TrimSpace(cfg.OptionsKey) == "" {
		cfg.OptionsKey = cfg.Provider
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 0}
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return a.cfg.Provider }

func (a *Adapter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	requestCtx, cancel := withDefaultRequestDeadline(ctx)
	defer cancel()

	body, err := toChatCompletionsBody(req, a.cfg.OptionsKey, a.cfg.Azure)
	if err != nil {
		return llm.Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, a.endpoint(req.Model), bytes.NewReader(body))
	if err != nil {
		return llm.Response{}, llm.WrapContextError(a.cfg.Provider, err)
	}
	if a.cfg.Azure {
		httpReq.Header.Set("api-key", a.cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.cfg.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return llm.Response{}, llm.WrapContextError(a.cfg.Provider, err)
	}
	defer resp.Body.Close()

	return parseChatCompletionsResponse(a.cfg.Provider, req.Model, resp)
}

func (a *Adapter) endpoint(model string) string {
	path := a.cfg.Path
	if strings.Contains(path, "{model}") {
		path = strings.ReplaceAll(path, "{model}", url.PathEscape(model))
	}
	u := a.cfg.BaseURL + path
	if a.cfg.Azure && strings.TrimSpace(a.cfg.APIVersion) != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "api-version=" + url.QueryEscape(a.cfg.APIVersion)
	}
	return u
}

func withDefaultRequestDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, defaultRequestTimeout)
}

func toChatCompletionsBody(req llm.Request, optionsKey string, azure bool) ([]byte, error) {
	body := map[string]any{
		"messages": toChatCompletionsMessages(req.System, req.Messages),
	}
	// Azure routes by deployment in the URL; the body model field is ignored there.
	if !azure {
		body["model"] = req.Model
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		body["max_tokens"] = *req.MaxTokens
	}
	if req.ProviderOptions != nil {
		if ov, ok := req.ProviderOptions[optionsKey].(map[string]any); ok {
			for k, v := range ov {
				body[k] = v
			}
		}
	}
	return json.Marshal(body)
}

func toChatCompletionsMessages(system string, msgs []llm.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, map[string]any{"role": string(llm.RoleSystem), "content": system})
	}
	for _, m := range msgs {
		entry := map[string]any{
			"role":    string(m.Role),
			"content": m.Content,
		}
		if name := sanitizeName(m.Name); name != "" {
			entry["name"] = name
		}
		out = append(out, entry)
	}
	return out
}

// sanitizeName keeps the characters chat completions accepts in the name
// field (letters, digits, underscore, dash), at most 64 of them.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	return b.String()
}

func parseChatCompletionsResponse(provider, model string, resp *http.Response) (llm.Response, error) {
	rawBytes, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return llm.Response{}, llm.WrapContextError(provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw := map[string]any{}
		dec := json.NewDecoder(bytes.NewReader(rawBytes))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			raw["raw_body"] = string(rawBytes)
		}
		ra := llm.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return llm.Response{}, llm.ErrorFromHTTPStatus(provider, resp.StatusCode, errorMessage(raw), raw, ra)
	}
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(rawBytes))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return llm.Response{}, llm.NewMalformedResponseError(provider, "decode chat.completions body: "+err.Error())
	}
	return fromChatCompletions(provider, model, raw)
}

// errorMessage pulls error.message (and error.code) out of an OpenAI-style error body.
func errorMessage(raw map[string]any) string {
	em, _ := raw["error"].(map[string]any)
	msg := strings.TrimSpace(asString(em["message"]))
	code := strings.TrimSpace(asString(em["code"]))
	switch {
	case msg != "" && code != "":
		return code + ": " + msg
	case msg != "":
		return msg
	case code != "":
		return code
	}
	return "chat.completions failed"
}

func fromChatCompletions(provider, model string, raw map[string]any) (llm.Response, error) {
	choicesAny, ok := raw["choices"].([]any)
	if !ok || len(choicesAny) == 0 {
		return llm.Response{}, llm.NewMalformedResponseError(provider, "chat.completions response missing choices")
	}
	choice, ok := choicesAny[0].(map[string]any)
	if !ok {
		return llm.Response{}, llm.NewMalformedResponseError(provider, "chat.completions first choice malformed")
	}
	msgMap, _ := choice["message"].(map[string]any)
	msg := llm.Assistant(asString(msgMap["content"]))

	usageMap, _ := raw["usage"].(map[string]any)
	usage := llm.Usage{
		InputTokens:  intFromAny(usageMap["prompt_tokens"]),
		OutputTokens: intFromAny(usageMap["completion_tokens"]),
		TotalTokens:  intFromAny(usageMap["total_tokens"]),
	}
	return llm.Response{
		ID:       asString(raw["id"]),
		Model:    firstNonEmpty(model, asString(raw["model"])),
		Provider: provider,
		Message:  msg,
		Finish: llm.FinishReason{
			Reason: normalizeFinishReason(asString(choice["finish_reason"])),
			Raw:    asString(choice["finish_reason"]),
		},
		Usage: usage,
		Raw:   raw,
	}, nil
}

func normalizeFinishReason(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stop":
		return "stop"
	case "length":
		return "length"
	case "content_filter":
		return "content_filter"
	case "tool_calls", "function_call":
		return "tool_calls"
	case "":
		return ""
	default:
		return "other"
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return ""
	}
}

func intFromAny(v any) int {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil {
				return 0
			}
			return int(f)
		}
		return int(n)
	case float64:
		return int(x)
	case int:
		return x
	default:
		return 0
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

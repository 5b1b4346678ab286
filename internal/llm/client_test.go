package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeAdapter struct {
	name string
}

func (a *fakeAdapter) Name() string { return a.name }
func (a *fakeAdapter) Complete(ctx context.Context, req Request) (Response, error) {
	_ = ctx
	return Response{Provider: a.name, Model: req.Model, Message: Assistant("ok")}, nil
}

type stepAdapter struct {
	name  string
	i     int
	steps []func() (Response, error)
}

func (a *stepAdapter) Name() string { return a.name }
func (a *stepAdapter) Complete(ctx context.Context, req Request) (Response, error) {
	_ = ctx
	if a.i >= len(a.steps) {
		return Response{Provider: a.name, Model: req.Model, Message: Assistant("ok")}, nil
	}
	fn := a.steps[a.i]
	a.i++
	return fn()
}

func TestClient_DefaultProviderRouting(t *testing.T) {
	c := NewClient()
	c.Register(&fakeAdapter{name: "azure_openai"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Complete(ctx, Request{Model: "m", Messages: []Message{User("hi")}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "azure_openai" {
		t.Fatalf("provider: %q", resp.Provider)
	}
}

func TestClient_ProviderAlias_AzureRoutesToAzureOpenAI(t *testing.T) {
	c := NewClient()
	c.Register(&fakeAdapter{name: "openai"})
	c.Register(&fakeAdapter{name: "azure_openai"})

	resp, err := c.Complete(context.Background(), Request{Provider: "Azure", Model: "m", Messages: []Message{User("hi")}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "azure_openai" {
		t.Fatalf("provider: %q", resp.Provider)
	}
	if got := c.ProviderNames(); len(got) != 2 || got[0] != "azure_openai" || got[1] != "openai" {
		t.Fatalf("ProviderNames: %v", got)
	}
}

func TestClient_UnknownProviderError(t *testing.T) {
	c := NewClient()
	_, err := c.Complete(context.Background(), Request{Provider: "missing", Model: "m", Messages: []Message{User("hi")}})
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
}

func TestClient_NoProviderConfiguredError(t *testing.T) {
	c := NewClient()
	_, err := c.Complete(context.Background(), Request{Model: "m", Messages: []Message{User("hi")}})
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
}

func TestClient_InvalidRequestIsRejectedBeforeAdapter(t *testing.T) {
	c := NewClient()
	a := &stepAdapter{name: "openai"}
	c.Register(a)
	if _, err := c.Complete(context.Background(), Request{Messages: []Message{User("hi")}}); err == nil {
		t.Fatalf("expected error for missing model")
	}
	if a.i != 0 {
		t.Fatalf("adapter should not be called, calls=%d", a.i)
	}
}

func TestClient_Complete_DoesNotRetryAutomatically(t *testing.T) {
	c := NewClient()
	err429 := ErrorFromHTTPStatus("openai", 429, "rate limited", nil, nil)
	a := &stepAdapter{
		name: "openai",
		steps: []func() (Response, error){
			func() (Response, error) { return Response{}, err429 },
			func() (Response, error) { return Response{Provider: "openai", Model: "m", Message: Assistant("ok")}, nil },
		},
	}
	c.Register(a)

	_, err := c.Complete(context.Background(), Request{Provider: "openai", Model: "m", Messages: []Message{User("hi")}})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if a.i != 1 {
		t.Fatalf("adapter calls: got %d want 1", a.i)
	}
}

func TestClient_MiddlewareChainOrder(t *testing.T) {
	c := NewClient()
	c.Register(&fakeAdapter{name: "openai"})

	var order []string
	c.Use(
		MiddlewareFunc{
			Complete: func(ctx context.Context, req Request, next CompleteFunc) (Response, error) {
				order = append(order, "mw1:req")
				resp, err := next(ctx, req)
				order = append(order, "mw1:resp")
				return resp, err
			},
		},
		MiddlewareFunc{
			Complete: func(ctx context.Context, req Request, next CompleteFunc) (Response, error) {
				order = append(order, "mw2:req")
				resp, err := next(ctx, req)
				order = append(order, "mw2:resp")
				return resp, err
			},
		},
	)

	if _, err := c.Complete(context.Background(), Request{Provider: "openai", Model: "m", Messages: []Message{User("hi")}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Registration order on request; reverse order on response.
	want := []string{"mw1:req", "mw2:req", "mw2:resp", "mw1:resp"}
	if len(order) != len(want) {
		t.Fatalf("order: got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d]: got %q want %q (full=%v)", i, order[i], want[i], order)
		}
	}
}

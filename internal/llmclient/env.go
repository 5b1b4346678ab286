package llmclient

import (
	"time"

	"github.com/vsavkov/appcrew/internal/llm"
	_ "github.com/vsavkov/appcrew/internal/llm/providers/openaicompat"
)

type Options struct {
	Retry llm.RetryPolicy

	// Timeout bounds one completion attempt; 0 leaves calls unbounded.
	Timeout time.Duration
}

// NewFromEnv registers the chat-completion adapters that can be built from
// environment variables (Azure OpenAI first, then OpenAI) and installs the
// retry and timeout middleware. The first registered provider becomes the
// default.
func NewFromEnv(opts Options) (*llm.Client, error) {
	c, err := llm.NewFromEnv()
	if err != nil {
		return nil, err
	}
	if opts.Retry.MaxRetries > 0 {
		c.Use(llm.Retry(opts.Retry, nil))
	}
	if opts.Timeout > 0 {
		c.Use(llm.Timeout(opts.Timeout))
	}
	return c, nil
}

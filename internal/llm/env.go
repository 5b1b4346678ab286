package llm

import (
	"os"
	"strings"

	"github.com/vsavkov/appcrew/internal/providerspec"
)

// AdapterFactory builds an adapter for a builtin provider spec. Provider
// packages register themselves so this package does not import them.
type AdapterFactory func(spec providerspec.Spec, env EnvSettings) (ProviderAdapter, error)

// EnvSettings are the connection settings discovered for a provider.
type EnvSettings struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
}

var adapterFactories = map[providerspec.APIProtocol]AdapterFactory{}

func RegisterAdapterFactory(protocol providerspec.APIProtocol, f AdapterFactory) {
	adapterFactories[protocol] = f
}

// EnvFor reads the environment variables named by the provider's builtin spec.
func EnvFor(spec providerspec.Spec) (EnvSettings, bool) {
	if spec.API == nil {
		return EnvSettings{}, false
	}
	api := spec.API
	s := EnvSettings{
		APIKey:     getenv(api.DefaultAPIKeyEnv),
		BaseURL:    firstNonEmpty(getenv(api.DefaultBaseURLEnv), api.DefaultBaseURL),
		APIVersion: firstNonEmpty(getenv(api.DefaultAPIVersionEnv), api.DefaultAPIVersion),
		Model:      getenv(api.DefaultModelEnv),
	}
	if s.APIKey == "" || s.BaseURL == "" {
		return s, false
	}
	return s, true
}

// NewFromEnv registers any provider adapters that can be constructed from environment variables.
// Azure OpenAI is tried first, so it becomes the default when both are configured.
func NewFromEnv() (*Client, error) {
	c := NewClient()
	for _, key := range []string{"azure_openai", "openai"} {
		spec, ok := providerspec.Builtin(key)
		if !ok {
			continue
		}
		env, ok := EnvFor(spec)
		if !ok {
			continue
		}
		f := adapterFactories[spec.API.Protocol]
		if f == nil {
			continue
		}
		a, err := f(spec, env)
		if err != nil {
			return nil, err
		}
		c.Register(a)
	}
	if len(c.providers) == 0 {
		return nil, &ConfigurationError{Message: "no chat provider configured (set AZURE_OPENAI_ENDPOINT/AZURE_OPENAI_API_KEY or OPENAI_API_KEY)"}
	}
	return c, nil
}

// DefaultModelFromEnv returns the model (or Azure deployment) named in the environment for provider.
func DefaultModelFromEnv(provider string) string {
	spec, ok := providerspec.Builtin(provider)
	if !ok || spec.API == nil {
		return ""
	}
	return getenv(spec.API.DefaultModelEnv)
}

func getenv(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

package providerspec

import (
	"strings"
	"sync"
)

type APIProtocol string

const (
	ProtocolOpenAIChatCompletions APIProtocol = "openai_chat_completions"
	ProtocolAzureChatCompletions  APIProtocol = "azure_chat_completions"
)

type APISpec struct {
	Protocol          APIProtocol
	DefaultBaseURL    string
	DefaultPath       string
	DefaultAPIKeyEnv  string
	DefaultBaseURLEnv string
	DefaultModelEnv   string
	// DefaultAPIVersion is only meaningful for Azure-style endpoints.
	DefaultAPIVersion    string
	DefaultAPIVersionEnv string
}

type Spec struct {
	Key     string
	Aliases []string
	API     *APISpec
}

var (
	providerAliasOnce  sync.Once
	providerAliasIndex map[string]string
)

func providerAliases() map[string]string {
	providerAliasOnce.Do(func() {
		providerAliasIndex = providerAliasIndexFromBuiltins(Builtins())
	})
	return providerAliasIndex
}

func providerAliasIndexFromBuiltins(specs map[string]Spec) map[string]string {
	out := map[string]string{}
	for rawKey, spec := range specs {
		key := strings.ToLower(strings.TrimSpace(rawKey))
		if key == "" {
			continue
		}
		out[key] = key
		for _, rawAlias := range spec.Aliases {
			alias := strings.ToLower(strings.TrimSpace(rawAlias))
			if alias != "" {
				out[alias] = key
			}
		}
	}
	return out
}

func CanonicalProviderKey(in string) string {
	key := strings.ToLower(strings.TrimSpace(in))
	if key == "" {
		return ""
	}
	if canonical, ok := providerAliases()[key]; ok {
		return canonical
	}
	return key
}

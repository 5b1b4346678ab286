package providerspec

var builtinSpecs = map[string]Spec{
	"azure_openai": {
		Key:     "azure_openai",
		Aliases: []string{"azure", "azure-openai", "aoai"},
		API: &APISpec{
			Protocol:             ProtocolAzureChatCompletions,
			DefaultPath:          "/openai/deployments/{model}/chat/completions",
			DefaultAPIKeyEnv:     "AZURE_OPENAI_API_KEY",
			DefaultBaseURLEnv:    "AZURE_OPENAI_ENDPOINT",
			DefaultModelEnv:      "AZURE_OPENAI_CHAT_DEPLOYMENT_NAME",
			DefaultAPIVersion:    "2024-06-01",
			DefaultAPIVersionEnv: "AZURE_OPENAI_API_VERSION",
		},
	},
	"openai": {
		Key: "openai",
		API: &APISpec{
			Protocol:          ProtocolOpenAIChatCompletions,
			DefaultBaseURL:    "https://api.openai.com",
			DefaultPath:       "/v1/chat/completions",
			DefaultAPIKeyEnv:  "OPENAI_API_KEY",
			DefaultBaseURLEnv: "OPENAI_BASE_URL",
			DefaultModelEnv:   "OPENAI_MODEL",
		},
	},
}

func Builtin(key string) (Spec, bool) {
	s, ok := builtinSpecs[CanonicalProviderKey(key)]
	if !ok {
		return Spec{}, false
	}
	return cloneSpec(s), true
}

func Builtins() map[string]Spec {
	out := make(map[string]Spec, len(builtinSpecs))
	for key, spec := range builtinSpecs {
		out[key] = cloneSpec(spec)
	}
	return out
}

func cloneSpec(in Spec) Spec {
	out := in
	if in.API != nil {
		api := *in.API
		out.API = &api
	}
	out.Aliases = append([]string{}, in.Aliases...)
	return out
}

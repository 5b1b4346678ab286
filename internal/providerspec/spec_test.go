package providerspec

import "testing"

func TestBuiltinSpecsIncludeChatProviders(t *testing.T) {
	s := Builtins()
	for _, key := range []string{"openai", "azure_openai"} {
		if _, ok := s[key]; !ok {
			t.Fatalf("missing builtin provider %q", key)
		}
	}
}

func TestCanonicalProviderKey_Aliases(t *testing.T) {
	if got := CanonicalProviderKey("azure"); got != "azure_openai" {
		t.Fatalf("azure alias: got %q want %q", got, "azure_openai")
	}
	if got := CanonicalProviderKey(" AOAI "); got != "azure_openai" {
		t.Fatalf("aoai alias: got %q want %q", got, "azure_openai")
	}
	if got := CanonicalProviderKey("ollama"); got != "ollama" {
		t.Fatalf("unknown provider keys should pass through unchanged, got %q", got)
	}
}

func TestBuiltin_ReturnsIndependentCopy(t *testing.T) {
	a, ok := Builtin("azure")
	if !ok {
		t.Fatalf("expected azure builtin")
	}
	a.API.DefaultAPIVersion = "mutated"
	a.Aliases[0] = "mutated"
	b, _ := Builtin("azure_openai")
	if b.API.DefaultAPIVersion == "mutated" || b.Aliases[0] == "mutated" {
		t.Fatalf("Builtin must return a deep copy: %+v", b)
	}
}

package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/vsavkov/appcrew/internal/crew/agent"
	"github.com/vsavkov/appcrew/internal/crew/transcript"
	"github.com/vsavkov/appcrew/internal/providerspec"
)

//go:embed crew_schema.json
var crewSchemaJSON string

type HumanMode string

const (
	HumanConsole     HumanMode = "console"
	HumanAutoApprove HumanMode = "auto_approve"
)

type AgentConfig struct {
	Name         string   `json:"name" yaml:"name"`
	Instructions string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Provider     string   `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

type CrewConfig struct {
	Version int `json:"version" yaml:"version"`

	LLM struct {
		Provider   string `json:"provider,omitempty" yaml:"provider,omitempty"`
		Model      string `json:"model,omitempty" yaml:"model,omitempty"`
		MaxRetries *int   `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
		TimeoutMS  int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	} `json:"llm,omitempty" yaml:"llm,omitempty"`

	Agents []AgentConfig `json:"agents" yaml:"agents"`

	Human struct {
		Enabled     *bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
		After       string    `json:"after,omitempty" yaml:"after,omitempty"`
		Prompt      string    `json:"prompt,omitempty" yaml:"prompt,omitempty"`
		Mode        HumanMode `json:"mode,omitempty" yaml:"mode,omitempty"`
		ReadyPhrase string    `json:"ready_phrase,omitempty" yaml:"ready_phrase,omitempty"`
	} `json:"human,omitempty" yaml:"human,omitempty"`

	Termination struct {
		Token    string `json:"token,omitempty" yaml:"token,omitempty"`
		MaxTurns *int   `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
	} `json:"termination,omitempty" yaml:"termination,omitempty"`

	Artifact struct {
		Tag      string `json:"tag,omitempty" yaml:"tag,omitempty"`
		Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
	} `json:"artifact,omitempty" yaml:"artifact,omitempty"`

	Publish struct {
		Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
		Dir     string `json:"dir,omitempty" yaml:"dir,omitempty"`
		Script  string `json:"script,omitempty" yaml:"script,omitempty"`
		Git     *struct {
			Remote  string   `json:"remote,omitempty" yaml:"remote,omitempty"`
			Branch  string   `json:"branch,omitempty" yaml:"branch,omitempty"`
			Add     []string `json:"add,omitempty" yaml:"add,omitempty"`
			Message string   `json:"message,omitempty" yaml:"message,omitempty"`
		} `json:"git,omitempty" yaml:"git,omitempty"`
	} `json:"publish,omitempty" yaml:"publish,omitempty"`
}

const (
	DefaultMaxTurns   = 99
	DefaultMaxRetries = 6
	DefaultScript     = "./push_to_github.sh"
	ReadyForApproval  = "READY FOR USER APPROVAL"
)

func DefaultAgents() []AgentConfig {
	return []AgentConfig{
		{
			Name: "BusinessAnalyst",
			Instructions: "You are a Business Analyst who takes requirements from the user (customer) and creates a project plan " +
				"for creating the requested app. You understand user requirements and create detailed documents with requirements and costing. " +
				"Your documents should be usable by the SoftwareEngineer as a reference for implementation, and by the Product Owner for verification.",
		},
		{
			Name: "SoftwareEngineer",
			Instructions: "You are a Software Engineer. Your goal is to create a web app using HTML and JavaScript, implementing all requirements " +
				"from the Business Analyst. Deliver code to the Product Owner for review. If requirements are unclear, ask the Business Analyst for clarification.",
		},
		{
			Name: "ProductOwner",
			Instructions: "You are the Product Owner. You review the software engineer's code to ensure all requirements are complete and the product meets specifications. " +
				"IMPORTANT: Verify that the code is shared using the format ```html [code] ```. If all requirements are met and code is correctly formatted, reply with '" + ReadyForApproval + "'. " +
				"Otherwise, send feedback with defect details.",
		},
	}
}

// DefaultConfig is the crew used when no config file is given.
func DefaultConfig() *CrewConfig {
	cfg := &CrewConfig{Version: 1, Agents: DefaultAgents()}
	applyConfigDefaults(cfg)
	return cfg
}

func LoadCrewConfigFile(path string) (*CrewConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseCrewConfig(b, strings.ToLower(filepath.Ext(path)) == ".json")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseCrewConfig checks b against the embedded schema, decodes it strictly
// and applies defaults.
func ParseCrewConfig(b []byte, isJSON bool) (*CrewConfig, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, fmt.Errorf("config is empty")
	}
	if err := validateAgainstSchema(b); err != nil {
		return nil, err
	}
	var cfg CrewConfig
	if isJSON {
		if err := decodeJSONStrict(b, &cfg); err != nil {
			return nil, err
		}
	} else {
		if err := decodeYAMLStrict(b, &cfg); err != nil {
			return nil, err
		}
	}
	applyConfigDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeJSONStrict(b []byte, cfg *CrewConfig) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("json: multiple top-level values are not allowed")
		}
		return err
	}
	return nil
}

func decodeYAMLStrict(b []byte, cfg *CrewConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

var (
	crewSchemaOnce sync.Once
	crewSchema     *jsonschema.Schema
	crewSchemaErr  error
)

func compiledCrewSchema() (*jsonschema.Schema, error) {
	crewSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("crew_schema.json", strings.NewReader(crewSchemaJSON)); err != nil {
			crewSchemaErr = err
			return
		}
		crewSchema, crewSchemaErr = c.Compile("crew_schema.json")
	})
	return crewSchema, crewSchemaErr
}

// validateAgainstSchema decodes b as YAML (a superset of JSON), normalizes it
// to JSON values and validates the result.
func validateAgainstSchema(b []byte) error {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return err
	}
	jb, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config is not representable as JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	schema, err := compiledCrewSchema()
	if err != nil {
		return fmt.Errorf("compile crew schema: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}

func applyConfigDefaults(cfg *CrewConfig) {
	if cfg == nil {
		return
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	cfg.LLM.Provider = normalizeProviderKey(cfg.LLM.Provider)
	cfg.LLM.Model = strings.TrimSpace(cfg.LLM.Model)
	if cfg.LLM.MaxRetries == nil {
		v := DefaultMaxRetries
		cfg.LLM.MaxRetries = &v
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = DefaultAgents()
	}
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		a.Name = strings.TrimSpace(a.Name)
		a.Provider = normalizeProviderKey(firstNonEmpty(a.Provider, cfg.LLM.Provider))
		a.Model = firstNonEmpty(a.Model, cfg.LLM.Model)
	}

	if cfg.Human.Enabled == nil {
		v := true
		cfg.Human.Enabled = &v
	}
	if cfg.Human.Mode == "" {
		cfg.Human.Mode = HumanConsole
	}
	cfg.Human.After = strings.TrimSpace(cfg.Human.After)
	if cfg.Human.After == "" && len(cfg.Agents) > 0 {
		cfg.Human.After = cfg.Agents[len(cfg.Agents)-1].Name
	}
	if cfg.Human.Prompt == "" {
		cfg.Human.Prompt = agent.DefaultHumanPrompt
	}
	if cfg.Human.ReadyPhrase == "" {
		cfg.Human.ReadyPhrase = ReadyForApproval
	}

	cfg.Termination.Token = firstNonEmpty(cfg.Termination.Token, DefaultApprovalToken)
	if cfg.Termination.MaxTurns == nil {
		v := DefaultMaxTurns
		cfg.Termination.MaxTurns = &v
	}

	cfg.Artifact.Tag = firstNonEmpty(cfg.Artifact.Tag, DefaultTag)
	cfg.Artifact.Filename = firstNonEmpty(cfg.Artifact.Filename, DefaultFilename)

	if cfg.Publish.Enabled == nil {
		v := true
		cfg.Publish.Enabled = &v
	}
	cfg.Publish.Dir = firstNonEmpty(cfg.Publish.Dir, ".")
	if cfg.Publish.Git == nil && strings.TrimSpace(cfg.Publish.Script) == "" {
		cfg.Publish.Script = DefaultScript
	}
	if cfg.Publish.Git != nil {
		cfg.Publish.Git.Remote = firstNonEmpty(cfg.Publish.Git.Remote, "origin")
		cfg.Publish.Git.Add = trimNonEmpty(cfg.Publish.Git.Add)
	}
}

func validateConfig(cfg *CrewConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", cfg.Version)
	}
	if cfg.LLM.Provider != "" {
		if _, ok := providerspec.Builtin(cfg.LLM.Provider); !ok {
			return fmt.Errorf("llm.provider: unknown provider %q", cfg.LLM.Provider)
		}
	}
	if cfg.LLM.MaxRetries != nil && *cfg.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be >= 0")
	}
	if cfg.LLM.TimeoutMS < 0 {
		return fmt.Errorf("llm.timeout_ms must be >= 0")
	}
	seen := map[string]bool{}
	for i, a := range cfg.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents[%d].name is required", i)
		}
		if a.Name == transcript.User {
			return fmt.Errorf("agents[%d].name %q is reserved for the user role", i, a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("agents[%d]: duplicate agent name %q", i, a.Name)
		}
		seen[a.Name] = true
		if a.Provider != "" {
			if _, ok := providerspec.Builtin(a.Provider); !ok {
				return fmt.Errorf("agents[%d].provider: unknown provider %q", i, a.Provider)
			}
		}
		if a.MaxTokens != nil && *a.MaxTokens <= 0 {
			return fmt.Errorf("agents[%d].max_tokens must be > 0", i)
		}
	}
	if *cfg.Human.Enabled {
		switch cfg.Human.Mode {
		case HumanConsole, HumanAutoApprove:
		default:
			return fmt.Errorf("human.mode: unsupported value %q", cfg.Human.Mode)
		}
		if !seen[cfg.Human.After] {
			return fmt.Errorf("human.after: no agent named %q", cfg.Human.After)
		}
	}
	if *cfg.Termination.MaxTurns < 0 {
		return fmt.Errorf("termination.max_turns must be >= 0")
	}
	if strings.ContainsAny(cfg.Artifact.Tag, "` \t\n") {
		return fmt.Errorf("artifact.tag %q must be a bare word", cfg.Artifact.Tag)
	}
	if !filepath.IsLocal(filepath.Clean(cfg.Artifact.Filename)) {
		return fmt.Errorf("artifact.filename %q must be a relative path", cfg.Artifact.Filename)
	}
	if cfg.Publish.Git != nil && strings.TrimSpace(cfg.Publish.Script) != "" {
		return fmt.Errorf("publish: set either script or git, not both")
	}
	return nil
}

func normalizeProviderKey(k string) string {
	return providerspec.CanonicalProviderKey(k)
}

func trimNonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type FinalStatus string

const (
	FinalSuccess          FinalStatus = "success"
	FinalArtifactNotFound FinalStatus = "artifact_not_found"
	FinalExhausted        FinalStatus = "exhausted"
	FinalFail             FinalStatus = "fail"
)

// Complete reports whether the run produced and handed off an artifact.
func (s FinalStatus) Complete() bool { return s == FinalSuccess }

type FinalOutcome struct {
	Timestamp time.Time   `json:"timestamp"`
	Status    FinalStatus `json:"status"`

	RunID string `json:"run_id"`
	Turns int    `json:"turns"`

	ArtifactSHA   string   `json:"artifact_sha,omitempty"`
	ArtifactTurn  *int     `json:"artifact_turn,omitempty"`
	Published     bool     `json:"published"`
	FailureReason string   `json:"failure_reason,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

func (fo *FinalOutcome) Save(path string) error {
	if fo == nil {
		return fmt.Errorf("final outcome is nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(fo, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadFinalOutcome(path string) (*FinalOutcome, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fo FinalOutcome
	if err := json.Unmarshal(b, &fo); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &fo, nil
}

package runtime

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFinalOutcome_Save_WritesJSON(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "final.json")
	turn := 2
	fo := &FinalOutcome{
		Timestamp:    time.Unix(123, 0).UTC(),
		Status:       FinalSuccess,
		RunID:        "r1",
		Turns:        8,
		ArtifactSHA:  "abc",
		ArtifactTurn: &turn,
		Published:    true,
	}
	if err := fo.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadFinalOutcome(p)
	if err != nil {
		t.Fatalf("LoadFinalOutcome: %v", err)
	}
	if got.Status != FinalSuccess || got.Turns != 8 || got.ArtifactTurn == nil || *got.ArtifactTurn != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestFinalOutcome_Save_PersistsFailureReasonAndWarnings(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "final.json")
	fo := &FinalOutcome{
		Timestamp:     time.Unix(123, 0).UTC(),
		Status:        FinalFail,
		RunID:         "r1",
		FailureReason: "turn 3 (ProductOwner): backend down",
		Warnings:      []string{"publish: push rejected"},
	}
	if err := fo.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["failure_reason"] != "turn 3 (ProductOwner): backend down" {
		t.Fatalf("failure_reason: %v", m["failure_reason"])
	}
	if _, ok := m["artifact_sha"]; ok {
		t.Fatalf("artifact_sha should be omitted when empty")
	}
	if ws, _ := m["warnings"].([]any); len(ws) != 1 {
		t.Fatalf("warnings: %v", m["warnings"])
	}
}

func TestFinalOutcome_SaveNil(t *testing.T) {
	var fo *FinalOutcome
	if err := fo.Save(filepath.Join(t.TempDir(), "final.json")); err == nil {
		t.Fatalf("expected error for nil outcome")
	}
}

func TestFinalStatus_Complete(t *testing.T) {
	if !FinalSuccess.Complete() {
		t.Fatalf("success should be complete")
	}
	for _, s := range []FinalStatus{FinalArtifactNotFound, FinalExhausted, FinalFail} {
		if s.Complete() {
			t.Fatalf("%s should not be complete", s)
		}
	}
}

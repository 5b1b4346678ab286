package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	progressFile   = "progress.ndjson"
	finalFile      = "final.json"
	transcriptFile = "transcript.json"
)

// progressLog appends one JSON object per event to progress.ndjson. Write
// failures are dropped; progress is advisory and never fails a run.
type progressLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
	sink func(map[string]any)
}

func newProgressLog(logsRoot string, sink func(map[string]any)) *progressLog {
	p := &progressLog{now: time.Now, sink: sink}
	if logsRoot != "" {
		p.path = filepath.Join(logsRoot, progressFile)
	}
	return p
}

func (p *progressLog) append(ev map[string]any) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := ev["ts"]; !ok {
		ev["ts"] = p.now().UTC().Format(time.RFC3339Nano)
	}
	if p.sink != nil {
		p.sink(ev)
	}
	if p.path == "" {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(b, '\n'))
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/vsavkov/appcrew/internal/crew/agent"
	"github.com/vsavkov/appcrew/internal/crew/publish"
	"github.com/vsavkov/appcrew/internal/crew/runtime"
	"github.com/vsavkov/appcrew/internal/crew/transcript"
)

const (
	DefaultTag      = "html"
	DefaultFilename = "index.html"
)

// Orchestrator seeds a transcript with the user's request, drives the
// scheduler to a terminal state and, on approval, publishes the extracted
// artifact. An Orchestrator holds configuration only; each Run owns its
// own transcript and scheduler.
type Orchestrator struct {
	Roster   []agent.Participant
	Policy   Policy
	MaxTurns int

	Tag       string
	Filename  string
	Publisher publish.Publisher

	Logger logrus.FieldLogger

	// LogsRoot is the run directory for progress.ndjson, transcript.json and
	// final.json. Empty defaults to
	//   ${XDG_STATE_HOME:-$HOME/.local/state}/appcrew/runs/<run_id>
	// and "-" disables persistence.
	LogsRoot string

	// RunID is generated (ULID) when empty.
	RunID string

	OnTurn func(turn transcript.Turn)

	// OnProgress, when set, receives every progress event as it is logged.
	OnProgress func(ev map[string]any)
}

type Result struct {
	RunID  string
	State  State
	Status runtime.FinalStatus
	Turns  int

	Transcript transcript.View

	ArtifactSHA  string
	ArtifactTurn int // -1 when nothing was extracted
	Published    bool

	Warnings []string
	LogsRoot string
}

func NewRunID() string {
	return ulid.Make().String()
}

func defaultLogsRoot(runID string) string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home := os.Getenv("HOME")
		if home == "" {
			base = "."
		} else {
			base = filepath.Join(home, ".local", "state")
		}
	}
	return filepath.Join(base, "appcrew", "runs", runID)
}

type run struct {
	id       string
	logsRoot string
	log      logrus.FieldLogger
	progress *progressLog

	warningsMu sync.Mutex
	warnings   []string
}

func (r *run) Warn(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	r.warningsMu.Lock()
	r.warnings = append(r.warnings, msg)
	r.warningsMu.Unlock()
	r.log.Warn(msg)
	r.progress.append(map[string]any{
		"event":   "warning",
		"message": msg,
	})
}

func (r *run) warningsCopy() []string {
	r.warningsMu.Lock()
	defer r.warningsMu.Unlock()
	return append([]string{}, r.warnings...)
}

// Run executes one orchestration. The returned error is non-nil only when
// the scheduler FAILED (a participant error or cancellation); the Result is
// returned in every case once the run has started.
func (o *Orchestrator) Run(ctx context.Context, request string) (*Result, error) {
	if strings.TrimSpace(request) == "" {
		return nil, fmt.Errorf("request is empty")
	}
	if o.MaxTurns < 0 {
		return nil, fmt.Errorf("max turns must be >= 0")
	}
	sched, err := NewScheduler(o.Roster, o.Policy)
	if err != nil {
		return nil, err
	}
	sched.MaxTurns = o.MaxTurns

	r := o.newRun()
	tag := firstNonEmpty(o.Tag, DefaultTag)
	filename := firstNonEmpty(o.Filename, DefaultFilename)
	pub := o.Publisher
	if pub == nil {
		pub = publish.Discard
	}

	tr := transcript.New()
	seed := tr.Append(transcript.User, request)
	r.progress.append(map[string]any{
		"event":     "run_start",
		"run_id":    r.id,
		"roster":    rosterNames(o.Roster),
		"max_turns": o.MaxTurns,
		"tag":       tag,
	})
	r.log.WithFields(logrus.Fields{"run_id": r.id, "logs_root": r.logsRoot}).Info("run started")
	if o.OnTurn != nil {
		o.OnTurn(seed)
	}

	sched.OnTurn = func(t transcript.Turn) {
		r.progress.append(map[string]any{
			"event":   "turn",
			"index":   t.Index,
			"speaker": t.Speaker,
			"chars":   len(t.Content),
		})
		if o.OnTurn != nil {
			o.OnTurn(t)
		}
	}

	state, runErr := sched.Run(ctx, tr)
	res := &Result{
		RunID:        r.id,
		State:        state,
		Turns:        sched.Turns(),
		ArtifactTurn: -1,
		LogsRoot:     r.logsRoot,
	}

	switch state {
	case StateFailed:
		res.Status = runtime.FinalFail
		ev := map[string]any{"event": "turn_failed", "error": runErr.Error()}
		var te *TurnError
		if errors.As(runErr, &te) {
			ev["speaker"] = te.Speaker
			ev["index"] = te.Index
		}
		r.progress.append(ev)
		r.log.WithError(runErr).Error("run failed")
	case StateExhausted:
		res.Status = runtime.FinalExhausted
		r.progress.append(map[string]any{"event": "exhausted", "turns": res.Turns})
		r.log.WithField("turns", res.Turns).Warn("turn limit reached without approval")
	case StateTerminated:
		last, _ := tr.View().Last()
		r.progress.append(map[string]any{"event": "policy_terminated", "index": last.Index})
		o.finishApproved(ctx, r, tr.View(), tag, filename, pub, res)
	}

	res.Transcript = tr.View()
	res.Warnings = r.warningsCopy()
	r.persist(res, runErr)
	res.Warnings = r.warningsCopy()
	return res, runErr
}

func (o *Orchestrator) finishApproved(ctx context.Context, r *run, view transcript.View, tag, filename string, pub publish.Publisher, res *Result) {
	art, ok := Extract(view, tag)
	if !ok {
		res.Status = runtime.FinalArtifactNotFound
		r.progress.append(map[string]any{"event": "artifact_not_found", "tag": tag})
		r.log.WithField("tag", tag).Warn("no fenced artifact found in transcript")
		return
	}
	res.Status = runtime.FinalSuccess
	res.ArtifactSHA = art.Sum()
	res.ArtifactTurn = art.TurnIndex
	r.progress.append(map[string]any{
		"event":   "artifact_extracted",
		"index":   art.TurnIndex,
		"speaker": art.Speaker,
		"sha":     res.ArtifactSHA,
		"bytes":   len(art.Content),
	})
	r.log.WithFields(logrus.Fields{"speaker": art.Speaker, "index": art.TurnIndex}).Info("artifact extracted")

	// Approval is final once recorded; a late cancellation does not abort
	// the hand-off.
	if err := pub.Publish(context.WithoutCancel(ctx), art.Content, filename); err != nil {
		r.Warn(fmt.Sprintf("publish %s failed: %v", filename, err))
		return
	}
	res.Published = true
	r.progress.append(map[string]any{"event": "publish_ok", "filename": filename})
	r.log.WithField("filename", filename).Info("artifact published")
}

func (o *Orchestrator) newRun() *run {
	id := strings.TrimSpace(o.RunID)
	if id == "" {
		id = NewRunID()
	}
	logsRoot := strings.TrimSpace(o.LogsRoot)
	switch logsRoot {
	case "":
		logsRoot = defaultLogsRoot(id)
	case "-":
		logsRoot = ""
	}
	var log logrus.FieldLogger = o.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &run{
		id:       id,
		logsRoot: logsRoot,
		log:      log.WithField("run_id", id),
		progress: newProgressLog(logsRoot, o.OnProgress),
	}
}

func (r *run) persist(res *Result, runErr error) {
	if r.logsRoot != "" {
		if err := res.Transcript.Save(filepath.Join(r.logsRoot, transcriptFile)); err != nil {
			r.Warn(fmt.Sprintf("save transcript: %v", err))
		}
	}
	fo := &runtime.FinalOutcome{
		Timestamp:   time.Now().UTC(),
		Status:      res.Status,
		RunID:       res.RunID,
		Turns:       res.Turns,
		ArtifactSHA: res.ArtifactSHA,
		Published:   res.Published,
		Warnings:    r.warningsCopy(),
	}
	if res.ArtifactTurn >= 0 {
		turn := res.ArtifactTurn
		fo.ArtifactTurn = &turn
	}
	if runErr != nil {
		fo.FailureReason = runErr.Error()
	}
	r.progress.append(map[string]any{
		"event":  "run_end",
		"status": string(res.Status),
		"state":  string(res.State),
		"turns":  res.Turns,
	})
	if r.logsRoot != "" {
		if err := fo.Save(filepath.Join(r.logsRoot, finalFile)); err != nil {
			r.Warn(fmt.Sprintf("save final outcome: %v", err))
		}
	}
	r.log.WithFields(logrus.Fields{"status": res.Status, "turns": res.Turns}).Info("run finished")
}

func rosterNames(roster []agent.Participant) []string {
	out := make([]string, 0, len(roster))
	for _, p := range roster {
		out = append(out, p.Name())
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

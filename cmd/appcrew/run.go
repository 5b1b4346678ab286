package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/vsavkov/appcrew/internal/crew/agent"
	"github.com/vsavkov/appcrew/internal/crew/engine"
	"github.com/vsavkov/appcrew/internal/crew/procutil"
	"github.com/vsavkov/appcrew/internal/crew/publish"
	"github.com/vsavkov/appcrew/internal/crew/runtime"
	"github.com/vsavkov/appcrew/internal/llm"
	"github.com/vsavkov/appcrew/internal/llmclient"
)

const requirementsPrompt = "Enter your app requirements: "

type runFlags struct {
	configPath       string
	requirements     string
	requirementsFile string
	maxTurns         *int
	logsRoot         string
	runID            string
	autoApprove      bool
	noPublish        bool
	noColor          bool
	envFile          string
}

func parseRunFlags(args []string) (*runFlags, error) {
	f := &runFlags{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--auto-approve":
			f.autoApprove = true
		case "--no-publish":
			f.noPublish = true
		case "--no-color":
			f.noColor = true
		case "--config", "--requirements", "--requirements-file", "--max-turns", "--logs-root", "--run-id", "--env-file":
			v, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			switch args[i] {
			case "--config":
				f.configPath = v
			case "--requirements":
				f.requirements = v
			case "--requirements-file":
				f.requirementsFile = v
			case "--max-turns":
				n, err := strconv.Atoi(strings.TrimSpace(v))
				if err != nil || n < 0 {
					return nil, fmt.Errorf("--max-turns must be a non-negative integer, got %q", v)
				}
				f.maxTurns = &n
			case "--logs-root":
				f.logsRoot = v
			case "--run-id":
				f.runID = v
			case "--env-file":
				f.envFile = v
			}
			i++
		default:
			return nil, fmt.Errorf("unknown arg: %s", args[i])
		}
	}
	if f.requirements != "" && f.requirementsFile != "" {
		return nil, fmt.Errorf("--requirements and --requirements-file are mutually exclusive")
	}
	return f, nil
}

func loadRunConfig(f *runFlags) (*engine.CrewConfig, error) {
	cfg := engine.DefaultConfig()
	if f.configPath != "" {
		loaded, err := engine.LoadCrewConfigFile(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.maxTurns != nil {
		v := *f.maxTurns
		cfg.Termination.MaxTurns = &v
	}
	if f.autoApprove {
		cfg.Human.Mode = engine.HumanAutoApprove
	}
	if f.noPublish {
		v := false
		cfg.Publish.Enabled = &v
	}
	return cfg, nil
}

func readRequirements(f *runFlags, in *bufio.Reader, out io.Writer) (string, error) {
	switch {
	case f.requirements != "":
		return f.requirements, nil
	case f.requirementsFile != "":
		b, err := os.ReadFile(f.requirementsFile)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	fmt.Fprint(out, requirementsPrompt)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read requirements: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: color.NoColor})
	return l
}

// newBackend builds the chat client from the environment and returns a
// resolver for agents that name no model.
func newBackend(cfg *engine.CrewConfig) (*llm.Client, func(string) string, error) {
	retry := llm.DefaultRetryPolicy()
	if cfg.LLM.MaxRetries != nil {
		retry.MaxRetries = *cfg.LLM.MaxRetries
	}
	client, err := llmclient.NewFromEnv(llmclient.Options{
		Retry:   retry,
		Timeout: time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}
	if p := cfg.LLM.Provider; p != "" {
		found := false
		for _, name := range client.ProviderNames() {
			found = found || name == p
		}
		if !found {
			return nil, nil, fmt.Errorf("llm.provider %q is not configured in the environment (have %s)", p, strings.Join(client.ProviderNames(), ", "))
		}
		client.SetDefaultProvider(p)
	}
	resolve := func(provider string) string {
		if provider == "" {
			provider = client.DefaultProvider()
		}
		return llm.DefaultModelFromEnv(provider)
	}
	return client, resolve, nil
}

func crewRun(args []string, sio stdio) int {
	f, err := parseRunFlags(args)
	if err != nil {
		fmt.Fprintln(sio.err, err)
		usage(sio.err)
		return exitFailure
	}
	if f.noColor {
		color.NoColor = true
	}
	if err := loadEnv(f.envFile); err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	cfg, err := loadRunConfig(f)
	if err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	log := newLogger(sio.err)

	in := bufio.NewReader(sio.in)
	request, err := readRequirements(f, in, sio.out)
	if err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}

	client, defaultModel, err := newBackend(cfg)
	if err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	log.WithFields(logrus.Fields{
		"provider": client.DefaultProvider(),
		"model":    defaultModel(""),
	}).Info("chat backend ready")

	opts := engine.RosterOptions{Backend: client, DefaultModel: defaultModel}
	if cfg.Human.Mode == engine.HumanConsole {
		opts.Interviewer = &agent.ConsoleInterviewer{In: in, Out: sio.out}
	}
	roster, err := engine.BuildRoster(cfg, opts)
	if err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}

	pub := engine.NewPublisher(cfg)
	if w, ok := pub.(*publish.Workspace); ok {
		w.ScriptOutput = func(o procutil.Output) {
			if s := strings.TrimSpace(o.Stdout); s != "" {
				log.WithField("script", w.Script).Info(s)
			}
		}
	}

	echo := newTurnEcho(sio.out)
	o := engine.NewOrchestrator(cfg, roster, pub)
	o.Logger = log
	o.LogsRoot = f.logsRoot
	o.RunID = f.runID
	o.OnTurn = echo.Turn

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A second interrupt falls through to the default handler.
		<-ctx.Done()
		stop()
	}()

	res, err := o.Run(ctx, request)
	if res == nil && err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	fmt.Fprintf(sio.out, "run_id=%s\n", res.RunID)
	fmt.Fprintf(sio.out, "logs_root=%s\n", res.LogsRoot)
	fmt.Fprintf(sio.out, "status=%s\n", res.Status)
	fmt.Fprintf(sio.out, "turns=%d\n", res.Turns)
	if res.ArtifactSHA != "" {
		fmt.Fprintf(sio.out, "artifact_sha=%s\n", res.ArtifactSHA)
		fmt.Fprintf(sio.out, "published=%t\n", res.Published)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(sio.err, "WARNING: %s\n", w)
	}
	if err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	return exitCodeFor(res.Status)
}

func exitCodeFor(s runtime.FinalStatus) int {
	switch s {
	case runtime.FinalSuccess:
		return exitOK
	case runtime.FinalExhausted, runtime.FinalArtifactNotFound:
		return exitIncomplete
	default:
		return exitFailure
	}
}

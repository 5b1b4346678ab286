package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vsavkov/appcrew/internal/llm"
	"github.com/vsavkov/appcrew/internal/llmclient"
)

// crewPing sends a single "Hello" completion to check credentials and routing.
func crewPing(args []string, sio stdio) int {
	var envFile, model string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--env-file", "--model":
			v, err := flagValue(args, i)
			if err != nil {
				fmt.Fprintln(sio.err, err)
				return exitFailure
			}
			if args[i] == "--env-file" {
				envFile = v
			} else {
				model = v
			}
			i++
		default:
			fmt.Fprintf(sio.err, "unknown arg: %s\n", args[i])
			return exitFailure
		}
	}
	if err := loadEnv(envFile); err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	client, err := llmclient.NewFromEnv(llmclient.Options{Timeout: 60 * time.Second})
	if err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	provider := client.DefaultProvider()
	if strings.TrimSpace(model) == "" {
		model = llm.DefaultModelFromEnv(provider)
	}
	if model == "" {
		fmt.Fprintf(sio.err, "no model for provider %s: pass --model or set the provider's model variable\n", provider)
		return exitFailure
	}
	resp, err := client.Complete(context.Background(), llm.Request{
		Model:    model,
		Messages: []llm.Message{llm.User("Hello")},
	})
	if err != nil {
		fmt.Fprintln(sio.err, err)
		return exitFailure
	}
	fmt.Fprintf(sio.out, "provider=%s\n", provider)
	fmt.Fprintf(sio.out, "model=%s\n", firstNonEmpty(resp.Model, model))
	fmt.Fprintf(sio.out, "finish_reason=%s\n", resp.Finish.Reason)
	fmt.Fprintln(sio.out, resp.Text())
	return exitOK
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

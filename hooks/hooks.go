// Package hooks runs the before-run and after-run lifecycle commands
// around a sandboxed guest execution.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"judger-go/config"
)

// RunBefore executes every configured before-run hook in order, passing it
// the run configuration as JSON on stdin. The first failing hook aborts
// the remaining ones and its error is returned.
func RunBefore(ctx context.Context, hooks []config.HookCommand, cfg config.Config) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal before-run payload: %w", err)
	}
	return runAll(ctx, hooks, payload)
}

// RunAfter executes every configured after-run hook in order, passing it
// the run's outcome as JSON on stdin. Hook failures here are reported to
// the caller but conventionally logged at Warning rather than treated as
// a verdict change, since the guest already ran to completion.
func RunAfter(ctx context.Context, hooks []config.HookCommand, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal after-run payload: %w", err)
	}
	return runAll(ctx, hooks, data)
}

func runAll(ctx context.Context, hooks []config.HookCommand, stdin []byte) error {
	for _, h := range hooks {
		if err := runHook(ctx, h, stdin); err != nil {
			return fmt.Errorf("hook %s: %w", h.Path, err)
		}
	}
	return nil
}

// runHook executes a single hook command with its stdin set to payload.
func runHook(ctx context.Context, hook config.HookCommand, payload []byte) error {
	runCtx := ctx
	if hook.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(hook.Timeout)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, hook.Path, hook.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), hook.Env...)

	return cmd.Run()
}

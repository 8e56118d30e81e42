// Package supervisor orchestrates a single sandboxed run: validating the
// configuration, spawning the guest through the re-exec initializer,
// arming the wall-clock watchdog, bridging an optional interactor, and
// classifying the outcome into a result.RunResult.
package supervisor

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"judger-go/config"
	jerrors "judger-go/errors"
	"judger-go/guest"
	"judger-go/hooks"
	"judger-go/result"
	"judger-go/watchdog"
)

// Run executes a single sandboxed guest run per cfg and returns its
// outcome. It never panics on a setup failure: every failure mode that
// the spec models as part of the result (root check, bad config, fork
// failure, interactor spawn failure, ...) is reported as a RunResult
// whose Result field is one of the setup-error verdicts, with every
// accounting field left at zero.
func Run(ctx context.Context, cfg config.Config, log *zap.Logger) result.RunResult {
	if os.Geteuid() != 0 {
		log.Error("supervisor preflight failed", zap.String("reason", jerrors.ErrNotRoot.Error()))
		return result.SetupFailure(result.RootRequired)
	}

	if err := config.Validate(cfg); err != nil {
		log.Error("supervisor preflight failed", zap.Error(err))
		return result.SetupFailure(result.InvalidConfig)
	}

	if err := hooks.RunBefore(ctx, cfg.BeforeHooks, cfg); err != nil {
		log.Error("before-run hook failed", zap.Error(err))
		return result.SetupFailure(result.SystemError)
	}

	_, runResult := runGuest(ctx, cfg, log)

	if afterErr := hooks.RunAfter(ctx, cfg.AfterHooks, runResult); afterErr != nil {
		log.Warn("after-run hook failed", zap.Error(afterErr))
	}

	return runResult
}

// runGuest does the actual fork/exec/wait/classify work. Returning the
// started guest alongside the result is only useful to callers that
// want the pid for logging; the public Run signature discards it.
func runGuest(ctx context.Context, cfg config.Config, log *zap.Logger) (*guest.Handles, result.RunResult) {
	var bridge *interactorBridge
	var override *guest.StdioOverride
	if cfg.InteractorPath != "" {
		b, err := newInteractorBridge(ctx, cfg)
		if err != nil {
			log.Error("interactor pipe setup failed", zap.Error(err))
			return nil, result.SetupFailure(result.SpjError)
		}
		bridge = b
		override = b.override
	}

	handles, err := guest.Spawn(cfg, override)
	if err != nil {
		log.Error("guest spawn setup failed", zap.Error(err))
		return nil, result.SetupFailure(result.ForkFailed)
	}

	start := time.Now()
	if err := handles.Cmd.Start(); err != nil {
		log.Error("fork failed", zap.Error(err))
		return nil, result.SetupFailure(result.ForkFailed)
	}
	handles.AfterStart()

	if err := handles.WriteConfig(cfg); err != nil {
		log.Error("writing guest config failed", zap.Error(err))
		killAndReap(handles)
		return nil, result.SetupFailure(result.ForkFailed)
	}

	var interactorPID int
	if bridge != nil {
		if err := bridge.start(); err != nil {
			log.Error("interactor spawn failed", zap.Error(err))
			killAndReap(handles)
			return nil, result.SetupFailure(result.SpjError)
		}
		interactorPID = bridge.cmd.Process.Pid
		bridge.closeParentCopies()
	}

	var wd *watchdog.Watchdog
	if cfg.MaxRealTime != -1 {
		wd = watchdog.Arm(time.Duration(cfg.MaxRealTime)*time.Millisecond, handles.Cmd.Process.Pid, interactorPID)
	}

	waitErr := handles.Cmd.Wait()
	if wd != nil {
		wd.Cancel()
	}
	realElapsed := time.Since(start)

	setupDetail := handles.ReadSetupError()

	if bridge != nil {
		bridge.cmd.Wait()
	}

	if waitErr != nil {
		if _, ok := waitErr.(*exec.ExitError); !ok {
			log.Error("wait4 failed", zap.Error(waitErr))
			return handles, result.SetupFailure(result.WaitFailed)
		}
	}

	ps := handles.Cmd.ProcessState
	o := outcome{RealTimeMs: realElapsed.Milliseconds()}
	if ps != nil {
		o.ExitCode, o.Signaled, o.Signal = decodeProcessState(ps)
		if ru, ok := ps.SysUsage().(*syscall.Rusage); ok {
			o.CPUTimeMs = rusageCPUTimeMs(ru)
			o.MemoryBytes = ru.Maxrss * 1024
		}
	}

	if kind, ok := jerrors.KindFromExitCode(o.ExitCode); ok && !o.Signaled && o.ExitCode >= 32 {
		v := verdictForSetupKind(kind)
		log.Error("guest initializer failed before exec", zap.String("detail", setupDetail))
		return handles, result.SetupFailure(v).WithMessage(v, setupDetail)
	}

	verdict := classify(cfg, o)
	run := result.RunResult{
		CPUTimeMs:   o.CPUTimeMs,
		RealTimeMs:  o.RealTimeMs,
		MemoryBytes: o.MemoryBytes,
		Signal:      int(o.Signal),
		ExitCode:    o.ExitCode,
		Result:      verdict,
	}

	if verdict == result.Success && bridge != nil && bridge.failed() {
		run = run.WithMessage(result.WrongAnswer, bridge.message())
	}

	return handles, run
}

// decodeProcessState extracts the exit code, signaled flag, and
// terminating signal from a reaped process's state, the same decoding
// applied to both the guest and the interactor subprocess.
func decodeProcessState(ps *os.ProcessState) (exitCode int, signaled bool, sig syscall.Signal) {
	exitCode = ps.ExitCode()
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok {
		signaled = ws.Signaled()
		if signaled {
			sig = ws.Signal()
		}
	}
	return exitCode, signaled, sig
}

func killAndReap(h *guest.Handles) {
	if h.Cmd.Process != nil {
		h.Cmd.Process.Kill()
	}
	h.Cmd.Wait()
}

// rusageCPUTimeMs converts ru_utime to milliseconds. User time only:
// RLIMIT_CPU and the CPU time limit are both user-time budgets, not
// wall-clock-minus-idle budgets that would also charge kernel time.
func rusageCPUTimeMs(ru *syscall.Rusage) int64 {
	return ru.Utime.Sec*1000 + int64(ru.Utime.Usec)/1000
}

// verdictForSetupKind maps an initializer failure kind, observed through
// the guest's exit code, to its corresponding setup-error verdict.
func verdictForSetupKind(kind jerrors.ErrorKind) result.Verdict {
	switch kind {
	case jerrors.ErrRootRequired:
		return result.RootRequired
	case jerrors.ErrInvalidConfig:
		return result.InvalidConfig
	case jerrors.ErrForkFailed:
		return result.ForkFailed
	case jerrors.ErrWaitFailed:
		return result.WaitFailed
	case jerrors.ErrSetrlimitFailed:
		return result.SetrlimitFailed
	case jerrors.ErrDup2Failed:
		return result.Dup2Failed
	case jerrors.ErrSetuidFailed:
		return result.SetuidFailed
	case jerrors.ErrExecveFailed:
		return result.ExecveFailed
	case jerrors.ErrLoadSeccompFailed:
		return result.LoadSeccompFailed
	case jerrors.ErrSpjError:
		return result.SpjError
	default:
		return result.SystemError
	}
}

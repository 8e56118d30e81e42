package supervisor

import (
	"syscall"

	"judger-go/config"
	"judger-go/result"
)

// outcome bundles what the supervisor observed about the guest process
// after reaping it, the inputs classify needs. It is a plain struct so
// classify stays a pure function, testable without root or a real fork.
type outcome struct {
	ExitCode    int
	Signaled    bool
	Signal      syscall.Signal
	CPUTimeMs   int64
	MemoryBytes int64
	RealTimeMs  int64
}

// classify implements the verdict precedence rules: terminal conditions
// are decided first, then each subsequent rule may overwrite the verdict
// with a more specific one, in order, so a later rule always wins a
// conflict with an earlier one. CPU time is checked last, so it takes
// precedence over real time and memory when a run trips more than one
// limit simultaneously.
func classify(cfg config.Config, o outcome) result.Verdict {
	// A guest killed by SIGUSR1 never reaches this path under the
	// exit-code failure convention the initializer actually uses, but
	// a stray SIGUSR1 delivery is kept as a defensive terminal case
	// rather than falling through to the generic signal handling below.
	if o.Signaled && o.Signal == syscall.SIGUSR1 {
		return result.SystemError
	}

	verdict := result.Success

	if !o.Signaled && o.ExitCode != 0 {
		verdict = result.RuntimeError
	}

	if o.Signaled {
		if o.Signal == syscall.SIGSEGV && withinMemoryLimit(cfg, o) {
			verdict = result.RuntimeError
		} else if o.Signal == syscall.SIGSEGV {
			verdict = result.MemoryLimitExceeded
		} else {
			verdict = result.RuntimeError
		}
	}

	if exceedsMemoryLimit(cfg, o) {
		verdict = result.MemoryLimitExceeded
	}
	if exceedsRealTimeLimit(cfg, o) {
		verdict = result.RealTimeLimitExceeded
	}
	if exceedsCPUTimeLimit(cfg, o) {
		verdict = result.CpuTimeLimitExceeded
	}

	return verdict
}

func withinMemoryLimit(cfg config.Config, o outcome) bool {
	return !exceedsMemoryLimit(cfg, o)
}

func exceedsMemoryLimit(cfg config.Config, o outcome) bool {
	return cfg.MaxMemory != -1 && o.MemoryBytes > cfg.MaxMemory
}

func exceedsRealTimeLimit(cfg config.Config, o outcome) bool {
	return cfg.MaxRealTime != -1 && o.RealTimeMs > cfg.MaxRealTime
}

func exceedsCPUTimeLimit(cfg config.Config, o outcome) bool {
	return cfg.MaxCPUTime != -1 && o.CPUTimeMs > cfg.MaxCPUTime
}

package guest

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"judger-go/config"
	jerrors "judger-go/errors"
	"judger-go/linux"
	"judger-go/utils"
)

// RunInit is the guest process's entry point. It must be called by main()
// before any CLI parsing, guarded by IsReexec(os.Args). It never returns:
// it either execve's the guest program or os.Exit's with a setup-error
// code (see errors.ErrorKind.ExitCode), after best-effort writing a
// diagnostic string to the setup-error pipe.
func RunInit() {
	// Seccomp and capability state are per-thread; keep every step and the
	// final execve on one OS thread.
	runtime.LockOSThread()

	errFD := fdFromEnv(envErrFD)
	var errPipe *utils.SyncPipe
	if errFD >= 0 {
		syscall.CloseOnExec(errFD)
		errPipe = utils.SyncPipeChildEnd(os.NewFile(uintptr(errFD), "errpipe"))
	}

	cfg, err := loadConfig()
	if err != nil {
		fail(errPipe, jerrors.Wrap(err, jerrors.ErrInvalidConfig, "load init config"))
	}

	if err := applyRlimits(cfg); err != nil {
		fail(errPipe, err)
	}
	if err := redirectStdio(cfg); err != nil {
		fail(errPipe, err)
	}
	if err := dropPrivileges(cfg); err != nil {
		fail(errPipe, err)
	}
	if err := linux.DropAll(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: capability hardening failed: %v\n", err)
	}
	if cfg.SeccompRuleName != "" {
		if err := linux.InstallSeccomp(string(cfg.SeccompRuleName)); err != nil {
			fail(errPipe, err)
		}
	}

	argv := cfg.Args
	if len(argv) == 0 {
		argv = []string{cfg.ExePath}
	}
	execErr := syscall.Exec(cfg.ExePath, argv, cfg.Env)
	fail(errPipe, jerrors.Wrap(execErr, jerrors.ErrExecveFailed, "execve"))
}

// fail signals err's detail over errPipe (best effort) and exits with the
// error kind's conventional exit code.
func fail(errPipe *utils.SyncPipe, err error) {
	kind, ok := jerrors.GetKind(err)
	if !ok {
		kind = jerrors.ErrSystemError
	}
	if errPipe != nil {
		errPipe.SignalError(err)
		errPipe.CloseChild()
	}
	os.Exit(kind.ExitCode())
}

func fdFromEnv(name string) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func loadConfig() (config.Config, error) {
	fd := fdFromEnv(envConfigFD)
	if fd < 0 {
		return config.Config{}, fmt.Errorf("%s not set", envConfigFD)
	}
	f := os.NewFile(uintptr(fd), "configpipe")
	defer f.Close()

	var cfg config.Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// rlimitCPUSeconds returns the RLIMIT_CPU value (seconds) for a
// configured max_cpu_time in milliseconds: ceil(ms/1000) + 1. The extra
// second absorbs the gap between the kernel's whole-second granularity
// and the supervisor's ms-precision classification after wait4.
func rlimitCPUSeconds(maxCPUTimeMs int64) uint64 {
	return uint64((maxCPUTimeMs+999)/1000) + 1
}

func setRlimit(resource int, value int64) error {
	if value == -1 {
		return nil
	}
	lim := unix.Rlimit{Cur: uint64(value), Max: uint64(value)}
	if err := unix.Setrlimit(resource, &lim); err != nil {
		return jerrors.Wrap(err, jerrors.ErrSetrlimitFailed, "setrlimit")
	}
	return nil
}

func applyRlimits(cfg config.Config) error {
	if err := setRlimit(unix.RLIMIT_STACK, cfg.MaxStack); err != nil {
		return err
	}
	if cfg.MaxMemory != -1 {
		if err := setRlimit(unix.RLIMIT_AS, cfg.MaxMemory*2); err != nil {
			return err
		}
	}
	if cfg.MaxCPUTime != -1 {
		seconds := int64(rlimitCPUSeconds(cfg.MaxCPUTime))
		if err := setRlimit(unix.RLIMIT_CPU, seconds); err != nil {
			return err
		}
	}
	if err := setRlimit(unix.RLIMIT_NPROC, cfg.MaxProcessNumber); err != nil {
		return err
	}
	if err := setRlimit(unix.RLIMIT_FSIZE, cfg.MaxOutputSize); err != nil {
		return err
	}
	return nil
}

func redirectStdio(cfg config.Config) error {
	stdinFD := fdFromEnv(envStdinFD)
	stdoutFD := fdFromEnv(envStdoutFD)

	if stdinFD >= 0 && stdoutFD >= 0 {
		if err := unix.Dup2(stdinFD, 0); err != nil {
			return jerrors.Wrap(err, jerrors.ErrDup2Failed, "dup2 stdin pipe")
		}
		if err := unix.Dup2(stdoutFD, 1); err != nil {
			return jerrors.Wrap(err, jerrors.ErrDup2Failed, "dup2 stdout pipe")
		}
	} else {
		in, err := os.OpenFile(cfg.InputPath, os.O_RDONLY, 0)
		if err != nil {
			return jerrors.Wrap(err, jerrors.ErrDup2Failed, "open input_path")
		}
		if err := unix.Dup2(int(in.Fd()), 0); err != nil {
			return jerrors.Wrap(err, jerrors.ErrDup2Failed, "dup2 stdin")
		}

		out, err := os.OpenFile(cfg.OutputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return jerrors.Wrap(err, jerrors.ErrDup2Failed, "open output_path")
		}
		if err := unix.Dup2(int(out.Fd()), 1); err != nil {
			return jerrors.Wrap(err, jerrors.ErrDup2Failed, "dup2 stdout")
		}
	}

	errOut, err := os.OpenFile(cfg.ErrorPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return jerrors.Wrap(err, jerrors.ErrDup2Failed, "open error_path")
	}
	if err := unix.Dup2(int(errOut.Fd()), 2); err != nil {
		return jerrors.Wrap(err, jerrors.ErrDup2Failed, "dup2 stderr")
	}

	return nil
}

func dropPrivileges(cfg config.Config) error {
	if err := unix.Setgid(int(cfg.GID)); err != nil {
		return jerrors.Wrap(err, jerrors.ErrSetuidFailed, "setgid")
	}
	if err := unix.Setuid(int(cfg.UID)); err != nil {
		return jerrors.Wrap(err, jerrors.ErrSetuidFailed, "setuid")
	}
	return nil
}

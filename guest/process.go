// Package guest builds and launches the sandboxed guest process: the
// supervisor-side re-exec plumbing in this file, the child-side
// initializer in init.go.
package guest

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"judger-go/config"
	"judger-go/utils"
)

// reexecArg marks a process launched by Spawn as the guest initializer
// rather than the normal CLI entry point.
const reexecArg = "__judger_guest_init__"

// Environment variables carrying the extra file descriptors' numbers
// through exec, since fd numbers are not otherwise discoverable by a
// re-exec'd child.
const (
	envConfigFD = "JUDGER_CONFIG_FD"
	envErrFD    = "JUDGER_ERR_FD"
	envStdinFD  = "JUDGER_STDIN_FD"
	envStdoutFD = "JUDGER_STDOUT_FD"
)

// Handles bundles the pipe ends the supervisor keeps open across the
// guest process's lifetime.
type Handles struct {
	Cmd *exec.Cmd

	configPipe *utils.SyncPipe
	errPipe    *utils.SyncPipe
}

// StdioOverride supplies interactor-mode pipe ends in place of opening
// input_path/output_path directly.
type StdioOverride struct {
	Stdin  *os.File
	Stdout *os.File
}

// Spawn re-execs the current binary as the guest initializer. The
// returned Cmd has not been started. The caller must call Start, then
// AfterStart, then WriteConfig, then eventually ReadSetupError after Wait.
//
// This sidesteps the async-signal-safety hazard of doing rlimit/seccomp
// work in a raw fork() of a multi-threaded Go runtime: syscall.ForkExec
// (which exec.Cmd uses internally) forks and immediately execve's a new
// image, so the initializer always starts as a fresh, single-purpose Go
// process rather than continuing to run inside the parent's forked
// address space.
func Spawn(cfg config.Config, override *StdioOverride) (*Handles, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve self executable: %w", err)
	}

	// configPipe carries the run config from supervisor to initializer; its
	// read/write roles are reversed from utils.SyncPipe's usual
	// parent-waits/child-signals convention, since here the parent is the
	// writer.
	configPipe, err := utils.NewSyncPipe()
	if err != nil {
		return nil, fmt.Errorf("config pipe: %w", err)
	}
	errPipe, err := utils.NewSyncPipe()
	if err != nil {
		configPipe.Close()
		return nil, fmt.Errorf("setup-error pipe: %w", err)
	}
	cmd := exec.Command(self, reexecArg)
	cmd.ExtraFiles = []*os.File{configPipe.ParentFile(), errPipe.ChildFile()}
	env := append(os.Environ(),
		fmt.Sprintf("%s=3", envConfigFD),
		fmt.Sprintf("%s=4", envErrFD),
	)

	if override != nil {
		cmd.ExtraFiles = append(cmd.ExtraFiles, override.Stdin, override.Stdout)
		env = append(env,
			fmt.Sprintf("%s=5", envStdinFD),
			fmt.Sprintf("%s=6", envStdoutFD),
		)
	}
	cmd.Env = env
	cmd.Stderr = os.Stderr

	return &Handles{Cmd: cmd, configPipe: configPipe, errPipe: errPipe}, nil
}

// AfterStart closes the supervisor's now-redundant copies of the ends
// handed to the child: the config pipe's read end and the error pipe's
// write end. Both were dup'd into the child via ExtraFiles, so exec.Cmd
// keeps its own originals open in the parent; without this, a guest that
// execve's cleanly and never writes to the error pipe would leave
// ReadSetupError blocked forever waiting for a write that never comes,
// since some writer (the parent itself) is always still holding the
// pipe open. Call once, right after a successful Cmd.Start.
func (h *Handles) AfterStart() {
	h.configPipe.CloseParent()
	h.errPipe.CloseChild()
}

// WriteConfig marshals cfg to the child's config pipe and closes the
// write end so the child's read returns EOF. Must be called once, after
// Cmd.Start and AfterStart.
func (h *Handles) WriteConfig(cfg config.Config) error {
	defer h.configPipe.ChildFile().Close()
	return json.NewEncoder(h.configPipe.ChildFile()).Encode(cfg)
}

// ReadSetupError drains the child's diagnostic pipe; empty if the child
// never wrote to it (a successful exec, or a crash before it could).
func (h *Handles) ReadSetupError() string {
	defer h.errPipe.CloseParent()
	if err := h.errPipe.WaitWithError(); err != nil {
		return err.Error()
	}
	return ""
}

// IsReexec reports whether the process was launched by Spawn as a guest
// initializer rather than the normal CLI entry point.
func IsReexec(args []string) bool {
	return len(args) > 1 && args[1] == reexecArg
}

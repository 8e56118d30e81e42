package supervisor

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"judger-go/config"
	"judger-go/guest"
)

// maxInteractorMessage bounds how much of the interactor's stderr is
// retained for a WrongAnswer message.
const maxInteractorMessage = 4096

// interactorBridge wires the guest and interactor together for §6's
// interactor protocol: guest_stdin <- interactor_stdout,
// guest_stdout -> interactor_stdin.
type interactorBridge struct {
	override *guest.StdioOverride
	cmd      *exec.Cmd
	stderr   *bytes.Buffer

	closeAfterGuestStart []*os.File
}

// newInteractorBridge builds the two pipes and the not-yet-started
// interactor command. The caller starts the guest first (so the
// override's pipe ends are valid fds to inherit), then calls start to
// launch the interactor, then closeParentCopies once both processes hold
// their copies.
func newInteractorBridge(ctx context.Context, cfg config.Config) (*interactorBridge, error) {
	// pipe A: interactor stdout -> guest stdin
	guestStdinRead, interactorStdoutWrite, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	// pipe B: guest stdout -> interactor stdin
	interactorStdinRead, guestStdoutWrite, err := os.Pipe()
	if err != nil {
		guestStdinRead.Close()
		interactorStdoutWrite.Close()
		return nil, err
	}

	cmd := exec.CommandContext(ctx, cfg.InteractorPath, cfg.InputPath, cfg.OutputPath)
	cmd.Stdin = interactorStdinRead
	cmd.Stdout = interactorStdoutWrite
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	return &interactorBridge{
		override: &guest.StdioOverride{Stdin: guestStdinRead, Stdout: guestStdoutWrite},
		cmd:      cmd,
		stderr:   stderr,
		closeAfterGuestStart: []*os.File{
			guestStdinRead, guestStdoutWrite,
		},
	}, nil
}

// start launches the interactor subprocess. Call only after the guest
// has been started, so both ends of both pipes are already open in at
// least one process.
func (b *interactorBridge) start() error {
	return b.cmd.Start()
}

// closeParentCopies closes the supervisor's copies of the pipe ends that
// were handed to the guest and interactor, so EOF propagates correctly
// once both children exit.
func (b *interactorBridge) closeParentCopies() {
	for _, f := range b.closeAfterGuestStart {
		f.Close()
	}
	b.cmd.Stdin.(*os.File).Close()
	b.cmd.Stdout.(*os.File).Close()
}

// message returns the bounded stderr capture from the interactor, used
// as the WrongAnswer explanation.
func (b *interactorBridge) message() string {
	s := b.stderr.String()
	if len(s) > maxInteractorMessage {
		s = s[:maxInteractorMessage]
	}
	return s
}

// failed reports whether the interactor exited with a non-zero status or
// was killed by a signal. Must be called after cmd.Wait() has returned.
func (b *interactorBridge) failed() bool {
	ps := b.cmd.ProcessState
	if ps == nil {
		return false
	}
	exitCode, signaled, _ := decodeProcessState(ps)
	return signaled || exitCode != 0
}

// Package errors provides predefined sentinel errors for common setup failures.
package errors

// Preflight errors, checked before any process is created.
var (
	// ErrNotRoot indicates the supervisor is not running as effective uid 0.
	ErrNotRoot = &SetupError{
		Kind:   ErrRootRequired,
		Detail: "sandbox supervisor must run as root",
	}

	// ErrBadConfig indicates the run configuration failed validation.
	ErrBadConfig = &SetupError{
		Kind:   ErrInvalidConfig,
		Detail: "invalid run configuration",
	}

	// ErrUnknownSeccompRule indicates an unrecognized seccomp rule name.
	ErrUnknownSeccompRule = &SetupError{
		Kind:   ErrInvalidConfig,
		Detail: "unknown seccomp rule name",
	}
)

// Fork/exec lifecycle errors.
var (
	// ErrFork indicates fork() failed in the supervisor.
	ErrFork = &SetupError{
		Kind:   ErrForkFailed,
		Detail: "failed to fork guest process",
	}

	// ErrWait indicates wait4() failed while reaping the guest.
	ErrWait = &SetupError{
		Kind:   ErrWaitFailed,
		Detail: "failed to wait for guest process",
	}

	// ErrExecve indicates the guest's image replacement failed.
	ErrExecve = &SetupError{
		Kind:   ErrExecveFailed,
		Detail: "failed to execve guest program",
	}
)

// Pre-exec initializer errors, observed by the parent via the child's exit
// code or the setup-error pipe.
var (
	// ErrRlimit indicates an rlimit could not be applied in the child.
	ErrRlimit = &SetupError{
		Kind:   ErrSetrlimitFailed,
		Detail: "failed to apply resource limit",
	}

	// ErrRedirect indicates stdio redirection failed in the child.
	ErrRedirect = &SetupError{
		Kind:   ErrDup2Failed,
		Detail: "failed to redirect standard file descriptors",
	}

	// ErrPrivilegeDrop indicates setgid/setuid failed in the child.
	ErrPrivilegeDrop = &SetupError{
		Kind:   ErrSetuidFailed,
		Detail: "failed to drop privileges",
	}

	// ErrSeccompInstall indicates the seccomp filter could not be installed.
	ErrSeccompInstall = &SetupError{
		Kind:   ErrLoadSeccompFailed,
		Detail: "failed to install seccomp filter",
	}
)

// Interactor (special judge) errors.
var (
	// ErrInteractorSpawn indicates the interactor subprocess could not be
	// started.
	ErrInteractorSpawn = &SetupError{
		Kind:   ErrSpjError,
		Detail: "failed to start interactor",
	}
)

// ErrUnknown is a catch-all for failures that do not fit a more specific
// kind; it is the terminal safety-net classification (e.g. an unrecognized
// signal from the child, or a failure reading the setup-error pipe).
var ErrUnknown = &SetupError{
	Kind:   ErrSystemError,
	Detail: "unclassified system error",
}

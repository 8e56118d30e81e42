package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected string
	}{
		{ErrRootRequired, "root required"},
		{ErrInvalidConfig, "invalid config"},
		{ErrForkFailed, "fork failed"},
		{ErrWaitFailed, "wait failed"},
		{ErrSetrlimitFailed, "setrlimit failed"},
		{ErrDup2Failed, "dup2 failed"},
		{ErrSetuidFailed, "setuid failed"},
		{ErrExecveFailed, "execve failed"},
		{ErrLoadSeccompFailed, "load seccomp failed"},
		{ErrSpjError, "spj error"},
		{ErrSystemError, "system error"},
		{ErrorKind(999), "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("ErrorKind.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorKind_ExitCodeRoundTrip(t *testing.T) {
	kinds := []ErrorKind{
		ErrRootRequired, ErrInvalidConfig, ErrForkFailed, ErrWaitFailed,
		ErrSetrlimitFailed, ErrDup2Failed, ErrSetuidFailed, ErrExecveFailed,
		ErrLoadSeccompFailed, ErrSpjError, ErrSystemError,
	}
	seen := map[int]bool{}
	for _, k := range kinds {
		code := k.ExitCode()
		if seen[code] {
			t.Errorf("exit code %d reused by more than one kind", code)
		}
		seen[code] = true

		got, ok := KindFromExitCode(code)
		if !ok {
			t.Fatalf("KindFromExitCode(%d) not found", code)
		}
		if got != k {
			t.Errorf("KindFromExitCode(%d) = %v, want %v", code, got, k)
		}
	}
}

func TestKindFromExitCode_Unknown(t *testing.T) {
	if _, ok := KindFromExitCode(1); ok {
		t.Error("KindFromExitCode(1) should not resolve to a setup error kind")
	}
}

func TestSetupError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SetupError
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "<nil>",
		},
		{
			name: "full error",
			err: &SetupError{
				Op:     "exec",
				Kind:   ErrExecveFailed,
				Detail: "exe_path not found",
				Err:    fmt.Errorf("no such file or directory"),
			},
			expected: "exec: exe_path not found: no such file or directory",
		},
		{
			name: "kind only",
			err: &SetupError{
				Kind: ErrRootRequired,
			},
			expected: "root required",
		},
		{
			name: "with underlying error",
			err: &SetupError{
				Op:   "fork",
				Kind: ErrForkFailed,
				Err:  fmt.Errorf("resource temporarily unavailable"),
			},
			expected: "fork: fork failed: resource temporarily unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("SetupError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSetupError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	err := &SetupError{
		Op:   "test",
		Kind: ErrSystemError,
		Err:  underlying,
	}

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	var nilErr *SetupError
	if got := nilErr.Unwrap(); got != nil {
		t.Errorf("nil.Unwrap() = %v, want nil", got)
	}
}

func TestSetupError_Is(t *testing.T) {
	err1 := &SetupError{Kind: ErrForkFailed, Op: "test1"}
	err2 := &SetupError{Kind: ErrForkFailed, Op: "test2"}
	err3 := &SetupError{Kind: ErrWaitFailed, Op: "test3"}

	if !err1.Is(err2) {
		t.Error("err1.Is(err2) should be true (same kind)")
	}
	if err1.Is(err3) {
		t.Error("err1.Is(err3) should be false (different kind)")
	}
	if err1.Is(fmt.Errorf("some error")) {
		t.Error("err1.Is(fmt.Errorf(...)) should be false")
	}

	var nilErr *SetupError
	if !nilErr.Is(nil) {
		t.Error("nil.Is(nil) should be true")
	}
}

func TestNew(t *testing.T) {
	err := New(ErrInvalidConfig, "validate", "max_stack must be >= 1")

	if err.Kind != ErrInvalidConfig {
		t.Errorf("Kind = %v, want %v", err.Kind, ErrInvalidConfig)
	}
	if err.Op != "validate" {
		t.Errorf("Op = %q, want %q", err.Op, "validate")
	}
	if err.Detail != "max_stack must be >= 1" {
		t.Errorf("Detail = %q, want %q", err.Detail, "max_stack must be >= 1")
	}
}

func TestWrap(t *testing.T) {
	underlying := fmt.Errorf("permission denied")
	err := Wrap(underlying, ErrSetuidFailed, "drop privileges")

	if err.Err != underlying {
		t.Error("Wrapped error should preserve underlying error")
	}
	if err.Kind != ErrSetuidFailed {
		t.Errorf("Kind = %v, want %v", err.Kind, ErrSetuidFailed)
	}
	if err.Op != "drop privileges" {
		t.Errorf("Op = %q, want %q", err.Op, "drop privileges")
	}
}

func TestWrapWithDetail(t *testing.T) {
	underlying := fmt.Errorf("syscall failed")
	err := WrapWithDetail(underlying, ErrLoadSeccompFailed, "install filter", "invalid architecture")

	if err.Detail != "invalid architecture" {
		t.Errorf("Detail = %q, want %q", err.Detail, "invalid architecture")
	}
}

func TestIsKind(t *testing.T) {
	err := &SetupError{Kind: ErrRootRequired}
	wrapped := fmt.Errorf("wrapped: %w", err)

	if !IsKind(err, ErrRootRequired) {
		t.Error("IsKind(err, ErrRootRequired) should be true")
	}
	if !IsKind(wrapped, ErrRootRequired) {
		t.Error("IsKind(wrapped, ErrRootRequired) should be true")
	}
	if IsKind(err, ErrWaitFailed) {
		t.Error("IsKind(err, ErrWaitFailed) should be false")
	}
	if IsKind(fmt.Errorf("plain error"), ErrRootRequired) {
		t.Error("IsKind(plain error, ErrRootRequired) should be false")
	}
}

func TestGetKind(t *testing.T) {
	err := &SetupError{Kind: ErrDup2Failed}
	wrapped := fmt.Errorf("wrapped: %w", err)

	kind, ok := GetKind(err)
	if !ok || kind != ErrDup2Failed {
		t.Errorf("GetKind(err) = (%v, %v), want (%v, true)", kind, ok, ErrDup2Failed)
	}

	kind, ok = GetKind(wrapped)
	if !ok || kind != ErrDup2Failed {
		t.Errorf("GetKind(wrapped) = (%v, %v), want (%v, true)", kind, ok, ErrDup2Failed)
	}

	_, ok = GetKind(fmt.Errorf("plain error"))
	if ok {
		t.Error("GetKind(plain error) should return false")
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *SetupError
		kind ErrorKind
	}{
		{"ErrNotRoot", ErrNotRoot, ErrRootRequired},
		{"ErrBadConfig", ErrBadConfig, ErrInvalidConfig},
		{"ErrUnknownSeccompRule", ErrUnknownSeccompRule, ErrInvalidConfig},
		{"ErrFork", ErrFork, ErrForkFailed},
		{"ErrWait", ErrWait, ErrWaitFailed},
		{"ErrExecve", ErrExecve, ErrExecveFailed},
		{"ErrRlimit", ErrRlimit, ErrSetrlimitFailed},
		{"ErrRedirect", ErrRedirect, ErrDup2Failed},
		{"ErrPrivilegeDrop", ErrPrivilegeDrop, ErrSetuidFailed},
		{"ErrSeccompInstall", ErrSeccompInstall, ErrLoadSeccompFailed},
		{"ErrInteractorSpawn", ErrInteractorSpawn, ErrSpjError},
		{"ErrUnknown", ErrUnknown, ErrSystemError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("%s.Kind = %v, want %v", tt.name, tt.err.Kind, tt.kind)
			}
			wrapped := Wrap(fmt.Errorf("underlying"), tt.kind, "test")
			if !errors.Is(wrapped, tt.err) {
				t.Errorf("errors.Is(wrapped, %s) should be true", tt.name)
			}
		})
	}
}

func TestErrorChain(t *testing.T) {
	underlying := fmt.Errorf("exe_path not found")
	err1 := Wrap(underlying, ErrExecveFailed, "exec guest")
	err2 := fmt.Errorf("run failed: %w", err1)

	if !errors.Is(err2, ErrExecve) {
		t.Error("errors.Is should find ErrExecve in chain")
	}

	var serr *SetupError
	if !errors.As(err2, &serr) {
		t.Error("errors.As should find SetupError in chain")
	}
	if serr.Op != "exec guest" {
		t.Errorf("serr.Op = %q, want %q", serr.Op, "exec guest")
	}

	if errors.Unwrap(err1) != underlying {
		t.Error("Unwrap should return underlying error")
	}
}

// Package config defines the sandbox run configuration and its validation
// rules.
package config

import (
	"fmt"

	jerrors "judger-go/errors"
)

// SeccompRuleName names one of the five fixed syscall-filter policies.
type SeccompRuleName string

// The five named policies understood by the seccomp package.
const (
	SeccompNone       SeccompRuleName = ""
	SeccompCCpp       SeccompRuleName = "c_cpp"
	SeccompCCppFileIO SeccompRuleName = "c_cpp_file_io"
	SeccompGolang     SeccompRuleName = "golang"
	SeccompNode       SeccompRuleName = "node"
	SeccompGeneral    SeccompRuleName = "general"
)

func (n SeccompRuleName) valid() bool {
	switch n {
	case SeccompNone, SeccompCCpp, SeccompCCppFileIO, SeccompGolang, SeccompNode, SeccompGeneral:
		return true
	default:
		return false
	}
}

// HookCommand describes a single before/after hook invocation.
type HookCommand struct {
	Path    string
	Args    []string
	Env     []string
	Timeout int // seconds, 0 = no timeout
}

// Config is the immutable description of a single sandboxed run.
type Config struct {
	MaxCPUTime       int64 // ms, -1 = unlimited
	MaxRealTime      int64 // ms, -1 = unlimited
	MaxMemory        int64 // bytes, -1 = unlimited
	MaxStack         int64 // bytes, must be >= 1
	MaxProcessNumber int64 // -1 = unlimited
	MaxOutputSize    int64 // bytes, -1 = unlimited

	ExePath string
	Args    []string
	Env     []string

	InputPath  string
	OutputPath string
	ErrorPath  string
	LogPath    string

	SeccompRuleName SeccompRuleName

	UID uint32
	GID uint32

	// InteractorPath enables the interactor protocol when non-empty.
	InteractorPath string

	// BeforeHooks and AfterHooks are supplemented run hooks (see hooks package).
	BeforeHooks []HookCommand
	AfterHooks  []HookCommand
}

// Default returns a Config with every numeric limit set to -1 (unlimited)
// and uid/gid set to the conventional "nobody" account (65534). This
// matches the CLI front-end's defaults except for MaxStack, which the CLI
// defaults to 16 MiB; Validate rejects a MaxStack below 1, so callers must
// set it. Library callers should start from Default() and tighten limits
// explicitly, rather than relying on the zero value, which would mean
// "impossible limit" for every numeric field.
func Default() Config {
	return Config{
		MaxCPUTime:       -1,
		MaxRealTime:      -1,
		MaxMemory:        -1,
		MaxStack:         -1,
		MaxProcessNumber: -1,
		MaxOutputSize:    -1,
		UID:              65534,
		GID:              65534,
	}
}

func validLimit(v int64) bool {
	return v == -1 || v >= 1
}

// Validate checks the invariants of §4.1: every positive-or--1 limit must
// be >= 1 or exactly -1; max_stack must be >= 1; exe_path must be set; and
// an explicit seccomp rule name must be one of the five known policies.
func Validate(cfg Config) error {
	if !validLimit(cfg.MaxCPUTime) {
		return jerrors.WrapWithDetail(nil, jerrors.ErrInvalidConfig, "validate", "max_cpu_time must be >= 1 or -1")
	}
	if !validLimit(cfg.MaxRealTime) {
		return jerrors.WrapWithDetail(nil, jerrors.ErrInvalidConfig, "validate", "max_real_time must be >= 1 or -1")
	}
	if !validLimit(cfg.MaxMemory) {
		return jerrors.WrapWithDetail(nil, jerrors.ErrInvalidConfig, "validate", "max_memory must be >= 1 or -1")
	}
	if !validLimit(cfg.MaxProcessNumber) {
		return jerrors.WrapWithDetail(nil, jerrors.ErrInvalidConfig, "validate", "max_process_number must be >= 1 or -1")
	}
	if !validLimit(cfg.MaxOutputSize) {
		return jerrors.WrapWithDetail(nil, jerrors.ErrInvalidConfig, "validate", "max_output_size must be >= 1 or -1")
	}
	if cfg.MaxStack < 1 {
		return jerrors.WrapWithDetail(nil, jerrors.ErrInvalidConfig, "validate", "max_stack must be >= 1")
	}
	if cfg.ExePath == "" {
		return jerrors.WrapWithDetail(nil, jerrors.ErrInvalidConfig, "validate", "exe_path must not be empty")
	}
	if !cfg.SeccompRuleName.valid() {
		return jerrors.WrapWithDetail(nil, jerrors.ErrInvalidConfig, "validate",
			fmt.Sprintf("unknown seccomp rule name %q", cfg.SeccompRuleName))
	}
	return nil
}

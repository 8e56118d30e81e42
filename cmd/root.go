// Package cmd implements the sandbox supervisor's CLI front-end.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"judger-go/config"
	"judger-go/logging"
	"judger-go/supervisor"
)

var (
	flagMaxCPUTime       int64
	flagMaxRealTime      int64
	flagMaxMemory        int64
	flagMaxStack         int64
	flagMaxProcessNumber int64
	flagMaxOutputSize    int64

	flagExePath string
	flagArgs    []string
	flagEnv     []string

	flagInputPath  string
	flagOutputPath string
	flagErrorPath  string
	flagLogPath    string

	flagSeccompRuleName string

	flagUID uint32
	flagGID uint32

	flagInteractorPath string
	flagBeforeHooks    []string
	flagAfterHooks     []string

	flagDebug bool
)

// rootCmd is the sandbox supervisor's single command: there is no
// subcommand tree, since a run only ever does one thing.
var rootCmd = &cobra.Command{
	Use:           "judger",
	Short:         "Run a single program under a resource-limited, syscall-filtered sandbox",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSupervisor,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns a context that cancels on SIGINT/SIGTERM.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func init() {
	f := rootCmd.Flags()

	f.Int64Var(&flagMaxCPUTime, "max-cpu-time", -1, "max CPU time in milliseconds, -1 for unlimited")
	f.Int64Var(&flagMaxRealTime, "max-real-time", -1, "max wall-clock time in milliseconds, -1 for unlimited")
	f.Int64Var(&flagMaxMemory, "max-memory", -1, "max resident memory in bytes, -1 for unlimited")
	f.Int64Var(&flagMaxStack, "max-stack", 16*1024*1024, "max stack size in bytes")
	f.Int64Var(&flagMaxProcessNumber, "max-process-number", -1, "max number of processes/threads, -1 for unlimited")
	f.Int64Var(&flagMaxOutputSize, "max-output-size", -1, "max output file size in bytes, -1 for unlimited")

	f.StringVar(&flagExePath, "exe-path", "", "path to the guest executable")
	f.StringArrayVar(&flagArgs, "args", nil, "guest argv entry (repeatable, in order)")
	f.StringArrayVar(&flagEnv, "env", nil, "guest environment entry KEY=VALUE (repeatable, in order)")

	f.StringVar(&flagInputPath, "input-path", "/dev/stdin", "path redirected to the guest's stdin")
	f.StringVar(&flagOutputPath, "output-path", "/dev/stdout", "path redirected to the guest's stdout")
	f.StringVar(&flagErrorPath, "error-path", "/dev/stderr", "path redirected to the guest's stderr")
	f.StringVar(&flagLogPath, "log-path", "judger.log", "path to the supervisor's log file")

	f.StringVar(&flagSeccompRuleName, "seccomp-rule-name", "", "named seccomp policy: c_cpp, c_cpp_file_io, golang, node, general")

	f.Uint32Var(&flagUID, "uid", 65534, "uid the guest runs as")
	f.Uint32Var(&flagGID, "gid", 65534, "gid the guest runs as")

	f.StringVar(&flagInteractorPath, "interactor-path", "", "path to an interactor binary, enabling interactor mode")
	f.StringArrayVar(&flagBeforeHooks, "before-hook", nil, "before-run hook command (repeatable, in order)")
	f.StringArrayVar(&flagAfterHooks, "after-hook", nil, "after-run hook command (repeatable, in order)")

	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "raise the logger's minimum level to Debug")
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	cfg := config.Config{
		MaxCPUTime:       flagMaxCPUTime,
		MaxRealTime:      flagMaxRealTime,
		MaxMemory:        flagMaxMemory,
		MaxStack:         flagMaxStack,
		MaxProcessNumber: flagMaxProcessNumber,
		MaxOutputSize:    flagMaxOutputSize,
		ExePath:          flagExePath,
		Args:             flagArgs,
		Env:              flagEnv,
		InputPath:        flagInputPath,
		OutputPath:       flagOutputPath,
		ErrorPath:        flagErrorPath,
		LogPath:          flagLogPath,
		SeccompRuleName:  config.SeccompRuleName(flagSeccompRuleName),
		UID:              flagUID,
		GID:              flagGID,
		InteractorPath:   flagInteractorPath,
		BeforeHooks:      parseHookCommands(flagBeforeHooks),
		AfterHooks:       parseHookCommands(flagAfterHooks),
	}

	logger, closeLog, err := logging.NewFileLogger(cfg.LogPath, flagDebug)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()

	run := supervisor.Run(GetContext(), cfg, logger)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}
	return nil
}

// parseHookCommands turns repeated "--before-hook=/path/to/cmd arg1 arg2"
// flag values into config.HookCommand values. A hook's args are
// whitespace-separated; hooks needing shell quoting should wrap
// themselves in a script instead.
func parseHookCommands(raw []string) []config.HookCommand {
	var out []config.HookCommand
	for _, r := range raw {
		fields := strings.Fields(r)
		if len(fields) == 0 {
			continue
		}
		var args []string
		if len(fields) > 1 {
			args = fields[1:]
		}
		out = append(out, config.HookCommand{
			Path: fields[0],
			Args: args,
		})
	}
	return out
}

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ggonzalez94/routerdeploy/internal/config"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/model"
	"github.com/ggonzalez94/routerdeploy/internal/out"
	"github.com/ggonzalez94/routerdeploy/internal/policy"
	"github.com/ggonzalez94/routerdeploy/internal/registry"
	"github.com/ggonzalez94/routerdeploy/internal/schema"
	"github.com/ggonzalez94/routerdeploy/internal/store"
	"github.com/ggonzalez94/routerdeploy/internal/version"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	logs   io.Writer
	now    func() time.Time
	// connect builds the contract factory for a deploy run. Tests swap it
	// for an in-memory factory.
	connect connectFn
	// dial opens the chain backend used by verify.
	dial dialFn
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout:  stdout,
		stderr:  stderr,
		logs:    stderr,
		now:     time.Now,
		connect: connectChain,
		dial:    dialChain,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	logger      *slog.Logger
	registry    *registry.Registry
	store       *store.Store
	root        *cobra.Command
	lastCommand string

	lastWarnings  []string
	lastPartial   bool
	lastNetworkID int64
	lastDetails   any
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, logger: slog.New(slog.DiscardHandler)}
	root := state.newRootCommand()
	state.root = root
	state.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if state.store != nil {
		_ = state.store.Close()
	}
	if err == nil {
		return 0
	}

	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Deploy Permit2 and the fee-charging UniversalRouter",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			s.lastCommand = trimRootPath(cmd.CommandPath())
			settings, err := config.Load(s.flags)
			if err != nil {
				if _, ok := clierr.As(err); ok {
					return err
				}
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.logger = newLogger(s.runner.logs, settings.LogLevel)
			if err := policy.CheckCommandAllowed(settings.EnableCommands, s.lastCommand); err != nil {
				return err
			}

			reg := registry.Builtin()
			for _, profile := range settings.Networks {
				if err := reg.Register(profile); err != nil {
					return err
				}
			}
			reg.Seal()
			s.registry = reg
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Overall deadline for a command (e.g. 15m)")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newNetworksCommand())
	cmd.AddCommand(s.newPlanCommand())
	cmd.AddCommand(s.newVerifyCommand())
	cmd.AddCommand(s.newDeployCommand())
	cmd.AddCommand(s.newDeploymentsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	var transacting bool
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if transacting {
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), schema.Transacting(s.root), nil, false)
			}
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, false)
		},
	}
	cmd.Flags().BoolVar(&transacting, "transacting", false, "List only commands that send transactions")
	return cmd
}

func (s *runtimeState) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.settings.Timeout)
}

func (s *runtimeState) ensureStore() error {
	if s.store != nil {
		return nil
	}
	st, err := store.Open(s.settings.StorePath, s.settings.StoreLockPath)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "open deployment store", err)
	}
	s.store = st
	return nil
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			NetworkID: s.lastNetworkID,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	message := err.Error()
	field := ""
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		field = cErr.Field
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    errorType(err),
			Message: message,
			Field:   field,
			Details: s.lastDetails,
		},
		Warnings: s.lastWarnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			NetworkID: s.lastNetworkID,
			Partial:   s.lastPartial,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func errorType(err error) string {
	cErr, ok := clierr.As(err)
	if !ok {
		return "internal_error"
	}
	switch cErr.Code {
	case clierr.CodeUsage:
		return "usage_error"
	case clierr.CodeSigner:
		return "signer_error"
	case clierr.CodeUnknownNetwork:
		return "unknown_network"
	case clierr.CodeConfig:
		return "config_error"
	case clierr.CodeDeploymentReverted:
		return "deployment_reverted"
	case clierr.CodeNetwork:
		return "network_error"
	case clierr.CodePartialDeployment:
		return "partial_deployment"
	case clierr.CodeTimeout:
		return "timeout"
	case clierr.CodeVerification:
		return "verification_failed"
	case clierr.CodeBlocked:
		return "command_blocked"
	default:
		return "internal_error"
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastPartial = false
	s.lastNetworkID = 0
	s.lastDetails = nil
}

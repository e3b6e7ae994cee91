package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	"github.com/ggonzalez94/agentkit-go/internal/cache"
	"github.com/ggonzalez94/agentkit-go/internal/config"
	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/logging"
	"github.com/ggonzalez94/agentkit-go/internal/model"
	"github.com/ggonzalez94/agentkit-go/internal/out"
	"github.com/ggonzalez94/agentkit-go/internal/policy"
	"github.com/ggonzalez94/agentkit-go/internal/version"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

// WalletFactory builds the wallet provider described by settings.
type WalletFactory func(ctx context.Context, settings config.Settings, logger logrus.FieldLogger) (wallet.Provider, error)

type Runner struct {
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	now       func() time.Time
	newWallet WalletFactory
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdin:     os.Stdin,
		stdout:    stdout,
		stderr:    stderr,
		now:       time.Now,
		newWallet: newWallet,
	}
}

func (r *Runner) WithWalletFactory(f WalletFactory) *Runner {
	r.newWallet = f
	return r
}

func (r *Runner) WithStdin(in io.Reader) *Runner {
	r.stdin = in
	return r
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string

	logger    *logrus.Logger
	logCloser io.Closer
	cache     *cache.Store
	journal   *execution.Store
	tracker   *entryTracker

	kit       *actions.AgentKit
	providers []actions.ActionProvider
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.ExecuteContext(context.Background())
	err = normalizeRunError(err)
	if err != nil {
		if state.logger != nil {
			state.logger.WithField("command", state.lastCommand).WithError(err).Debug("command failed")
		}
		state.renderError("", err)
	}
	state.close()
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
	if s.logCloser != nil {
		_ = s.logCloser.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Wallet-backed onchain actions for AI agents",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			if s.logger == nil {
				logger, closer, err := logging.New(logging.Config{Level: settings.LogLevel, Format: settings.LogFormat, OutputPath: settings.LogPath})
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
				}
				s.logger, s.logCloser = logger, closer
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
			}
			if shouldOpenJournal(path) && s.journal == nil {
				store, err := execution.OpenStore(settings.JournalPath, settings.JournalLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open journal", err)
				}
				s.journal = store
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	flags := cmd.PersistentFlags()
	flags.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	flags.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	flags.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	flags.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	flags.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	flags.StringVar(&s.flags.EnableActions, "enable-actions", "", "Allowlist actions: full names, bare names or Prefix_* (comma-separated)")
	flags.StringVar(&s.flags.Providers, "providers", "", "Action providers to enable (comma-separated)")
	flags.StringVar(&s.flags.Timeout, "timeout", "", "HTTP request timeout")
	flags.IntVar(&s.flags.Retries, "retries", -1, "Retries per HTTP request")
	flags.BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	flags.StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	flags.StringVar(&s.flags.Network, "network", "", "Wallet network id (e.g. base-sepolia, solana-devnet)")
	flags.StringVar(&s.flags.RPCURL, "rpc-url", "", "RPC endpoint override")
	flags.StringVar(&s.flags.Wallet, "wallet", "", "Wallet provider: evm|smart|solana")
	flags.StringVar(&s.flags.KeySource, "key-source", "", "Signing key source: auto|env|file|keystore")
	flags.StringVar(&s.flags.PrivateKey, "private-key", "", "Hex private key (overrides key sources)")
	flags.StringVar(&s.flags.SmartAccount, "smart-account", "", "Smart account address for --wallet smart")
	flags.StringVar(&s.flags.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	flags.StringVar(&s.flags.LogFormat, "log-format", "", "Log format: text|json")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newWalletCommand())
	cmd.AddCommand(s.newToolsCommand())
	cmd.AddCommand(s.newMCPCommand())
	cmd.AddCommand(s.newJournalCommand())
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

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta:     s.meta(commandPath),
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) meta(commandPath string) model.EnvelopeMeta {
	m := model.EnvelopeMeta{
		RequestID: newRequestID(),
		Timestamp: s.runner.now().UTC(),
		Command:   commandPath,
	}
	if s.kit != nil {
		m.Network = s.kit.Wallet().Network().NetworkID
		m.Wallet = s.kit.Wallet().Address()
	}
	return m
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		typ = cErr.Code.Type()
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
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
			Type:    typ,
			Message: message,
		},
		Meta: s.meta(commandPath),
	}
	_ = out.Render(s.runner.stderr, env, settings)
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

// shouldOpenCache reports whether a command can reach providers that cache
// lookups.
func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "actions invoke", "mcp serve":
		return true
	default:
		return false
	}
}

func shouldOpenJournal(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "actions invoke", "mcp serve", "journal list", "journal get":
		return true
	default:
		return false
	}
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

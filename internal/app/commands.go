package app

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	mcpadapter "github.com/ggonzalez94/agentkit-go/internal/adapters/mcp"
	"github.com/ggonzalez94/agentkit-go/internal/adapters/openai"
	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/model"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/schema"
	"github.com/ggonzalez94/agentkit-go/internal/units"
	"github.com/ggonzalez94/agentkit-go/internal/version"
)

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Inspect and invoke wallet actions"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the actions available for the configured wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kit, err := s.agentKit(cmd.Context())
			if err != nil {
				return err
			}
			items := make([]model.ActionInfo, 0, len(kit.Actions()))
			for _, a := range kit.Actions() {
				raw, err := json.Marshal(a.Schema)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "encode action schema", err)
				}
				items = append(items, model.ActionInfo{Name: a.Name, Provider: kit.ProviderOf(a.Name), Description: a.Description, Schema: raw})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}

	var argsJSON, argsFile string
	invoke := &cobra.Command{
		Use:   "invoke <action>",
		Short: "Invoke an action with JSON arguments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readArgs(argsJSON, argsFile)
			if err != nil {
				return err
			}
			kit, err := s.agentKit(cmd.Context())
			if err != nil {
				return err
			}
			result, err := kit.Invoke(cmd.Context(), args[0], raw)
			if err != nil {
				return err
			}
			var warnings []string
			if strings.HasPrefix(result, "Error") {
				warnings = append(warnings, "action reported a failure, see result")
			}
			data := model.InvokeResult{Action: args[0], Result: result, EntryID: s.tracker.lastEntryID()}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, warnings)
		},
	}
	invoke.Flags().StringVar(&argsJSON, "args", "", "Action arguments as a JSON object")
	invoke.Flags().StringVar(&argsFile, "args-file", "", "Read action arguments from a JSON file")

	root.AddCommand(list)
	root.AddCommand(invoke)
	return root
}

func readArgs(argsJSON, argsFile string) (json.RawMessage, error) {
	if argsJSON != "" && argsFile != "" {
		return nil, clierr.New(clierr.CodeUsage, "use either --args or --args-file")
	}
	if argsFile != "" {
		buf, err := os.ReadFile(argsFile)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "read --args-file", err)
		}
		argsJSON = string(buf)
	}
	if strings.TrimSpace(argsJSON) == "" {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid([]byte(argsJSON)) {
		return nil, clierr.New(clierr.CodeUsage, "action arguments must be valid JSON")
	}
	return json.RawMessage(argsJSON), nil
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Action provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List configured action providers and whether they serve the wallet network",
		RunE: func(cmd *cobra.Command, args []string) error {
			kit, err := s.agentKit(cmd.Context())
			if err != nil {
				return err
			}
			byProvider := map[string][]string{}
			for _, a := range kit.Actions() {
				p := kit.ProviderOf(a.Name)
				byProvider[p] = append(byProvider[p], a.Name)
			}
			n := kit.Wallet().Network()
			items := make([]model.ProviderInfo, 0, len(s.providers))
			for _, p := range s.providers {
				items = append(items, model.ProviderInfo{
					Name:      p.Name(),
					Prefix:    p.Prefix(),
					Supported: p.SupportsNetwork(n),
					Actions:   byProvider[p.Name()],
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil)
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) newWalletCommand() *cobra.Command {
	root := &cobra.Command{Use: "wallet", Short: "Wallet commands"}
	details := &cobra.Command{
		Use:   "details",
		Short: "Show the wallet provider, address, network and native balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			kit, err := s.agentKit(cmd.Context())
			if err != nil {
				return err
			}
			w := kit.Wallet()
			balance, err := w.Balance(cmd.Context())
			if err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "read wallet balance", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), walletDetails(w.Name(), w.Address(), w.Network(), balance), nil)
		},
	}
	root.AddCommand(details)
	return root
}

func walletDetails(name, address string, n network.Network, balance *big.Int) model.WalletDetails {
	decimals := 18
	if n.IsSVM() {
		decimals = 9
	}
	if info, ok := network.Lookup(n.NetworkID); ok {
		decimals = info.NativeDecimals
	}
	return model.WalletDetails{
		Provider: name,
		Address:  address,
		Network: model.NetworkInfo{
			ProtocolFamily: n.ProtocolFamily,
			NetworkID:      n.NetworkID,
			ChainID:        n.ChainID,
			CAIP2:          n.CAIP2(),
		},
		NativeSymbol:  network.NativeSymbol(n),
		Balance:       units.FormatUnits(balance, decimals),
		BalanceAtomic: balance.String(),
	}
}

func (s *runtimeState) newToolsCommand() *cobra.Command {
	root := &cobra.Command{Use: "tools", Short: "Framework tool definitions"}
	var format string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export the action catalog as OpenAI function tools or MCP tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			kit, err := s.agentKit(cmd.Context())
			if err != nil {
				return err
			}
			var data any
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "", "openai":
				data, err = openai.Tools(kit)
			case "mcp":
				data, err = mcpadapter.Tools(kit)
			default:
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported tools format %q (expected openai|mcp)", format))
			}
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "export tools", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	export.Flags().StringVar(&format, "format", "openai", "Tool format: openai|mcp")
	root.AddCommand(export)
	return root
}

func (s *runtimeState) newMCPCommand() *cobra.Command {
	root := &cobra.Command{Use: "mcp", Short: "Model Context Protocol server"}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the action catalog as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			kit, err := s.agentKit(ctx)
			if err != nil {
				return err
			}
			srv, err := mcpadapter.NewServer(kit, version.CLIVersion, s.logger)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "build mcp server", err)
			}
			s.logger.WithField("tools", len(kit.Actions())).Info("serving mcp over stdio")
			if err := mcpadapter.Serve(ctx, srv, s.runner.stdin, s.runner.stdout, s.logger); err != nil && ctx.Err() == nil {
				return clierr.Wrap(clierr.CodeInternal, "serve mcp", err)
			}
			return nil
		},
	}
	root.AddCommand(serve)
	return root
}

func (s *runtimeState) newJournalCommand() *cobra.Command {
	root := &cobra.Command{Use: "journal", Short: "Action invocation journal"}

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent action invocations",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch execution.EntryStatus(status) {
			case "", execution.EntryStatusRunning, execution.EntryStatusCompleted, execution.EntryStatusFailed:
			default:
				return clierr.New(clierr.CodeUsage, "--status must be running|completed|failed")
			}
			entries, err := s.journal.List(status, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list journal", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), entries, nil)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status: running|completed|failed")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum entries to return")

	get := &cobra.Command{
		Use:   "get <entry-id>",
		Short: "Show one journal entry with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := s.journal.Get(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), entry, nil)
		},
	}

	root.AddCommand(list)
	root.AddCommand(get)
	return root
}

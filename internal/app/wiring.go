package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	"github.com/ggonzalez94/agentkit-go/internal/actions/erc20actions"
	"github.com/ggonzalez94/agentkit-go/internal/actions/onramp"
	"github.com/ggonzalez94/agentkit-go/internal/actions/pyth"
	"github.com/ggonzalez94/agentkit-go/internal/actions/swapactions"
	"github.com/ggonzalez94/agentkit-go/internal/actions/weth"
	"github.com/ggonzalez94/agentkit-go/internal/actions/x402"
	"github.com/ggonzalez94/agentkit-go/internal/config"
	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/httpx"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/swap"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

// newWallet builds the configured wallet provider. EVM and smart wallets
// dial their RPC endpoint and verify the chain id.
func newWallet(ctx context.Context, settings config.Settings, logger logrus.FieldLogger) (wallet.Provider, error) {
	info, err := network.Parse(settings.NetworkID)
	if err != nil {
		return nil, err
	}

	if settings.WalletType == config.WalletSolana {
		if !info.IsSVM() {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("solana wallet requires a solana network, got %s", info.NetworkID))
		}
		if strings.TrimSpace(settings.SolanaKey) == "" {
			return nil, clierr.New(clierr.CodeSigner, "solana wallet requires AGENTKIT_SOLANA_PRIVATE_KEY")
		}
		return wallet.NewSolanaWallet(settings.SolanaKey, wallet.SolanaConfig{
			Network:        info.Network,
			RPCURL:         settings.RPCURL,
			PollInterval:   settings.PollInterval,
			ReceiptTimeout: settings.ReceiptTimeout,
			Logger:         logger,
		})
	}

	if !info.IsEVM() {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s wallet requires an EVM network, got %s", settings.WalletType, info.NetworkID))
	}
	key, err := wallet.LoadKey(settings.KeySource, settings.PrivateKey)
	if err != nil {
		return nil, err
	}
	evm, err := wallet.NewEvmWallet(ctx, key, wallet.EvmConfig{
		Network:        info.Network,
		RPCURL:         settings.RPCURL,
		GasMultiplier:  settings.GasMultiplier,
		FeeMultiplier:  settings.FeeMultiplier,
		PollInterval:   settings.PollInterval,
		ReceiptTimeout: settings.ReceiptTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	if settings.WalletType == config.WalletSmart {
		return wallet.NewSmartWallet(evm, settings.SmartAccount)
	}
	return evm, nil
}

// buildProviders instantiates the configured action providers in order.
// The wallet provider is always registered by the kit itself.
func (s *runtimeState) buildProviders() ([]actions.ActionProvider, error) {
	httpClient := httpx.New(s.settings.Timeout, s.settings.Retries)
	out := make([]actions.ActionProvider, 0, len(s.settings.Providers))
	for _, name := range s.settings.Providers {
		switch name {
		case "wallet":
			continue
		case "erc20":
			out = append(out, erc20actions.New())
		case "weth":
			out = append(out, weth.New())
		case "pyth":
			out = append(out, pyth.New(httpClient, s.settings.PythURL, s.cache))
		case "x402":
			out = append(out, x402.New(httpClient))
		case "onramp":
			p, err := onramp.New(s.settings.OnrampProjectID)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case "swap", "cdp_evm_wallet":
			quoter := swap.NewHTTPQuoter(httpClient, s.settings.SwapAPIURL, s.settings.SwapAPIKey)
			out = append(out, swapactions.New(quoter, swap.WithLogger(s.logger)))
		default:
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown action provider %q (expected wallet|erc20|weth|pyth|x402|swap|onramp)", name))
		}
	}
	return out, nil
}

// agentKit builds the wallet, providers and catalog on first use.
func (s *runtimeState) agentKit(ctx context.Context) (*actions.AgentKit, error) {
	if s.kit != nil {
		return s.kit, nil
	}
	w, err := s.runner.newWallet(ctx, s.settings, s.logger)
	if err != nil {
		return nil, err
	}
	providers, err := s.buildProviders()
	if err != nil {
		return nil, err
	}
	cfg := actions.Config{
		Wallet:    w,
		Providers: providers,
		Logger:    s.logger,
		Allow:     s.settings.EnableActions,
	}
	if s.journal != nil {
		s.tracker = &entryTracker{saver: s.journal}
		cfg.Journal = s.tracker
	}
	kit, err := actions.New(cfg)
	if err != nil {
		return nil, err
	}
	s.kit, s.providers = kit, append([]actions.ActionProvider{actions.NewWalletActionProvider()}, providers...)
	return kit, nil
}

// entryTracker forwards journal writes and remembers the last entry id so the
// CLI can report it next to the action result.
type entryTracker struct {
	saver execution.Saver

	mu   sync.Mutex
	last string
}

func (t *entryTracker) Save(e execution.Entry) error {
	t.mu.Lock()
	t.last = e.EntryID
	t.mu.Unlock()
	return t.saver.Save(e)
}

func (t *entryTracker) lastEntryID() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Package weth wraps and unwraps the canonical WETH contract.
package weth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/erc20"
	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/units"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

const decimals = 18

var supportedNetworks = map[string]bool{
	"base-mainnet":     true,
	"base-sepolia":     true,
	"ethereum-mainnet": true,
	"arbitrum-mainnet": true,
	"optimism-mainnet": true,
}

type Provider struct{}

func New() *Provider { return &Provider{} }

func (*Provider) Name() string { return "weth" }

func (*Provider) Prefix() string { return "WethActionProvider" }

func (*Provider) SupportsNetwork(n network.Network) bool {
	return n.IsEVM() && supportedNetworks[n.NetworkID]
}

func Address(n network.Network) (string, error) {
	if !supportedNetworks[n.NetworkID] {
		return "", clierr.New(clierr.CodeUnsupported, fmt.Sprintf("WETH is not supported on network %s", n))
	}
	token, ok := network.KnownToken(n.NetworkID, "WETH")
	if !ok {
		return "", clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no WETH address registered for %s", n))
	}
	return token.Address, nil
}

func amountProperty(desc string) *actions.Property {
	return &actions.Property{Type: "string", Description: desc, Validate: validateAmount}
}

func validateAmount(v any) error {
	d, err := actions.ParseDecimal(v)
	if err != nil {
		return errors.New("Amount must be a valid number")
	}
	if !d.IsPositive() {
		return errors.New("Amount must be greater than 0")
	}
	return nil
}

func (p *Provider) Actions(wallet.Provider) []actions.Action {
	return []actions.Action{
		{
			Name: "wrap_eth",
			Description: `This tool can only be used to wrap ETH to WETH.
Do not use this tool for any other purpose, or trading other assets.

Inputs:
- Amount of ETH to wrap in whole units (e.g. 0.1)`,
			Schema: &actions.Schema{
				Properties: map[string]*actions.Property{"amount_to_wrap": amountProperty("Amount of ETH to wrap in whole units")},
				Required:   []string{"amount_to_wrap"},
			},
			Invoke: p.wrap,
		},
		{
			Name: "unwrap_eth",
			Description: `This tool can only be used to unwrap WETH to ETH.
Do not use this tool for any other purpose, or trading other assets.

Inputs:
- Amount of WETH to unwrap in whole units (e.g. 0.1)`,
			Schema: &actions.Schema{
				Properties: map[string]*actions.Property{"amount_to_unwrap": amountProperty("Amount of WETH to unwrap in whole units")},
				Required:   []string{"amount_to_unwrap"},
			},
			Invoke: p.unwrap,
		},
	}
}

func (p *Provider) wrap(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	var args struct {
		Amount string `json:"amount_to_wrap"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	evm, err := actions.EVMWallet(w)
	if err != nil {
		return "", err
	}
	contract, err := Address(evm.Network())
	if err != nil {
		return fmt.Sprintf("Error wrapping ETH: %v", err), nil
	}
	wei, err := units.ToAtomic(args.Amount, decimals)
	if err != nil {
		return fmt.Sprintf("Error wrapping ETH: %v", err), nil
	}

	balance, err := evm.Balance(ctx)
	if err != nil {
		return fmt.Sprintf("Error wrapping ETH: %v", err), nil
	}
	if balance.Cmp(wei) < 0 {
		return fmt.Sprintf("Error: Insufficient ETH balance. Requested to wrap %s ETH, but only %s ETH is available.",
			args.Amount, units.FormatUnits(balance, decimals)), nil
	}

	data, err := erc20.WETHABI.Pack("deposit")
	if err != nil {
		return fmt.Sprintf("Error wrapping ETH: %v", err), nil
	}
	hash, err := actions.SendAndWait(ctx, evm, execution.StepTypeWrap, wallet.EvmTx{To: contract, Data: data, Value: wei})
	if err != nil {
		return fmt.Sprintf("Error wrapping ETH: %v", err), nil
	}
	return fmt.Sprintf("Wrapped %s ETH to WETH. Transaction hash: %s", args.Amount, hash), nil
}

func (p *Provider) unwrap(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	var args struct {
		Amount string `json:"amount_to_unwrap"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	evm, err := actions.EVMWallet(w)
	if err != nil {
		return "", err
	}
	contract, err := Address(evm.Network())
	if err != nil {
		return fmt.Sprintf("Error unwrapping WETH: %v", err), nil
	}
	wei, err := units.ToAtomic(args.Amount, decimals)
	if err != nil {
		return fmt.Sprintf("Error unwrapping WETH: %v", err), nil
	}

	details, err := erc20.GetTokenDetails(ctx, evm, contract, "")
	if err != nil {
		return fmt.Sprintf("Error unwrapping WETH: %v", err), nil
	}
	balance := big.NewInt(0)
	if details != nil && details.Balance != nil {
		balance = details.Balance
	}
	if balance.Cmp(wei) < 0 {
		return fmt.Sprintf("Error: Insufficient WETH balance. Requested to unwrap %s WETH, but only %s WETH is available.",
			args.Amount, units.FormatUnits(balance, decimals)), nil
	}

	data, err := erc20.WETHABI.Pack("withdraw", wei)
	if err != nil {
		return fmt.Sprintf("Error unwrapping WETH: %v", err), nil
	}
	hash, err := actions.SendAndWait(ctx, evm, execution.StepTypeWrap, wallet.EvmTx{To: contract, Data: data})
	if err != nil {
		return fmt.Sprintf("Error unwrapping WETH: %v", err), nil
	}
	return fmt.Sprintf("Unwrapped %s WETH to ETH. Transaction hash: %s", args.Amount, hash), nil
}

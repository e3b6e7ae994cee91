package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/units"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

// WalletActionProvider exposes the wallet's own capabilities. It is part of
// every catalog and supports every network.
type WalletActionProvider struct{}

func NewWalletActionProvider() *WalletActionProvider { return &WalletActionProvider{} }

func (*WalletActionProvider) Name() string { return "wallet" }

func (*WalletActionProvider) Prefix() string { return "WalletActionProvider" }

func (*WalletActionProvider) SupportsNetwork(network.Network) bool { return true }

func (p *WalletActionProvider) Actions(w wallet.Provider) []Action {
	return []Action{
		{
			Name: "get_wallet_details",
			Description: `This tool will return the details of the connected wallet including:
- Wallet address
- Network information (protocol family, network ID, chain ID)
- Native token balance
- Wallet provider name`,
			Schema: &Schema{},
			Invoke: p.getWalletDetails,
		},
		{
			Name:        "get_balance",
			Description: "This tool will get the native currency balance of the connected wallet.",
			Schema:      &Schema{},
			Invoke:      p.getBalance,
		},
		{
			Name: "native_transfer",
			Description: `This tool will transfer native tokens from the wallet to another onchain address.

It takes the following inputs:
- to: The destination address to receive the funds
- value: The amount to transfer in whole units (e.g. 1.5 for 1.5 ETH)

Important notes:
- Ensure sufficient balance of the input asset before transferring
- Ensure there is sufficient native token balance for gas fees`,
			Schema: &Schema{
				Properties: map[string]*Property{
					"to":    {Type: "string", Description: "The destination address to receive the funds", Validate: addressFor(w)},
					"value": {Type: "string", Description: "The amount to transfer in whole units e.g. 1 ETH or 0.00001 ETH", Validate: transferValue},
				},
				Required: []string{"to", "value"},
			},
			Invoke: p.nativeTransfer,
		},
	}
}

func addressFor(w wallet.Provider) func(any) error {
	if w != nil && w.Network().IsSVM() {
		return SolanaAddress
	}
	return EVMAddress
}

func transferValue(v any) error {
	d, err := ParseDecimal(v)
	if err != nil {
		return errors.New("Invalid decimal format. Must be a positive number.")
	}
	if !d.IsPositive() {
		return errors.New("Failed to parse decimal value")
	}
	return nil
}

func nativeDecimals(n network.Network) int {
	if info, ok := network.Lookup(n.NetworkID); ok {
		return info.NativeDecimals
	}
	if n.IsSVM() {
		return 9
	}
	return 18
}

func atomicUnitName(n network.Network) string {
	if n.IsSVM() {
		return "lamports"
	}
	return "WEI"
}

func orNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}

func (p *WalletActionProvider) getWalletDetails(ctx context.Context, w wallet.Provider, _ json.RawMessage) (string, error) {
	n := w.Network()
	balance, err := w.Balance(ctx)
	if err != nil {
		return fmt.Sprintf("Error getting wallet details: %v", err), nil
	}
	return fmt.Sprintf(`Wallet Details:
- Provider: %s
- Address: %s
- Network:
  * Protocol Family: %s
  * Network ID: %s
  * Chain ID: %s
- Native Balance: %s %s (%s %s)`,
		w.Name(), w.Address(), n.ProtocolFamily, orNA(n.NetworkID), orNA(n.ChainID),
		balance.String(), atomicUnitName(n), units.FormatUnits(balance, nativeDecimals(n)), network.NativeSymbol(n),
	), nil
}

func (p *WalletActionProvider) getBalance(ctx context.Context, w wallet.Provider, _ json.RawMessage) (string, error) {
	balance, err := w.Balance(ctx)
	if err != nil {
		return fmt.Sprintf("Error getting balance: %v", err), nil
	}
	return fmt.Sprintf("Native balance at address %s: %s", w.Address(), balance.String()), nil
}

type nativeTransferArgs struct {
	To    string `json:"to"`
	Value string `json:"value"`
}

func (p *WalletActionProvider) nativeTransfer(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	var args nativeTransferArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	value, err := ParseDecimal(args.Value)
	if err != nil {
		return fmt.Sprintf("Error during native transfer: %v", err), nil
	}
	rec := execution.RecorderFrom(ctx)
	rec.Step(execution.Step{Type: execution.StepTypeTransfer, Status: execution.StepStatusPending, Detail: args.Value + " to " + args.To})

	hash, err := w.NativeTransfer(ctx, args.To, value)
	if err != nil {
		rec.Step(execution.Step{Type: execution.StepTypeTransfer, Status: execution.StepStatusFailed, Error: err.Error()})
		return fmt.Sprintf("Error during native transfer: %v", err), nil
	}
	rec.Step(execution.Step{Type: execution.StepTypeTransfer, Status: execution.StepStatusSubmitted, TxHash: hash})

	receipt, err := w.WaitForTransactionReceipt(ctx, hash)
	if err != nil {
		rec.Step(execution.Step{Type: execution.StepTypeTransfer, Status: execution.StepStatusFailed, Error: err.Error()})
		return fmt.Sprintf("Error during native transfer: %v", err), nil
	}
	if !receipt.Succeeded() {
		rec.Step(execution.Step{Type: execution.StepTypeTransfer, Status: execution.StepStatusFailed, Error: "transaction reverted"})
		return fmt.Sprintf("Error during native transfer: transaction %s reverted", hash), nil
	}
	rec.Step(execution.Step{Type: execution.StepTypeTransfer, Status: execution.StepStatusConfirmed})

	symbol := network.NativeSymbol(w.Network())
	return fmt.Sprintf("Transferred %s %s to %s.\nTransaction hash: %s", args.Value, symbol, args.To, hash), nil
}

// Package swapactions exposes the swap engine as the swap and
// get_swap_price actions.
package swapactions

import (
	"context"
	"encoding/json"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/swap"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

type Provider struct {
	engine *swap.Engine
}

// New builds the provider around an engine for q. Engine transitions are
// recorded as journal steps of the invocation that triggered them.
func New(q swap.Quoter, opts ...swap.Option) *Provider {
	opts = append(opts, swap.WithObserver(swap.ObserverFunc(recordTransition)))
	return &Provider{engine: swap.NewEngine(q, opts...)}
}

func (*Provider) Name() string { return "cdp_evm_wallet" }

func (*Provider) Prefix() string { return "CdpEvmWalletActionProvider" }

// SupportsNetwork accepts every EVM network; the engine reports networks the
// swap venue does not serve.
func (*Provider) SupportsNetwork(n network.Network) bool { return n.IsEVM() }

func swapSchema() *actions.Schema {
	return &actions.Schema{
		Properties: map[string]*actions.Property{
			"from_token":   {Type: "string", Description: "The token contract address to swap from. Use 0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE for the native asset", Validate: actions.EVMAddress},
			"to_token":     {Type: "string", Description: "The token contract address to swap to. Use 0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE for the native asset", Validate: actions.EVMAddress},
			"from_amount":  {Type: "string", Description: "The amount of from_token to swap in whole units (e.g. 1.5 WETH, 10.5 USDC)", Validate: actions.PositiveDecimal},
			"slippage_bps": {Type: "integer", Description: "Maximum slippage in basis points (100 = 1%)", Default: swap.DefaultSlippageBps, Minimum: actions.Float(0), Maximum: actions.Float(10000)},
		},
		Required: []string{"from_token", "to_token", "from_amount"},
	}
}

func (p *Provider) Actions(wallet.Provider) []actions.Action {
	return []actions.Action{
		{
			Name: "get_swap_price",
			Description: `This tool fetches a price quote for swapping between two tokens using the CDP Swap API (does not execute swap).

It takes the following inputs:
- from_token: The contract address of the token to sell
- to_token: The contract address of the token to buy
- from_amount: The amount of from_token to swap in whole units (e.g. 1 ETH or 10.5 USDC)
- slippage_bps: (Optional) Maximum allowed slippage in basis points (100 = 1%)

Important notes:
- The contract address for native ETH is "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
- Use from_amount units exactly as provided, do not convert to wei or any other units
- Never assume token or addresses, they have to be provided as inputs. If only token symbol is provided, ask the user for the token address`,
			Schema: swapSchema(),
			Invoke: p.getSwapPrice,
		},
		{
			Name: "swap",
			Description: `This tool executes a token swap using the CDP Swap API.

It takes the following inputs:
- from_token: The contract address of the token to sell
- to_token: The contract address of the token to buy
- from_amount: The amount of from_token to swap in whole units (e.g. 1 ETH or 10.5 USDC)
- slippage_bps: (Optional) Maximum allowed slippage in basis points (100 = 1%)

Important notes:
- The contract address for native ETH is "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
- If needed, it will automatically approve the permit2 contract to spend the from_token
- Use from_amount units exactly as provided, do not convert to wei or any other units
- Never assume token or addresses, they have to be provided as inputs. If only token symbol is provided, ask the user for the token address`,
			Schema: swapSchema(),
			Invoke: p.swap,
		},
	}
}

type swapArgs struct {
	FromToken   string `json:"from_token"`
	ToToken     string `json:"to_token"`
	FromAmount  string `json:"from_amount"`
	SlippageBps *int   `json:"slippage_bps"`
}

func (a swapArgs) request() swap.Request {
	slippage := swap.DefaultSlippageBps
	if a.SlippageBps != nil {
		slippage = *a.SlippageBps
	}
	return swap.Request{FromToken: a.FromToken, ToToken: a.ToToken, FromAmount: a.FromAmount, SlippageBps: slippage}
}

func render(v any) (string, error) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func decode(w wallet.Provider, raw json.RawMessage) (wallet.EvmProvider, swap.Request, error) {
	var args swapArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, swap.Request{}, err
	}
	evm, err := actions.EVMWallet(w)
	return evm, args.request(), err
}

func (p *Provider) swap(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	evm, req, err := decode(w, raw)
	if err != nil {
		return "", err
	}
	return render(p.engine.Swap(ctx, evm, req))
}

func (p *Provider) getSwapPrice(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	evm, req, err := decode(w, raw)
	if err != nil {
		return "", err
	}
	return render(p.engine.Price(ctx, evm, req))
}

// recordTransition maps engine states onto journal steps.
func recordTransition(ctx context.Context, t swap.Transition) {
	rec := execution.RecorderFrom(ctx)
	if rec == nil {
		return
	}
	step := execution.Step{State: string(t.State), TxHash: t.TxHash}
	switch t.State {
	case swap.StateQuoting:
		step.Type, step.Status = execution.StepTypeQuote, execution.StepStatusPending
	case swap.StateValidating:
		step.Type, step.Status = execution.StepTypeQuote, execution.StepStatusConfirmed
	case swap.StateNeedsApproval:
		step.Type, step.Status = execution.StepTypeApproval, execution.StepStatusPending
	case swap.StateApproving:
		step.Type, step.Status = execution.StepTypeApproval, execution.StepStatusSubmitted
	case swap.StateApproved:
		step.Type, step.Status = execution.StepTypeApproval, execution.StepStatusConfirmed
	case swap.StateExecuting:
		step.Type, step.Status = execution.StepTypeSwap, execution.StepStatusPending
	case swap.StateConfirming:
		step.Type, step.Status = execution.StepTypeSwap, execution.StepStatusSubmitted
	case swap.StateSucceeded:
		step.Type, step.Status = execution.StepTypeSwap, execution.StepStatusConfirmed
	case swap.StateFailed:
		step.Type, step.Status, step.Error = failedStepType(t.Kind), execution.StepStatusFailed, t.Error
	default:
		return
	}
	rec.Step(step)
}

func failedStepType(kind swap.FailureKind) execution.StepType {
	switch kind {
	case swap.KindApproval:
		return execution.StepTypeApproval
	case swap.KindExecution, swap.KindRevert:
		return execution.StepTypeSwap
	default:
		return execution.StepTypeQuote
	}
}

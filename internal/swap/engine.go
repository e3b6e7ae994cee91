// Package swap implements the token swap workflow: quote, validation,
// optional approval, execution and confirmation.
package swap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/agentkit-go/internal/erc20"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/units"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

var SupportedNetworks = []string{"base-mainnet", "ethereum-mainnet"}

func SupportsNetwork(n network.Network) bool {
	if !n.IsEVM() {
		return false
	}
	for _, id := range SupportedNetworks {
		if n.NetworkID == id {
			return true
		}
	}
	return false
}

type State string

const (
	StateQuoting       State = "quoting"
	StateValidating    State = "validating"
	StateNeedsApproval State = "needs_approval"
	StateApproving     State = "approving"
	StateApproved      State = "approved"
	StateExecuting     State = "executing"
	StateConfirming    State = "confirming"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
)

// Transition is reported to the observer on every state change.
type Transition struct {
	State  State
	TxHash string
	Kind   FailureKind
	Error  string
}

type StateObserver interface {
	OnTransition(ctx context.Context, t Transition)
}

type ObserverFunc func(ctx context.Context, t Transition)

func (f ObserverFunc) OnTransition(ctx context.Context, t Transition) { f(ctx, t) }

// Engine runs swaps. It holds no per-swap state and is safe for concurrent use.
type Engine struct {
	quoter   Quoter
	retry    RetryPolicy
	observer StateObserver
	log      logrus.FieldLogger
	sleep    sleepFunc
}

type Option func(*Engine)

func WithRetryPolicy(p RetryPolicy) Option { return func(e *Engine) { e.retry = p } }

func WithObserver(o StateObserver) Option { return func(e *Engine) { e.observer = o } }

func WithLogger(l logrus.FieldLogger) Option { return func(e *Engine) { e.log = l } }

func NewEngine(q Quoter, opts ...Option) *Engine {
	e := &Engine{
		quoter: q,
		retry:  DefaultRetryPolicy(),
		log:    logrus.StandardLogger(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func unsupportedNetworkMessage(n network.Network) string {
	return fmt.Sprintf("CDP Swap API is currently only supported on 'base-mainnet' or 'ethereum-mainnet'. Current network: %s", n.NetworkID)
}

// Swap runs the full workflow. Every failure is reported in the Result.
func (e *Engine) Swap(ctx context.Context, w wallet.EvmProvider, req Request) Result {
	r := &swapRun{engine: e, ctx: ctx, w: w, req: req}
	return r.run()
}

type swapRun struct {
	engine *Engine
	ctx    context.Context
	w      wallet.EvmProvider
	req    Request

	approvalHash string
}

func (r *swapRun) run() Result {
	n := r.w.Network()
	if !SupportsNetwork(n) {
		return r.fail(KindUnsupportedNetwork, unsupportedNetworkMessage(n), "")
	}
	r.transition(Transition{State: StateQuoting})

	from, to, res, ok := resolvePair(r.ctx, r.w, r.req.FromToken, r.req.ToToken)
	if !ok {
		return r.fail(res.kind, res.msg, "")
	}
	fromAtomic, failure, ok := parseAmount(r.req.FromAmount, from.Decimals)
	if !ok {
		return r.fail(KindValidation, failure, "")
	}

	params := QuoteParams{
		Network:     n,
		FromToken:   r.req.FromToken,
		ToToken:     r.req.ToToken,
		FromAmount:  fromAtomic,
		Taker:       r.w.Address(),
		SlippageBps: r.req.SlippageBps,
	}
	var quote *Quote
	err := retry(r.ctx, r.engine.retry, r.engine.sleep, r.engine.onRetry("quote"), func(ctx context.Context) error {
		q, err := r.engine.quoter.Quote(ctx, r.w, params)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return r.fail(KindQuoting, fmt.Sprintf("Error fetching swap quote: %v", err), "")
	}

	r.transition(Transition{State: StateValidating})
	if !quote.LiquidityAvailable {
		return r.fail(KindLiquidity, "No liquidity available to swap", "")
	}
	if issue := quote.Issues.Balance; issue != nil {
		return r.fail(KindBalance, balanceMessage(issue, fromAtomic, from, r.req.FromToken), "")
	}
	if quote.Execute == nil {
		return r.fail(KindExecution, "Swap failed: quote is not executable", "")
	}
	if issue := quote.Issues.Allowance; issue != nil {
		if erc20.IsNative(r.req.FromToken) {
			r.engine.log.WithField("from_token", r.req.FromToken).Warn("ignoring allowance issue reported for native token")
		} else if res := r.approve(issue, fromAtomic); res != nil {
			return *res
		}
	}

	r.transition(Transition{State: StateExecuting})
	swapRes, err := quote.Execute(r.ctx)
	if err != nil {
		return r.fail(KindExecution, fmt.Sprintf("Swap failed: %v", err), "")
	}
	hash := swapRes.TransactionHash

	r.transition(Transition{State: StateConfirming, TxHash: hash})
	receipt, err := r.w.WaitForTransactionReceipt(r.ctx, hash)
	if err != nil {
		return r.fail(KindExecution, fmt.Sprintf("Swap failed: %v", err), hash)
	}
	if !receipt.Succeeded() {
		return r.fail(KindRevert, "Swap transaction reverted", hash)
	}

	r.transition(Transition{State: StateSucceeded, TxHash: hash})
	toAmount, minToAmount := quote.ToAmount, quote.MinToAmount
	return Result{
		Success:         true,
		TransactionHash: hash,
		ApprovalTxHash:  r.approvalHash,
		FromAmount:      units.Normalize(r.req.FromAmount),
		FromTokenName:   from.Name,
		FromToken:       r.req.FromToken,
		ToAmount:        units.FormatUnits(toAmount, to.Decimals),
		MinToAmount:     units.FormatUnits(minToAmount, to.Decimals),
		ToTokenName:     to.Name,
		ToToken:         r.req.ToToken,
		SlippageBps:     r.req.SlippageBps,
		Network:         r.w.Network().NetworkID,
	}
}

// approve submits approve(spender, required) on the from token and waits
// for it. It returns a failure result, or nil once the approval is mined.
func (r *swapRun) approve(issue *AllowanceIssue, fromAtomic *big.Int) *Result {
	r.transition(Transition{State: StateNeedsApproval})
	spender := strings.TrimSpace(issue.Spender)
	if spender == "" {
		spender = Permit2
	}
	required := issue.RequiredAllowance
	if required == nil || required.Cmp(fromAtomic) < 0 {
		required = fromAtomic
	}

	data, err := erc20.EncodeApprove(spender, required)
	if err != nil {
		res := r.fail(KindApproval, fmt.Sprintf("Error approving token: %v", err), "")
		return &res
	}
	hash, err := r.w.SendTransaction(r.ctx, wallet.EvmTx{To: r.req.FromToken, Data: data})
	if err != nil {
		res := r.fail(KindApproval, fmt.Sprintf("Error approving token: %v", err), "")
		return &res
	}
	r.approvalHash = hash
	r.transition(Transition{State: StateApproving, TxHash: hash})

	receipt, err := r.w.WaitForTransactionReceipt(r.ctx, hash)
	if err != nil {
		res := r.fail(KindApproval, fmt.Sprintf("Error approving token: %v", err), "")
		return &res
	}
	if !receipt.Succeeded() {
		res := r.fail(KindApproval, "Token approval transaction failed", "")
		return &res
	}
	r.transition(Transition{State: StateApproved, TxHash: hash})
	return nil
}

func (r *swapRun) transition(t Transition) {
	r.engine.notify(r.ctx, t)
}

func (r *swapRun) fail(kind FailureKind, msg, txHash string) Result {
	r.engine.notify(r.ctx, Transition{State: StateFailed, Kind: kind, Error: msg, TxHash: txHash})
	return Result{Success: false, Kind: kind, Error: msg, TransactionHash: txHash, ApprovalTxHash: r.approvalHash}
}

func (e *Engine) notify(ctx context.Context, t Transition) {
	fields := logrus.Fields{"state": t.State}
	if t.TxHash != "" {
		fields["tx_hash"] = t.TxHash
	}
	if t.Kind != "" {
		fields["kind"] = t.Kind
	}
	entry := e.log.WithFields(fields)
	if t.State == StateFailed {
		entry.Info(t.Error)
	} else {
		entry.Debug("swap transition")
	}
	if e.observer != nil {
		e.observer.OnTransition(ctx, t)
	}
}

func (e *Engine) onRetry(what string) func(int, error) {
	return func(attempt int, err error) {
		e.log.WithFields(logrus.Fields{"attempt": attempt, "op": what}).WithError(err).Warn("retrying swap venue request")
	}
}

// Price fetches a non-executable estimate for the swap.
func (e *Engine) Price(ctx context.Context, w wallet.EvmProvider, req Request) PriceResult {
	n := w.Network()
	if !SupportsNetwork(n) {
		return PriceResult{Kind: KindUnsupportedNetwork, Error: unsupportedNetworkMessage(n)}
	}
	from, to, res, ok := resolvePair(ctx, w, req.FromToken, req.ToToken)
	if !ok {
		return PriceResult{Kind: res.kind, Error: res.msg}
	}
	fromAtomic, failure, ok := parseAmount(req.FromAmount, from.Decimals)
	if !ok {
		return PriceResult{Kind: KindValidation, Error: failure}
	}

	params := QuoteParams{
		Network:     n,
		FromToken:   req.FromToken,
		ToToken:     req.ToToken,
		FromAmount:  fromAtomic,
		Taker:       w.Address(),
		SlippageBps: req.SlippageBps,
	}
	var price *Price
	err := retry(ctx, e.retry, e.sleep, e.onRetry("price"), func(ctx context.Context) error {
		p, err := e.quoter.Price(ctx, params)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		return PriceResult{Kind: KindQuoting, Error: fmt.Sprintf("Error fetching swap price: %v", err)}
	}

	return PriceResult{
		Success:            true,
		FromAmount:         units.Normalize(req.FromAmount),
		FromTokenName:      from.Name,
		FromToken:          req.FromToken,
		ToAmount:           units.FormatUnits(price.ToAmount, to.Decimals),
		MinToAmount:        units.FormatUnits(price.MinToAmount, to.Decimals),
		ToTokenName:        to.Name,
		ToToken:            req.ToToken,
		SlippageBps:        req.SlippageBps,
		LiquidityAvailable: price.LiquidityAvailable,
		BalanceEnough:      price.Issues.Balance == nil,
	}
}

type resolveFailure struct {
	kind FailureKind
	msg  string
}

func resolvePair(ctx context.Context, w wallet.EvmProvider, fromToken, toToken string) (*erc20.TokenDetails, *erc20.TokenDetails, resolveFailure, bool) {
	from, to, err := erc20.GetTokenDetailsPair(ctx, w, fromToken, toToken)
	if err != nil {
		return nil, nil, resolveFailure{KindResolution, fmt.Sprintf("Error fetching token details: %v", err)}, false
	}
	if from == nil {
		return nil, nil, resolveFailure{KindResolution, fmt.Sprintf("Could not resolve token details for %s", fromToken)}, false
	}
	if to == nil {
		return nil, nil, resolveFailure{KindResolution, fmt.Sprintf("Could not resolve token details for %s", toToken)}, false
	}
	return from, to, resolveFailure{}, true
}

func parseAmount(amount string, decimals int) (*big.Int, string, bool) {
	atomic, err := units.ToAtomic(amount, decimals)
	if err != nil {
		return nil, fmt.Sprintf("Invalid fromAmount %q: %v", amount, err), false
	}
	if atomic.Sign() <= 0 {
		return nil, "fromAmount must be greater than 0", false
	}
	return atomic, "", true
}

// balanceMessage falls back to the requested amount when the quoter does not
// report a required balance.
func balanceMessage(issue *BalanceIssue, fromAtomic *big.Int, from *erc20.TokenDetails, fromToken string) string {
	need := issue.RequiredBalance
	if need == nil || need.Sign() == 0 {
		need = fromAtomic
	}
	required := units.FormatUnits(need, from.Decimals)
	current := units.FormatUnits(issue.CurrentBalance, from.Decimals)
	return fmt.Sprintf("Balance is not enough to perform swap. Required: %s %s, but only have %s %s (%s)",
		required, from.Name, current, from.Name, fromToken)
}

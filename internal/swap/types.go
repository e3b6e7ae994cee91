package swap

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

// Permit2 is the default spender when a quote does not name one.
const Permit2 = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

const DefaultSlippageBps = 100

// Request is a validated swap request in human units.
type Request struct {
	FromToken   string
	ToToken     string
	FromAmount  string
	SlippageBps int
}

// QuoteParams is what the quoting service sees: atomic amounts only.
type QuoteParams struct {
	Network     network.Network
	FromToken   string
	ToToken     string
	FromAmount  *big.Int
	Taker       string
	SlippageBps int
}

type BalanceIssue struct {
	Token           string
	CurrentBalance  *big.Int
	RequiredBalance *big.Int
}

type AllowanceIssue struct {
	CurrentAllowance  *big.Int
	RequiredAllowance *big.Int
	Spender           string
}

type QuoteIssues struct {
	Balance              *BalanceIssue
	Allowance            *AllowanceIssue
	SimulationIncomplete bool
}

type QuoteTransaction struct {
	To    string
	Data  []byte
	Value *big.Int
	Gas   uint64
}

type SwapResult struct {
	TransactionHash string
}

// Quote is a single-use executable swap quote. Amounts are atomic.
type Quote struct {
	LiquidityAvailable bool
	Issues             QuoteIssues
	FromAmount         *big.Int
	ToAmount           *big.Int
	MinToAmount        *big.Int
	Transaction        *QuoteTransaction

	// Execute submits the quoted swap. Nil when the quote cannot be executed.
	Execute func(ctx context.Context) (SwapResult, error)
}

type Price struct {
	LiquidityAvailable bool
	Issues             QuoteIssues
	FromAmount         *big.Int
	ToAmount           *big.Int
	MinToAmount        *big.Int
}

type Quoter interface {
	Quote(ctx context.Context, w wallet.EvmProvider, params QuoteParams) (*Quote, error)
	Price(ctx context.Context, params QuoteParams) (*Price, error)
}

type FailureKind string

const (
	KindValidation         FailureKind = "validation"
	KindUnsupportedNetwork FailureKind = "unsupported_network"
	KindResolution         FailureKind = "resolution"
	KindQuoting            FailureKind = "quoting"
	KindLiquidity          FailureKind = "liquidity"
	KindBalance            FailureKind = "balance"
	KindApproval           FailureKind = "approval"
	KindExecution          FailureKind = "execution"
	KindRevert             FailureKind = "revert"
)

// Result is the outcome of Engine.Swap. Failures carry Error and Kind;
// a reverted swap keeps its TransactionHash.
type Result struct {
	Success         bool
	TransactionHash string
	ApprovalTxHash  string
	FromAmount      string
	FromTokenName   string
	FromToken       string
	ToAmount        string
	MinToAmount     string
	ToTokenName     string
	ToToken         string
	SlippageBps     int
	Network         string
	Error           string
	Kind            FailureKind
}

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(struct {
			Success         bool   `json:"success"`
			Error           string `json:"error"`
			TransactionHash string `json:"transactionHash,omitempty"`
			ApprovalTxHash  string `json:"approvalTxHash,omitempty"`
		}{false, r.Error, r.TransactionHash, r.ApprovalTxHash})
	}
	return json.Marshal(struct {
		Success         bool   `json:"success"`
		TransactionHash string `json:"transactionHash"`
		ApprovalTxHash  string `json:"approvalTxHash,omitempty"`
		FromAmount      string `json:"fromAmount"`
		FromTokenName   string `json:"fromTokenName"`
		FromToken       string `json:"fromToken"`
		ToAmount        string `json:"toAmount"`
		MinToAmount     string `json:"minToAmount"`
		ToTokenName     string `json:"toTokenName"`
		ToToken         string `json:"toToken"`
		SlippageBps     int    `json:"slippageBps"`
		Network         string `json:"network"`
	}{true, r.TransactionHash, r.ApprovalTxHash, r.FromAmount, r.FromTokenName, r.FromToken,
		r.ToAmount, r.MinToAmount, r.ToTokenName, r.ToToken, r.SlippageBps, r.Network})
}

type PriceResult struct {
	Success            bool
	FromAmount         string
	FromTokenName      string
	FromToken          string
	ToAmount           string
	MinToAmount        string
	ToTokenName        string
	ToToken            string
	SlippageBps        int
	LiquidityAvailable bool
	BalanceEnough      bool
	Error              string
	Kind               FailureKind
}

func (r PriceResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{false, r.Error})
	}
	return json.Marshal(struct {
		Success            bool   `json:"success"`
		FromAmount         string `json:"fromAmount"`
		FromTokenName      string `json:"fromTokenName"`
		FromToken          string `json:"fromToken"`
		ToAmount           string `json:"toAmount"`
		MinToAmount        string `json:"minToAmount"`
		ToTokenName        string `json:"toTokenName"`
		ToToken            string `json:"toToken"`
		SlippageBps        int    `json:"slippageBps"`
		LiquidityAvailable bool   `json:"liquidityAvailable"`
		BalanceEnough      bool   `json:"balanceEnough"`
	}{true, r.FromAmount, r.FromTokenName, r.FromToken, r.ToAmount, r.MinToAmount,
		r.ToTokenName, r.ToToken, r.SlippageBps, r.LiquidityAvailable, r.BalanceEnough})
}

package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/httpx"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

const DefaultAPIURL = "https://api.cdp.coinbase.com/platform"

// HTTPQuoter talks to the CDP v2 EVM swaps API.
type HTTPQuoter struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func NewHTTPQuoter(httpClient *httpx.Client, baseURL, apiKey string) *HTTPQuoter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultAPIURL
	}
	return &HTTPQuoter{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type amountIssue struct {
	Token            string `json:"token"`
	CurrentBalance   string `json:"currentBalance"`
	RequiredBalance  string `json:"requiredBalance"`
	CurrentAllowance string `json:"currentAllowance"`
	Spender          string `json:"spender"`
}

type quoteResponse struct {
	LiquidityAvailable bool   `json:"liquidityAvailable"`
	FromAmount         string `json:"fromAmount"`
	ToAmount           string `json:"toAmount"`
	MinToAmount        string `json:"minToAmount"`
	Issues             struct {
		Allowance            *amountIssue `json:"allowance"`
		Balance              *amountIssue `json:"balance"`
		SimulationIncomplete bool         `json:"simulationIncomplete"`
	} `json:"issues"`
	Transaction *struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
		Gas   string `json:"gas"`
	} `json:"transaction"`
	Permit2 *struct {
		EIP712 json.RawMessage `json:"eip712"`
	} `json:"permit2"`
}

func (q *HTTPQuoter) Price(ctx context.Context, params QuoteParams) (*Price, error) {
	cdpNetwork, err := q.prepare(params)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("network", cdpNetwork)
	query.Set("fromToken", params.FromToken)
	query.Set("toToken", params.ToToken)
	query.Set("fromAmount", params.FromAmount.String())
	query.Set("taker", params.Taker)
	query.Set("slippageBps", strconv.Itoa(params.SlippageBps))

	req, err := httpx.NewRequest(ctx, http.MethodGet, q.baseURL+"/v2/evm/swaps/quote?"+query.Encode(), nil, q.headers())
	if err != nil {
		return nil, err
	}
	var resp quoteResponse
	if _, err := q.http.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	price, err := resp.price(params.FromAmount)
	if err != nil {
		return nil, err
	}
	return price, nil
}

func (q *HTTPQuoter) Quote(ctx context.Context, w wallet.EvmProvider, params QuoteParams) (*Quote, error) {
	cdpNetwork, err := q.prepare(params)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]any{
		"network":     cdpNetwork,
		"fromToken":   params.FromToken,
		"toToken":     params.ToToken,
		"fromAmount":  params.FromAmount.String(),
		"taker":       params.Taker,
		"slippageBps": params.SlippageBps,
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "marshal swap quote request", err)
	}
	var resp quoteResponse
	if _, err := httpx.DoBodyJSON(ctx, q.http, http.MethodPost, q.baseURL+"/v2/evm/swaps", body, q.headers(), &resp); err != nil {
		return nil, err
	}

	price, err := resp.price(params.FromAmount)
	if err != nil {
		return nil, err
	}
	quote := &Quote{
		LiquidityAvailable: price.LiquidityAvailable,
		Issues:             price.Issues,
		FromAmount:         price.FromAmount,
		ToAmount:           price.ToAmount,
		MinToAmount:        price.MinToAmount,
	}
	if !resp.LiquidityAvailable || resp.Transaction == nil {
		return quote, nil
	}

	tx, err := resp.transaction()
	if err != nil {
		return nil, err
	}
	quote.Transaction = tx
	var typed *apitypes.TypedData
	if resp.Permit2 != nil && len(resp.Permit2.EIP712) > 0 && string(resp.Permit2.EIP712) != "null" {
		typed, err = decodeTypedData(resp.Permit2.EIP712)
		if err != nil {
			return nil, err
		}
	}
	quote.Execute = func(ctx context.Context) (SwapResult, error) {
		return submitQuote(ctx, w, *tx, typed)
	}
	return quote, nil
}

func (q *HTTPQuoter) prepare(params QuoteParams) (string, error) {
	if strings.TrimSpace(q.apiKey) == "" {
		return "", clierr.New(clierr.CodeAuth, "missing required API key for cdp swaps (AGENTKIT_SWAP_API_KEY)")
	}
	if params.FromAmount == nil || params.FromAmount.Sign() <= 0 {
		return "", clierr.New(clierr.CodeUsage, "swap amount must be a positive integer in base units")
	}
	return cdpNetworkName(params.Network)
}

func (q *HTTPQuoter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + q.apiKey}
}

func cdpNetworkName(n network.Network) (string, error) {
	switch n.NetworkID {
	case "base-mainnet":
		return "base", nil
	case "ethereum-mainnet":
		return "ethereum", nil
	default:
		return "", clierr.New(clierr.CodeUnsupported, unsupportedNetworkMessage(n))
	}
}

func (r quoteResponse) price(requested *big.Int) (*Price, error) {
	price := &Price{LiquidityAvailable: r.LiquidityAvailable, FromAmount: requested}
	if !r.LiquidityAvailable {
		return price, nil
	}
	var err error
	if r.FromAmount != "" {
		if price.FromAmount, err = parseAtomic("fromAmount", r.FromAmount); err != nil {
			return nil, err
		}
	}
	if price.ToAmount, err = parseAtomic("toAmount", r.ToAmount); err != nil {
		return nil, err
	}
	if price.MinToAmount, err = parseAtomic("minToAmount", r.MinToAmount); err != nil {
		return nil, err
	}

	price.Issues.SimulationIncomplete = r.Issues.SimulationIncomplete
	if b := r.Issues.Balance; b != nil {
		issue := &BalanceIssue{Token: b.Token}
		if issue.CurrentBalance, err = parseAtomic("issues.balance.currentBalance", b.CurrentBalance); err != nil {
			return nil, err
		}
		issue.RequiredBalance = price.FromAmount
		if b.RequiredBalance != "" {
			if issue.RequiredBalance, err = parseAtomic("issues.balance.requiredBalance", b.RequiredBalance); err != nil {
				return nil, err
			}
		}
		price.Issues.Balance = issue
	}
	if a := r.Issues.Allowance; a != nil {
		issue := &AllowanceIssue{Spender: a.Spender, RequiredAllowance: price.FromAmount}
		if issue.CurrentAllowance, err = parseAtomic("issues.allowance.currentAllowance", a.CurrentAllowance); err != nil {
			return nil, err
		}
		if issue.Spender == "" {
			issue.Spender = Permit2
		}
		price.Issues.Allowance = issue
	}
	return price, nil
}

func (r quoteResponse) transaction() (*QuoteTransaction, error) {
	raw := r.Transaction
	if !common.IsHexAddress(raw.To) {
		return nil, clierr.New(clierr.CodeUnavailable, "swap quote transaction has invalid target")
	}
	data, err := hexutil.Decode(raw.Data)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode swap quote calldata", err)
	}
	tx := &QuoteTransaction{To: raw.To, Data: data, Value: big.NewInt(0)}
	if raw.Value != "" {
		if tx.Value, err = parseAtomic("transaction.value", raw.Value); err != nil {
			return nil, err
		}
	}
	if raw.Gas != "" {
		gas, err := parseAtomic("transaction.gas", raw.Gas)
		if err != nil || !gas.IsUint64() {
			return nil, clierr.New(clierr.CodeUnavailable, "swap quote has invalid gas limit")
		}
		tx.Gas = gas.Uint64()
	}
	return tx, nil
}

func parseAtomic(field, v string) (*big.Int, error) {
	out, ok := new(big.Int).SetString(strings.TrimSpace(v), 0)
	if !ok || out.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("swap quote has invalid %s %q", field, v))
	}
	return out, nil
}

// submitQuote signs the Permit2 payload when present, appends the signature
// to the calldata as uint256(len) || sig and submits the transaction.
func submitQuote(ctx context.Context, w wallet.EvmProvider, tx QuoteTransaction, typed *apitypes.TypedData) (SwapResult, error) {
	data := append([]byte(nil), tx.Data...)
	if typed != nil {
		sigHex, err := w.SignTypedData(ctx, *typed)
		if err != nil {
			return SwapResult{}, fmt.Errorf("sign permit2 payload: %w", err)
		}
		sig, err := hexutil.Decode(sigHex)
		if err != nil {
			return SwapResult{}, clierr.Wrap(clierr.CodeSigner, "decode permit2 signature", err)
		}
		data = append(data, common.LeftPadBytes(big.NewInt(int64(len(sig))).Bytes(), 32)...)
		data = append(data, sig...)
	}
	hash, err := w.SendTransaction(ctx, wallet.EvmTx{To: tx.To, Data: data, Value: tx.Value, Gas: tx.Gas})
	if err != nil {
		return SwapResult{}, err
	}
	return SwapResult{TransactionHash: hash}, nil
}

type rawTypedData struct {
	Types       apitypes.Types  `json:"types"`
	PrimaryType string          `json:"primaryType"`
	Domain      json.RawMessage `json:"domain"`
	Message     json.RawMessage `json:"message"`
}

type rawDomain struct {
	Name              string      `json:"name"`
	Version           string      `json:"version"`
	ChainID           json.Number `json:"chainId"`
	VerifyingContract string      `json:"verifyingContract"`
	Salt              string      `json:"salt"`
}

// decodeTypedData parses an EIP-712 payload whose chainId and integer
// message fields may be JSON numbers or strings.
func decodeTypedData(raw json.RawMessage) (*apitypes.TypedData, error) {
	var in rawTypedData
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode permit2 payload", err)
	}
	var domain rawDomain
	dec := json.NewDecoder(bytes.NewReader(unquoteNumbers(in.Domain)))
	dec.UseNumber()
	if err := dec.Decode(&domain); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode permit2 domain", err)
	}
	var message map[string]any
	dec = json.NewDecoder(bytes.NewReader(in.Message))
	dec.UseNumber()
	if err := dec.Decode(&message); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode permit2 message", err)
	}

	typed := &apitypes.TypedData{
		Types:       in.Types,
		PrimaryType: in.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			VerifyingContract: domain.VerifyingContract,
			Salt:              domain.Salt,
		},
		Message: normalizeNumbers(message).(map[string]any),
	}
	if domain.ChainID != "" {
		chainID, ok := new(big.Int).SetString(domain.ChainID.String(), 0)
		if !ok {
			return nil, clierr.New(clierr.CodeUnavailable, "permit2 domain has invalid chainId")
		}
		typed.Domain.ChainId = (*math.HexOrDecimal256)(chainID)
	}
	if typed.Types == nil {
		typed.Types = apitypes.Types{}
	}
	if _, ok := typed.Types["EIP712Domain"]; !ok {
		typed.Types["EIP712Domain"] = domainType(typed.Domain)
	}
	return typed, nil
}

// unquoteNumbers lets json.Number accept a string-encoded chainId.
func unquoteNumbers(raw json.RawMessage) []byte {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return raw
	}
	if s, ok := fields["chainId"].(string); ok {
		if n, ok := new(big.Int).SetString(s, 0); ok {
			fields["chainId"] = json.Number(n.String())
		}
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return raw
	}
	return out
}

// normalizeNumbers converts json.Number leaves to decimal strings so large
// integers survive EIP-712 encoding.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	default:
		return v
	}
}

func domainType(d apitypes.TypedDataDomain) []apitypes.Type {
	var out []apitypes.Type
	if d.Name != "" {
		out = append(out, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		out = append(out, apitypes.Type{Name: "version", Type: "string"})
	}
	if d.ChainId != nil {
		out = append(out, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != "" {
		out = append(out, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if d.Salt != "" {
		out = append(out, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return out
}

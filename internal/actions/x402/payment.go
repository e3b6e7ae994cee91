package x402

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

const (
	protocolVersion = 1
	schemeExact     = "exact"

	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"

	// validAfter is backdated to tolerate clock skew with the facilitator.
	validAfterSkew = 10 * time.Minute
)

// Requirement is one entry of a 402 response's "accepts" list.
type Requirement struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description,omitempty"`
	MimeType          string         `json:"mimeType,omitempty"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int64          `json:"maxTimeoutSeconds"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

type paymentRequired struct {
	X402Version int           `json:"x402Version"`
	Error       string        `json:"error,omitempty"`
	Accepts     []Requirement `json:"accepts"`
}

type authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Payload is the decoded X-PAYMENT header.
type Payload struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	Payload     struct {
		Signature     string        `json:"signature"`
		Authorization authorization `json:"authorization"`
	} `json:"payload"`
}

// Proof is the decoded X-PAYMENT-RESPONSE header.
type Proof struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// paymentNetwork returns the x402 network name of a wallet network.
func paymentNetwork(n network.Network) string {
	if n.NetworkID == "base-mainnet" {
		return "base"
	}
	return n.NetworkID
}

func sameNetwork(requirement string, n network.Network) bool {
	r := strings.ToLower(strings.TrimSpace(requirement))
	return r == n.NetworkID || r == paymentNetwork(n)
}

// payable reports why req cannot be paid by w, or nil.
func payable(req Requirement, w wallet.EvmProvider) error {
	if !strings.EqualFold(req.Scheme, schemeExact) {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported payment scheme %q", req.Scheme))
	}
	if !sameNetwork(req.Network, w.Network()) {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("payment network %s does not match wallet network %s", req.Network, w.Network().NetworkID))
	}
	if !common.IsHexAddress(req.Asset) || !common.IsHexAddress(req.PayTo) {
		return clierr.New(clierr.CodeUsage, "payment asset and pay_to must be EVM addresses")
	}
	if v, ok := new(big.Int).SetString(req.MaxAmountRequired, 10); !ok || v.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid max_amount_required %q", req.MaxAmountRequired))
	}
	return nil
}

func extraString(extra map[string]any, key, fallback string) string {
	if v, ok := extra[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// transferAuthorization builds the EIP-3009 TransferWithAuthorization typed
// data authorizing req.PayTo to pull the payment from the wallet.
func transferAuthorization(req Requirement, from string, chainID int64, now time.Time, nonce [32]byte) (apitypes.TypedData, authorization) {
	timeout := time.Duration(req.MaxTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	auth := authorization{
		From:        common.HexToAddress(from).Hex(),
		To:          common.HexToAddress(req.PayTo).Hex(),
		Value:       req.MaxAmountRequired,
		ValidAfter:  fmt.Sprintf("%d", now.Add(-validAfterSkew).Unix()),
		ValidBefore: fmt.Sprintf("%d", now.Add(timeout).Unix()),
		Nonce:       hexutil.Encode(nonce[:]),
	}
	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              extraString(req.Extra, "name", "USD Coin"),
			Version:           extraString(req.Extra, "version", "2"),
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: common.HexToAddress(req.Asset).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
	return typed, auth
}

// paymentHeader signs req with w and returns the base64 X-PAYMENT value.
func (p *Provider) paymentHeader(ctx context.Context, w wallet.EvmProvider, req Requirement, version int) (string, error) {
	if err := payable(req, w); err != nil {
		return "", err
	}
	var nonce [32]byte
	if _, err := p.random(nonce[:]); err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "generate payment nonce", err)
	}
	typed, auth := transferAuthorization(req, w.Address(), w.Network().EVMChainID(), p.now(), nonce)
	signature, err := w.SignTypedData(ctx, typed)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign payment authorization", err)
	}

	if version <= 0 {
		version = protocolVersion
	}
	payload := Payload{X402Version: version, Scheme: schemeExact, Network: req.Network}
	payload.Payload.Signature = signature
	payload.Payload.Authorization = auth
	buf, err := json.Marshal(payload)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode payment payload", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// DecodePaymentResponse decodes an X-PAYMENT-RESPONSE header value. An empty
// header yields a nil proof.
func DecodePaymentResponse(header string) (*Proof, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	var proof Proof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	return &proof, nil
}

func cryptoRandom(b []byte) (int, error) { return rand.Read(b) }

// Package wallet defines the wallet provider capability set used by actions
// and implements it for local EVM keys, smart accounts and Solana keypairs.
package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/network"
)

const (
	ReceiptSuccess = "success"
	ReceiptFailed  = "failed"
)

// Receipt is the terminal outcome of a submitted transaction.
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	GasUsed         uint64 `json:"gasUsed,omitempty"`
}

func (r Receipt) Succeeded() bool { return r.Status == ReceiptSuccess }

// Provider is the capability set shared by every wallet.
//
// NativeTransfer and SendTransaction return once the transaction is submitted.
// Confirmation is always a separate WaitForTransactionReceipt call.
type Provider interface {
	Name() string
	Address() string
	Network() network.Network
	Balance(ctx context.Context) (*big.Int, error)
	SignMessage(ctx context.Context, message []byte) (string, error)
	NativeTransfer(ctx context.Context, to string, value decimal.Decimal) (string, error)
	WaitForTransactionReceipt(ctx context.Context, hash string) (Receipt, error)
}

// EvmTx is an unsigned EVM transaction request. Zero Gas means estimate.
type EvmTx struct {
	To    string
	Data  []byte
	Value *big.Int
	Gas   uint64
}

type ContractCall struct {
	Address string
	ABI     abi.ABI
	Method  string
	Args    []any
}

type EvmProvider interface {
	Provider
	SendTransaction(ctx context.Context, tx EvmTx) (string, error)
	SignTransaction(ctx context.Context, tx EvmTx) (string, error)
	ReadContract(ctx context.Context, call ContractCall) ([]any, error)
	SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error)
}

type SvmProvider interface {
	Provider
	SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error)
}

// ErrSmartWalletSigning reports a direct signing request against a smart
// account, which can only act through its execution path.
func ErrSmartWalletSigning(what string) error {
	return clierr.New(clierr.CodeUnsupported, "Smart wallets cannot sign "+what+" directly")
}

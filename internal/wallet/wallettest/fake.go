// Package wallettest provides an in-memory EVM wallet for tests.
package wallettest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

const DefaultAddress = "0x1111111111111111111111111111111111111111"

var BaseMainnet = network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: "base-mainnet", ChainID: "8453"}

// Contract is a scripted ERC20-like contract. Values maps method name to
// the decoded outputs returned for any arguments.
type Contract struct {
	Values map[string][]any
	// Err is returned as a transport failure for every call.
	Err error
}

// EVM implements wallet.EvmProvider in memory. Sent transactions get
// sequential hashes; receipts default to success.
type EVM struct {
	mu sync.Mutex

	NameValue    string
	AddressValue string
	NetworkValue network.Network
	BalanceValue *big.Int
	BalanceErr   error

	Contracts map[string]*Contract
	Receipts  map[string]wallet.Receipt
	// SendErrs returns an error for the n-th (0-based) SendTransaction call.
	SendErrs   map[int]error
	ReceiptErr error

	Sent      []wallet.EvmTx
	Transfers []Transfer
	Typed     []apitypes.TypedData
	// Events records calls in order, e.g. "send:0xabc", "wait:0x01".
	Events []string
	// Reads and BalanceCalls count ReadContract and Balance calls.
	Reads        int
	BalanceCalls int

	nextHash int
}

type Transfer struct {
	To    string
	Value decimal.Decimal
}

func New() *EVM {
	return &EVM{
		NameValue:    wallet.EvmWalletName,
		AddressValue: DefaultAddress,
		NetworkValue: BaseMainnet,
		BalanceValue: big.NewInt(0),
		Contracts:    map[string]*Contract{},
		Receipts:     map[string]wallet.Receipt{},
		SendErrs:     map[int]error{},
	}
}

// AddToken registers a contract answering the standard ERC20 reads.
func (f *EVM) AddToken(address, name string, decimals uint8, balance *big.Int) *Contract {
	c := &Contract{Values: map[string][]any{
		"name":      {name},
		"symbol":    {name},
		"decimals":  {decimals},
		"balanceOf": {balance},
		"allowance": {big.NewInt(0)},
	}}
	f.Contracts[strings.ToLower(address)] = c
	return c
}

// HashAt returns the hash assigned to the n-th (1-based) submitted transaction.
func HashAt(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func (f *EVM) Name() string { return f.NameValue }

func (f *EVM) Address() string { return f.AddressValue }

func (f *EVM) Network() network.Network { return f.NetworkValue }

func (f *EVM) Balance(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BalanceCalls++
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	return new(big.Int).Set(f.BalanceValue), nil
}

func (f *EVM) SignMessage(_ context.Context, message []byte) (string, error) {
	return fmt.Sprintf("0xsigned-%x", message), nil
}

func (f *EVM) SignTypedData(_ context.Context, data apitypes.TypedData) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Typed = append(f.Typed, data)
	return "0x" + strings.Repeat("ab", 65), nil
}

func (f *EVM) NativeTransfer(_ context.Context, to string, value decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !value.IsPositive() {
		return "", clierr.New(clierr.CodeUsage, "amount must be greater than 0")
	}
	if err := f.SendErrs[len(f.Sent)+len(f.Transfers)]; err != nil {
		return "", fmt.Errorf("Failed to transfer native tokens: %w", err)
	}
	f.Transfers = append(f.Transfers, Transfer{To: to, Value: value})
	f.Events = append(f.Events, "transfer:"+to)
	return f.newHashLocked(), nil
}

func (f *EVM) SendTransaction(_ context.Context, tx wallet.EvmTx) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SendErrs[len(f.Sent)+len(f.Transfers)]; err != nil {
		f.Events = append(f.Events, "send-error:"+tx.To)
		return "", err
	}
	f.Sent = append(f.Sent, tx)
	f.Events = append(f.Events, "send:"+strings.ToLower(tx.To))
	return f.newHashLocked(), nil
}

func (f *EVM) SignTransaction(context.Context, wallet.EvmTx) (string, error) {
	return "0x02deadbeef", nil
}

func (f *EVM) ReadContract(_ context.Context, call wallet.ContractCall) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	c, ok := f.Contracts[strings.ToLower(call.Address)]
	if !ok {
		return nil, clierr.New(clierr.CodeActionSim, fmt.Sprintf("call %s: empty return from %s", call.Method, call.Address))
	}
	if c.Err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "call "+call.Method, c.Err)
	}
	out, ok := c.Values[call.Method]
	if !ok {
		return nil, clierr.New(clierr.CodeActionSim, "call "+call.Method+": execution reverted")
	}
	return out, nil
}

func (f *EVM) WaitForTransactionReceipt(_ context.Context, hash string) (wallet.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = append(f.Events, "wait:"+hash)
	if f.ReceiptErr != nil {
		return wallet.Receipt{}, f.ReceiptErr
	}
	if r, ok := f.Receipts[hash]; ok {
		return r, nil
	}
	return wallet.Receipt{TransactionHash: hash, Status: wallet.ReceiptSuccess}, nil
}

func (f *EVM) newHashLocked() string {
	f.nextHash++
	return HashAt(f.nextHash)
}

package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/network"
)

const SmartWalletName = "smart_wallet_provider"

const smartAccountABIJSON = `[
	{"type":"function","name":"execute","stateMutability":"payable","inputs":[
		{"name":"target","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"}
	],"outputs":[]}
]`

var smartAccountABI = mustABI(smartAccountABIJSON)

// SmartWallet drives a smart account through its owner key. Every state
// change is routed through the account's execute entrypoint; the account
// itself never signs.
type SmartWallet struct {
	owner   *EvmWallet
	account common.Address
}

func NewSmartWallet(owner *EvmWallet, account string) (*SmartWallet, error) {
	if owner == nil {
		return nil, clierr.New(clierr.CodeSigner, "smart wallet requires an owner wallet")
	}
	if !common.IsHexAddress(strings.TrimSpace(account)) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid smart account address %q", account))
	}
	return &SmartWallet{owner: owner, account: common.HexToAddress(strings.TrimSpace(account))}, nil
}

func (s *SmartWallet) Name() string { return SmartWalletName }

func (s *SmartWallet) Address() string { return s.account.Hex() }

func (s *SmartWallet) Owner() string { return s.owner.Address() }

func (s *SmartWallet) Network() network.Network { return s.owner.Network() }

func (s *SmartWallet) Balance(ctx context.Context) (*big.Int, error) {
	return s.owner.balanceOf(ctx, s.account)
}

func (s *SmartWallet) SignMessage(context.Context, []byte) (string, error) {
	return "", ErrSmartWalletSigning("messages")
}

func (s *SmartWallet) SignTransaction(context.Context, EvmTx) (string, error) {
	return "", ErrSmartWalletSigning("transactions")
}

// SignTypedData is delegated to the owner key.
func (s *SmartWallet) SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error) {
	return s.owner.SignTypedData(ctx, data)
}

func (s *SmartWallet) NativeTransfer(ctx context.Context, to string, value decimal.Decimal) (string, error) {
	wei, err := wholeToAtomic(value, 18)
	if err != nil {
		return "", err
	}
	hash, err := s.SendTransaction(ctx, EvmTx{To: to, Value: wei})
	if err != nil {
		return "", fmt.Errorf("Failed to transfer native tokens: %w", err)
	}
	return hash, nil
}

// SendTransaction wraps tx in execute(target, value, data) and submits it
// from the owner to the smart account.
func (s *SmartWallet) SendTransaction(ctx context.Context, tx EvmTx) (string, error) {
	data, err := EncodeExecute(tx)
	if err != nil {
		return "", err
	}
	return s.owner.SendTransaction(ctx, EvmTx{To: s.account.Hex(), Data: data, Gas: tx.Gas})
}

func (s *SmartWallet) ReadContract(ctx context.Context, call ContractCall) ([]any, error) {
	return s.owner.readContractFrom(ctx, s.account, call)
}

func (s *SmartWallet) WaitForTransactionReceipt(ctx context.Context, hash string) (Receipt, error) {
	return s.owner.WaitForTransactionReceipt(ctx, hash)
}

// EncodeExecute builds the smart account calldata for a single call.
func EncodeExecute(tx EvmTx) ([]byte, error) {
	if !common.IsHexAddress(tx.To) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid destination address %q", tx.To))
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	data := tx.Data
	if data == nil {
		data = []byte{}
	}
	out, err := smartAccountABI.Pack("execute", common.HexToAddress(tx.To), value, data)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode execute call", err)
	}
	return out, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

package wallet

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/network"
)

var baseMainnet = network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: "base-mainnet", ChainID: "8453"}

type fakeRPCError struct{ msg string }

func (e fakeRPCError) Error() string  { return e.msg }
func (e fakeRPCError) ErrorCode() int { return 3 }

type fakeChain struct {
	mu        sync.Mutex
	chainID   int64
	balances  map[common.Address]*big.Int
	callOut   []byte
	callErr   error
	lastCall  ethereum.CallMsg
	gas       uint64
	tip       *big.Int
	baseFee   *big.Int
	sent      []*types.Transaction
	receipts  map[common.Hash]*types.Receipt
	pollsLeft int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		chainID:  8453,
		balances: map[common.Address]*big.Int{},
		gas:      100_000,
		tip:      big.NewInt(1_000_000),
		baseFee:  big.NewInt(10_000_000),
		receipts: map[common.Hash]*types.Receipt{},
	}
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(f.chainID), nil }

func (f *fakeChain) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	if v, ok := f.balances[account]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCall = msg
	return f.callOut, f.callErr
}

func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return f.gas, nil }

func (f *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if f.tip == nil {
		return nil, errors.New("method not found")
	}
	return f.tip, nil
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: f.baseFee}, nil
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	time.Sleep(time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollsLeft > 0 {
		f.pollsLeft--
		return nil, ethereum.NotFound
	}
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func newTestEvmWallet(t *testing.T, chain *fakeChain) *EvmWallet {
	t.Helper()
	key, err := NewLocalKey(KeyConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalKey failed: %v", err)
	}
	w, err := newEvmWallet(context.Background(), chain, key, EvmConfig{
		Network:        baseMainnet,
		PollInterval:   time.Millisecond,
		ReceiptTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("newEvmWallet failed: %v", err)
	}
	return w
}

func TestNewEvmWalletRejectsChainMismatch(t *testing.T) {
	chain := newFakeChain()
	chain.chainID = 1
	key, _ := NewLocalKey(KeyConfig{PrivateKeyHex: testPrivateKey})
	_, err := newEvmWallet(context.Background(), chain, key, EvmConfig{Network: baseMainnet})
	if err == nil || !strings.Contains(err.Error(), "chain mismatch") {
		t.Fatalf("expected chain mismatch error, got %v", err)
	}
}

func TestSendTransactionBuildsDynamicFeeTx(t *testing.T) {
	chain := newFakeChain()
	w := newTestEvmWallet(t, chain)

	hash, err := w.SendTransaction(context.Background(), EvmTx{
		To:    "0x0000000000000000000000000000000000000001",
		Data:  []byte{0x01, 0x02},
		Value: big.NewInt(5),
	})
	if err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}
	if len(chain.sent) != 1 {
		t.Fatalf("expected one sent tx, got %d", len(chain.sent))
	}
	tx := chain.sent[0]
	if tx.Hash().Hex() != hash {
		t.Fatalf("hash mismatch: %s vs %s", tx.Hash().Hex(), hash)
	}
	if tx.Type() != types.DynamicFeeTxType || tx.ChainId().Int64() != 8453 {
		t.Fatalf("unexpected tx type/chain: %d %s", tx.Type(), tx.ChainId())
	}
	if tx.Gas() != 120_000 {
		t.Fatalf("expected gas limit with 1.2 multiplier, got %d", tx.Gas())
	}
	if tx.GasFeeCap().Int64() != 21_000_000 {
		t.Fatalf("expected fee cap base*2+tip, got %s", tx.GasFeeCap())
	}
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), tx)
	if err != nil || sender != common.HexToAddress(testAddress) {
		t.Fatalf("unexpected sender %s err=%v", sender.Hex(), err)
	}
}

func TestSendTransactionSerializesNonces(t *testing.T) {
	chain := newFakeChain()
	w := newTestEvmWallet(t, chain)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.SendTransaction(context.Background(), EvmTx{To: "0x0000000000000000000000000000000000000002", Gas: 21_000}); err != nil {
				t.Errorf("SendTransaction failed: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for _, tx := range chain.sent {
		if seen[tx.Nonce()] {
			t.Fatalf("duplicate nonce %d", tx.Nonce())
		}
		seen[tx.Nonce()] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct nonces, got %d", n, len(seen))
	}
}

func TestNativeTransferConvertsWholeUnits(t *testing.T) {
	chain := newFakeChain()
	w := newTestEvmWallet(t, chain)

	if _, err := w.NativeTransfer(context.Background(), "0x0000000000000000000000000000000000000003", decimal.RequireFromString("0.25")); err != nil {
		t.Fatalf("NativeTransfer failed: %v", err)
	}
	if got := chain.sent[0].Value().String(); got != "250000000000000000" {
		t.Fatalf("unexpected wei value: %s", got)
	}
	if _, err := w.NativeTransfer(context.Background(), "0x0000000000000000000000000000000000000003", decimal.Zero); err == nil {
		t.Fatal("expected zero transfer to fail")
	}
	_, err := w.NativeTransfer(context.Background(), "not-an-address", decimal.NewFromInt(1))
	if err == nil || !strings.HasPrefix(err.Error(), "Failed to transfer native tokens: ") {
		t.Fatalf("expected wrapped transfer error, got %v", err)
	}
}

func TestWaitForTransactionReceipt(t *testing.T) {
	chain := newFakeChain()
	w := newTestEvmWallet(t, chain)

	okHash := common.HexToHash("0x01")
	badHash := common.HexToHash("0x02")
	chain.receipts[okHash] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(42), GasUsed: 21_000}
	chain.receipts[badHash] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(43)}
	chain.pollsLeft = 2

	got, err := w.WaitForTransactionReceipt(context.Background(), okHash.Hex())
	if err != nil {
		t.Fatalf("WaitForTransactionReceipt failed: %v", err)
	}
	if !got.Succeeded() || got.BlockNumber != 42 || got.GasUsed != 21_000 {
		t.Fatalf("unexpected receipt: %+v", got)
	}

	got, err = w.WaitForTransactionReceipt(context.Background(), badHash.Hex())
	if err != nil {
		t.Fatalf("WaitForTransactionReceipt failed: %v", err)
	}
	if got.Status != ReceiptFailed {
		t.Fatalf("expected failed receipt, got %+v", got)
	}

	_, err = w.WaitForTransactionReceipt(context.Background(), common.HexToHash("0x03").Hex())
	if !clierr.HasCode(err, clierr.CodeActionTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if _, err := w.WaitForTransactionReceipt(context.Background(), "0x1234"); !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for malformed hash, got %v", err)
	}
}

const decimalsABI = `[{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}]`

func TestReadContractClassifiesFailures(t *testing.T) {
	chain := newFakeChain()
	w := newTestEvmWallet(t, chain)
	parsed, err := abi.JSON(strings.NewReader(decimalsABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	call := ContractCall{Address: "0x0000000000000000000000000000000000000004", ABI: parsed, Method: "decimals"}

	chain.callOut = common.LeftPadBytes([]byte{6}, 32)
	out, err := w.ReadContract(context.Background(), call)
	if err != nil {
		t.Fatalf("ReadContract failed: %v", err)
	}
	if out[0].(uint8) != 6 {
		t.Fatalf("unexpected decimals: %v", out[0])
	}

	chain.callOut = nil
	if _, err := w.ReadContract(context.Background(), call); !clierr.HasCode(err, clierr.CodeActionSim) {
		t.Fatalf("expected empty return to be a call failure, got %v", err)
	}

	chain.callErr = fakeRPCError{msg: "execution reverted"}
	if _, err := w.ReadContract(context.Background(), call); !clierr.HasCode(err, clierr.CodeActionSim) {
		t.Fatalf("expected revert to be a call failure, got %v", err)
	}

	chain.callErr = errors.New("dial tcp: connection refused")
	if _, err := w.ReadContract(context.Background(), call); !clierr.HasCode(err, clierr.CodeUnavailable) {
		t.Fatalf("expected transport error to be unavailable, got %v", err)
	}
}

func TestSignTransactionDoesNotBroadcast(t *testing.T) {
	chain := newFakeChain()
	w := newTestEvmWallet(t, chain)
	raw, err := w.SignTransaction(context.Background(), EvmTx{To: "0x0000000000000000000000000000000000000005", Gas: 21_000})
	if err != nil {
		t.Fatalf("SignTransaction failed: %v", err)
	}
	if !strings.HasPrefix(raw, "0x02") {
		t.Fatalf("expected typed dynamic fee tx encoding, got %s", raw[:6])
	}
	if len(chain.sent) != 0 {
		t.Fatal("expected no broadcast")
	}
}

func TestSmartWalletRoutesThroughExecute(t *testing.T) {
	chain := newFakeChain()
	owner := newTestEvmWallet(t, chain)
	account := "0x00000000000000000000000000000000000000aa"
	smart, err := NewSmartWallet(owner, account)
	if err != nil {
		t.Fatalf("NewSmartWallet failed: %v", err)
	}
	chain.balances[common.HexToAddress(account)] = big.NewInt(77)

	if _, err := smart.SignMessage(context.Background(), []byte("hi")); err == nil || err.Error() != "Smart wallets cannot sign messages directly" {
		t.Fatalf("expected smart wallet message signing to be rejected, got %v", err)
	}
	if _, err := smart.SignTransaction(context.Background(), EvmTx{}); !clierr.HasCode(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}

	bal, err := smart.Balance(context.Background())
	if err != nil || bal.Int64() != 77 {
		t.Fatalf("expected smart account balance, got %v err=%v", bal, err)
	}

	target := "0x0000000000000000000000000000000000000006"
	if _, err := smart.SendTransaction(context.Background(), EvmTx{To: target, Data: []byte{0xaa}, Value: big.NewInt(9)}); err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}
	tx := chain.sent[0]
	if *tx.To() != common.HexToAddress(account) {
		t.Fatalf("expected tx to smart account, got %s", tx.To().Hex())
	}
	want, _ := EncodeExecute(EvmTx{To: target, Data: []byte{0xaa}, Value: big.NewInt(9)})
	if !bytes.Equal(tx.Data(), want) || tx.Value().Sign() != 0 {
		t.Fatalf("unexpected execute calldata or value")
	}

	chain.callOut = common.LeftPadBytes([]byte{18}, 32)
	parsed, _ := abi.JSON(strings.NewReader(decimalsABI))
	if _, err := smart.ReadContract(context.Background(), ContractCall{Address: target, ABI: parsed, Method: "decimals"}); err != nil {
		t.Fatalf("ReadContract failed: %v", err)
	}
	if chain.lastCall.From != common.HexToAddress(account) {
		t.Fatalf("expected reads from the smart account, got %s", chain.lastCall.From.Hex())
	}
}

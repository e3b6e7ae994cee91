package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/network"
)

const EvmWalletName = "eth_account_wallet_provider"

var (
	defaultTipCap  = big.NewInt(2_000_000_000)
	defaultBaseFee = big.NewInt(1_000_000_000)
)

// chainClient is the subset of ethclient.Client the EVM wallet relies on.
type chainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type EvmConfig struct {
	Network        network.Network
	RPCURL         string
	GasMultiplier  float64
	FeeMultiplier  float64
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	Logger         logrus.FieldLogger
}

func (c *EvmConfig) applyDefaults() {
	if c.GasMultiplier <= 1 {
		c.GasMultiplier = 1.2
	}
	if c.FeeMultiplier < 1 {
		c.FeeMultiplier = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// EvmWallet signs with a local key and submits EIP-1559 transactions over JSON-RPC.
type EvmWallet struct {
	client  chainClient
	key     *LocalKey
	cfg     EvmConfig
	chainID *big.Int

	// nonceMu serializes nonce allocation through broadcast for this address.
	nonceMu sync.Mutex
}

// NewEvmWallet dials the configured RPC endpoint and verifies that it serves
// the configured network.
func NewEvmWallet(ctx context.Context, key *LocalKey, cfg EvmConfig) (*EvmWallet, error) {
	if key == nil {
		return nil, clierr.New(clierr.CodeSigner, "missing signing key")
	}
	rpcURL, err := network.ResolveRPCURL(cfg.RPCURL, cfg.Network)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	w, err := newEvmWallet(ctx, client, key, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	return w, nil
}

func newEvmWallet(ctx context.Context, client chainClient, key *LocalKey, cfg EvmConfig) (*EvmWallet, error) {
	cfg.applyDefaults()
	if !cfg.Network.IsEVM() {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("network %s is not an EVM network", cfg.Network))
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if want := cfg.Network.EVMChainID(); want != 0 && chainID.Int64() != want {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc chain mismatch: %s expects chain %d, rpc serves %d", cfg.Network.NetworkID, want, chainID.Int64()))
	}
	return &EvmWallet{client: client, key: key, cfg: cfg, chainID: chainID}, nil
}

func (w *EvmWallet) Name() string { return EvmWalletName }

func (w *EvmWallet) Address() string { return w.key.Address().Hex() }

func (w *EvmWallet) Network() network.Network { return w.cfg.Network }

func (w *EvmWallet) Balance(ctx context.Context) (*big.Int, error) {
	return w.balanceOf(ctx, w.key.Address())
}

func (w *EvmWallet) balanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := w.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read balance", err)
	}
	return bal, nil
}

func (w *EvmWallet) SignMessage(_ context.Context, message []byte) (string, error) {
	return w.key.SignText(message)
}

func (w *EvmWallet) SignTypedData(_ context.Context, data apitypes.TypedData) (string, error) {
	return w.key.SignTypedData(data)
}

// NativeTransfer sends value (whole ether units) to the given address.
func (w *EvmWallet) NativeTransfer(ctx context.Context, to string, value decimal.Decimal) (string, error) {
	wei, err := wholeToAtomic(value, 18)
	if err != nil {
		return "", err
	}
	hash, err := w.SendTransaction(ctx, EvmTx{To: to, Value: wei})
	if err != nil {
		return "", fmt.Errorf("Failed to transfer native tokens: %w", err)
	}
	return hash, nil
}

func (w *EvmWallet) SendTransaction(ctx context.Context, req EvmTx) (string, error) {
	w.nonceMu.Lock()
	defer w.nonceMu.Unlock()

	signed, err := w.buildSigned(ctx, w.key.Address(), req)
	if err != nil {
		return "", err
	}
	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	hash := signed.Hash().Hex()
	w.cfg.Logger.WithFields(logrus.Fields{
		"wallet":  w.Address(),
		"to":      req.To,
		"nonce":   signed.Nonce(),
		"tx_hash": hash,
	}).Debug("transaction submitted")
	return hash, nil
}

// SignTransaction returns the raw signed transaction without broadcasting it.
func (w *EvmWallet) SignTransaction(ctx context.Context, req EvmTx) (string, error) {
	w.nonceMu.Lock()
	defer w.nonceMu.Unlock()

	signed, err := w.buildSigned(ctx, w.key.Address(), req)
	if err != nil {
		return "", err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode signed transaction", err)
	}
	return hexutil.Encode(raw), nil
}

func (w *EvmWallet) buildSigned(ctx context.Context, from common.Address, req EvmTx) (*types.Transaction, error) {
	if !common.IsHexAddress(req.To) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid destination address %q", req.To))
	}
	to := common.HexToAddress(req.To)
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: req.Data}

	gasLimit := req.Gas
	if gasLimit == 0 {
		estimated, err := w.client.EstimateGas(ctx, msg)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeActionSim, "estimate gas", err)
		}
		gasLimit = uint64(float64(estimated) * w.cfg.GasMultiplier)
	}

	tipCap, err := w.client.SuggestGasTipCap(ctx)
	if err != nil || tipCap == nil {
		tipCap = new(big.Int).Set(defaultTipCap)
	}
	header, err := w.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = defaultBaseFee
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	feeCap = scale(feeCap, w.cfg.FeeMultiplier)

	nonce, err := w.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})
	signed, err := w.key.SignTx(w.chainID, tx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	return signed, nil
}

// ReadContract performs an eth_call and decodes the method outputs. Reverts
// and empty returns are reported with CodeActionSim; transport failures with
// CodeUnavailable.
func (w *EvmWallet) ReadContract(ctx context.Context, call ContractCall) ([]any, error) {
	return w.readContractFrom(ctx, w.key.Address(), call)
}

func (w *EvmWallet) readContractFrom(ctx context.Context, from common.Address, call ContractCall) ([]any, error) {
	if !common.IsHexAddress(call.Address) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid contract address %q", call.Address))
	}
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "encode "+call.Method, err)
	}
	to := common.HexToAddress(call.Address)
	out, err := w.client.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		if ctx.Err() != nil || !isExecutionError(err) {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "call "+call.Method, err)
		}
		return nil, clierr.Wrap(clierr.CodeActionSim, "call "+call.Method, err)
	}
	if len(out) == 0 {
		return nil, clierr.New(clierr.CodeActionSim, fmt.Sprintf("call %s: empty return from %s", call.Method, call.Address))
	}
	values, err := call.ABI.Unpack(call.Method, out)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeActionSim, "decode "+call.Method, err)
	}
	return values, nil
}

func (w *EvmWallet) WaitForTransactionReceipt(ctx context.Context, hash string) (Receipt, error) {
	if !isTxHash(hash) {
		return Receipt{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid transaction hash %q", hash))
	}
	txHash := common.HexToHash(hash)
	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := w.client.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			out := Receipt{
				TransactionHash: txHash.Hex(),
				Status:          ReceiptFailed,
				GasUsed:         receipt.GasUsed,
			}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			if receipt.Status == types.ReceiptStatusSuccessful {
				out.Status = ReceiptSuccess
			}
			return out, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			w.cfg.Logger.WithError(err).WithField("tx_hash", hash).Debug("receipt poll failed")
		}
		select {
		case <-waitCtx.Done():
			return Receipt{}, clierr.Wrap(clierr.CodeActionTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// isExecutionError reports whether err came back from the node as a
// JSON-RPC error (revert, invalid opcode) rather than a transport failure.
func isExecutionError(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return true
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func isTxHash(v string) bool {
	clean := strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if len(clean) != 64 {
		return false
	}
	_, err := hexutil.Decode("0x" + clean)
	return err == nil
}

// wholeToAtomic converts whole units into atomic units, rejecting values
// that are not positive or carry more precision than the asset supports.
func wholeToAtomic(value decimal.Decimal, decimals int32) (*big.Int, error) {
	if !value.IsPositive() {
		return nil, clierr.New(clierr.CodeUsage, "amount must be greater than 0")
	}
	shifted := value.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %s exceeds %d decimals of precision", value.String(), decimals))
	}
	return shifted.BigInt(), nil
}

func scale(v *big.Int, factor float64) *big.Int {
	if factor == 1 {
		return v
	}
	f := decimal.NewFromBigInt(v, 0).Mul(decimal.NewFromFloat(factor)).Ceil()
	return f.BigInt()
}

package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/network"
)

const SolanaWalletName = "solana_keypair_wallet_provider"

type solanaClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

type SolanaConfig struct {
	Network        network.Network
	RPCURL         string
	Commitment     rpc.CommitmentType
	SkipPreflight  bool
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	Logger         logrus.FieldLogger
}

// SolanaWallet signs with a base58 ed25519 keypair. Balances and transfers
// are in lamports.
type SolanaWallet struct {
	client     solanaClient
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
	cfg        SolanaConfig

	sendMu sync.Mutex
}

func NewSolanaWallet(privateKeyBase58 string, cfg SolanaConfig) (*SolanaWallet, error) {
	rpcURL, err := network.ResolveRPCURL(cfg.RPCURL, cfg.Network)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	return newSolanaWallet(rpc.New(rpcURL), privateKeyBase58, cfg)
}

func newSolanaWallet(client solanaClient, privateKeyBase58 string, cfg SolanaConfig) (*SolanaWallet, error) {
	if !cfg.Network.IsSVM() {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("network %s is not a Solana network", cfg.Network))
	}
	if strings.TrimSpace(privateKeyBase58) == "" {
		return nil, clierr.New(clierr.CodeSigner, "missing solana private key: set AGENTKIT_SOLANA_PRIVATE_KEY")
	}
	pk, err := solana.PrivateKeyFromBase58(strings.TrimSpace(privateKeyBase58))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "parse solana private key", err)
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &SolanaWallet{client: client, privateKey: pk, publicKey: pk.PublicKey(), cfg: cfg}, nil
}

func (w *SolanaWallet) Name() string { return SolanaWalletName }

func (w *SolanaWallet) Address() string { return w.publicKey.String() }

func (w *SolanaWallet) Network() network.Network { return w.cfg.Network }

func (w *SolanaWallet) Balance(ctx context.Context) (*big.Int, error) {
	res, err := w.client.GetBalance(ctx, w.publicKey, w.cfg.Commitment)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read balance", err)
	}
	return new(big.Int).SetUint64(res.Value), nil
}

// SignMessage returns the base58 ed25519 signature of message.
func (w *SolanaWallet) SignMessage(_ context.Context, message []byte) (string, error) {
	sig, err := w.privateKey.Sign(message)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign message", err)
	}
	return sig.String(), nil
}

func (w *SolanaWallet) NativeTransfer(ctx context.Context, to string, value decimal.Decimal) (string, error) {
	recipient, err := solana.PublicKeyFromBase58(strings.TrimSpace(to))
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "invalid destination address", err)
	}
	lamports, err := wholeToAtomic(value, 9)
	if err != nil {
		return "", err
	}
	if !lamports.IsUint64() {
		return "", clierr.New(clierr.CodeUsage, "amount exceeds lamport range")
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports.Uint64(), w.publicKey, recipient).Build()},
		solana.Hash{},
		solana.TransactionPayer(w.publicKey),
	)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "build transfer", err)
	}
	sig, err := w.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("Failed to transfer native tokens: %w", err)
	}
	return sig, nil
}

// SendTransaction sets a fresh blockhash, signs as fee payer and submits tx.
func (w *SolanaWallet) SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	if tx == nil {
		return "", clierr.New(clierr.CodeUsage, "missing transaction")
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	recent, err := w.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch latest blockhash", err)
	}
	tx.Message.RecentBlockhash = recent.Value.Blockhash
	tx.Signatures = nil
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.publicKey) {
			return &w.privateKey
		}
		return nil
	}); err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	sig, err := w.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       w.cfg.SkipPreflight,
		PreflightCommitment: w.cfg.Commitment,
	})
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "send transaction", err)
	}
	w.cfg.Logger.WithFields(logrus.Fields{
		"wallet":    w.Address(),
		"signature": sig.String(),
	}).Debug("transaction submitted")
	return sig.String(), nil
}

func (w *SolanaWallet) WaitForTransactionReceipt(ctx context.Context, signature string) (Receipt, error) {
	sig, err := solana.SignatureFromBase58(strings.TrimSpace(signature))
	if err != nil {
		return Receipt{}, clierr.Wrap(clierr.CodeUsage, "invalid transaction signature", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		res, err := w.client.GetSignatureStatuses(waitCtx, true, sig)
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			status := res.Value[0]
			out := Receipt{TransactionHash: signature, BlockNumber: status.Slot}
			if status.Err != nil {
				out.Status = ReceiptFailed
				return out, nil
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				out.Status = ReceiptSuccess
				return out, nil
			}
		} else if err != nil && waitCtx.Err() == nil {
			w.cfg.Logger.WithError(err).WithField("signature", signature).Debug("signature status poll failed")
		}
		select {
		case <-waitCtx.Done():
			return Receipt{}, clierr.Wrap(clierr.CodeActionTimeout, "timed out waiting for confirmation", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

package weth

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/erc20"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
	"github.com/ggonzalez94/agentkit-go/internal/wallet/wallettest"
)

const baseWETH = "0x4200000000000000000000000000000000000006"

func newKit(t *testing.T, w *wallettest.EVM) *actions.AgentKit {
	t.Helper()
	kit, err := actions.New(actions.Config{Wallet: w, Providers: []actions.ActionProvider{New()}})
	if err != nil {
		t.Fatalf("actions.New failed: %v", err)
	}
	return kit
}

func eth(whole int64, frac int64) *big.Int {
	v := new(big.Int).Mul(big.NewInt(whole), big.NewInt(1e18))
	return v.Add(v, big.NewInt(frac))
}

func TestSupportsNetwork(t *testing.T) {
	p := New()
	for _, id := range []string{"base-mainnet", "base-sepolia", "ethereum-mainnet", "arbitrum-mainnet", "optimism-mainnet"} {
		if !p.SupportsNetwork(network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: id}) {
			t.Fatalf("expected %s to be supported", id)
		}
	}
	if p.SupportsNetwork(network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: "polygon-mainnet"}) {
		t.Fatal("polygon has no WETH entry")
	}
	if _, err := Address(network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: "polygon-mainnet"}); !clierr.HasCode(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	addr, err := Address(network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: "ethereum-mainnet"})
	if err != nil || addr != "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2" {
		t.Fatalf("unexpected mainnet WETH %s err=%v", addr, err)
	}
}

func TestWrap(t *testing.T) {
	w := wallettest.New()
	w.BalanceValue = eth(1, 0)
	kit := newKit(t, w)

	got, err := kit.Invoke(context.Background(), "WethActionProvider_wrap_eth", json.RawMessage(`{"amount_to_wrap":"0.1"}`))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "Wrapped 0.1 ETH to WETH. Transaction hash: "+wallettest.HashAt(1) {
		t.Fatalf("unexpected result %q", got)
	}
	tx := w.Sent[0]
	if !strings.EqualFold(tx.To, baseWETH) || tx.Value.String() != "100000000000000000" {
		t.Fatalf("unexpected deposit tx: %+v", tx)
	}
	if string(tx.Data) != string(erc20.WETHABI.Methods["deposit"].ID) {
		t.Fatalf("unexpected deposit calldata %x", tx.Data)
	}
}

func TestWrapInsufficientBalance(t *testing.T) {
	w := wallettest.New()
	w.BalanceValue = eth(0, 5e16)
	kit := newKit(t, w)

	got, _ := kit.Invoke(context.Background(), "WethActionProvider_wrap_eth", json.RawMessage(`{"amount_to_wrap":"0.1"}`))
	if !strings.HasPrefix(got, "Error: Insufficient ETH balance") || !strings.Contains(got, "0.05") {
		t.Fatalf("unexpected result %q", got)
	}
	if len(w.Sent) != 0 {
		t.Fatal("no deposit may be sent")
	}
}

func TestWrapValidation(t *testing.T) {
	kit := newKit(t, wallettest.New())
	cases := map[string]string{
		`{"amount_to_wrap":"abc"}`: "Amount must be a valid number",
		`{"amount_to_wrap":"0"}`:   "Amount must be greater than 0",
		`{}`:                       "amount_to_wrap: field required",
	}
	for raw, want := range cases {
		_, err := kit.Invoke(context.Background(), "WethActionProvider_wrap_eth", json.RawMessage(raw))
		if !clierr.HasCode(err, clierr.CodeUsage) || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: expected %q, got %v", raw, want, err)
		}
	}
}

func TestUnwrap(t *testing.T) {
	w := wallettest.New()
	w.AddToken(baseWETH, "Wrapped Ether", 18, eth(2, 0))
	kit := newKit(t, w)

	got, _ := kit.Invoke(context.Background(), "WethActionProvider_unwrap_eth", json.RawMessage(`{"amount_to_unwrap":"1.5"}`))
	if got != "Unwrapped 1.5 WETH to ETH. Transaction hash: "+wallettest.HashAt(1) {
		t.Fatalf("unexpected result %q", got)
	}
	args, err := erc20.WETHABI.Methods["withdraw"].Inputs.Unpack(w.Sent[0].Data[4:])
	if err != nil {
		t.Fatalf("decode withdraw: %v", err)
	}
	if args[0].(*big.Int).Cmp(eth(1, 5e17)) != 0 {
		t.Fatalf("unexpected withdraw amount %v", args[0])
	}
	if w.Sent[0].Value != nil {
		t.Fatal("withdraw must not carry value")
	}

	got, _ = kit.Invoke(context.Background(), "WethActionProvider_unwrap_eth", json.RawMessage(`{"amount_to_unwrap":"5"}`))
	if !strings.HasPrefix(got, "Error: Insufficient WETH balance") || !strings.Contains(got, "only 2 WETH") {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestUnwrapRevert(t *testing.T) {
	w := wallettest.New()
	w.AddToken(baseWETH, "Wrapped Ether", 18, eth(2, 0))
	w.Receipts[wallettest.HashAt(1)] = wallet.Receipt{Status: wallet.ReceiptFailed}
	kit := newKit(t, w)

	got, _ := kit.Invoke(context.Background(), "WethActionProvider_unwrap_eth", json.RawMessage(`{"amount_to_unwrap":"1"}`))
	if !strings.HasPrefix(got, "Error unwrapping WETH: ") || !strings.Contains(got, "reverted") {
		t.Fatalf("unexpected result %q", got)
	}
}

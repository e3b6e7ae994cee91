package app

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/agentkit-go/internal/config"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
	"github.com/ggonzalez94/agentkit-go/internal/wallet/wallettest"
)

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("agentkit journal list"); got != "journal list" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestShouldOpenStores(t *testing.T) {
	if !shouldOpenJournal("actions invoke") || !shouldOpenJournal("journal get") {
		t.Fatal("expected invoke and journal commands to open the journal")
	}
	if shouldOpenJournal("actions list") || shouldOpenJournal("tools export") {
		t.Fatal("did not expect listing commands to open the journal")
	}
	if !shouldOpenCache("mcp serve") || shouldOpenCache("version") {
		t.Fatal("unexpected cache policy")
	}
}

// isolate points every config, cache and journal path at a temp dir.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_CACHE_HOME", dir)
	for _, k := range []string{"AGENTKIT_PROVIDERS", "AGENTKIT_NETWORK_ID", "AGENTKIT_WALLET", "AGENTKIT_OUTPUT", "AGENTKIT_CACHE_PATH", "AGENTKIT_JOURNAL_PATH", "AGENTKIT_CDP_PROJECT_ID"} {
		t.Setenv(k, "")
	}
}

func newTestRunner(w *wallettest.EVM) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr).WithWalletFactory(
		func(context.Context, config.Settings, logrus.FieldLogger) (wallet.Provider, error) { return w, nil },
	)
	return r, &stdout, &stderr
}

func decodeJSON[T any](t *testing.T, buf *bytes.Buffer) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, buf.String())
	}
	return out
}

func TestRunnerActionsList(t *testing.T) {
	isolate(t)
	r, stdout, stderr := newTestRunner(wallettest.New())
	code := r.Run([]string{"actions", "list", "--providers", "erc20", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	items := decodeJSON[[]map[string]any](t, stdout)
	names := map[string]string{}
	for _, item := range items {
		names[item["name"].(string)] = item["provider"].(string)
	}
	if names["ERC20ActionProvider_get_balance"] != "erc20" || names["WalletActionProvider_get_wallet_details"] != "wallet" {
		t.Fatalf("unexpected catalog %v", names)
	}
	if _, ok := names["WethActionProvider_wrap_eth"]; ok {
		t.Fatal("weth was not enabled")
	}
}

func TestRunnerInvokeIsJournaled(t *testing.T) {
	isolate(t)
	w := wallettest.New()
	w.BalanceValue = big.NewInt(1_500_000_000_000_000_000)
	r, stdout, stderr := newTestRunner(w)
	code := r.Run([]string{"actions", "invoke", "WalletActionProvider_get_wallet_details", "--providers", "erc20", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	invoked := decodeJSON[map[string]any](t, stdout)
	if !strings.Contains(invoked["result"].(string), "1.5 ETH") {
		t.Fatalf("unexpected result %v", invoked)
	}
	entryID, _ := invoked["entry_id"].(string)
	if !strings.HasPrefix(entryID, "inv_") {
		t.Fatalf("expected a journal entry id, got %v", invoked)
	}

	r, stdout, stderr = newTestRunner(w)
	if code := r.Run([]string{"journal", "get", entryID, "--results-only"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	entry := decodeJSON[map[string]any](t, stdout)
	if entry["status"] != "completed" || entry["action"] != "WalletActionProvider_get_wallet_details" || entry["provider"] != "wallet" {
		t.Fatalf("unexpected journal entry %v", entry)
	}

	r, stdout, stderr = newTestRunner(w)
	if code := r.Run([]string{"journal", "list", "--status", "completed", "--results-only"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if entries := decodeJSON[[]map[string]any](t, stdout); len(entries) != 1 || entries[0]["entry_id"] != entryID {
		t.Fatalf("unexpected journal list %v", entries)
	}
}

func TestRunnerInvokeErrors(t *testing.T) {
	isolate(t)
	cases := []struct {
		name string
		args []string
		code int
		typ  string
	}{
		{"unknown action", []string{"actions", "invoke", "WalletActionProvider_nope"}, 2, "usage_error"},
		{"invalid args", []string{"actions", "invoke", "WalletActionProvider_native_transfer", "--args", `{"to":"0x1"}`}, 2, "usage_error"},
		{"malformed json", []string{"actions", "invoke", "WalletActionProvider_get_balance", "--args", `{`}, 2, "usage_error"},
		{"blocked action", []string{"actions", "invoke", "WalletActionProvider_native_transfer", "--enable-actions", "get_wallet_details"}, 16, "command_blocked"},
		{"unknown provider", []string{"actions", "list", "--providers", "aave"}, 2, "usage_error"},
		{"missing journal entry", []string{"journal", "get", "inv_missing"}, 2, "usage_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _, stderr := newTestRunner(wallettest.New())
			code := r.Run(tc.args)
			if code != tc.code {
				t.Fatalf("expected exit %d, got %d stderr=%s", tc.code, code, stderr.String())
			}
			env := decodeJSON[map[string]any](t, stderr)
			if env["success"] != false || env["error"].(map[string]any)["type"] != tc.typ {
				t.Fatalf("unexpected error envelope %v", env)
			}
		})
	}
}

func TestRunnerErrorEnvelopeIgnoresResultsOnly(t *testing.T) {
	isolate(t)
	r, _, stderr := newTestRunner(wallettest.New())
	code := r.Run([]string{"wallet", "details", "--enable-commands", "actions list", "--results-only"})
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, stderr.String())
	}
	env := decodeJSON[map[string]any](t, stderr)
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
}

func TestRunnerWalletDetails(t *testing.T) {
	isolate(t)
	w := wallettest.New()
	w.BalanceValue = big.NewInt(250_000_000_000_000_000)
	r, stdout, stderr := newTestRunner(w)
	if code := r.Run([]string{"wallet", "details"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	env := decodeJSON[map[string]any](t, stdout)
	data := env["data"].(map[string]any)
	if data["balance"] != "0.25" || data["native_symbol"] != "ETH" || data["address"] != wallettest.DefaultAddress {
		t.Fatalf("unexpected wallet details %v", data)
	}
	if data["network"].(map[string]any)["caip2"] != "eip155:8453" {
		t.Fatalf("unexpected network %v", data["network"])
	}
	meta := env["meta"].(map[string]any)
	if meta["network"] != "base-mainnet" || meta["command"] != "wallet details" {
		t.Fatalf("unexpected meta %v", meta)
	}
}

func TestRunnerProvidersList(t *testing.T) {
	isolate(t)
	w := wallettest.New()
	w.NetworkValue.NetworkID, w.NetworkValue.ChainID = "polygon-mainnet", "137"
	r, stdout, stderr := newTestRunner(w)
	if code := r.Run([]string{"providers", "list", "--providers", "erc20,weth,x402", "--results-only"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	supported := map[string]bool{}
	for _, p := range decodeJSON[[]map[string]any](t, stdout) {
		supported[p["name"].(string)] = p["supported"].(bool)
	}
	if !supported["wallet"] || !supported["erc20"] || supported["weth"] || supported["x402"] {
		t.Fatalf("unexpected provider support on polygon: %v", supported)
	}
}

func TestRunnerToolsExport(t *testing.T) {
	isolate(t)
	r, stdout, stderr := newTestRunner(wallettest.New())
	if code := r.Run([]string{"tools", "export", "--providers", "erc20", "--results-only"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	tools := decodeJSON[[]map[string]any](t, stdout)
	if len(tools) == 0 || tools[0]["type"] != "function" {
		t.Fatalf("unexpected openai tools %v", tools)
	}

	r, stdout, stderr = newTestRunner(wallettest.New())
	if code := r.Run([]string{"tools", "export", "--format", "mcp", "--providers", "erc20", "--results-only"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	mcpTools := decodeJSON[[]map[string]any](t, stdout)
	if len(mcpTools) != len(tools) || mcpTools[0]["inputSchema"] == nil {
		t.Fatalf("unexpected mcp tools %v", mcpTools)
	}

	r, _, _ = newTestRunner(wallettest.New())
	if code := r.Run([]string{"tools", "export", "--format", "langchain"}); code != 2 {
		t.Fatalf("expected usage error for unknown format, got %d", code)
	}
}

func TestRunnerMCPServeListsTools(t *testing.T) {
	isolate(t)
	r, stdout, stderr := newTestRunner(wallettest.New())
	r.WithStdin(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n"))
	if code := r.Run([]string{"mcp", "serve", "--providers", "erc20"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "ERC20ActionProvider_transfer") {
		t.Fatalf("expected tools/list response on stdout, got %s", stdout.String())
	}
}

func TestRunnerSchemaAndVersion(t *testing.T) {
	isolate(t)
	r, stdout, stderr := newTestRunner(wallettest.New())
	if code := r.Run([]string{"schema", "actions", "invoke", "--results-only"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	s := decodeJSON[map[string]any](t, stdout)
	if s["path"] != "agentkit actions invoke" {
		t.Fatalf("unexpected schema %v", s)
	}

	r, stdout, _ = newTestRunner(wallettest.New())
	if code := r.Run([]string{"version"}); code != 0 || strings.TrimSpace(stdout.String()) == "" {
		t.Fatalf("unexpected version output %q (exit %d)", stdout.String(), code)
	}
}

func TestRunnerOnrampProvider(t *testing.T) {
	isolate(t)
	r, _, stderr := newTestRunner(wallettest.New())
	if code := r.Run([]string{"actions", "list", "--providers", "onramp"}); code != 2 {
		t.Fatalf("expected usage error without a project id, got %d stderr=%s", code, stderr.String())
	}

	t.Setenv("AGENTKIT_CDP_PROJECT_ID", "test-project-id")
	r, stdout, stderr := newTestRunner(wallettest.New())
	code := r.Run([]string{"actions", "invoke", "OnrampActionProvider_get_onramp_buy_url", "--providers", "onramp", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	invoked := decodeJSON[map[string]any](t, stdout)
	if result, _ := invoked["result"].(string); !strings.HasPrefix(result, "https://pay.coinbase.com/buy?") || !strings.Contains(result, "appId=test-project-id") {
		t.Fatalf("unexpected onramp result %v", invoked)
	}
}

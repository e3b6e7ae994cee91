package x402

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/httpx"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/wallet/wallettest"
)

const (
	payTo = "0x9876543210987654321098765432109876543210"
	asset = "0x5555666677778888999900001111222233334444"
)

var baseSepolia = network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: "base-sepolia", ChainID: "84532"}

func requirementJSON(resource string) string {
	return `{"scheme":"exact","network":"base-sepolia","maxAmountRequired":"1000","resource":"` + resource +
		`","description":"Access to data","mimeType":"application/json","payTo":"` + payTo +
		`","maxTimeoutSeconds":300,"asset":"` + asset + `","extra":{"name":"USDC","version":"2"}}`
}

// paywall answers 402 until a payment header is presented and records the
// last decoded payment.
type paywall struct {
	srv      *httptest.Server
	payments []Payload
	bodies   []string
}

func newPaywall(t *testing.T) *paywall {
	t.Helper()
	pw := &paywall{}
	pw.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		pw.bodies = append(pw.bodies, string(body))
		if r.URL.Path == "/free" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":"success"}`))
			return
		}
		header := r.Header.Get(HeaderPayment)
		if header == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"x402Version":1,"error":"payment required","accepts":[` + requirementJSON(pw.srv.URL+r.URL.Path) + `]}`))
			return
		}
		raw, err := base64.StdEncoding.DecodeString(header)
		if err != nil {
			t.Errorf("payment header is not base64: %v", err)
		}
		var p Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.Errorf("payment header is not JSON: %v", err)
		}
		pw.payments = append(pw.payments, p)
		proof, _ := json.Marshal(Proof{Success: true, Transaction: "0xabcdef1234567890", Network: "base-sepolia", Payer: p.Payload.Authorization.From})
		w.Header().Set(HeaderPaymentResponse, base64.StdEncoding.EncodeToString(proof))
		_, _ = w.Write([]byte(`{"data":"paid_success"}`))
	}))
	t.Cleanup(pw.srv.Close)
	return pw
}

func newTestProvider() *Provider {
	p := New(httpx.New(2*time.Second, 0))
	p.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	p.random = func(b []byte) (int, error) {
		for i := range b {
			b[i] = 0x42
		}
		return len(b), nil
	}
	return p
}

func newKit(t *testing.T, w *wallettest.EVM, journal execution.Saver) *actions.AgentKit {
	t.Helper()
	kit, err := actions.New(actions.Config{Wallet: w, Providers: []actions.ActionProvider{newTestProvider()}, Journal: journal})
	if err != nil {
		t.Fatalf("actions.New failed: %v", err)
	}
	return kit
}

func sepoliaWallet() *wallettest.EVM {
	w := wallettest.New()
	w.NetworkValue = baseSepolia
	return w
}

func invoke(t *testing.T, kit *actions.AgentKit, name string, args any) map[string]any {
	t.Helper()
	raw, _ := json.Marshal(args)
	out, err := kit.Invoke(context.Background(), "X402ActionProvider_"+name, raw)
	if err != nil {
		t.Fatalf("Invoke %s failed: %v", name, err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("result is not JSON: %q", out)
	}
	return parsed
}

type memoryJournal struct{ last execution.Entry }

func (m *memoryJournal) Save(e execution.Entry) error {
	m.last = e
	return nil
}

func TestSupportsNetwork(t *testing.T) {
	cases := []struct {
		n    network.Network
		want bool
	}{
		{network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: "base-mainnet", ChainID: "1"}, true},
		{network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: "base-sepolia", ChainID: "1"}, true},
		{network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: "ethereum", ChainID: "1"}, false},
		{network.Network{ProtocolFamily: network.FamilySVM, NetworkID: "base-mainnet"}, false},
	}
	p := New(nil)
	for _, tc := range cases {
		if got := p.SupportsNetwork(tc.n); got != tc.want {
			t.Fatalf("SupportsNetwork(%+v) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestMakeHTTPRequestSuccess(t *testing.T) {
	pw := newPaywall(t)
	got := invoke(t, newKit(t, sepoliaWallet(), nil), "make_http_request", map[string]any{"url": pw.srv.URL + "/free"})
	if got["success"] != true || got["url"] != pw.srv.URL+"/free" || got["method"] != "GET" || got["status"] != float64(200) {
		t.Fatalf("unexpected result %v", got)
	}
	if data, _ := got["data"].(map[string]any); data["data"] != "success" {
		t.Fatalf("unexpected data %v", got["data"])
	}
}

func TestMakeHTTPRequestPaymentRequired(t *testing.T) {
	pw := newPaywall(t)
	w := sepoliaWallet()
	got := invoke(t, newKit(t, w, nil), "make_http_request", map[string]any{"url": pw.srv.URL + "/paid", "method": "POST", "body": map[string]any{"q": 1}})
	if got["status"] != "error_402_payment_required" {
		t.Fatalf("unexpected result %v", got)
	}
	options, _ := got["acceptablePaymentOptions"].([]any)
	if len(options) != 1 || options[0].(map[string]any)["network"] != "base-sepolia" {
		t.Fatalf("unexpected options %v", got["acceptablePaymentOptions"])
	}
	if steps, _ := got["nextSteps"].([]any); len(steps) != 4 {
		t.Fatalf("expected 4 next steps, got %v", got["nextSteps"])
	}
	if len(w.Typed) != 0 || len(pw.payments) != 0 {
		t.Fatal("a plain request must never pay")
	}
	if pw.bodies[0] != `{"q":1}` {
		t.Fatalf("unexpected request body %q", pw.bodies[0])
	}
}

func TestMakeHTTPRequestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	got := invoke(t, newKit(t, sepoliaWallet(), nil), "make_http_request", map[string]any{"url": url})
	if got["error"] != true || got["message"] == nil || got["details"] == nil || got["suggestion"] == nil {
		t.Fatalf("unexpected result %v", got)
	}
}

func TestMakeHTTPRequestValidation(t *testing.T) {
	kit := newKit(t, sepoliaWallet(), nil)
	for _, raw := range []string{`{}`, `{"url":"https://api.example.com","method":"INVALID"}`, `{"url":"ftp://x"}`} {
		if _, err := kit.Invoke(context.Background(), "X402ActionProvider_make_http_request", json.RawMessage(raw)); err == nil {
			t.Fatalf("expected validation error for %s", raw)
		}
	}
	if _, err := kit.Invoke(context.Background(), "X402ActionProvider_retry_http_request_with_x402", json.RawMessage(`{"url":"https://api.example.com"}`)); err == nil {
		t.Fatal("expected missing payment fields to be rejected")
	}
}

func TestRetryWithPayment(t *testing.T) {
	pw := newPaywall(t)
	w := sepoliaWallet()
	journal := &memoryJournal{}
	got := invoke(t, newKit(t, w, journal), "retry_http_request_with_x402", map[string]any{
		"url":                 pw.srv.URL + "/paid",
		"method":              "GET",
		"scheme":              "exact",
		"network":             "base-sepolia",
		"max_amount_required": "1000",
		"resource":            pw.srv.URL + "/paid",
		"pay_to":              payTo,
		"max_timeout_seconds": 300,
		"asset":               asset,
		"extra":               map[string]any{"name": "USDC", "version": "2"},
	})
	if got["success"] != true || got["message"] != "Request completed successfully with payment" {
		t.Fatalf("unexpected result %v", got)
	}
	details := got["details"].(map[string]any)
	if proof, _ := details["paymentProof"].(map[string]any); proof["transaction"] != "0xabcdef1234567890" {
		t.Fatalf("unexpected proof %v", details["paymentProof"])
	}

	if len(pw.payments) != 1 || len(w.Typed) != 1 {
		t.Fatalf("expected one signed payment, got %d payments %d signatures", len(pw.payments), len(w.Typed))
	}
	p := pw.payments[0]
	auth := p.Payload.Authorization
	if p.X402Version != 1 || p.Scheme != "exact" || p.Network != "base-sepolia" {
		t.Fatalf("unexpected payment envelope %+v", p)
	}
	if auth.From != common.HexToAddress(wallettest.DefaultAddress).Hex() || auth.To != common.HexToAddress(payTo).Hex() || auth.Value != "1000" {
		t.Fatalf("unexpected authorization %+v", auth)
	}
	if auth.ValidAfter != "1699999400" || auth.ValidBefore != "1700000300" {
		t.Fatalf("unexpected validity window %s..%s", auth.ValidAfter, auth.ValidBefore)
	}
	if auth.Nonce != "0x"+strings.Repeat("42", 32) || p.Payload.Signature != "0x"+strings.Repeat("ab", 65) {
		t.Fatalf("unexpected nonce/signature %s %s", auth.Nonce, p.Payload.Signature)
	}

	typed := w.Typed[0]
	if typed.PrimaryType != "TransferWithAuthorization" || typed.Domain.Name != "USDC" || typed.Domain.Version != "2" ||
		typed.Domain.VerifyingContract != common.HexToAddress(asset).Hex() || (*big.Int)(typed.Domain.ChainId).Int64() != 84532 {
		t.Fatalf("unexpected typed data domain %+v", typed.Domain)
	}

	steps := journal.last.Steps
	if len(steps) != 1 || steps[0].Type != execution.StepTypePayment || steps[0].Status != execution.StepStatusConfirmed || steps[0].TxHash != "0xabcdef1234567890" {
		t.Fatalf("unexpected journal steps %+v", steps)
	}
}

func TestRetryWithPaymentRejectsForeignNetwork(t *testing.T) {
	pw := newPaywall(t)
	w := wallettest.New()
	w.NetworkValue = network.Network{ProtocolFamily: network.FamilyEVM, NetworkID: "base-mainnet", ChainID: "8453"}
	got := invoke(t, newKit(t, w, nil), "retry_http_request_with_x402", map[string]any{
		"url":                 pw.srv.URL + "/paid",
		"scheme":              "exact",
		"network":             "base-sepolia",
		"max_amount_required": "1000",
		"resource":            pw.srv.URL + "/paid",
		"pay_to":              payTo,
		"max_timeout_seconds": 300,
		"asset":               asset,
	})
	if got["error"] != true || !strings.Contains(got["details"].(string), "does not match wallet network") {
		t.Fatalf("unexpected result %v", got)
	}
	if len(w.Typed) != 0 {
		t.Fatal("nothing may be signed for a foreign network")
	}
}

func TestMakeHTTPRequestWithPayment(t *testing.T) {
	pw := newPaywall(t)
	w := sepoliaWallet()
	got := invoke(t, newKit(t, w, nil), "make_http_request_with_x402", map[string]any{"url": pw.srv.URL + "/paid"})
	if got["success"] != true || got["message"] != "Request completed successfully (payment handled automatically if required)" {
		t.Fatalf("unexpected result %v", got)
	}
	if proof, _ := got["paymentProof"].(map[string]any); proof["transaction"] != "0xabcdef1234567890" {
		t.Fatalf("unexpected proof %v", got["paymentProof"])
	}
	if data, _ := got["data"].(map[string]any); data["data"] != "paid_success" {
		t.Fatalf("unexpected data %v", got["data"])
	}

	got = invoke(t, newKit(t, w, nil), "make_http_request_with_x402", map[string]any{"url": pw.srv.URL + "/free"})
	if got["success"] != true || got["paymentProof"] != nil {
		t.Fatalf("free endpoints must not pay: %v", got)
	}
	if len(pw.payments) != 1 {
		t.Fatalf("expected exactly one payment, got %d", len(pw.payments))
	}
}

func TestDecodePaymentResponse(t *testing.T) {
	proof, err := DecodePaymentResponse("")
	if err != nil || proof != nil {
		t.Fatalf("expected nil proof for empty header, got %v %v", proof, err)
	}
	if _, err := DecodePaymentResponse("not base64!"); err == nil {
		t.Fatal("expected decode error")
	}
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(Proof{Success: true, Transaction: "0x01", Network: "base", Payer: payTo})
	proof, err = DecodePaymentResponse(base64.StdEncoding.EncodeToString(buf.Bytes()))
	if err != nil || proof.Transaction != "0x01" || proof.Network != "base" {
		t.Fatalf("unexpected proof %+v err=%v", proof, err)
	}
}

// Package x402 makes HTTP requests to x402-protected endpoints and pays for
// them with EIP-3009 transfer authorizations signed by the wallet.
package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/httpx"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

var methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

type Provider struct {
	http   *httpx.Client
	now    func() time.Time
	random func([]byte) (int, error)
}

func New(client *httpx.Client) *Provider {
	return &Provider{http: client, now: time.Now, random: cryptoRandom}
}

func (*Provider) Name() string { return "x402" }

func (*Provider) Prefix() string { return "X402ActionProvider" }

func (*Provider) SupportsNetwork(n network.Network) bool {
	return n.IsEVM() && (n.NetworkID == "base-mainnet" || n.NetworkID == "base-sepolia")
}

func requestProperties() map[string]*actions.Property {
	return map[string]*actions.Property{
		"url":     {Type: "string", Description: "The URL of the API endpoint (can be localhost for development)", Pattern: `^https?://`},
		"method":  {Type: "string", Description: "The HTTP method to use for the request", Enum: methods, Default: http.MethodGet},
		"headers": {Type: "object", Description: "Optional headers to include in the request"},
		"body":    {Description: "Optional request body for POST/PUT/PATCH requests"},
	}
}

func (p *Provider) Actions(wallet.Provider) []actions.Action {
	retry := requestProperties()
	for name, prop := range map[string]*actions.Property{
		"scheme":              {Type: "string", Description: "The payment scheme to use"},
		"network":             {Type: "string", Description: "The network to use for payment"},
		"max_amount_required": {Type: "string", Description: "The maximum amount required for payment in atomic units", Pattern: `^[0-9]+$`},
		"resource":            {Type: "string", Description: "The resource URL being paid for"},
		"pay_to":              {Type: "string", Description: "The address to pay to", Validate: actions.EVMAddress},
		"max_timeout_seconds": {Type: "integer", Description: "The payment timeout in seconds", Minimum: actions.Float(1)},
		"asset":               {Type: "string", Description: "The asset contract address to pay with", Validate: actions.EVMAddress},
		"description":         {Type: "string", Description: "Description of the payment requirement"},
		"extra":               {Type: "object", Description: "Scheme specific payment details, such as the token's EIP-712 name and version"},
	} {
		retry[name] = prop
	}

	return []actions.Action{
		{
			Name: "make_http_request",
			Description: `Makes a basic HTTP request to an API endpoint. If the endpoint requires payment (returns 402),
it will return payment details that can be used with retry_http_request_with_x402.

EXAMPLES:
- Production API: make_http_request("https://api.example.com/weather")
- Local development: make_http_request("http://localhost:3000/api/data")

If you receive a 402 Payment Required response, use retry_http_request_with_x402 to handle the payment.`,
			Schema: &actions.Schema{Properties: requestProperties(), Required: []string{"url"}},
			Invoke: p.makeHTTPRequest,
		},
		{
			Name: "retry_http_request_with_x402",
			Description: `Retries an HTTP request with x402 payment after receiving a 402 Payment Required response.
This should be used after make_http_request returns a 402 response and the user has agreed to pay.

The payment details must be taken from one of the acceptable payment options returned in the 402 response.`,
			Schema: &actions.Schema{
				Properties: retry,
				Required:   []string{"url", "scheme", "network", "max_amount_required", "resource", "pay_to", "max_timeout_seconds", "asset"},
			},
			Invoke: p.retryWithPayment,
		},
		{
			Name: "make_http_request_with_x402",
			Description: `Makes an HTTP request and pays automatically if the endpoint answers 402 Payment Required.
Only use this when the user has explicitly asked to pay for the request without a separate confirmation step.`,
			Schema: &actions.Schema{Properties: requestProperties(), Required: []string{"url"}},
			Invoke: p.makeHTTPRequestWithPayment,
		},
	}
}

type requestArgs struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

type retryArgs struct {
	requestArgs
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"max_amount_required"`
	Resource          string         `json:"resource"`
	PayTo             string         `json:"pay_to"`
	MaxTimeoutSeconds int64          `json:"max_timeout_seconds"`
	Asset             string         `json:"asset"`
	Description       string         `json:"description"`
	Extra             map[string]any `json:"extra"`
}

func (a retryArgs) requirement() Requirement {
	return Requirement{
		Scheme:            a.Scheme,
		Network:           a.Network,
		MaxAmountRequired: a.MaxAmountRequired,
		Resource:          a.Resource,
		Description:       a.Description,
		PayTo:             a.PayTo,
		MaxTimeoutSeconds: a.MaxTimeoutSeconds,
		Asset:             a.Asset,
		Extra:             a.Extra,
	}
}

func (a requestArgs) method() string {
	if m := strings.ToUpper(strings.TrimSpace(a.Method)); m != "" {
		return m
	}
	return http.MethodGet
}

// body returns the request payload. JSON strings are sent verbatim, other
// JSON values are sent encoded.
func (a requestArgs) body() []byte {
	raw := bytes.TrimSpace(a.Body)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return raw
}

func render(v any) (string, error) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// responseData decodes a JSON body, falling back to the raw text.
func responseData(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}

func (p *Provider) send(ctx context.Context, args requestArgs, extra map[string]string) (*httpx.Response, error) {
	headers := map[string]string{}
	for k, v := range args.Headers {
		headers[k] = v
	}
	for k, v := range extra {
		headers[k] = v
	}
	req, err := httpx.NewRequest(ctx, args.method(), args.URL, args.body(), headers)
	if err != nil {
		return nil, err
	}
	return p.http.Do(ctx, req)
}

func networkError(args requestArgs, err error) (string, error) {
	return render(map[string]any{
		"error":      true,
		"message":    fmt.Sprintf("Network error when making request to %s", args.URL),
		"details":    err.Error(),
		"suggestion": "Please check the URL and your network connection, then try again.",
	})
}

func decodePaymentRequired(body []byte) paymentRequired {
	var pr paymentRequired
	_ = json.Unmarshal(body, &pr)
	if pr.Accepts == nil {
		pr.Accepts = []Requirement{}
	}
	return pr
}

func (p *Provider) makeHTTPRequest(ctx context.Context, _ wallet.Provider, raw json.RawMessage) (string, error) {
	var args requestArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	resp, err := p.send(ctx, args, nil)
	if err != nil {
		return networkError(args, err)
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return render(map[string]any{
			"success": resp.StatusCode < 400,
			"url":     args.URL,
			"method":  args.method(),
			"status":  resp.StatusCode,
			"data":    responseData(resp.Body),
		})
	}

	pr := decodePaymentRequired(resp.Body)
	options := make([]string, 0, len(pr.Accepts))
	for _, r := range pr.Accepts {
		options = append(options, fmt.Sprintf("%s %s of asset %s on %s", r.MaxAmountRequired, r.Scheme, r.Asset, r.Network))
	}
	return render(map[string]any{
		"status":                   "error_402_payment_required",
		"acceptablePaymentOptions": pr.Accepts,
		"nextSteps": []string{
			"Inform the user that the requested server replied with a 402 Payment Required response.",
			"The payment options are: " + strings.Join(options, "; "),
			"Ask the user if they want to retry the request with payment.",
			"Use retry_http_request_with_x402 to retry the request with payment.",
		},
	})
}

func (p *Provider) retryWithPayment(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	var args retryArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	evm, err := actions.EVMWallet(w)
	if err != nil {
		return "", err
	}
	resp, proof, err := p.pay(ctx, evm, args.requestArgs, args.requirement(), protocolVersion)
	if err != nil {
		return render(map[string]any{"error": true, "message": "Error retrying request with payment", "details": err.Error()})
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		return render(map[string]any{
			"error":   true,
			"message": "Payment was rejected by the server",
			"details": decodePaymentRequired(resp.Body),
		})
	}
	return render(map[string]any{
		"success": true,
		"message": "Request completed successfully with payment",
		"details": map[string]any{
			"url":          args.URL,
			"method":       args.method(),
			"status":       resp.StatusCode,
			"data":         responseData(resp.Body),
			"paymentProof": proof,
		},
	})
}

func (p *Provider) makeHTTPRequestWithPayment(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	var args requestArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	evm, err := actions.EVMWallet(w)
	if err != nil {
		return "", err
	}
	resp, err := p.send(ctx, args, nil)
	if err != nil {
		return networkError(args, err)
	}

	var proof *Proof
	if resp.StatusCode == http.StatusPaymentRequired {
		pr := decodePaymentRequired(resp.Body)
		req, ok := selectRequirement(pr.Accepts, evm)
		if !ok {
			return render(map[string]any{
				"error":                    true,
				"message":                  "No acceptable payment option for this wallet",
				"acceptablePaymentOptions": pr.Accepts,
			})
		}
		resp, proof, err = p.pay(ctx, evm, args, req, pr.X402Version)
		if err != nil {
			return render(map[string]any{"error": true, "message": "Error making request with payment", "details": err.Error()})
		}
	}
	return render(map[string]any{
		"success":      resp.StatusCode < 400,
		"message":      "Request completed successfully (payment handled automatically if required)",
		"url":          args.URL,
		"method":       args.method(),
		"status":       resp.StatusCode,
		"data":         responseData(resp.Body),
		"paymentProof": proof,
	})
}

func selectRequirement(accepts []Requirement, w wallet.EvmProvider) (Requirement, bool) {
	for _, r := range accepts {
		if payable(r, w) == nil {
			return r, true
		}
	}
	return Requirement{}, false
}

// pay sends the request with a signed X-PAYMENT header and journals the
// payment step.
func (p *Provider) pay(ctx context.Context, w wallet.EvmProvider, args requestArgs, req Requirement, version int) (*httpx.Response, *Proof, error) {
	rec := execution.RecorderFrom(ctx)
	detail := fmt.Sprintf("%s of %s to %s", req.MaxAmountRequired, req.Asset, req.PayTo)
	rec.Step(execution.Step{Type: execution.StepTypePayment, Status: execution.StepStatusPending, Detail: detail})

	header, err := p.paymentHeader(ctx, w, req, version)
	if err != nil {
		rec.Step(execution.Step{Type: execution.StepTypePayment, Status: execution.StepStatusFailed, Error: err.Error()})
		return nil, nil, err
	}
	resp, err := p.send(ctx, args, map[string]string{HeaderPayment: header})
	if err != nil {
		rec.Step(execution.Step{Type: execution.StepTypePayment, Status: execution.StepStatusFailed, Error: err.Error()})
		return nil, nil, err
	}
	rec.Step(execution.Step{Type: execution.StepTypePayment, Status: execution.StepStatusSubmitted})

	proof, err := DecodePaymentResponse(resp.Header.Get(HeaderPaymentResponse))
	if err != nil {
		rec.Step(execution.Step{Type: execution.StepTypePayment, Status: execution.StepStatusFailed, Error: err.Error()})
		return resp, nil, nil
	}
	if proof != nil && proof.Success {
		rec.Step(execution.Step{Type: execution.StepTypePayment, Status: execution.StepStatusConfirmed, TxHash: proof.Transaction})
	}
	return resp, proof, nil
}

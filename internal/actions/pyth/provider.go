// Package pyth looks up Pyth price feeds and their latest prices through the
// Hermes API.
package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	"github.com/ggonzalez94/agentkit-go/internal/cache"
	"github.com/ggonzalez94/agentkit-go/internal/httpx"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

const (
	DefaultHermesURL = "https://hermes.pyth.network"
	feedCacheTTL     = time.Hour
)

type Provider struct {
	http    *httpx.Client
	baseURL string
	cache   *cache.Store
}

// New returns a provider backed by Hermes at baseURL. store may be nil.
func New(client *httpx.Client, baseURL string, store *cache.Store) *Provider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultHermesURL
	}
	return &Provider{http: client, baseURL: strings.TrimRight(baseURL, "/"), cache: store}
}

func (*Provider) Name() string { return "pyth" }

func (*Provider) Prefix() string { return "PythActionProvider" }

func (*Provider) SupportsNetwork(network.Network) bool { return true }

func (p *Provider) Actions(wallet.Provider) []actions.Action {
	return []actions.Action{
		{
			Name: "fetch_price_feed",
			Description: `Fetch the price feed ID for a given token symbol from Pyth.

Inputs:
- token_symbol: The asset ticker to look up, e.g. BTC, ETH, COIN
- quote_currency: The quote currency, defaults to USD
- asset_type: crypto, equity, fx or metal, defaults to crypto

For equities the regular market hours feed is preferred over pre and post market feeds.`,
			Schema: &actions.Schema{
				Properties: map[string]*actions.Property{
					"token_symbol":   {Type: "string", Description: "The token symbol to fetch the price feed ID for"},
					"quote_currency": {Type: "string", Description: "The quote currency", Default: "USD"},
					"asset_type":     {Type: "string", Description: "The asset type", Default: "crypto", Enum: []string{"crypto", "equity", "fx", "metal"}},
				},
				Required: []string{"token_symbol"},
			},
			Invoke: p.fetchPriceFeed,
		},
		{
			Name: "fetch_price",
			Description: `Fetch the latest price for a Pyth price feed ID.
The feed ID is returned by fetch_price_feed. The price is returned in whole units of the quote currency.`,
			Schema: &actions.Schema{
				Properties: map[string]*actions.Property{
					"price_feed_id": {Type: "string", Description: "The price feed ID to fetch the price for"},
				},
				Required: []string{"price_feed_id"},
			},
			Invoke: p.fetchPrice,
		},
	}
}

type feedResult struct {
	Success       bool   `json:"success"`
	PriceFeedID   string `json:"priceFeedID,omitempty"`
	TokenSymbol   string `json:"tokenSymbol,omitempty"`
	QuoteCurrency string `json:"quoteCurrency,omitempty"`
	FeedType      string `json:"feedType,omitempty"`
	Price         string `json:"price,omitempty"`
	Error         string `json:"error,omitempty"`
}

type priceFeed struct {
	ID         string `json:"id"`
	Attributes struct {
		Base          string `json:"base"`
		QuoteCurrency string `json:"quote_currency"`
		AssetType     string `json:"asset_type"`
		Symbol        string `json:"symbol"`
		DisplaySymbol string `json:"display_symbol"`
	} `json:"attributes"`
}

func render(r feedResult) (string, error) {
	buf, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func failure(err error) (string, error) {
	return render(feedResult{Error: err.Error()})
}

func (p *Provider) fetchPriceFeed(ctx context.Context, _ wallet.Provider, raw json.RawMessage) (string, error) {
	var args struct {
		TokenSymbol   string `json:"token_symbol"`
		QuoteCurrency string `json:"quote_currency"`
		AssetType     string `json:"asset_type"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	symbol := strings.ToUpper(strings.TrimSpace(args.TokenSymbol))
	quote := strings.ToUpper(strings.TrimSpace(args.QuoteCurrency))
	if quote == "" {
		quote = "USD"
	}
	assetType := strings.ToLower(strings.TrimSpace(args.AssetType))
	if assetType == "" {
		assetType = "crypto"
	}

	cacheKey := fmt.Sprintf("pyth:feed:%s:%s:%s", assetType, symbol, quote)
	var cached feedResult
	if ok, _ := p.cache.GetJSON(cacheKey, &cached); ok {
		return render(cached)
	}

	q := url.Values{}
	q.Set("query", symbol)
	q.Set("asset_type", assetType)
	var feeds []priceFeed
	if err := p.get(ctx, p.baseURL+"/v2/price_feeds?"+q.Encode(), &feeds); err != nil {
		return failure(err)
	}

	feed, ok := selectFeed(feeds, symbol, quote, assetType)
	if !ok {
		return failure(fmt.Errorf("No price feed found for %s", args.TokenSymbol))
	}
	result := feedResult{
		Success:       true,
		PriceFeedID:   feed.ID,
		TokenSymbol:   symbol,
		QuoteCurrency: quote,
		FeedType:      feed.Attributes.DisplaySymbol,
	}
	_ = p.cache.SetJSON(cacheKey, result, feedCacheTTL)
	return render(result)
}

// selectFeed picks the feed matching base and quote. Equity feeds prefer the
// regular session over the .PRE and .POST variants.
func selectFeed(feeds []priceFeed, symbol, quote, assetType string) (priceFeed, bool) {
	var matches []priceFeed
	for _, f := range feeds {
		if strings.EqualFold(f.Attributes.Base, symbol) && strings.EqualFold(f.Attributes.QuoteCurrency, quote) {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return priceFeed{}, false
	}
	if assetType == "equity" {
		for _, f := range matches {
			s := strings.ToUpper(f.Attributes.Symbol)
			if !strings.HasSuffix(s, ".PRE") && !strings.HasSuffix(s, ".POST") {
				return f, true
			}
		}
	}
	return matches[0], true
}

func (p *Provider) fetchPrice(ctx context.Context, _ wallet.Provider, raw json.RawMessage) (string, error) {
	var args struct {
		PriceFeedID string `json:"price_feed_id"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	var payload struct {
		Parsed []struct {
			ID    string `json:"id"`
			Price struct {
				Price string `json:"price"`
				Expo  int32  `json:"expo"`
			} `json:"price"`
		} `json:"parsed"`
	}
	q := url.Values{}
	q.Add("ids[]", args.PriceFeedID)
	if err := p.get(ctx, p.baseURL+"/v2/updates/price/latest?"+q.Encode(), &payload); err != nil {
		return failure(err)
	}
	if len(payload.Parsed) == 0 {
		return failure(fmt.Errorf("No price data found for %s", args.PriceFeedID))
	}

	price, err := scalePrice(payload.Parsed[0].Price.Price, payload.Parsed[0].Price.Expo)
	if err != nil {
		return failure(err)
	}
	return render(feedResult{Success: true, PriceFeedID: args.PriceFeedID, Price: price})
}

// scalePrice applies a Pyth exponent to an integer price string.
func scalePrice(raw string, expo int32) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid price %q: %w", raw, err)
	}
	return d.Shift(expo).String(), nil
}

func (p *Provider) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.http.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode hermes response: %w", err)
	}
	return nil
}

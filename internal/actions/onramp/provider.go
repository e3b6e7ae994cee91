// Package onramp builds Coinbase Onramp links that fund the connected wallet
// with fiat.
package onramp

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

const (
	BuyURL     = "https://pay.coinbase.com/buy"
	SDKVersion = "onchainkit@0.38.19"
)

// onrampNetworks maps network ids to the names the onramp widget expects.
var onrampNetworks = map[string]string{
	"base-mainnet":     "base",
	"ethereum-mainnet": "ethereum",
	"arbitrum-mainnet": "arbitrum",
	"optimism-mainnet": "optimism",
	"polygon-mainnet":  "polygon",
}

type Provider struct {
	projectID string
}

func New(projectID string) (*Provider, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, clierr.New(clierr.CodeUsage, "onramp provider requires a CDP project id (AGENTKIT_CDP_PROJECT_ID or onramp.project_id)")
	}
	return &Provider{projectID: projectID}, nil
}

func (*Provider) Name() string { return "onramp" }

func (*Provider) Prefix() string { return "OnrampActionProvider" }

func (*Provider) SupportsNetwork(n network.Network) bool { return n.IsEVM() }

func (p *Provider) Actions(wallet.Provider) []actions.Action {
	return []actions.Action{{
		Name: "get_onramp_buy_url",
		Description: `This tool generates a URL the user can open to buy crypto with fiat and send it to the connected wallet.
Use it when the wallet needs funds and the user wants to top it up with a card or bank account.
It takes no inputs. The URL targets the wallet's current network, which must be a supported mainnet.`,
		Schema: &actions.Schema{},
		Invoke: p.getBuyURL,
	}}
}

func (p *Provider) getBuyURL(_ context.Context, w wallet.Provider, _ json.RawMessage) (string, error) {
	return p.BuyURL(w.Address(), w.Network())
}

func (p *Provider) BuyURL(address string, n network.Network) (string, error) {
	if strings.TrimSpace(n.NetworkID) == "" {
		return "", errors.New("Network ID is not set")
	}
	name, ok := onrampNetworks[n.NetworkID]
	if !ok {
		return "", errors.New("Network ID is not supported. Make sure you are using a supported mainnet network.")
	}
	addresses, err := json.Marshal(map[string][]string{address: {name}})
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("appId", p.projectID)
	q.Set("addresses", string(addresses))
	q.Set("defaultNetwork", name)
	q.Set("sdkVersion", SDKVersion)
	return BuyURL + "?" + q.Encode(), nil
}

package network

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
)

const (
	FamilyEVM = "evm"
	FamilySVM = "svm"
)

// Network identifies the chain a wallet is connected to. It is a comparable
// value; support checks compare whole values or individual fields.
type Network struct {
	ProtocolFamily string `json:"protocol_family"`
	NetworkID      string `json:"network_id,omitempty"`
	ChainID        string `json:"chain_id,omitempty"`
}

func (n Network) IsEVM() bool { return n.ProtocolFamily == FamilyEVM }

func (n Network) IsSVM() bool { return n.ProtocolFamily == FamilySVM }

// EVMChainID returns the numeric chain id, or 0 when the network has none.
func (n Network) EVMChainID() int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(n.ChainID), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// CAIP2 returns the CAIP-2 chain identifier when it is known.
func (n Network) CAIP2() string {
	if info, ok := Lookup(n.NetworkID); ok {
		return info.CAIP2
	}
	if n.IsEVM() && n.ChainID != "" {
		return "eip155:" + n.ChainID
	}
	return ""
}

func (n Network) String() string {
	if n.NetworkID != "" {
		return n.NetworkID
	}
	if n.ChainID != "" {
		return n.ProtocolFamily + ":" + n.ChainID
	}
	return n.ProtocolFamily
}

type Info struct {
	Network
	Name           string
	CAIP2          string
	NativeSymbol   string
	NativeDecimals int
	DefaultRPCURL  string
}

var (
	eip155Pattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	solanaPattern = regexp.MustCompile(`^solana:[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

const (
	solanaMainnetCAIP2 = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	solanaDevnetCAIP2  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
	solanaTestnetCAIP2 = "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z"
)

var known = []Info{
	evm("base-mainnet", "Base", 8453, "ETH", "https://mainnet.base.org"),
	evm("base-sepolia", "Base Sepolia", 84532, "ETH", "https://sepolia.base.org"),
	evm("ethereum-mainnet", "Ethereum", 1, "ETH", "https://eth.llamarpc.com"),
	evm("ethereum-sepolia", "Ethereum Sepolia", 11155111, "ETH", "https://rpc.sepolia.org"),
	evm("arbitrum-mainnet", "Arbitrum", 42161, "ETH", "https://arb1.arbitrum.io/rpc"),
	evm("optimism-mainnet", "Optimism", 10, "ETH", "https://mainnet.optimism.io"),
	evm("polygon-mainnet", "Polygon", 137, "POL", "https://polygon-rpc.com"),
	svm("solana-mainnet", "Solana", solanaMainnetCAIP2, "https://api.mainnet-beta.solana.com"),
	svm("solana-devnet", "Solana Devnet", solanaDevnetCAIP2, "https://api.devnet.solana.com"),
	svm("solana-testnet", "Solana Testnet", solanaTestnetCAIP2, "https://api.testnet.solana.com"),
}

var aliases = map[string]string{
	"base":     "base-mainnet",
	"ethereum": "ethereum-mainnet",
	"mainnet":  "ethereum-mainnet",
	"sepolia":  "ethereum-sepolia",
	"arbitrum": "arbitrum-mainnet",
	"optimism": "optimism-mainnet",
	"polygon":  "polygon-mainnet",
	"solana":   "solana-mainnet",
}

func evm(id, name string, chainID int64, symbol, rpc string) Info {
	return Info{
		Network:        Network{ProtocolFamily: FamilyEVM, NetworkID: id, ChainID: strconv.FormatInt(chainID, 10)},
		Name:           name,
		CAIP2:          fmt.Sprintf("eip155:%d", chainID),
		NativeSymbol:   symbol,
		NativeDecimals: 18,
		DefaultRPCURL:  rpc,
	}
}

func svm(id, name, caip2, rpc string) Info {
	return Info{
		Network:        Network{ProtocolFamily: FamilySVM, NetworkID: id},
		Name:           name,
		CAIP2:          caip2,
		NativeSymbol:   "SOL",
		NativeDecimals: 9,
		DefaultRPCURL:  rpc,
	}
}

func Lookup(networkID string) (Info, bool) {
	id := strings.ToLower(strings.TrimSpace(networkID))
	for _, info := range known {
		if info.NetworkID == id {
			return info, true
		}
	}
	return Info{}, false
}

func Known() []Info {
	out := make([]Info, len(known))
	copy(out, known)
	return out
}

// Parse resolves a network id, alias, numeric EVM chain id or CAIP-2 id.
// Unknown EVM chain ids produce a bare evm network without a network id.
func Parse(input string) (Info, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Info{}, clierr.New(clierr.CodeUsage, "network is required")
	}
	norm := strings.ToLower(raw)
	if alias, ok := aliases[norm]; ok {
		norm = alias
	}
	if info, ok := Lookup(norm); ok {
		return info, nil
	}
	if eip155Pattern.MatchString(norm) {
		norm = strings.TrimPrefix(norm, "eip155:")
	}
	if solanaPattern.MatchString(raw) {
		for _, info := range known {
			if info.CAIP2 == raw {
				return info, nil
			}
		}
		return Info{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unknown solana cluster: %s", raw))
	}
	if chainID, err := strconv.ParseInt(norm, 10, 64); err == nil && chainID > 0 {
		for _, info := range known {
			if info.EVMChainID() == chainID {
				return info, nil
			}
		}
		return Info{
			Network:        Network{ProtocolFamily: FamilyEVM, ChainID: norm},
			Name:           fmt.Sprintf("EVM-%d", chainID),
			CAIP2:          "eip155:" + norm,
			NativeSymbol:   "ETH",
			NativeDecimals: 18,
		}, nil
	}
	return Info{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported network input: %s", input))
}

// NativeSymbol returns the native asset symbol for a network, defaulting by family.
func NativeSymbol(n Network) string {
	if info, ok := Lookup(n.NetworkID); ok {
		return info.NativeSymbol
	}
	if n.IsSVM() {
		return "SOL"
	}
	return "ETH"
}

// ResolveRPCURL prefers an explicit override over the network default.
func ResolveRPCURL(override string, n Network) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if info, ok := Lookup(n.NetworkID); ok && info.DefaultRPCURL != "" {
		return info.DefaultRPCURL, nil
	}
	return "", fmt.Errorf("no default rpc configured for network %s; provide --rpc-url", n)
}

type Token struct {
	Symbol   string
	Address  string
	Decimals int
}

var tokenRegistry = map[string][]Token{
	"ethereum-mainnet": {
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
	},
	"base-mainnet": {
		{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		{Symbol: "DAI", Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"base-sepolia": {
		{Symbol: "USDC", Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Decimals: 6},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"arbitrum-mainnet": {
		{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		{Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebe478A1C0b69FCbb9", Decimals: 6},
		{Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
	},
	"optimism-mainnet": {
		{Symbol: "USDC", Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"polygon-mainnet": {
		{Symbol: "USDC", Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
	},
}

func KnownToken(networkID, symbol string) (Token, bool) {
	for _, t := range tokenRegistry[strings.ToLower(strings.TrimSpace(networkID))] {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

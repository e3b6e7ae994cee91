package network

import "testing"

func TestParseVariants(t *testing.T) {
	info, err := Parse("base")
	if err != nil {
		t.Fatalf("Parse(base) failed: %v", err)
	}
	if info.NetworkID != "base-mainnet" || info.ChainID != "8453" {
		t.Fatalf("unexpected network: %+v", info.Network)
	}

	info, err = Parse("8453")
	if err != nil {
		t.Fatalf("Parse(8453) failed: %v", err)
	}
	if info.NetworkID != "base-mainnet" {
		t.Fatalf("unexpected network id: %s", info.NetworkID)
	}

	info, err = Parse("eip155:999999")
	if err != nil {
		t.Fatalf("Parse(eip155:999999) failed: %v", err)
	}
	if info.EVMChainID() != 999999 || info.NetworkID != "" {
		t.Fatalf("unexpected custom chain: %+v", info.Network)
	}

	info, err = Parse("solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1")
	if err != nil {
		t.Fatalf("Parse(solana devnet caip2) failed: %v", err)
	}
	if info.NetworkID != "solana-devnet" || !info.IsSVM() || info.ChainID != "" {
		t.Fatalf("unexpected solana network: %+v", info.Network)
	}
}

func TestParseRejectsUnknownInput(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Fatal("expected error for empty network")
	}
	if _, err := Parse("not-a-chain"); err == nil {
		t.Fatal("expected error for unknown network")
	}
}

func TestNetworkEquality(t *testing.T) {
	a := Network{ProtocolFamily: FamilyEVM, NetworkID: "base-mainnet", ChainID: "8453"}
	info, _ := Lookup("base-mainnet")
	if a != info.Network {
		t.Fatalf("expected equal networks: %+v vs %+v", a, info.Network)
	}
	if a.CAIP2() != "eip155:8453" {
		t.Fatalf("unexpected caip2: %s", a.CAIP2())
	}
}

func TestResolveRPCURL(t *testing.T) {
	n := Network{ProtocolFamily: FamilyEVM, NetworkID: "ethereum-mainnet", ChainID: "1"}
	got, err := ResolveRPCURL("", n)
	if err != nil || got != "https://eth.llamarpc.com" {
		t.Fatalf("unexpected default rpc: %s err=%v", got, err)
	}
	got, err = ResolveRPCURL(" http://localhost:8545 ", n)
	if err != nil || got != "http://localhost:8545" {
		t.Fatalf("expected override to win, got %s err=%v", got, err)
	}
	if _, err := ResolveRPCURL("", Network{ProtocolFamily: FamilyEVM, ChainID: "999"}); err == nil {
		t.Fatal("expected error for unknown network without override")
	}
}

func TestKnownToken(t *testing.T) {
	weth, ok := KnownToken("arbitrum-mainnet", "weth")
	if !ok || weth.Address != "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1" {
		t.Fatalf("unexpected weth lookup: %+v ok=%v", weth, ok)
	}
	if _, ok := KnownToken("polygon-mainnet", "WETH"); ok {
		t.Fatal("did not expect WETH on polygon registry")
	}
	if NativeSymbol(Network{ProtocolFamily: FamilySVM}) != "SOL" {
		t.Fatal("expected SOL for svm family fallback")
	}
}

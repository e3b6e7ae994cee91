package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
)

func TestCheckCommandAllowed(t *testing.T) {
	if err := CheckCommandAllowed(nil, "actions invoke"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckCommandAllowed([]string{"actions  Invoke"}, "actions invoke"); err != nil {
		t.Fatalf("expected command to be allowed: %v", err)
	}
	if err := CheckCommandAllowed([]string{"actions list"}, "actions invoke"); !clierr.HasCode(err, clierr.CodeBlocked) {
		t.Fatalf("expected command to be blocked, got %v", err)
	}
}

func TestCheckActionAllowed(t *testing.T) {
	cases := []struct {
		allow []string
		name  string
		ok    bool
	}{
		{nil, "ERC20ActionProvider_transfer", true},
		{[]string{"erc20actionprovider_transfer"}, "ERC20ActionProvider_transfer", true},
		{[]string{"transfer"}, "ERC20ActionProvider_transfer", true},
		{[]string{"transfer"}, "WalletActionProvider_native_transfer", false},
		{[]string{"native_transfer"}, "WalletActionProvider_native_transfer", true},
		{[]string{"WalletActionProvider_*"}, "WalletActionProvider_get_balance", true},
		{[]string{"WalletActionProvider_*"}, "ERC20ActionProvider_get_balance", false},
		{[]string{"", "swap"}, "CdpEvmWalletActionProvider_get_swap_price", false},
	}
	for _, tc := range cases {
		err := CheckActionAllowed(tc.allow, tc.name)
		if tc.ok && err != nil {
			t.Fatalf("%v should allow %s: %v", tc.allow, tc.name, err)
		}
		if !tc.ok && !clierr.HasCode(err, clierr.CodeBlocked) {
			t.Fatalf("%v should block %s, got %v", tc.allow, tc.name, err)
		}
	}
}

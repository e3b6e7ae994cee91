// Package erc20 resolves token metadata and balances through a wallet's
// contract read capability.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/units"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

// NativeToken is the sentinel address used for the chain's native asset.
const NativeToken = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// TokenDetails is resolved per query and never cached.
type TokenDetails struct {
	Address          string   `json:"address"`
	Name             string   `json:"name"`
	Decimals         int      `json:"decimals"`
	Balance          *big.Int `json:"balance"`
	FormattedBalance string   `json:"formattedBalance"`
	Allowance        *big.Int `json:"allowance,omitempty"`
}

func IsNative(address string) bool {
	return strings.EqualFold(strings.TrimSpace(address), NativeToken)
}

// GetTokenDetails resolves name, decimals and the wallet's balance for token.
// When spender is non-empty the wallet's allowance for spender is read too.
//
// It returns (nil, nil) when the address is malformed or does not behave as
// an ERC20 contract. Transport failures are returned as errors.
func GetTokenDetails(ctx context.Context, w wallet.EvmProvider, token, spender string) (*TokenDetails, error) {
	token = strings.TrimSpace(token)
	if IsNative(token) {
		bal, err := w.Balance(ctx)
		if err != nil {
			return nil, err
		}
		return &TokenDetails{
			Address:          NativeToken,
			Name:             network.NativeSymbol(w.Network()),
			Decimals:         18,
			Balance:          bal,
			FormattedBalance: units.FormatUnits(bal, 18),
		}, nil
	}
	if !common.IsHexAddress(token) {
		return nil, nil
	}

	decimals, ok, err := readUint8(ctx, w, token, "decimals")
	if err != nil || !ok {
		return nil, err
	}
	name, ok, err := readString(ctx, w, token, "name")
	if err != nil || !ok {
		return nil, err
	}
	balance, ok, err := readBig(ctx, w, token, "balanceOf", common.HexToAddress(w.Address()))
	if err != nil || !ok {
		return nil, err
	}

	details := &TokenDetails{
		Address:          common.HexToAddress(token).Hex(),
		Name:             name,
		Decimals:         int(decimals),
		Balance:          balance,
		FormattedBalance: units.FormatUnits(balance, int(decimals)),
	}
	if strings.TrimSpace(spender) != "" {
		allowance, err := Allowance(ctx, w, token, spender)
		if err != nil {
			return nil, err
		}
		details.Allowance = allowance
	}
	return details, nil
}

// GetTokenDetailsPair resolves both legs of a swap. Either result may be nil.
func GetTokenDetailsPair(ctx context.Context, w wallet.EvmProvider, from, to string) (*TokenDetails, *TokenDetails, error) {
	fromDetails, err := GetTokenDetails(ctx, w, from, "")
	if err != nil {
		return nil, nil, err
	}
	toDetails, err := GetTokenDetails(ctx, w, to, "")
	if err != nil {
		return nil, nil, err
	}
	return fromDetails, toDetails, nil
}

// Allowance reads allowance(owner=wallet, spender).
func Allowance(ctx context.Context, w wallet.EvmProvider, token, spender string) (*big.Int, error) {
	if !common.IsHexAddress(spender) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid spender address %q", spender))
	}
	out, ok, err := readBig(ctx, w, token, "allowance", common.HexToAddress(w.Address()), common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, clierr.New(clierr.CodeActionSim, fmt.Sprintf("read allowance from %s", token))
	}
	return out, nil
}

// readValue calls a single-output view method. ok is false when the contract
// call itself failed (revert, empty return, undecodable output).
func readValue(ctx context.Context, w wallet.EvmProvider, token, method string, args ...any) (any, bool, error) {
	out, err := w.ReadContract(ctx, wallet.ContractCall{Address: token, ABI: ABI, Method: method, Args: args})
	if err != nil {
		if clierr.HasCode(err, clierr.CodeActionSim) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out[0], true, nil
}

func readUint8(ctx context.Context, w wallet.EvmProvider, token, method string) (uint8, bool, error) {
	v, ok, err := readValue(ctx, w, token, method)
	if !ok {
		return 0, false, err
	}
	n, ok := v.(uint8)
	return n, ok, nil
}

func readString(ctx context.Context, w wallet.EvmProvider, token, method string) (string, bool, error) {
	v, ok, err := readValue(ctx, w, token, method)
	if !ok {
		return "", false, err
	}
	s, ok := v.(string)
	return s, ok, nil
}

func readBig(ctx context.Context, w wallet.EvmProvider, token, method string, args ...any) (*big.Int, bool, error) {
	v, ok, err := readValue(ctx, w, token, method, args...)
	if !ok {
		return nil, false, err
	}
	n, ok := v.(*big.Int)
	return n, ok, nil
}

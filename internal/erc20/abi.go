package erc20

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
)

const (
	erc20ABIJSON = `[
		{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	wethABIJSON = `[
		{"name":"deposit","type":"function","stateMutability":"payable","inputs":[],"outputs":[]},
		{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}
	]`
)

var (
	ABI     = mustABI(erc20ABIJSON)
	WETHABI = mustABI(wethABIJSON)
)

func EncodeApprove(spender string, amount *big.Int) ([]byte, error) {
	if !common.IsHexAddress(spender) {
		return nil, clierr.New(clierr.CodeUsage, "approval spender must be a valid EVM address")
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, "approval amount must be a non-negative integer in base units")
	}
	data, err := ABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack approval calldata", err)
	}
	return data, nil
}

func EncodeTransfer(to string, amount *big.Int) ([]byte, error) {
	if !common.IsHexAddress(to) {
		return nil, clierr.New(clierr.CodeUsage, "transfer destination must be a valid EVM address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "transfer amount must be a positive integer in base units")
	}
	data, err := ABI.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
	}
	return data, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

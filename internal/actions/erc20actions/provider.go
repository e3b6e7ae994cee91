// Package erc20actions exposes ERC20 balance, transfer, approval and
// allowance actions.
package erc20actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/agentkit-go/internal/actions"
	"github.com/ggonzalez94/agentkit-go/internal/erc20"
	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/units"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (*Provider) Name() string { return "erc20" }

func (*Provider) Prefix() string { return "ERC20ActionProvider" }

func (*Provider) SupportsNetwork(n network.Network) bool { return n.IsEVM() }

func contractProperty() *actions.Property {
	return &actions.Property{Type: "string", Description: "The contract address of the token", Validate: actions.EVMAddress}
}

func (p *Provider) Actions(wallet.Provider) []actions.Action {
	return []actions.Action{
		{
			Name: "get_balance",
			Description: `This tool will get the balance of an ERC20 asset in the wallet. It takes the contract address as input.
The balance is returned in whole units of the token.`,
			Schema: &actions.Schema{
				Properties: map[string]*actions.Property{"contract_address": contractProperty()},
				Required:   []string{"contract_address"},
			},
			Invoke: p.getBalance,
		},
		{
			Name: "transfer",
			Description: `This tool will transfer an ERC20 token from the wallet to another onchain address.

It takes the following inputs:
- amount: The amount to transfer in whole units (e.g. 10.5 USDC)
- contract_address: The contract address of the token to transfer
- destination_address: Where to send the funds (must be a valid onchain address)

Important notes:
- Never assume token or addresses, they have to be provided as inputs
- The destination may not be the token contract or another ERC20 contract`,
			Schema: &actions.Schema{
				Properties: map[string]*actions.Property{
					"amount":              {Type: "string", Description: "The amount of the asset to transfer in whole units", Validate: actions.PositiveDecimal},
					"contract_address":    contractProperty(),
					"destination_address": {Type: "string", Description: "The destination to transfer the funds", Validate: actions.EVMAddress},
				},
				Required: []string{"amount", "contract_address", "destination_address"},
			},
			Invoke: p.transfer,
		},
		{
			Name: "approve",
			Description: `This tool will approve a spender to spend ERC20 tokens on behalf of the wallet.

It takes the following inputs:
- amount: The amount to approve in whole units (e.g. 100 USDC). Use 0 to revoke.
- contract_address: The contract address of the token
- spender_address: The address allowed to spend the tokens`,
			Schema: &actions.Schema{
				Properties: map[string]*actions.Property{
					"amount":           {Type: "string", Description: "The amount to approve in whole units", Validate: actions.NonNegativeDecimal},
					"contract_address": contractProperty(),
					"spender_address":  {Type: "string", Description: "The address to approve for spending", Validate: actions.EVMAddress},
				},
				Required: []string{"amount", "contract_address", "spender_address"},
			},
			Invoke: p.approve,
		},
		{
			Name:        "get_allowance",
			Description: "This tool will check the allowance of a spender for an ERC20 token held by the wallet. The allowance is returned in whole units.",
			Schema: &actions.Schema{
				Properties: map[string]*actions.Property{
					"contract_address": contractProperty(),
					"spender_address":  {Type: "string", Description: "The address to check the allowance for", Validate: actions.EVMAddress},
				},
				Required: []string{"contract_address", "spender_address"},
			},
			Invoke: p.getAllowance,
		},
	}
}

type tokenArgs struct {
	Amount             string `json:"amount"`
	ContractAddress    string `json:"contract_address"`
	DestinationAddress string `json:"destination_address"`
	SpenderAddress     string `json:"spender_address"`
}

func decode(w wallet.Provider, raw json.RawMessage) (wallet.EvmProvider, tokenArgs, error) {
	var args tokenArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, args, err
	}
	evm, err := actions.EVMWallet(w)
	return evm, args, err
}

func notAToken(address string) string {
	return fmt.Sprintf("Error: Could not fetch token details for %s. Please ensure this is a valid ERC20 token contract address.", address)
}

func (p *Provider) getBalance(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	evm, args, err := decode(w, raw)
	if err != nil {
		return "", err
	}
	details, err := erc20.GetTokenDetails(ctx, evm, args.ContractAddress, "")
	if err != nil {
		return fmt.Sprintf("Error getting balance: %v", err), nil
	}
	if details == nil {
		return notAToken(args.ContractAddress), nil
	}
	return fmt.Sprintf("Balance of %s (%s) at address %s is %s",
		details.Name, args.ContractAddress, evm.Address(), details.FormattedBalance), nil
}

func (p *Provider) transfer(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	evm, args, err := decode(w, raw)
	if err != nil {
		return "", err
	}
	details, err := erc20.GetTokenDetails(ctx, evm, args.ContractAddress, "")
	if err != nil {
		return fmt.Sprintf("Error transferring the asset: %v", err), nil
	}
	if details == nil {
		return notAToken(args.ContractAddress), nil
	}
	if strings.EqualFold(args.DestinationAddress, args.ContractAddress) {
		return "Error: Transfer destination is the token contract address. Refusing transfer to prevent loss of funds.", nil
	}
	destination, err := erc20.GetTokenDetails(ctx, evm, args.DestinationAddress, "")
	if err != nil {
		return fmt.Sprintf("Error transferring the asset: %v", err), nil
	}
	if destination != nil {
		return "Error: Transfer destination is an ERC20 token contract. Refusing to transfer to prevent loss of funds.", nil
	}

	amount, err := units.ToAtomic(args.Amount, details.Decimals)
	if err != nil {
		return fmt.Sprintf("Error transferring the asset: %v", err), nil
	}
	data, err := erc20.EncodeTransfer(args.DestinationAddress, amount)
	if err != nil {
		return fmt.Sprintf("Error transferring the asset: %v", err), nil
	}
	hash, err := actions.SendAndWait(ctx, evm, execution.StepTypeTransfer, wallet.EvmTx{To: checksum(args.ContractAddress), Data: data})
	if err != nil {
		return fmt.Sprintf("Error transferring the asset: %v", err), nil
	}
	return fmt.Sprintf("Transferred %s of %s (%s) to %s.\nTransaction hash for the transfer: %s",
		args.Amount, details.Name, args.ContractAddress, args.DestinationAddress, hash), nil
}

func (p *Provider) approve(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	evm, args, err := decode(w, raw)
	if err != nil {
		return "", err
	}
	details, err := erc20.GetTokenDetails(ctx, evm, args.ContractAddress, "")
	if err != nil {
		return fmt.Sprintf("Error approving tokens: %v", err), nil
	}
	if details == nil {
		return notAToken(args.ContractAddress), nil
	}
	amount, err := units.ToAtomic(args.Amount, details.Decimals)
	if err != nil {
		return fmt.Sprintf("Error approving tokens: %v", err), nil
	}
	data, err := erc20.EncodeApprove(args.SpenderAddress, amount)
	if err != nil {
		return fmt.Sprintf("Error approving tokens: %v", err), nil
	}
	hash, err := actions.SendAndWait(ctx, evm, execution.StepTypeApproval, wallet.EvmTx{To: checksum(args.ContractAddress), Data: data})
	if err != nil {
		return fmt.Sprintf("Error approving tokens: %v", err), nil
	}
	return fmt.Sprintf("Approved %s %s (%s) for spender %s.\nTransaction hash: %s",
		args.Amount, details.Name, args.ContractAddress, args.SpenderAddress, hash), nil
}

func (p *Provider) getAllowance(ctx context.Context, w wallet.Provider, raw json.RawMessage) (string, error) {
	evm, args, err := decode(w, raw)
	if err != nil {
		return "", err
	}
	details, err := erc20.GetTokenDetails(ctx, evm, args.ContractAddress, "")
	if err != nil {
		return fmt.Sprintf("Error checking allowance: %v", err), nil
	}
	if details == nil {
		return notAToken(args.ContractAddress), nil
	}
	allowance, err := erc20.Allowance(ctx, evm, args.ContractAddress, args.SpenderAddress)
	if err != nil {
		return fmt.Sprintf("Error checking allowance: %v", err), nil
	}
	return fmt.Sprintf("Allowance for %s to spend %s (%s) is %s",
		args.SpenderAddress, details.Name, args.ContractAddress, units.FormatUnits(allowance, details.Decimals)), nil
}

func checksum(address string) string {
	return common.HexToAddress(address).Hex()
}

package actions

import (
	"context"
	"fmt"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

func EVMWallet(w wallet.Provider) (wallet.EvmProvider, error) {
	evm, ok := w.(wallet.EvmProvider)
	if !ok {
		return nil, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("wallet provider %s is not an EVM wallet", w.Name()))
	}
	return evm, nil
}

// SendAndWait submits tx, waits for its receipt and records both stages in
// the invocation journal. A mined but reverted transaction is an error that
// still returns the hash.
func SendAndWait(ctx context.Context, w wallet.EvmProvider, stepType execution.StepType, tx wallet.EvmTx) (string, error) {
	rec := execution.RecorderFrom(ctx)
	rec.Step(execution.Step{Type: stepType, Status: execution.StepStatusPending, Detail: "to " + tx.To})

	hash, err := w.SendTransaction(ctx, tx)
	if err != nil {
		rec.Step(execution.Step{Type: stepType, Status: execution.StepStatusFailed, Error: err.Error()})
		return "", err
	}
	rec.Step(execution.Step{Type: stepType, Status: execution.StepStatusSubmitted, TxHash: hash})

	receipt, err := w.WaitForTransactionReceipt(ctx, hash)
	if err != nil {
		rec.Step(execution.Step{Type: stepType, Status: execution.StepStatusFailed, Error: err.Error()})
		return hash, err
	}
	if !receipt.Succeeded() {
		err := clierr.New(clierr.CodeActionSim, fmt.Sprintf("transaction %s reverted", hash))
		rec.Step(execution.Step{Type: stepType, Status: execution.StepStatusFailed, Error: err.Error()})
		return hash, err
	}
	rec.Step(execution.Step{Type: stepType, Status: execution.StepStatusConfirmed})
	return hash, nil
}

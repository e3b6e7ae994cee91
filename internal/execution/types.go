package execution

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EntryStatus string

type StepStatus string

type StepType string

const (
	EntryStatusRunning   EntryStatus = "running"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
)

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusSubmitted StepStatus = "submitted"
	StepStatusConfirmed StepStatus = "confirmed"
	StepStatusFailed    StepStatus = "failed"
)

const (
	StepTypeQuote    StepType = "quote"
	StepTypeApproval StepType = "approval"
	StepTypeSwap     StepType = "swap"
	StepTypeTransfer StepType = "transfer"
	StepTypePayment  StepType = "payment"
	StepTypeWrap     StepType = "wrap"
)

// Step is one observable stage of an action invocation, typically an
// onchain transaction.
type Step struct {
	Type   StepType   `json:"type"`
	Status StepStatus `json:"status"`
	State  string     `json:"state,omitempty"`
	TxHash string     `json:"tx_hash,omitempty"`
	Detail string     `json:"detail,omitempty"`
	Error  string     `json:"error,omitempty"`
	At     string     `json:"at"`
}

type Entry struct {
	EntryID   string          `json:"entry_id"`
	Action    string          `json:"action"`
	Provider  string          `json:"provider,omitempty"`
	Status    EntryStatus     `json:"status"`
	Network   string          `json:"network"`
	Wallet    string          `json:"wallet,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	Steps     []Step          `json:"steps"`
}

func NewEntry(action, networkID, wallet string, args json.RawMessage) Entry {
	now := timestamp()
	return Entry{
		EntryID:   NewEntryID(),
		Action:    action,
		Status:    EntryStatusRunning,
		Network:   networkID,
		Wallet:    wallet,
		Args:      args,
		CreatedAt: now,
		UpdatedAt: now,
		Steps:     []Step{},
	}
}

func NewEntryID() string {
	return "inv_" + uuid.NewString()
}

func (e *Entry) Touch() {
	e.UpdatedAt = timestamp()
}

// Finish records the final outcome of the invocation.
func (e *Entry) Finish(result string, err error) {
	e.Result = result
	e.Status = EntryStatusCompleted
	if err != nil {
		e.Status = EntryStatusFailed
		e.Error = err.Error()
	}
	e.Touch()
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

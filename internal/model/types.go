package model

import (
	"encoding/json"
	"time"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Network   string    `json:"network,omitempty"`
	Wallet    string    `json:"wallet,omitempty"`
}

type ActionInfo struct {
	Name        string          `json:"name"`
	Provider    string          `json:"provider"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// ProviderInfo reports a configured action provider and whether it serves
// the wallet's network.
type ProviderInfo struct {
	Name      string   `json:"name"`
	Prefix    string   `json:"prefix"`
	Supported bool     `json:"supported"`
	Actions   []string `json:"actions,omitempty"`
}

type NetworkInfo struct {
	ProtocolFamily string `json:"protocol_family"`
	NetworkID      string `json:"network_id,omitempty"`
	ChainID        string `json:"chain_id,omitempty"`
	CAIP2          string `json:"caip2,omitempty"`
}

type WalletDetails struct {
	Provider      string      `json:"provider"`
	Address       string      `json:"address"`
	Network       NetworkInfo `json:"network"`
	NativeSymbol  string      `json:"native_symbol"`
	Balance       string      `json:"balance"`
	BalanceAtomic string      `json:"balance_atomic"`
}

type InvokeResult struct {
	Action  string `json:"action"`
	Result  string `json:"result"`
	EntryID string `json:"entry_id,omitempty"`
}

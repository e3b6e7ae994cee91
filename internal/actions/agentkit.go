// Package actions holds the action provider registry. AgentKit aggregates the
// actions of every configured provider that supports the wallet's network
// into one flat catalog and invokes them with schema-checked arguments.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
	"github.com/ggonzalez94/agentkit-go/internal/execution"
	"github.com/ggonzalez94/agentkit-go/internal/logging"
	"github.com/ggonzalez94/agentkit-go/internal/network"
	"github.com/ggonzalez94/agentkit-go/internal/policy"
	"github.com/ggonzalez94/agentkit-go/internal/wallet"
)

// Handler runs an action. args has already passed schema validation.
// Expected failures are reported in the returned string; an error means the
// action could not run at all.
type Handler func(ctx context.Context, w wallet.Provider, args json.RawMessage) (string, error)

type Action struct {
	Name        string
	Description string
	Schema      *Schema
	Invoke      Handler
}

// ActionProvider contributes actions. Prefix qualifies action names in the
// catalog as "<Prefix>_<action>".
type ActionProvider interface {
	Name() string
	Prefix() string
	Actions(w wallet.Provider) []Action
	SupportsNetwork(n network.Network) bool
}

type Config struct {
	Wallet    wallet.Provider
	Providers []ActionProvider
	Logger    logrus.FieldLogger
	// Journal persists one entry per invocation when set.
	Journal execution.Saver
	// Allow restricts the catalog, see policy.CheckActionAllowed.
	Allow []string
}

type registered struct {
	action   Action
	provider string
}

type AgentKit struct {
	wallet  wallet.Provider
	log     logrus.FieldLogger
	journal execution.Saver

	catalog []registered
	byName  map[string]registered
	blocked map[string]bool
}

// New builds the catalog. The wallet actions provider is always included.
// Duplicate action names are a registration error.
func New(cfg Config) (*AgentKit, error) {
	if cfg.Wallet == nil {
		return nil, clierr.New(clierr.CodeUsage, "a wallet provider is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	k := &AgentKit{
		wallet:  cfg.Wallet,
		log:     log,
		journal: cfg.Journal,
		byName:  map[string]registered{},
		blocked: map[string]bool{},
	}

	providers := append([]ActionProvider{NewWalletActionProvider()}, cfg.Providers...)
	seen := map[string]bool{}
	n := cfg.Wallet.Network()
	for _, p := range providers {
		if p == nil {
			continue
		}
		if seen[p.Name()] {
			continue
		}
		seen[p.Name()] = true
		if !p.SupportsNetwork(n) {
			log.WithFields(logrus.Fields{"provider": p.Name(), "network": n.NetworkID}).Debug("provider does not support network")
			continue
		}
		for _, a := range p.Actions(cfg.Wallet) {
			if a.Invoke == nil {
				return nil, clierr.New(clierr.CodeInternal, fmt.Sprintf("action %s_%s has no handler", p.Prefix(), a.Name))
			}
			a.Name = p.Prefix() + "_" + a.Name
			if _, dup := k.byName[a.Name]; dup || k.blocked[a.Name] {
				return nil, clierr.New(clierr.CodeInternal, "duplicate action name "+a.Name)
			}
			if err := policy.CheckActionAllowed(cfg.Allow, a.Name); err != nil {
				k.blocked[a.Name] = true
				continue
			}
			r := registered{action: a, provider: p.Name()}
			k.byName[a.Name] = r
			k.catalog = append(k.catalog, r)
		}
	}
	return k, nil
}

func (k *AgentKit) Wallet() wallet.Provider { return k.wallet }

// Actions returns the catalog in registration order.
func (k *AgentKit) Actions() []Action {
	out := make([]Action, 0, len(k.catalog))
	for _, r := range k.catalog {
		out = append(out, r.action)
	}
	return out
}

// Names returns the sorted action names.
func (k *AgentKit) Names() []string {
	out := make([]string, 0, len(k.catalog))
	for _, r := range k.catalog {
		out = append(out, r.action.Name)
	}
	sort.Strings(out)
	return out
}

func (k *AgentKit) ProviderOf(name string) string { return k.byName[name].provider }

func (k *AgentKit) Lookup(name string) (Action, bool) {
	r, ok := k.byName[name]
	return r.action, ok
}

// Invoke validates args and runs the named action. Handler failures come
// back as "Error executing action: ..." results; the returned error is
// reserved for unknown or blocked actions, invalid arguments and handler
// panics.
func (k *AgentKit) Invoke(ctx context.Context, name string, args json.RawMessage) (result string, err error) {
	name = strings.TrimSpace(name)
	r, ok := k.byName[name]
	if !ok {
		if k.blocked[name] {
			return "", clierr.New(clierr.CodeBlocked, "action "+name+" blocked by --enable-actions policy")
		}
		return "", clierr.New(clierr.CodeUsage, "unknown action "+name)
	}
	normalized, err := r.action.Schema.Validate(args)
	if err != nil {
		return "", err
	}

	log := k.log.WithFields(logrus.Fields{"action": name, "provider": r.provider})
	var rec *execution.Recorder
	if k.journal != nil {
		entry := execution.NewEntry(name, k.wallet.Network().NetworkID, k.wallet.Address(), normalized)
		entry.Provider = r.provider
		rec = execution.NewRecorder(k.journal, entry, log)
		ctx = execution.WithRecorder(ctx, rec)
		log = log.WithField("entry_id", entry.EntryID)
	}

	defer func() {
		if p := recover(); p != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("action handler panicked: %v", p)
			result = ""
			err = clierr.New(clierr.CodeInternal, fmt.Sprintf("action %s failed unexpectedly: %v", name, p))
			rec.Finish("", err)
		}
	}()

	log.Debug("invoking action")
	out, herr := r.action.Invoke(ctx, k.wallet, normalized)
	if herr != nil {
		log.WithError(herr).Info("action failed")
		out = "Error executing action: " + herr.Error()
	}
	rec.Finish(out, herr)
	return out, nil
}

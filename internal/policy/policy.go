package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/agentkit-go/internal/errors"
)

func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		if normalize(allowed) == normPath {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// CheckActionAllowed matches an action name against the allowlist. Entries
// may name a full action ("ERC20ActionProvider_transfer"), a bare action
// ("transfer") or a whole provider ("ERC20ActionProvider_*").
func CheckActionAllowed(allowlist []string, actionName string) error {
	if len(allowlist) == 0 {
		return nil
	}
	name := strings.ToLower(strings.TrimSpace(actionName))
	bare := name
	if _, rest, ok := strings.Cut(name, "_"); ok {
		bare = rest
	}
	for _, allowed := range allowlist {
		entry := strings.ToLower(strings.TrimSpace(allowed))
		if entry == "" {
			continue
		}
		if entry == name || entry == bare {
			return nil
		}
		if prefix, ok := strings.CutSuffix(entry, "*"); ok && strings.HasPrefix(name, prefix) {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "action "+actionName+" blocked by --enable-actions policy")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}

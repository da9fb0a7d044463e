package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
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

// CheckNetworkAllowed rejects a deploy target missing from a non-empty
// network allowlist.
func CheckNetworkAllowed(allowlist []int64, networkID int64) error {
	if len(allowlist) == 0 {
		return nil
	}
	for _, allowed := range allowlist {
		if allowed == networkID {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("network %d is not in allowed_networks", networkID))
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}

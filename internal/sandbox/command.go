package sandbox

import "strings"

// CommandPolicy whitelists shell commands by prefix. A command is safe when
// its trimmed text equals a whitelisted prefix exactly, or starts with that
// prefix followed by a space or newline. Plain prefix matching is not enough:
// "git statusx" must not pass on a whitelist entry of "git status", and a
// trailing "; rm -rf /" appended to an allowed command must fail because the
// separator makes the full text match no prefix boundary.
type CommandPolicy struct {
	prefixes []string
}

// NewCommandPolicy creates a policy from the whitelisted prefixes. Blank
// entries are dropped. An empty whitelist denies every command.
func NewCommandPolicy(prefixes []string) *CommandPolicy {
	policy := &CommandPolicy{}
	for _, prefix := range prefixes {
		if strings.TrimSpace(prefix) == "" {
			continue
		}
		policy.prefixes = append(policy.prefixes, prefix)
	}
	return policy
}

// IsSafe reports whether command is covered by the whitelist.
func (c *CommandPolicy) IsSafe(command string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return false
	}
	for _, prefix := range c.prefixes {
		if trimmed == prefix {
			return true
		}
		if strings.HasPrefix(trimmed, prefix+" ") || strings.HasPrefix(trimmed, prefix+"\n") {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the whitelist.
func (c *CommandPolicy) Prefixes() []string {
	out := make([]string, len(c.prefixes))
	copy(out, c.prefixes)
	return out
}

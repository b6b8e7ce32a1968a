// Package sandbox holds the two policies that scope what the agent may touch
// on the host: which filesystem paths it can read or write, and which shell
// commands it can run.
//
// Path checks are lexical. Candidate paths are cleaned and compared against
// the policy roots by separator-terminated prefix, so "/home/agent-evil"
// never matches a root of "/home/agent". Symlinks are deliberately not
// resolved; deployments that place symlinks inside the working directory
// pointing outside it must remove them or accept the exposure.
package sandbox

import (
	"path/filepath"
	"strings"
)

// PathPolicy classifies filesystem paths as writable, readable, or out of
// bounds. The working directory root is read-write; additional read-only
// roots grant read access only.
type PathPolicy struct {
	root          string
	readOnlyRoots []string
}

// NewPathPolicy creates a policy rooted at the working directory root. Blank
// read-only entries are dropped rather than widening the policy.
func NewPathPolicy(root string, readOnlyRoots []string) *PathPolicy {
	policy := &PathPolicy{root: filepath.Clean(root)}
	for _, ro := range readOnlyRoots {
		if strings.TrimSpace(ro) == "" {
			continue
		}
		policy.readOnlyRoots = append(policy.readOnlyRoots, filepath.Clean(ro))
	}
	return policy
}

// Root returns the writable working directory root.
func (p *PathPolicy) Root() string {
	return p.root
}

// AllowsWrite reports whether path may be created or modified. Only the
// working directory root qualifies; read-only roots never do.
func (p *PathPolicy) AllowsWrite(path string) bool {
	normalized, ok := p.normalize(path)
	if !ok {
		return false
	}
	return within(normalized, p.root)
}

// AllowsRead reports whether path may be read. The working directory root
// and every read-only root qualify.
func (p *PathPolicy) AllowsRead(path string) bool {
	normalized, ok := p.normalize(path)
	if !ok {
		return false
	}
	if within(normalized, p.root) {
		return true
	}
	for _, ro := range p.readOnlyRoots {
		if within(normalized, ro) {
			return true
		}
	}
	return false
}

// normalize cleans the candidate path, anchoring relative paths at the
// working directory root. Blank input is rejected outright.
func (p *PathPolicy) normalize(path string) (string, bool) {
	if strings.TrimSpace(path) == "" {
		return "", false
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.root, path)
	}
	return filepath.Clean(path), true
}

// within reports whether path equals root or sits underneath it. The prefix
// must end at a separator so sibling directories sharing a name prefix do
// not match.
func within(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

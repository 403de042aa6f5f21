package filtering

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

// NameFilter decides on a repository name against glob patterns
type NameFilter interface {
	// ShouldInclude returns whether name passes and the reason for the decision
	ShouldInclude(name string, include, exclude []string) (bool, string)
}

type defaultNameFilter struct{}

var _ NameFilter = (*defaultNameFilter)(nil)

// NewDefaultNameFilter creates the glob based NameFilter
func NewDefaultNameFilter() NameFilter {
	return &defaultNameFilter{}
}

// matchPattern matches name against a glob pattern where '*' crosses '/'
func matchPattern(pattern, name string) (bool, error) {
	// filepath.Match rejects malformed patterns that glob.Compile accepts
	if _, err := filepath.Match(pattern, "probe"); err != nil {
		return false, err
	}
	compiled, err := glob.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid glob pattern: %v", err)
	}
	return compiled.Match(name), nil
}

func (*defaultNameFilter) ShouldInclude(name string, include, exclude []string) (bool, string) {
	for _, pattern := range exclude {
		matches, err := matchPattern(pattern, name)
		if err != nil {
			return false, fmt.Sprintf("invalid exclude pattern '%s': %v", pattern, err)
		}
		if matches {
			return false, fmt.Sprintf("excluded by pattern '%s'", pattern)
		}
	}

	if len(include) == 0 {
		return true, "no include patterns"
	}
	for _, pattern := range include {
		matches, err := matchPattern(pattern, name)
		if err != nil {
			return false, fmt.Sprintf("invalid include pattern '%s': %v", pattern, err)
		}
		if matches {
			return true, fmt.Sprintf("included by pattern '%s'", pattern)
		}
	}
	return false, fmt.Sprintf("no match in include patterns %v", include)
}

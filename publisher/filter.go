package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter filters sync events by target name using glob patterns
type GlobFilter struct {
	targetGlobs []glob.Glob
}

// NewGlobFilter creates a new glob-based filter
// Empty patterns match everything
func NewGlobFilter(targetPatterns []string) (*GlobFilter, error) {
	filter := &GlobFilter{
		targetGlobs: make([]glob.Glob, 0, len(targetPatterns)),
	}

	for _, pattern := range targetPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid target pattern %q: %w", pattern, err)
		}
		filter.targetGlobs = append(filter.targetGlobs, g)
	}

	return filter, nil
}

// Match returns true if the target matches the configured patterns
// If no patterns are configured, all events match
func (f *GlobFilter) Match(target string) bool {
	if len(f.targetGlobs) == 0 {
		return true
	}
	for _, g := range f.targetGlobs {
		if g.Match(target) {
			return true
		}
	}
	return false
}

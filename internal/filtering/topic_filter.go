package filtering

import (
	"fmt"
	"slices"
)

// TopicFilter decides on a repository's topics against exact topic lists
type TopicFilter interface {
	ShouldInclude(topics []string, include, exclude []string) (bool, string)
}

// DefaultTopicFilter matches topics exactly
type DefaultTopicFilter struct{}

// NewDefaultTopicFilter creates a DefaultTopicFilter
func NewDefaultTopicFilter() *DefaultTopicFilter {
	return &DefaultTopicFilter{}
}

// ShouldInclude returns whether a repository with topics passes
func (*DefaultTopicFilter) ShouldInclude(topics []string, include, exclude []string) (bool, string) {
	for _, topic := range topics {
		if slices.Contains(exclude, topic) {
			return false, fmt.Sprintf("excluded by topic '%s'", topic)
		}
	}

	if len(include) == 0 {
		return true, "no include topics"
	}
	for _, topic := range topics {
		if slices.Contains(include, topic) {
			return true, fmt.Sprintf("included by topic '%s'", topic)
		}
	}
	return false, fmt.Sprintf("no topic in include list %v (topics: %v)", include, topics)
}

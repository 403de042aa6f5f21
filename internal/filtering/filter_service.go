package filtering

import (
	"fmt"

	"github.com/stacklok/reposync/internal/config"
)

// FilterService applies a FilterConfig to one repository at a time
type FilterService interface {
	// ShouldInclude returns whether the repository passes and why
	ShouldInclude(name string, topics []string, filter *config.FilterConfig) (bool, string)
}

type defaultFilterService struct {
	nameFilter  NameFilter
	topicFilter TopicFilter
}

// NewDefaultFilterService creates a FilterService with the default name and topic filters
func NewDefaultFilterService() FilterService {
	return NewFilterService(NewDefaultNameFilter(), NewDefaultTopicFilter())
}

// NewFilterService creates a FilterService from custom filters
func NewFilterService(nameFilter NameFilter, topicFilter TopicFilter) FilterService {
	return &defaultFilterService{
		nameFilter:  nameFilter,
		topicFilter: topicFilter,
	}
}

func (s *defaultFilterService) ShouldInclude(name string, topics []string, filter *config.FilterConfig) (bool, string) {
	if filter == nil {
		return true, "no filter configured"
	}

	var nameInclude, nameExclude, topicInclude, topicExclude []string
	if filter.Names != nil {
		nameInclude, nameExclude = filter.Names.Include, filter.Names.Exclude
	}
	if filter.Topics != nil {
		topicInclude, topicExclude = filter.Topics.Include, filter.Topics.Exclude
	}

	ok, nameReason := s.nameFilter.ShouldInclude(name, nameInclude, nameExclude)
	if !ok {
		return false, "name filter: " + nameReason
	}
	ok, topicReason := s.topicFilter.ShouldInclude(topics, topicInclude, topicExclude)
	if !ok {
		return false, "topic filter: " + topicReason
	}
	return true, fmt.Sprintf("name filter: %s, topic filter: %s", nameReason, topicReason)
}

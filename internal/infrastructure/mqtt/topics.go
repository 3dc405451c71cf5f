package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Topic grammar limits from MQTT 3.1.1 section 4.7.
const (
	wildcardSingle = "+"
	wildcardMulti  = "#"
	maxTopicLength = 65535
)

// ValidateTopic checks a topic name used for publishing.
//
// A topic name must be non-empty, valid UTF-8, free of NUL characters and
// contain no wildcard characters.
func ValidateTopic(topic string) error {
	if err := validateCommon(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, wildcardSingle+wildcardMulti) {
		return fmt.Errorf("%w: wildcards not allowed in %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription filter.
//
// "+" must occupy a whole level and "#" must occupy the whole last level.
func ValidateFilter(filter string) error {
	if err := validateCommon(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, wildcardMulti) && (level != wildcardMulti || i != len(levels)-1) {
			return fmt.Errorf("%w: %q must be the whole last level in %q", ErrInvalidFilter, wildcardMulti, filter)
		}
		if strings.Contains(level, wildcardSingle) && level != wildcardSingle {
			return fmt.Errorf("%w: %q must be a whole level in %q", ErrInvalidFilter, wildcardSingle, filter)
		}
	}
	return nil
}

func validateCommon(s string) error {
	if s == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if len(s) > maxTopicLength {
		return fmt.Errorf("%w: length %d exceeds %d", ErrInvalidTopic, len(s), maxTopicLength)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidTopic)
	}
	if strings.ContainsRune(s, 0) {
		return fmt.Errorf("%w: contains NUL", ErrInvalidTopic)
	}
	return nil
}

// MatchTopic reports whether a topic name matches a subscription filter.
//
// The filter is assumed valid. Topics starting with "$" never match a
// filter whose first level is a wildcard.
//
//	MatchTopic("office/room1/#", "office/room1")              // true
//	MatchTopic("office/+/light/state", "office/a/light/state") // true
func MatchTopic(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, wildcardSingle) || strings.HasPrefix(filter, wildcardMulti)) {
		return false
	}

	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, level := range f {
		if level == wildcardMulti {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != wildcardSingle && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

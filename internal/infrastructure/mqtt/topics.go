package mqtt

import (
	"fmt"
	"strings"
)

// Wildcard characters of the MQTT topic filter syntax.
const (
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// ValidateFilter checks a subscription topic filter against the MQTT rules.
//
//   - the filter must not be empty or contain a NUL byte
//   - "+" must occupy a whole level: "home/+/relay"
//   - "#" must occupy the last level: "home/#"
//
// Returns:
//   - error: Wrapping ErrInvalidTopic, or nil if the filter is usable
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: filter is empty", ErrInvalidTopic)
	}
	if strings.ContainsRune(filter, 0) {
		return fmt.Errorf("%w: filter contains a NUL character", ErrInvalidTopic)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, multiLevelWildcard) {
			if level != multiLevelWildcard || i != len(levels)-1 {
				return fmt.Errorf("%w: %q must be the whole last level in %q", ErrInvalidTopic, multiLevelWildcard, filter)
			}
		}
		if strings.Contains(level, singleLevelWildcard) && level != singleLevelWildcard {
			return fmt.Errorf("%w: %q must be a whole level in %q", ErrInvalidTopic, singleLevelWildcard, filter)
		}
	}
	return nil
}

// HasWildcard reports whether the filter can match more than one topic.
func HasWildcard(filter string) bool {
	return strings.ContainsAny(filter, singleLevelWildcard+multiLevelWildcard)
}

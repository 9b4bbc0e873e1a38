package checkin

import (
	"errors"
	"fmt"
	"strings"
)

// Policy selects how strictly a scan is checked against the member directory.
type Policy string

const (
	// PolicyOpen records any non-empty identifier.
	PolicyOpen Policy = "open"
	// PolicyKnownMember requires the member to exist.
	PolicyKnownMember Policy = "known_member"
	// PolicyActiveMembership requires the member to exist with an end date on or after today.
	PolicyActiveMembership Policy = "active_membership"
)

// ErrInvalidPolicy indicates an unsupported policy name.
var ErrInvalidPolicy = errors.New("checkin: invalid policy")

// ParsePolicy validates a configured policy name. Empty selects PolicyKnownMember.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyKnownMember:
		return PolicyKnownMember, nil
	case PolicyOpen:
		return PolicyOpen, nil
	case PolicyActiveMembership:
		return PolicyActiveMembership, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, value)
	}
}

func (p Policy) requiresMember() bool {
	return p != PolicyOpen
}

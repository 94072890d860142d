package domain

import (
	"regexp"
	"strings"
)

// ZeroAddress is the null address; transfers to it burn funds and are
// always rejected.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether s has the shape of an Arc account address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// IsZeroAddress reports whether s is the null address, ignoring hex case.
func IsZeroAddress(s string) bool {
	return strings.EqualFold(s, ZeroAddress)
}

// NormalizeAddress lowercases the hex part so addresses compare stably.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

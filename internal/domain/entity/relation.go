package entity

import "strings"

// Relation selects which user relations a lookup materializes.
type Relation uint8

const (
	WithChannels Relation = 1 << iota
	WithBlockedUsers
)

// Has reports whether every bit of x is set in r.
func (r Relation) Has(x Relation) bool {
	return x != 0 && r&x == x
}

func (r Relation) String() string {
	if r == 0 {
		return "none"
	}
	var parts []string
	if r.Has(WithChannels) {
		parts = append(parts, "channels")
	}
	if r.Has(WithBlockedUsers) {
		parts = append(parts, "blocked_users")
	}
	return strings.Join(parts, "+")
}

// ParseRelations maps include names such as "channels" or "blocked_users".
// Unknown names are reported back so callers can reject them.
func ParseRelations(names []string) (Relation, []string) {
	var r Relation
	var unknown []string
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "":
		case "channels":
			r |= WithChannels
		case "blocked_users", "blockedusers":
			r |= WithBlockedUsers
		default:
			unknown = append(unknown, n)
		}
	}
	return r, unknown
}

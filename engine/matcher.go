package engine

import (
	"strings"

	"github.com/migadu/sera/db"
)

// Matches decides whether a rule applies to a message. The sender filter is a
// hard precondition: when set and missed, nothing else is consulted. Past
// that, apply_to_all wins, then the subject filter, and a rule with no
// filters at all matches everything that cleared the sender check.
//
// Filters are case-insensitive substring matches. Pure function, no I/O.
func Matches(msg *db.Message, rule *db.Rule) bool {
	if rule.SenderFilter != "" &&
		!strings.Contains(strings.ToLower(msg.Sender), strings.ToLower(rule.SenderFilter)) {
		return false
	}
	if rule.ApplyToAll {
		return true
	}
	if rule.SubjectFilter != "" {
		return strings.Contains(strings.ToLower(msg.Subject), strings.ToLower(rule.SubjectFilter))
	}
	return true
}

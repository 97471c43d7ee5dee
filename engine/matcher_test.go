package engine

import (
	"testing"

	"github.com/migadu/sera/db"
	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		msg  db.Message
		rule db.Rule
		want bool
	}{
		{
			name: "sender filter hit",
			msg:  db.Message{Sender: "Billing <billing@acme.com>", Subject: "Invoice"},
			rule: db.Rule{SenderFilter: "acme.com", ApplyToAll: true},
			want: true,
		},
		{
			name: "sender filter miss short-circuits apply_to_all",
			msg:  db.Message{Sender: "someone@other.org", Subject: "Invoice"},
			rule: db.Rule{SenderFilter: "acme.com", ApplyToAll: true},
			want: false,
		},
		{
			name: "sender filter case-insensitive",
			msg:  db.Message{Sender: "BILLING@ACME.COM"},
			rule: db.Rule{SenderFilter: "acme.com", ApplyToAll: true},
			want: true,
		},
		{
			name: "apply_to_all without sender filter",
			msg:  db.Message{Sender: "anyone@anywhere.net", Subject: "whatever"},
			rule: db.Rule{ApplyToAll: true},
			want: true,
		},
		{
			name: "subject filter hit",
			msg:  db.Message{Sender: "x@y.z", Subject: "Your INVOICE is ready"},
			rule: db.Rule{SubjectFilter: "invoice"},
			want: true,
		},
		{
			name: "subject filter miss",
			msg:  db.Message{Sender: "x@y.z", Subject: "Weekly digest"},
			rule: db.Rule{SubjectFilter: "invoice"},
			want: false,
		},
		{
			name: "no filters matches everything",
			msg:  db.Message{Sender: "x@y.z", Subject: "anything"},
			rule: db.Rule{},
			want: true,
		},
		{
			name: "sender filter gates subject filter",
			msg:  db.Message{Sender: "x@other.org", Subject: "invoice"},
			rule: db.Rule{SenderFilter: "acme.com", SubjectFilter: "invoice"},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(&tc.msg, &tc.rule))
		})
	}
}

// Matches must not depend on anything but its arguments: same inputs, same
// answer, every time.
func TestMatchesIsPure(t *testing.T) {
	msg := testMessage()
	rule := testRule()
	first := Matches(msg, rule)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Matches(msg, rule))
	}
}

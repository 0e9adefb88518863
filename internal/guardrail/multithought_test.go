package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		expect bool
	}{
		{
			name:   "empty",
			text:   "",
			expect: false,
		},
		{
			name:   "whitespace only",
			text:   "   \n\t  ",
			expect: false,
		},
		{
			name:   "single short thought",
			text:   "Call mom about dinner on Friday",
			expect: false,
		},
		{
			name:   "single sentence with period",
			text:   "Met Sarah Chen at the conference, works on dev tools at Vercel.",
			expect: false,
		},
		{
			name:   "numbered list",
			text:   "1. buy milk\n2. call dentist",
			expect: true,
		},
		{
			name:   "single numbered line",
			text:   "1. buy milk",
			expect: true,
		},
		{
			name:   "numbered with parenthesis",
			text:   "1) first thing\n2) second thing",
			expect: true,
		},
		{
			name:   "single bullet is fine",
			text:   "- just one note here",
			expect: false,
		},
		{
			name:   "two bullets",
			text:   "- buy milk\n- call dentist",
			expect: true,
		},
		{
			name:   "asterisk bullets",
			text:   "* idea one\n* idea two",
			expect: true,
		},
		{
			name:   "two sentences with connector",
			text:   "Get quotes for the garage insulation. Also call the electrician about the panel.",
			expect: true,
		},
		{
			name:   "sentences with semicolon and trailing period",
			text:   "Remember to renew the passport. It expires in March; also book the appointment.",
			expect: true,
		},
		{
			name:   "two sentences no connector",
			text:   "Met Priya at the meetup. She runs the infra team at Stripe.",
			expect: false,
		},
		{
			name:   "four sentences volume trigger",
			text:   "Buy milk. Call dentist. Email the landlord. Water the plants.",
			expect: true,
		},
		{
			name:   "three sentences no connector",
			text:   "Landed the contract. Kickoff is next week. Need to staff it.",
			expect: false,
		},
		{
			name:   "decimal number is not a boundary pair",
			text:   "Quote came in at 3.5k for the insulation work",
			expect: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Detect(tt.text))
		})
	}
}

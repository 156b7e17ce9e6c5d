// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package discovery_test

import (
	"fmt"
	"testing"

	"github.com/industrial-twin/twinhub/discovery"
	"github.com/stretchr/testify/assert"
)

func TestGovernanceMatches(t *testing.T) {
	accepted := discovery.Policy{
		Permissions: []discovery.Permission{
			{
				Action: "use",
				Constraints: []discovery.Constraint{
					{LeftOperand: "FrameworkAgreement", Operator: "eq", RightOperand: "cx.core:1"},
					{LeftOperand: "UsagePurpose", Operator: "eq", RightOperand: "cx.core.industrycore:1"},
				},
			},
		},
	}
	governance := discovery.Governance{"urn:sem#A": {accepted}}

	cases := []struct {
		desc      string
		candidate discovery.Policy
		matches   bool
	}{
		{
			desc:      "identical policy",
			candidate: accepted,
			matches:   true,
		},
		{
			desc: "constraints in different order",
			candidate: discovery.Policy{
				Permissions: []discovery.Permission{
					{
						Action: "use",
						Constraints: []discovery.Constraint{
							{LeftOperand: "UsagePurpose", Operator: "eq", RightOperand: "cx.core.industrycore:1"},
							{LeftOperand: "FrameworkAgreement", Operator: "eq", RightOperand: "cx.core:1"},
						},
					},
				},
			},
			matches: true,
		},
		{
			desc: "different action",
			candidate: discovery.Policy{
				Permissions: []discovery.Permission{
					{
						Action: "distribute",
						Constraints: []discovery.Constraint{
							{Operator: "eq", RightOperand: "cx.core:1"},
							{Operator: "eq", RightOperand: "cx.core.industrycore:1"},
						},
					},
				},
			},
			matches: false,
		},
		{
			desc: "different right operand",
			candidate: discovery.Policy{
				Permissions: []discovery.Permission{
					{
						Action: "use",
						Constraints: []discovery.Constraint{
							{Operator: "eq", RightOperand: "cx.core:1"},
							{Operator: "eq", RightOperand: "cx.other:9"},
						},
					},
				},
			},
			matches: false,
		},
		{
			desc: "different operator",
			candidate: discovery.Policy{
				Permissions: []discovery.Permission{
					{
						Action: "use",
						Constraints: []discovery.Constraint{
							{Operator: "neq", RightOperand: "cx.core:1"},
							{Operator: "eq", RightOperand: "cx.core.industrycore:1"},
						},
					},
				},
			},
			matches: false,
		},
		{
			desc: "missing constraint",
			candidate: discovery.Policy{
				Permissions: []discovery.Permission{
					{
						Action: "use",
						Constraints: []discovery.Constraint{
							{Operator: "eq", RightOperand: "cx.core:1"},
						},
					},
				},
			},
			matches: false,
		},
		{
			desc: "extra constraint",
			candidate: discovery.Policy{
				Permissions: []discovery.Permission{
					{
						Action: "use",
						Constraints: []discovery.Constraint{
							{Operator: "eq", RightOperand: "cx.core:1"},
							{Operator: "eq", RightOperand: "cx.core.industrycore:1"},
							{Operator: "eq", RightOperand: "cx.extra:3"},
						},
					},
				},
			},
			matches: false,
		},
		{
			desc:      "empty candidate",
			candidate: discovery.Policy{},
			matches:   false,
		},
	}

	for _, tc := range cases {
		got := governance.Matches("urn:sem#A", tc.candidate)
		assert.Equal(t, tc.matches, got, fmt.Sprintf("%s: expected %t got %t", tc.desc, tc.matches, got))
	}
}

func TestGovernanceUngoverned(t *testing.T) {
	governance := discovery.Governance{"urn:sem#A": {discovery.Policy{}}}

	assert.True(t, governance.Governed("urn:sem#A"))
	assert.False(t, governance.Governed("urn:sem#B"), "absent semantic id is ungoverned, not a mismatch")
	assert.False(t, governance.Matches("urn:sem#B", discovery.Policy{}))

	empty := discovery.Governance{"urn:sem#C": nil}
	assert.False(t, empty.Governed("urn:sem#C"), "semantic id with no policies is ungoverned")
}

// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package discovery

// Governance maps a semantic id to the usage policies acceptable for
// fetching that aspect's data. A semantic id absent from the map is
// ungoverned: the submodel is reported as not requested rather than
// treated as a policy mismatch.
type Governance map[string][]Policy

// Governed reports whether any policy is recorded for the semantic id.
func (g Governance) Governed(semanticID string) bool {
	return len(g[semanticID]) > 0
}

// Matches reports whether the candidate policy is acceptable for the
// semantic id. Comparison is strictly structural: every permission of an
// accepted policy must be mirrored in the candidate with the same action
// and the same constraint set, and vice versa. There is no partial
// credit.
func (g Governance) Matches(semanticID string, candidate Policy) bool {
	for _, accepted := range g[semanticID] {
		if policiesEqual(accepted, candidate) {
			return true
		}
	}
	return false
}

func policiesEqual(a, b Policy) bool {
	if len(a.Permissions) != len(b.Permissions) {
		return false
	}
	used := make([]bool, len(b.Permissions))
	for _, pa := range a.Permissions {
		found := false
		for i, pb := range b.Permissions {
			if used[i] || !permissionsEqual(pa, pb) {
				continue
			}
			used[i] = true
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

func permissionsEqual(a, b Permission) bool {
	if a.Action != b.Action || len(a.Constraints) != len(b.Constraints) {
		return false
	}
	used := make([]bool, len(b.Constraints))
	for _, ca := range a.Constraints {
		found := false
		for i, cb := range b.Constraints {
			if used[i] || ca.Operator != cb.Operator || ca.RightOperand != cb.RightOperand {
				continue
			}
			used[i] = true
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

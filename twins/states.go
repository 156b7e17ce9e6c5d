// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package twins

import "github.com/industrial-twin/twinhub/pkg/errors"

// RegistrationStatus is the publication state of an aspect on one
// enablement service stack. Progression is strictly monotonic:
// Planned -> Stored -> EDCRegistered -> DTRRegistered.
type RegistrationStatus uint8

const (
	// Planned means the aspect exists but nothing has been published yet.
	Planned RegistrationStatus = iota
	// Stored means the aspect document has been persisted in the
	// submodel service.
	Stored
	// EDCRegistered means the aspect is offered through the dataspace
	// connector but not yet findable in the registry.
	EDCRegistered
	// DTRRegistered means the aspect is registered in the digital twin
	// registry and may be exposed to partners.
	DTRRegistered
)

var statusNames = map[RegistrationStatus]string{
	Planned:       "planned",
	Stored:        "stored",
	EDCRegistered: "edc_registered",
	DTRRegistered: "dtr_registered",
}

func (s RegistrationStatus) String() string {
	return statusNames[s]
}

// transitions is the validated table of allowed status moves.
var transitions = map[RegistrationStatus]RegistrationStatus{
	Planned:       Stored,
	Stored:        EDCRegistered,
	EDCRegistered: DTRRegistered,
}

// Next returns the status following s, or an error when s is terminal.
func (s RegistrationStatus) Next() (RegistrationStatus, error) {
	next, ok := transitions[s]
	if !ok {
		return s, errors.ErrStateTransition
	}
	return next, nil
}

// Transition validates a move from s to target. Only the single forward
// step from the transition table is allowed; regressions and skips are
// rejected.
func (s RegistrationStatus) Transition(target RegistrationStatus) error {
	next, ok := transitions[s]
	if !ok || next != target {
		return errors.ErrStateTransition
	}
	return nil
}

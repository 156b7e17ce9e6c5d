// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

var (
	// ErrNotFound indicates that the referenced twin, shell, submodel or
	// aspect does not exist, or is not registered for the requesting stack.
	ErrNotFound = New("entity not found")

	// ErrNotAuthorized indicates that the part exists but is not shared with
	// the requesting business partner. The message deliberately carries no
	// detail beyond the fact of denial.
	ErrNotAuthorized = New("entity not shared with the requesting partner")

	// ErrMalformedEntity indicates structurally invalid input, such as a
	// malformed cursor, search parameter or identifier, or a twin without an
	// attached part.
	ErrMalformedEntity = New("malformed entity specification")

	// ErrViewEntity indicates a failure while reading entities from the
	// backing repositories.
	ErrViewEntity = New("view entity failed")

	// ErrCreateEntity indicates a failure while storing an entity.
	ErrCreateEntity = New("failed to create entity")

	// ErrRemoveEntity indicates a failure while removing an entity.
	ErrRemoveEntity = New("failed to remove entity")

	// ErrStateTransition indicates an attempt to move an aspect registration
	// backwards or across an undefined transition.
	ErrStateTransition = New("invalid registration state transition")
)

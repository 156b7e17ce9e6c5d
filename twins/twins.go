// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package twins

import (
	"context"
	"time"
)

// Metadata stores arbitrary twin data.
type Metadata map[string]interface{}

// AssetKind distinguishes catalog-level twins from unit-level twins.
type AssetKind string

const (
	// KindType marks a twin describing a part type (catalog part).
	KindType AssetKind = "Type"
	// KindInstance marks a twin describing a single produced unit
	// (serialized part, batch or JIS part).
	KindInstance AssetKind = "Instance"
)

// Twin is the digital representation of a physical part. Its identity,
// the pair of global id and registry shell id, is immutable. A twin owns
// at most one part variant and any number of aspects.
type Twin struct {
	GlobalID       string
	AASID          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Metadata       Metadata
	CatalogPart    *CatalogPart
	SerializedPart *SerializedPart
	BatchPart      *BatchPart
	JISPart        *JISPart
	Aspects        []Aspect
	Registrations  []Registration
}

// Kind derives the asset kind from the attached part variant. The zero
// value is returned for a twin without a part, which is a data-integrity
// violation surfaced by the facade.
func (t Twin) Kind() AssetKind {
	switch {
	case t.CatalogPart != nil:
		return KindType
	case t.SerializedPart != nil, t.BatchPart != nil, t.JISPart != nil:
		return KindInstance
	}
	return ""
}

// RegisteredFor reports whether the twin is registered against the given
// enablement service stack.
func (t Twin) RegisteredFor(stackID string) bool {
	for _, r := range t.Registrations {
		if r.StackID == stackID && r.DTRRegistered {
			return true
		}
	}
	return false
}

// Registration records that a twin has been published to the registry of
// one enablement service stack.
type Registration struct {
	StackID       string
	DTRRegistered bool
}

// CatalogPart is the catalog-level (part type) variant of a twin.
type CatalogPart struct {
	ManufacturerID     string
	ManufacturerPartID string
	Partners           []PartnerCatalogPart
}

// PartnerFor returns the partner mapping for the given BPN.
func (cp CatalogPart) PartnerFor(bpn string) (PartnerCatalogPart, bool) {
	for _, p := range cp.Partners {
		if p.BPN == bpn {
			return p, true
		}
	}
	return PartnerCatalogPart{}, false
}

// PartnerCatalogPart maps a catalog part to the part id a business partner
// assigned to it. At most one mapping exists per catalog part and partner.
type PartnerCatalogPart struct {
	BPN            string
	CustomerPartID string
}

// SerializedPart is the unit-level variant for individually serialized parts.
type SerializedPart struct {
	ManufacturerID     string
	ManufacturerPartID string
	Partner            PartnerCatalogPart
	PartInstanceID     string
	VAN                string
}

// BatchPart is the unit-level variant for parts produced in batches.
type BatchPart struct {
	ManufacturerID     string
	ManufacturerPartID string
	Partner            PartnerCatalogPart
	BatchID            string
}

// JISPart is the unit-level variant for just-in-sequence parts.
type JISPart struct {
	ManufacturerID     string
	ManufacturerPartID string
	Partner            PartnerCatalogPart
	JISNumber          string
	ParentOrderNumber  string
	JISCallDate        *time.Time
}

// Aspect is one structured data view of a twin, identified by a semantic
// id and exposed through a submodel.
type Aspect struct {
	SemanticID    string
	SubmodelID    string
	Registrations []AspectRegistration
}

// RegistrationFor returns the registration of the aspect for the given
// enablement service stack.
func (a Aspect) RegistrationFor(stackID string) (AspectRegistration, bool) {
	for _, r := range a.Registrations {
		if r.StackID == stackID {
			return r, true
		}
	}
	return AspectRegistration{}, false
}

// AspectRegistration tracks the publication progress of one aspect on one
// enablement service stack.
type AspectRegistration struct {
	StackID   string
	Status    RegistrationStatus
	UpdatedAt time.Time
}

// Filter narrows a part-type twin query. Zero-valued fields are ignored.
type Filter struct {
	StackID            string
	DTRRegistered      bool
	PartnerBPN         string
	GlobalID           string
	ManufacturerID     string
	ManufacturerPartID string
	CustomerPartID     string
	PartInstanceID     string
	VAN                string
	BatchID            string
	JISNumber          string
	ParentOrderNumber  string
	JISCallDate        *time.Time
	IncludeAspects     bool
}

// Repository specifies the twin persistence API consumed by the facade.
// Listing methods return twins ordered by creation timestamp descending
// and strictly before the given watermark when one is set; a limit of
// zero or less means no rows are requested.
type Repository interface {
	// FindByAASID retrieves the twin having the provided shell id.
	FindByAASID(ctx context.Context, aasID string) (Twin, error)

	// FindCatalogPartTwins retrieves twins owning a catalog part.
	FindCatalogPartTwins(ctx context.Context, f Filter, before *time.Time, limit int) ([]Twin, error)

	// FindSerializedPartTwins retrieves twins owning a serialized part.
	FindSerializedPartTwins(ctx context.Context, f Filter, before *time.Time, limit int) ([]Twin, error)

	// FindJISPartTwins retrieves twins owning a JIS part.
	FindJISPartTwins(ctx context.Context, f Filter, before *time.Time, limit int) ([]Twin, error)

	// FindBatchTwins retrieves twins owning a batch part.
	FindBatchTwins(ctx context.Context, f Filter, before *time.Time, limit int) ([]Twin, error)
}

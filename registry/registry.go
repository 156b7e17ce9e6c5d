// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the provider-side digital twin registry
// facade. It serves shell and submodel descriptors for local twins,
// presenting four disjoint part-type collections as one cursor-paginated
// stream while enforcing per-partner data visibility.
package registry

import (
	"context"

	"github.com/industrial-twin/twinhub/twins"
)

// Reference types used in descriptor documents.
const (
	ExternalReference = "ExternalReference"
	GlobalReference   = "GlobalReference"
)

// Specific asset id names emitted for partner mappings.
const (
	AssetIDManufacturerPartID = "manufacturerPartId"
	AssetIDDigitalTwinType    = "digitalTwinType"
	AssetIDManufacturerID     = "manufacturerId"
	AssetIDCustomerPartID     = "customerPartId"
	AssetIDPartInstanceID     = "partInstanceId"
	AssetIDVAN                = "van"

	// PublicReadable marks a specific asset id visible to every partner.
	PublicReadable = "PUBLIC_READABLE"

	digitalTwinTypePartType     = "PartType"
	digitalTwinTypePartInstance = "PartInstance"
)

// Key is a single reference key of a descriptor reference.
type Key struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Reference points at an external identifier such as a semantic model or
// the BPN a specific asset id is scoped to.
type Reference struct {
	Type string `json:"type"`
	Keys []Key  `json:"keys"`
}

// SpecificAssetID is a named discovery key of a shell, optionally scoped
// to a single business partner through ExternalSubjectID.
type SpecificAssetID struct {
	Name              string     `json:"name"`
	Value             string     `json:"value"`
	ExternalSubjectID *Reference `json:"externalSubjectId,omitempty"`
}

// SecurityAttribute describes how a submodel endpoint is protected.
type SecurityAttribute struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProtocolInformation carries the connection facts of a submodel endpoint.
type ProtocolInformation struct {
	Href                    string              `json:"href"`
	EndpointProtocol        string              `json:"endpointProtocol"`
	EndpointProtocolVersion []string            `json:"endpointProtocolVersion,omitempty"`
	Subprotocol             string              `json:"subprotocol,omitempty"`
	SubprotocolBody         string              `json:"subprotocolBody,omitempty"`
	SubprotocolBodyEncoding string              `json:"subprotocolBodyEncoding,omitempty"`
	SecurityAttributes      []SecurityAttribute `json:"securityAttributes,omitempty"`
}

// Endpoint is one access path to a submodel.
type Endpoint struct {
	Interface           string              `json:"interface"`
	ProtocolInformation ProtocolInformation `json:"protocolInformation"`
}

// SubmodelDescriptor is the externally exposed representation of one twin
// aspect.
type SubmodelDescriptor struct {
	ID         string     `json:"id"`
	IDShort    string     `json:"idShort,omitempty"`
	SemanticID *Reference `json:"semanticId,omitempty"`
	Endpoints  []Endpoint `json:"endpoints"`
}

// ShellDescriptor is the externally exposed representation of a twin.
type ShellDescriptor struct {
	ID                  string               `json:"id"`
	GlobalAssetID       string               `json:"globalAssetId,omitempty"`
	AssetKind           twins.AssetKind      `json:"assetKind,omitempty"`
	AssetType           string               `json:"assetType,omitempty"`
	SpecificAssetIDs    []SpecificAssetID    `json:"specificAssetIds,omitempty"`
	SubmodelDescriptors []SubmodelDescriptor `json:"submodelDescriptors,omitempty"`
}

// DescriptorQuery narrows a shell descriptor listing.
type DescriptorQuery struct {
	PartnerBPN string
	AssetKind  twins.AssetKind
	AssetType  string
	Limit      int
	Cursor     string
}

// DescriptorsPage is one page of a shell descriptor listing. An empty
// cursor means the enumeration is complete.
type DescriptorsPage struct {
	Descriptors []ShellDescriptor
	Cursor      string
}

// SubmodelsPage is one page of a submodel descriptor listing.
type SubmodelsPage struct {
	Descriptors []SubmodelDescriptor
	Cursor      string
}

// IDsPage is one page of a shell id lookup.
type IDsPage struct {
	IDs    []string
	Cursor string
}

// Service specifies the registry facade API. All operations are scoped to
// one enablement service stack; partnerBPN, when non-empty, restricts the
// response to data shared with that partner.
type Service interface {
	// ListShellDescriptors enumerates shell descriptors across all
	// part-type collections. Within one call the engine never advances
	// past the page's collection: continuation across collections happens
	// through the returned cursor.
	ListShellDescriptors(ctx context.Context, stackID string, query DescriptorQuery) (DescriptorsPage, error)

	// ViewShellDescriptor retrieves the descriptor of a single shell.
	ViewShellDescriptor(ctx context.Context, stackID, aasID, partnerBPN string) (ShellDescriptor, error)

	// ListSubmodelDescriptors retrieves the submodel descriptors of a
	// shell with offset-based paging over the assembled list.
	ListSubmodelDescriptors(ctx context.Context, stackID, aasID, partnerBPN string, limit int, cursor string) (SubmodelsPage, error)

	// ViewSubmodelDescriptor retrieves a single submodel descriptor.
	ViewSubmodelDescriptor(ctx context.Context, stackID, aasID, submodelID, partnerBPN string) (SubmodelDescriptor, error)

	// LookupShells returns the ids of shells matching the given encoded
	// search parameters, falling through collection boundaries within one
	// call when the page budget allows.
	LookupShells(ctx context.Context, stackID string, params []string, partnerBPN string, limit int, cursor string) (IDsPage, error)

	// ListAssetLinks returns the specific asset ids of a shell.
	ListAssetLinks(ctx context.Context, stackID, aasID, partnerBPN string) ([]SpecificAssetID, error)
}

// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

// Package discovery implements the consumer-side orchestrator: it locates
// a partner's digital twin registries through the dataspace, negotiates
// access to them and to the assets behind their submodels, and fetches
// submodel payloads under governance control.
package discovery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/industrial-twin/twinhub/registry"
)

// RegistryTaxonomy is the dct:type IRI that marks a catalog dataset as a
// digital twin registry offer.
const RegistryTaxonomy = "https://w3id.org/catenax/taxonomy#DigitalTwinRegistry"

// Constraint is one usage condition of a policy permission.
type Constraint struct {
	LeftOperand  string `json:"leftOperand"`
	Operator     string `json:"operator"`
	RightOperand string `json:"rightOperand"`
}

// Permission is one allowed action of a policy together with its
// constraints.
type Permission struct {
	Action      string       `json:"action"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// Policy is a usage policy as presented in a connector catalog offer.
type Policy struct {
	Permissions []Permission `json:"permissions"`
}

// Entry is one cached registry resolution for a partner. A partner may be
// reachable through more than one registry, so entries are keyed by
// (BPN, AssetID).
type Entry struct {
	ConnectorURL string    `json:"connectorUrl"`
	AssetID      string    `json:"assetId"`
	Policies     []Policy  `json:"policies,omitempty"`
	InsertedAt   time.Time `json:"insertedAt"`
}

// Cache stores resolved registry entries per partner. Expiry is evaluated
// lazily on Lookup; an expired entry behaves as a miss and is evicted.
// Implementations must be safe for concurrent use. Concurrent Save calls
// for the same (BPN, AssetID) are last-write-wins.
type Cache interface {
	// Lookup returns the live entries of a partner. A miss is an empty
	// slice, not an error.
	Lookup(ctx context.Context, bpn string) ([]Entry, error)

	// Save stores an entry for a partner. A zero InsertedAt is stamped
	// with the current time.
	Save(ctx context.Context, bpn string, entry Entry) error

	// Remove drops one entry of a partner.
	Remove(ctx context.Context, bpn, assetID string) error

	// Purge drops every entry of a partner.
	Purge(ctx context.Context, bpn string) error

	// Reset drops all entries.
	Reset(ctx context.Context) error

	// Count returns the number of live entries of a partner.
	Count(ctx context.Context, bpn string) (int, error)
}

// Dataset is one offer from a connector catalog.
type Dataset struct {
	ID       string
	Type     string
	Policies []Policy
}

// Access is the outcome of a successful contract negotiation: the data
// plane endpoint and the token that authorizes requests against it.
type Access struct {
	Endpoint string
	Token    string
}

// Connector is the dataspace transport the orchestrator drives. It is
// consumed opaquely; retry policy, if any, lives behind this interface.
type Connector interface {
	// Discover resolves the connector URLs a partner is reachable at.
	Discover(ctx context.Context, bpn string) ([]string, error)

	// Catalog fetches the datasets a connector offers to us.
	Catalog(ctx context.Context, bpn, connectorURL string) ([]Dataset, error)

	// Negotiate runs a contract negotiation for one asset and returns
	// the access handle on agreement.
	Negotiate(ctx context.Context, bpn, connectorURL, assetID string, policies []Policy) (Access, error)

	// Fetch performs an authorized data plane request.
	Fetch(ctx context.Context, href, token string) (json.RawMessage, error)
}

// Status classifies the outcome of one submodel within a discovery call.
type Status string

const (
	// StatusSuccess means the submodel payload was fetched.
	StatusSuccess Status = "success"
	// StatusNotRequested means governance has no entry for the submodel's
	// semantic id, so no fetch was attempted.
	StatusNotRequested Status = "not_requested"
	// StatusError means negotiation or fetch failed, or the offered
	// policy was incompatible with governance.
	StatusError Status = "error"
)

// SubmodelOutcome is the per-submodel result of a discovery call.
type SubmodelOutcome struct {
	SemanticID string          `json:"semanticId"`
	AssetID    string          `json:"assetId,omitempty"`
	Status     Status          `json:"status"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// SubmodelsResult aggregates the outcomes of one discover-submodels call,
// keyed by submodel id.
type SubmodelsResult struct {
	ShellID   string                     `json:"shellId"`
	Found     int                        `json:"found"`
	Submodels map[string]SubmodelOutcome `json:"submodels"`
}

// RegistryShells holds the shells one registry returned for a query.
type RegistryShells struct {
	ConnectorURL string                     `json:"connectorUrl"`
	Status       Status                     `json:"status"`
	Message      string                     `json:"message,omitempty"`
	Shells       []registry.ShellDescriptor `json:"shells,omitempty"`
}

// ShellsResult aggregates shell queries across all known registries of a
// partner.
type ShellsResult struct {
	Partner    string           `json:"partner"`
	Registries []RegistryShells `json:"registries"`
}

// QuerySpec is the conjunctive asset-link query sent to a remote
// registry's lookup endpoint: all keys must match.
type QuerySpec map[string]string

// Service specifies the consumer-side discovery API.
type Service interface {
	// DiscoverShells resolves the partner's registries and queries each
	// for shells matching the query spec, returning full descriptors.
	// Registry access is negotiated with the supplied policies, or with
	// the policies recorded on the cached entry when none are given.
	DiscoverShells(ctx context.Context, bpn string, query QuerySpec, policies []Policy) (ShellsResult, error)

	// DiscoverShell retrieves a single shell descriptor by its id from
	// the first registry of the partner that serves it.
	DiscoverShell(ctx context.Context, bpn, shellID string, policies []Policy) (registry.ShellDescriptor, error)

	// DiscoverSubmodels fetches the payloads of all governed submodels
	// of a shell. Distinct assets are negotiated exactly once, in
	// parallel up to the fan-out limit; each fetch starts as soon as
	// its own negotiation completes.
	DiscoverSubmodels(ctx context.Context, bpn, shellID string, governance Governance) (SubmodelsResult, error)

	// DiscoverSubmodel fetches one submodel payload by submodel id
	// without scanning the whole shell.
	DiscoverSubmodel(ctx context.Context, bpn, shellID, submodelID string, governance Governance) (SubmodelOutcome, error)

	// DiscoverSubmodelBySemanticIDs selects every submodel of a shell
	// whose semantic id keys contain all the requested ids and fetches
	// the governed ones.
	DiscoverSubmodelBySemanticIDs(ctx context.Context, bpn, shellID string, semanticIDs []string, governance Governance) (SubmodelsResult, error)

	// KnownRegistries returns the live cached registry entries of a
	// partner without triggering discovery.
	KnownRegistries(ctx context.Context, bpn string) ([]Entry, error)

	// ForgetPartner drops the cached registry entries of a partner.
	ForgetPartner(ctx context.Context, bpn string) error
}

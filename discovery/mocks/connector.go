// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/industrial-twin/twinhub/discovery"
	"github.com/industrial-twin/twinhub/pkg/errors"
)

var (
	errUnknownPartner  = errors.New("unknown partner")
	errUnknownCatalog  = errors.New("unknown connector")
	errUnknownDocument = errors.New("unknown document")
)

var _ discovery.Connector = (*Connector)(nil)

// Connector is an in-memory dataspace fake. Catalogs, endpoints and data
// plane documents are seeded by the test; every negotiation and fetch is
// counted so invariants like per-asset deduplication can be asserted.
type Connector struct {
	mu sync.Mutex

	// ConnectorURLs maps a partner BPN to its discoverable connectors.
	ConnectorURLs map[string][]string
	// Catalogs maps a connector URL to the datasets it offers.
	Catalogs map[string][]discovery.Dataset
	// Endpoints maps an asset id to the data plane endpoint granted on
	// successful negotiation.
	Endpoints map[string]string
	// Documents maps a data plane href to its payload.
	Documents map[string]json.RawMessage

	// NegotiateErr fails negotiation for specific asset ids.
	NegotiateErr map[string]error
	// FetchErr fails fetches for specific hrefs.
	FetchErr map[string]error

	negotiations map[string]int
	fetches      map[string]int
	discoveries  int
}

func NewConnector() *Connector {
	return &Connector{
		ConnectorURLs: make(map[string][]string),
		Catalogs:      make(map[string][]discovery.Dataset),
		Endpoints:     make(map[string]string),
		Documents:     make(map[string]json.RawMessage),
		NegotiateErr:  make(map[string]error),
		FetchErr:      make(map[string]error),
		negotiations:  make(map[string]int),
		fetches:       make(map[string]int),
	}
}

func (c *Connector) Discover(ctx context.Context, bpn string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.discoveries++
	urls, ok := c.ConnectorURLs[bpn]
	if !ok {
		return nil, errUnknownPartner
	}
	return urls, nil
}

func (c *Connector) Catalog(ctx context.Context, bpn, connectorURL string) ([]discovery.Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	datasets, ok := c.Catalogs[connectorURL]
	if !ok {
		return nil, errUnknownCatalog
	}
	return datasets, nil
}

func (c *Connector) Negotiate(ctx context.Context, bpn, connectorURL, assetID string, policies []discovery.Policy) (discovery.Access, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.negotiations[assetID]++
	if err := c.NegotiateErr[assetID]; err != nil {
		return discovery.Access{}, err
	}
	return discovery.Access{
		Endpoint: c.Endpoints[assetID],
		Token:    "token-" + assetID,
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, href, token string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetches[href]++
	if err := c.FetchErr[href]; err != nil {
		return nil, err
	}
	doc, ok := c.Documents[href]
	if !ok {
		return nil, errUnknownDocument
	}
	return doc, nil
}

// Negotiations returns how many times the asset was negotiated.
func (c *Connector) Negotiations(assetID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiations[assetID]
}

// Fetches returns how many times the href was fetched.
func (c *Connector) Fetches(href string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches[href]
}

// Discoveries returns how many discovery round trips were issued.
func (c *Connector) Discoveries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discoveries
}

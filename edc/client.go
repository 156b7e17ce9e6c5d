// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

// Package edc is a thin HTTP client for the dataspace: partner discovery,
// catalog requests, EDR-based contract negotiation and data plane reads.
// It satisfies discovery.Connector.
package edc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/industrial-twin/twinhub/discovery"
	"github.com/industrial-twin/twinhub/pkg/errors"
)

const (
	dspProtocol  = "dataspace-protocol-http"
	odrlContext  = "http://www.w3.org/ns/odrl/2/"
	defPollEvery = time.Second
)

var (
	errUnexpectedStatus = errors.New("unexpected response status")
	errNoAgreement      = errors.New("no transfer available for asset")
)

// Config holds the endpoints and credentials of the dataspace client.
type Config struct {
	// DiscoveryURL is the connector discovery service resolving a BPN
	// to connector endpoints.
	DiscoveryURL string
	// ManagementURL is the management API of our own connector.
	ManagementURL string
	// APIKey authenticates management API calls.
	APIKey string
}

var _ discovery.Connector = (*client)(nil)

type client struct {
	http      *http.Client
	cfg       Config
	pollEvery time.Duration
}

// NewClient returns an HTTP-backed dataspace connector. timeout bounds
// each individual request; negotiation polling is bounded by the caller's
// context.
func NewClient(cfg Config, timeout time.Duration) discovery.Connector {
	return &client{
		http:      &http.Client{Timeout: timeout},
		cfg:       cfg,
		pollEvery: defPollEvery,
	}
}

func (c *client) Discover(ctx context.Context, bpn string) ([]string, error) {
	var resolved []struct {
		BPN               string   `json:"bpn"`
		ConnectorEndpoint []string `json:"connectorEndpoint"`
	}
	url := c.cfg.DiscoveryURL + "/api/v1.0/administration/connectors/discovery"
	if err := c.do(ctx, http.MethodPost, url, []string{bpn}, &resolved); err != nil {
		return nil, err
	}

	var urls []string
	for _, entry := range resolved {
		if entry.BPN == "" || entry.BPN == bpn {
			urls = append(urls, entry.ConnectorEndpoint...)
		}
	}
	return urls, nil
}

func (c *client) Catalog(ctx context.Context, bpn, connectorURL string) ([]discovery.Dataset, error) {
	request := map[string]any{
		"@context":            map[string]any{"odrl": odrlContext},
		"@type":               "CatalogRequest",
		"counterPartyAddress": connectorURL,
		"counterPartyId":      bpn,
		"protocol":            dspProtocol,
	}

	var catalog map[string]any
	if err := c.do(ctx, http.MethodPost, c.cfg.ManagementURL+"/v3/catalog/request", request, &catalog); err != nil {
		return nil, err
	}

	var datasets []discovery.Dataset
	for _, raw := range asList(catalog["dcat:dataset"]) {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		ds := discovery.Dataset{
			ID:   asString(node["@id"]),
			Type: asString(node["dct:type"]),
		}
		for _, p := range asList(node["odrl:hasPolicy"]) {
			if policy, ok := parsePolicy(p); ok {
				ds.Policies = append(ds.Policies, policy)
			}
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func (c *client) Negotiate(ctx context.Context, bpn, connectorURL, assetID string, policies []discovery.Policy) (discovery.Access, error) {
	var offer map[string]any
	if len(policies) > 0 {
		offer = offerDocument(bpn, assetID, policies[0])
	}
	request := map[string]any{
		"@context":            map[string]any{"odrl": odrlContext},
		"@type":               "ContractRequest",
		"counterPartyAddress": connectorURL,
		"counterPartyId":      bpn,
		"protocol":            dspProtocol,
		"policy":              offer,
	}

	var started struct {
		ID string `json:"@id"`
	}
	if err := c.do(ctx, http.MethodPost, c.cfg.ManagementURL+"/v3/edrs", request, &started); err != nil {
		return discovery.Access{}, err
	}

	transferID, err := c.awaitTransfer(ctx, assetID)
	if err != nil {
		return discovery.Access{}, err
	}

	var address struct {
		Endpoint      string `json:"endpoint"`
		Authorization string `json:"authorization"`
	}
	url := fmt.Sprintf("%s/v3/edrs/%s/dataaddress", c.cfg.ManagementURL, transferID)
	if err := c.do(ctx, http.MethodGet, url, nil, &address); err != nil {
		return discovery.Access{}, err
	}

	return discovery.Access{Endpoint: address.Endpoint, Token: address.Authorization}, nil
}

func (c *client) Fetch(ctx context.Context, href, token string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrMalformedEntity, err)
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Wrap(errUnexpectedStatus, errors.New(resp.Status))
	}
	return body, nil
}

// awaitTransfer polls the EDR store until a transfer for the asset shows
// up or the context expires.
func (c *client) awaitTransfer(ctx context.Context, assetID string) (string, error) {
	query := map[string]any{
		"@context": map[string]any{"odrl": odrlContext},
		"@type":    "QuerySpec",
		"filterExpression": []map[string]any{
			{"operandLeft": "assetId", "operator": "=", "operandRight": assetID},
		},
	}

	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		var entries []struct {
			TransferProcessID string `json:"transferProcessId"`
		}
		if err := c.do(ctx, http.MethodPost, c.cfg.ManagementURL+"/v3/edrs/request", query, &entries); err != nil {
			return "", err
		}
		for _, entry := range entries {
			if entry.TransferProcessID != "" {
				return entry.TransferProcessID, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", errors.Wrap(errNoAgreement, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(errors.ErrMalformedEntity, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(errors.ErrMalformedEntity, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Wrap(errUnexpectedStatus, errors.New(resp.Status))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// offerDocument translates a structural policy back into the ODRL offer
// shape the management API expects.
func offerDocument(bpn, assetID string, policy discovery.Policy) map[string]any {
	var permissions []map[string]any
	for _, perm := range policy.Permissions {
		var constraints []map[string]any
		for _, con := range perm.Constraints {
			constraints = append(constraints, map[string]any{
				"odrl:leftOperand":  map[string]any{"@id": con.LeftOperand},
				"odrl:operator":     map[string]any{"@id": con.Operator},
				"odrl:rightOperand": con.RightOperand,
			})
		}
		node := map[string]any{
			"odrl:action": map[string]any{"@id": perm.Action},
		}
		switch len(constraints) {
		case 0:
		case 1:
			node["odrl:constraint"] = constraints[0]
		default:
			node["odrl:constraint"] = map[string]any{"odrl:and": constraints}
		}
		permissions = append(permissions, node)
	}

	return map[string]any{
		"@type":           "odrl:Offer",
		"odrl:target":     map[string]any{"@id": assetID},
		"odrl:assigner":   map[string]any{"@id": bpn},
		"odrl:permission": permissions,
	}
}

// parsePolicy reads one odrl:hasPolicy node into the structural policy
// shape governance matching works on.
func parsePolicy(raw any) (discovery.Policy, bool) {
	node, ok := raw.(map[string]any)
	if !ok {
		return discovery.Policy{}, false
	}

	var policy discovery.Policy
	for _, p := range asList(node["odrl:permission"]) {
		perm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		permission := discovery.Permission{
			Action: asString(perm["odrl:action"]),
		}
		permission.Constraints = parseConstraints(perm["odrl:constraint"])
		policy.Permissions = append(policy.Permissions, permission)
	}
	return policy, len(policy.Permissions) > 0
}

func parseConstraints(raw any) []discovery.Constraint {
	node, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	// A compound constraint nests its members under odrl:and.
	if members, ok := node["odrl:and"]; ok {
		var constraints []discovery.Constraint
		for _, m := range asList(members) {
			constraints = append(constraints, parseConstraints(m)...)
		}
		return constraints
	}

	return []discovery.Constraint{
		{
			LeftOperand:  asString(node["odrl:leftOperand"]),
			Operator:     asString(node["odrl:operator"]),
			RightOperand: asString(node["odrl:rightOperand"]),
		},
	}
}

// asList normalizes the JSON-LD habit of collapsing single-element arrays
// into bare objects.
func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

// asString reads either a bare string or an @id node.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		return asString(t["@id"])
	default:
		return ""
	}
}

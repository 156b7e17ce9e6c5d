// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/industrial-twin/twinhub/pkg/errors"
	"github.com/industrial-twin/twinhub/registry"
)

const defFanOut = 8

var (
	errNoRegistry     = errors.New("no registry discovered for partner")
	errNoDataset      = errors.New("asset not present in connector catalog")
	errNoEndpoint     = errors.New("submodel descriptor has no usable endpoint")
	errBadSubprotocol = errors.New("malformed subprotocol body")
)

var _ Service = (*service)(nil)

type service struct {
	cache     Cache
	connector Connector
	fanOut    int
}

// New returns a discovery orchestrator. fanOut bounds the number of
// concurrent asset negotiations per call; non-positive values fall back
// to the default.
func New(cache Cache, connector Connector, fanOut int) Service {
	if fanOut <= 0 {
		fanOut = defFanOut
	}
	return &service{
		cache:     cache,
		connector: connector,
		fanOut:    fanOut,
	}
}

func (svc *service) DiscoverShells(ctx context.Context, bpn string, query QuerySpec, policies []Policy) (ShellsResult, error) {
	entries, err := svc.resolveRegistries(ctx, bpn)
	if err != nil {
		return ShellsResult{}, err
	}

	result := ShellsResult{Partner: bpn}
	for _, entry := range entries {
		result.Registries = append(result.Registries, svc.queryRegistry(ctx, bpn, entry, query, policies))
	}

	return result, nil
}

func (svc *service) DiscoverShell(ctx context.Context, bpn, shellID string, policies []Policy) (registry.ShellDescriptor, error) {
	sd, _, err := svc.shellDescriptor(ctx, bpn, shellID, policies)
	return sd, err
}

func (svc *service) DiscoverSubmodels(ctx context.Context, bpn, shellID string, governance Governance) (SubmodelsResult, error) {
	sd, _, err := svc.shellDescriptor(ctx, bpn, shellID, nil)
	if err != nil {
		return SubmodelsResult{}, err
	}

	return SubmodelsResult{
		ShellID:   shellID,
		Found:     len(sd.SubmodelDescriptors),
		Submodels: svc.fetchSubmodels(ctx, bpn, sd.SubmodelDescriptors, governance),
	}, nil
}

func (svc *service) DiscoverSubmodel(ctx context.Context, bpn, shellID, submodelID string, governance Governance) (SubmodelOutcome, error) {
	access, err := svc.registryAccess(ctx, bpn, nil)
	if err != nil {
		return SubmodelOutcome{}, err
	}

	href := fmt.Sprintf("%s/shell-descriptors/%s/submodel-descriptors/%s",
		access.Endpoint, encodeID(shellID), encodeID(submodelID))
	raw, err := svc.connector.Fetch(ctx, href, access.Token)
	if err != nil {
		return SubmodelOutcome{}, errors.Wrap(errors.ErrNotFound, err)
	}

	var descriptor registry.SubmodelDescriptor
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return SubmodelOutcome{}, errors.Wrap(errors.ErrMalformedEntity, err)
	}

	outcomes := svc.fetchSubmodels(ctx, bpn, []registry.SubmodelDescriptor{descriptor}, governance)
	return outcomes[descriptor.ID], nil
}

func (svc *service) DiscoverSubmodelBySemanticIDs(ctx context.Context, bpn, shellID string, semanticIDs []string, governance Governance) (SubmodelsResult, error) {
	sd, _, err := svc.shellDescriptor(ctx, bpn, shellID, nil)
	if err != nil {
		return SubmodelsResult{}, err
	}

	var selected []registry.SubmodelDescriptor
	for _, descriptor := range sd.SubmodelDescriptors {
		if semanticSuperset(descriptor, semanticIDs) {
			selected = append(selected, descriptor)
		}
	}

	return SubmodelsResult{
		ShellID:   shellID,
		Found:     len(selected),
		Submodels: svc.fetchSubmodels(ctx, bpn, selected, governance),
	}, nil
}

func (svc *service) KnownRegistries(ctx context.Context, bpn string) ([]Entry, error) {
	return svc.cache.Lookup(ctx, bpn)
}

func (svc *service) ForgetPartner(ctx context.Context, bpn string) error {
	return svc.cache.Purge(ctx, bpn)
}

// resolveRegistries returns the partner's registry entries, cache first,
// falling back to connector discovery on a miss. Freshly discovered
// entries are cached before being returned.
func (svc *service) resolveRegistries(ctx context.Context, bpn string) ([]Entry, error) {
	entries, err := svc.cache.Lookup(ctx, bpn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrViewEntity, err)
	}
	if len(entries) > 0 {
		return entries, nil
	}

	urls, err := svc.connector.Discover(ctx, bpn)
	if err != nil {
		return nil, errors.Wrap(errNoRegistry, err)
	}

	for _, connectorURL := range urls {
		datasets, err := svc.connector.Catalog(ctx, bpn, connectorURL)
		if err != nil {
			continue
		}
		for _, ds := range datasets {
			if ds.Type != RegistryTaxonomy {
				continue
			}
			entry := Entry{
				ConnectorURL: connectorURL,
				AssetID:      ds.ID,
				Policies:     ds.Policies,
			}
			if err := svc.cache.Save(ctx, bpn, entry); err != nil {
				return nil, errors.Wrap(errors.ErrCreateEntity, err)
			}
			entries = append(entries, entry)
		}
	}

	if len(entries) == 0 {
		return nil, errors.Wrap(errors.ErrNotFound, errNoRegistry)
	}
	return entries, nil
}

// registryAccess negotiates access to the first reachable registry of the
// partner. An entry that fails negotiation is dropped from the cache so
// the next call rediscovers it.
func (svc *service) registryAccess(ctx context.Context, bpn string, policies []Policy) (Access, error) {
	entries, err := svc.resolveRegistries(ctx, bpn)
	if err != nil {
		return Access{}, err
	}

	var lastErr error
	for _, entry := range entries {
		access, err := svc.negotiateRegistry(ctx, bpn, entry, policies)
		if err != nil {
			lastErr = err
			continue
		}
		return access, nil
	}

	return Access{}, errors.Wrap(errors.ErrNotFound, lastErr)
}

func (svc *service) negotiateRegistry(ctx context.Context, bpn string, entry Entry, policies []Policy) (Access, error) {
	if len(policies) == 0 {
		policies = entry.Policies
	}
	access, err := svc.connector.Negotiate(ctx, bpn, entry.ConnectorURL, entry.AssetID, policies)
	if err != nil {
		if rerr := svc.cache.Remove(ctx, bpn, entry.AssetID); rerr != nil {
			return Access{}, errors.Wrap(err, rerr)
		}
		return Access{}, err
	}
	return access, nil
}

// queryRegistry runs the lookup-and-fetch pass against one registry.
// Failures are recorded on the result instead of aborting sibling
// registries.
func (svc *service) queryRegistry(ctx context.Context, bpn string, entry Entry, query QuerySpec, policies []Policy) RegistryShells {
	rs := RegistryShells{ConnectorURL: entry.ConnectorURL}

	access, err := svc.negotiateRegistry(ctx, bpn, entry, policies)
	if err != nil {
		rs.Status = StatusError
		rs.Message = err.Error()
		return rs
	}

	ids, err := svc.lookupShellIDs(ctx, access, query)
	if err != nil {
		rs.Status = StatusError
		rs.Message = err.Error()
		return rs
	}

	for _, id := range ids {
		sd, err := svc.fetchShell(ctx, access, id)
		if err != nil {
			rs.Status = StatusError
			rs.Message = err.Error()
			return rs
		}
		rs.Shells = append(rs.Shells, sd)
	}

	rs.Status = StatusSuccess
	return rs
}

func (svc *service) lookupShellIDs(ctx context.Context, access Access, query QuerySpec) ([]string, error) {
	values := url.Values{}
	for name, value := range query {
		token, err := registry.EncodeSearchParam(registry.SearchParam{Name: name, Value: value})
		if err != nil {
			return nil, err
		}
		values.Add("assetIds", token)
	}

	href := access.Endpoint + "/lookup/shellsByAssetLink"
	if encoded := values.Encode(); encoded != "" {
		href += "?" + encoded
	}

	raw, err := svc.connector.Fetch(ctx, href, access.Token)
	if err != nil {
		return nil, err
	}

	// The lookup endpoint answers either a paged envelope or a bare
	// array, depending on the registry version.
	var envelope struct {
		Result []string `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		return envelope.Result, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedEntity, err)
	}
	return ids, nil
}

func (svc *service) fetchShell(ctx context.Context, access Access, shellID string) (registry.ShellDescriptor, error) {
	raw, err := svc.connector.Fetch(ctx, access.Endpoint+"/shell-descriptors/"+encodeID(shellID), access.Token)
	if err != nil {
		return registry.ShellDescriptor{}, err
	}
	var sd registry.ShellDescriptor
	if err := json.Unmarshal(raw, &sd); err != nil {
		return registry.ShellDescriptor{}, errors.Wrap(errors.ErrMalformedEntity, err)
	}
	return sd, nil
}

// shellDescriptor retrieves a shell by id from the first registry of the
// partner that both grants access and serves the shell.
func (svc *service) shellDescriptor(ctx context.Context, bpn, shellID string, policies []Policy) (registry.ShellDescriptor, Access, error) {
	entries, err := svc.resolveRegistries(ctx, bpn)
	if err != nil {
		return registry.ShellDescriptor{}, Access{}, err
	}

	var lastErr error
	for _, entry := range entries {
		access, err := svc.negotiateRegistry(ctx, bpn, entry, policies)
		if err != nil {
			lastErr = err
			continue
		}
		sd, err := svc.fetchShell(ctx, access, shellID)
		if err != nil {
			lastErr = err
			continue
		}
		return sd, access, nil
	}

	return registry.ShellDescriptor{}, Access{}, errors.Wrap(errors.ErrNotFound, lastErr)
}

// target is one submodel selected for fetching, resolved to the asset
// and data plane location behind it.
type target struct {
	submodelID  string
	semanticID  string
	href        string
	dspEndpoint string
	assetID     string
}

// fetchSubmodels runs the governed fan-out: distinct assets are
// negotiated exactly once, concurrently up to the fan-out limit, and each
// submodel fetch starts as soon as its own asset's negotiation completes.
// Failures stay local to their submodel.
func (svc *service) fetchSubmodels(ctx context.Context, bpn string, descriptors []registry.SubmodelDescriptor, governance Governance) map[string]SubmodelOutcome {
	outcomes := make(map[string]SubmodelOutcome, len(descriptors))
	groups := make(map[string][]target)

	for _, sd := range descriptors {
		semanticID := primarySemanticID(sd)
		tgt, err := resolveTarget(sd)
		if err != nil {
			outcomes[sd.ID] = SubmodelOutcome{
				SemanticID: semanticID,
				Status:     StatusError,
				Message:    err.Error(),
			}
			continue
		}
		tgt.semanticID = semanticID

		if !governance.Governed(semanticID) {
			outcomes[sd.ID] = SubmodelOutcome{
				SemanticID: semanticID,
				AssetID:    tgt.assetID,
				Status:     StatusNotRequested,
			}
			continue
		}

		groups[tgt.assetID] = append(groups[tgt.assetID], tgt)
	}

	var mu sync.Mutex
	record := func(t target, outcome SubmodelOutcome) {
		outcome.SemanticID = t.semanticID
		outcome.AssetID = t.assetID
		mu.Lock()
		outcomes[t.submodelID] = outcome
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(svc.fanOut)
	for _, targets := range groups {
		targets := targets
		g.Go(func() error {
			svc.negotiateAndFetch(ctx, bpn, targets, governance, record)
			return nil
		})
	}
	g.Wait()

	// Anything the deadline cut off is reported, not dropped.
	for _, targets := range groups {
		for _, t := range targets {
			if _, ok := outcomes[t.submodelID]; !ok {
				msg := "aborted"
				if err := ctx.Err(); err != nil {
					msg = err.Error()
				}
				record(t, SubmodelOutcome{Status: StatusError, Message: msg})
			}
		}
	}

	return outcomes
}

// negotiateAndFetch handles one distinct asset: catalog check, governance
// gate, a single negotiation, then the fetches of every submodel behind
// the asset.
func (svc *service) negotiateAndFetch(ctx context.Context, bpn string, targets []target, governance Governance, record func(target, SubmodelOutcome)) {
	fail := func(ts []target, err error) {
		for _, t := range ts {
			record(t, SubmodelOutcome{Status: StatusError, Message: err.Error()})
		}
	}

	if err := ctx.Err(); err != nil {
		fail(targets, err)
		return
	}

	assetID := targets[0].assetID
	dspEndpoint := targets[0].dspEndpoint

	datasets, err := svc.connector.Catalog(ctx, bpn, dspEndpoint)
	if err != nil {
		fail(targets, err)
		return
	}
	var dataset *Dataset
	for i := range datasets {
		if datasets[i].ID == assetID {
			dataset = &datasets[i]
			break
		}
	}
	if dataset == nil {
		fail(targets, errNoDataset)
		return
	}

	// Each submodel is gated on its own semantic id; an offered policy
	// incompatible with governance is an error, distinct from the
	// ungoverned case handled before the fan-out.
	var eligible []target
	var chosen *Policy
	for _, t := range targets {
		matched := matchOffered(governance, t.semanticID, dataset.Policies)
		if matched == nil {
			record(t, SubmodelOutcome{
				Status:  StatusError,
				Message: "offered policy incompatible with governance",
			})
			continue
		}
		if chosen == nil {
			chosen = matched
		}
		eligible = append(eligible, t)
	}
	if len(eligible) == 0 {
		return
	}

	access, err := svc.connector.Negotiate(ctx, bpn, dspEndpoint, assetID, []Policy{*chosen})
	if err != nil {
		fail(eligible, err)
		return
	}

	for _, t := range eligible {
		if err := ctx.Err(); err != nil {
			record(t, SubmodelOutcome{Status: StatusError, Message: err.Error()})
			continue
		}
		data, err := svc.connector.Fetch(ctx, t.href, access.Token)
		if err != nil {
			record(t, SubmodelOutcome{Status: StatusError, Message: err.Error()})
			continue
		}
		record(t, SubmodelOutcome{Status: StatusSuccess, Data: data})
	}
}

func matchOffered(governance Governance, semanticID string, offered []Policy) *Policy {
	for i := range offered {
		if governance.Matches(semanticID, offered[i]) {
			return &offered[i]
		}
	}
	return nil
}

// resolveTarget extracts the data plane href and the DSP coordinates of a
// submodel from its endpoint's subprotocol body of the form
// "id=<asset>;dspEndpoint=<url>".
func resolveTarget(sd registry.SubmodelDescriptor) (target, error) {
	for _, ep := range sd.Endpoints {
		if ep.Interface != "" && !strings.HasPrefix(ep.Interface, "SUBMODEL") {
			continue
		}
		assetID, dspEndpoint, err := parseSubprotocolBody(ep.ProtocolInformation.SubprotocolBody)
		if err != nil {
			return target{}, err
		}
		return target{
			submodelID:  sd.ID,
			href:        ep.ProtocolInformation.Href,
			dspEndpoint: dspEndpoint,
			assetID:     assetID,
		}, nil
	}
	return target{}, errNoEndpoint
}

func parseSubprotocolBody(body string) (assetID, dspEndpoint string, err error) {
	for _, part := range strings.Split(body, ";") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "id":
			assetID = value
		case "dspEndpoint":
			dspEndpoint = value
		}
	}
	if assetID == "" || dspEndpoint == "" {
		return "", "", errBadSubprotocol
	}
	return assetID, dspEndpoint, nil
}

// primarySemanticID returns the first global reference key of the
// submodel's semantic id.
func primarySemanticID(sd registry.SubmodelDescriptor) string {
	if sd.SemanticID == nil || len(sd.SemanticID.Keys) == 0 {
		return ""
	}
	return sd.SemanticID.Keys[0].Value
}

// semanticSuperset reports whether the submodel's semantic id keys
// contain every requested id.
func semanticSuperset(sd registry.SubmodelDescriptor, semanticIDs []string) bool {
	if sd.SemanticID == nil || len(semanticIDs) == 0 {
		return false
	}
	present := make(map[string]bool, len(sd.SemanticID.Keys))
	for _, key := range sd.SemanticID.Keys {
		present[key.Value] = true
	}
	for _, id := range semanticIDs {
		if !present[id] {
			return false
		}
	}
	return true
}

func encodeID(id string) string {
	return base64.URLEncoding.EncodeToString([]byte(id))
}

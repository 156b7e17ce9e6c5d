// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/industrial-twin/twinhub/pkg/errors"
	"github.com/industrial-twin/twinhub/twins"
)

const (
	defLimit = 50

	// assetTypeDefault is the only asset type this registry serves.
	assetTypeDefault = "AssetType"

	submodelInterface = "SUBMODEL-3.0"
)

var (
	errUnknownSearchParam = errors.New("unrecognized search parameter")
	errMissingPart        = errors.New("twin is not attached to a part")
)

var _ Service = (*service)(nil)

type service struct {
	repo            twins.Repository
	controlPlaneURL string
	dataPlaneURL    string
}

// New returns a registry facade backed by the given twin repository. The
// control and data plane URLs are baked into the submodel endpoints of
// every descriptor the facade emits.
func New(repo twins.Repository, controlPlaneURL, dataPlaneURL string) Service {
	return &service{
		repo:            repo,
		controlPlaneURL: controlPlaneURL,
		dataPlaneURL:    dataPlaneURL,
	}
}

func (svc *service) ListShellDescriptors(ctx context.Context, stackID string, query DescriptorQuery) (DescriptorsPage, error) {
	if query.AssetType != "" && query.AssetType != assetTypeDefault {
		return DescriptorsPage{}, nil
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defLimit
	}

	active, ok := firstSource(query.AssetKind)
	if !ok {
		return DescriptorsPage{}, nil
	}
	var watermark *time.Time
	if query.Cursor != "" {
		cur, err := DecodeCursor(query.Cursor)
		if err != nil {
			// An unparseable cursor yields an empty page instead of
			// an error.
			return DescriptorsPage{}, nil
		}
		if !sourceMatchesKind(cur.Source, query.AssetKind) {
			// Cursor minted against an enumeration this query
			// excludes.
			return DescriptorsPage{}, nil
		}
		active = cur.Source
		watermark = cur.Watermark
	}

	filter := twins.Filter{
		StackID:        stackID,
		DTRRegistered:  true,
		PartnerBPN:     query.PartnerBPN,
		IncludeAspects: true,
	}

	rows, err := svc.findBySource(ctx, active, filter, watermark, limit)
	if err != nil {
		return DescriptorsPage{}, errors.Wrap(errors.ErrViewEntity, err)
	}

	page := DescriptorsPage{}
	var last time.Time
	for _, twin := range rows {
		sd, err := svc.assemble(twin, stackID, query.PartnerBPN, assembleOpts{
			assetIDs:  true,
			submodels: true,
		})
		if err != nil {
			return DescriptorsPage{}, err
		}
		sd.AssetType = assetTypeDefault
		page.Descriptors = append(page.Descriptors, sd)
		last = twin.CreatedAt
	}

	// The descriptor listing never advances past the active collection
	// within one call: a full page resumes the same collection, an
	// exhausted one hands the cursor to the next eligible collection.
	if len(rows) == limit {
		cursor, err := Cursor{Source: active, Watermark: &last}.Encode()
		if err != nil {
			return DescriptorsPage{}, err
		}
		page.Cursor = cursor
		return page, nil
	}

	if next, ok := nextSource(active, query.AssetKind); ok {
		cursor, err := Cursor{Source: next}.Encode()
		if err != nil {
			return DescriptorsPage{}, err
		}
		page.Cursor = cursor
	}

	return page, nil
}

func (svc *service) ViewShellDescriptor(ctx context.Context, stackID, aasID, partnerBPN string) (ShellDescriptor, error) {
	twin, err := svc.viewRegistered(ctx, stackID, aasID)
	if err != nil {
		return ShellDescriptor{}, err
	}

	sd, err := svc.assemble(twin, stackID, partnerBPN, assembleOpts{
		assetIDs:  true,
		submodels: true,
	})
	if err != nil {
		return ShellDescriptor{}, err
	}
	sd.AssetType = assetTypeDefault

	return sd, nil
}

func (svc *service) ListSubmodelDescriptors(ctx context.Context, stackID, aasID, partnerBPN string, limit int, cursor string) (SubmodelsPage, error) {
	twin, err := svc.viewRegistered(ctx, stackID, aasID)
	if err != nil {
		return SubmodelsPage{}, err
	}

	sd, err := svc.assemble(twin, stackID, partnerBPN, assembleOpts{submodels: true})
	if err != nil {
		return SubmodelsPage{}, err
	}
	descriptors := sd.SubmodelDescriptors
	if len(descriptors) == 0 {
		return SubmodelsPage{}, nil
	}

	// Paging over the assembled list uses a plain integer offset cursor.
	start := 0
	if cursor != "" {
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 || start > len(descriptors) {
			return SubmodelsPage{}, nil
		}
	}

	end := len(descriptors)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	page := SubmodelsPage{Descriptors: descriptors[start:end]}
	if end < len(descriptors) {
		page.Cursor = strconv.Itoa(end)
	}

	return page, nil
}

func (svc *service) ViewSubmodelDescriptor(ctx context.Context, stackID, aasID, submodelID, partnerBPN string) (SubmodelDescriptor, error) {
	twin, err := svc.viewRegistered(ctx, stackID, aasID)
	if err != nil {
		return SubmodelDescriptor{}, err
	}

	sd, err := svc.assemble(twin, stackID, partnerBPN, assembleOpts{submodelID: submodelID})
	if err != nil {
		return SubmodelDescriptor{}, err
	}
	if len(sd.SubmodelDescriptors) == 0 {
		return SubmodelDescriptor{}, errors.ErrNotFound
	}

	return sd.SubmodelDescriptors[0], nil
}

func (svc *service) LookupShells(ctx context.Context, stackID string, params []string, partnerBPN string, limit int, cursor string) (IDsPage, error) {
	if len(params) == 0 {
		return IDsPage{}, nil
	}

	filter, enabled, err := buildLookupFilter(params)
	if err != nil {
		if errors.Contains(err, errUnknownSearchParam) {
			// Reject-unknown-keys policy: the whole call short-circuits
			// to an empty result.
			return IDsPage{}, nil
		}
		return IDsPage{}, err
	}
	filter.StackID = stackID
	filter.DTRRegistered = true
	filter.PartnerBPN = partnerBPN

	if limit <= 0 {
		limit = defLimit
	}

	start := 0
	var watermark *time.Time
	if cursor != "" {
		cur, err := DecodeCursor(cursor)
		if err != nil {
			return IDsPage{}, nil
		}
		if !enabled[cur.Source] {
			// Cursor presented against a different enumeration order.
			return IDsPage{}, nil
		}
		start = sourceIndex(cur.Source)
		watermark = cur.Watermark
	}

	page := IDsPage{}
	for i := start; i < len(sourceOrder); i++ {
		src := sourceOrder[i]
		if !enabled[src] {
			continue
		}

		rows, err := svc.findBySource(ctx, src, filter, watermark, limit)
		watermark = nil
		if err != nil {
			return IDsPage{}, errors.Wrap(errors.ErrViewEntity, err)
		}

		var last time.Time
		for _, twin := range rows {
			page.IDs = append(page.IDs, twin.AASID)
			last = twin.CreatedAt
		}

		limit -= len(rows)
		if limit <= 0 {
			token, err := Cursor{Source: src, Watermark: &last}.Encode()
			if err != nil {
				return IDsPage{}, err
			}
			page.Cursor = token
			return page, nil
		}
	}

	return page, nil
}

func (svc *service) ListAssetLinks(ctx context.Context, stackID, aasID, partnerBPN string) ([]SpecificAssetID, error) {
	twin, err := svc.viewRegistered(ctx, stackID, aasID)
	if err != nil {
		return nil, err
	}

	sd, err := svc.assemble(twin, stackID, partnerBPN, assembleOpts{assetIDs: true})
	if err != nil {
		return nil, err
	}

	return sd.SpecificAssetIDs, nil
}

func (svc *service) viewRegistered(ctx context.Context, stackID, aasID string) (twins.Twin, error) {
	twin, err := svc.repo.FindByAASID(ctx, aasID)
	if err != nil {
		return twins.Twin{}, errors.Wrap(errors.ErrNotFound, err)
	}
	if !twin.RegisteredFor(stackID) {
		return twins.Twin{}, errors.ErrNotFound
	}
	return twin, nil
}

func (svc *service) findBySource(ctx context.Context, src Source, f twins.Filter, before *time.Time, limit int) ([]twins.Twin, error) {
	switch src {
	case SourceCatalog:
		return svc.repo.FindCatalogPartTwins(ctx, f, before, limit)
	case SourceSerialized:
		return svc.repo.FindSerializedPartTwins(ctx, f, before, limit)
	case SourceJIS:
		return svc.repo.FindJISPartTwins(ctx, f, before, limit)
	case SourceBatch:
		return svc.repo.FindBatchTwins(ctx, f, before, limit)
	}
	return nil, errors.ErrMalformedEntity
}

type assembleOpts struct {
	assetIDs   bool
	submodels  bool
	submodelID string
}

// assemble builds the externally visible descriptor of a twin, enforcing
// partner visibility on the owning part variant and exposing only aspects
// registered in the registry of the requested stack.
func (svc *service) assemble(twin twins.Twin, stackID, partnerBPN string, opts assembleOpts) (ShellDescriptor, error) {
	sd := ShellDescriptor{
		ID:            twin.AASID,
		GlobalAssetID: twin.GlobalID,
	}

	var assetIDs []SpecificAssetID

	switch {
	case twin.CatalogPart != nil:
		cp := twin.CatalogPart
		sd.AssetKind = twins.KindType

		partners := cp.Partners
		if partnerBPN != "" {
			partner, ok := cp.PartnerFor(partnerBPN)
			if !ok {
				return ShellDescriptor{}, errors.ErrNotAuthorized
			}
			partners = []twins.PartnerCatalogPart{partner}
		}

		if opts.assetIDs {
			assetIDs = appendAssetID(assetIDs, AssetIDManufacturerPartID, cp.ManufacturerPartID, PublicReadable)
			for _, partner := range partners {
				assetIDs = appendAssetID(assetIDs, AssetIDDigitalTwinType, digitalTwinTypePartType, partner.BPN)
				assetIDs = appendAssetID(assetIDs, AssetIDManufacturerID, cp.ManufacturerID, partner.BPN)
				assetIDs = appendAssetID(assetIDs, AssetIDCustomerPartID, partner.CustomerPartID, partner.BPN)
			}
		}

	case twin.SerializedPart != nil:
		sp := twin.SerializedPart
		sd.AssetKind = twins.KindInstance
		if partnerBPN != "" && sp.Partner.BPN != partnerBPN {
			return ShellDescriptor{}, errors.ErrNotAuthorized
		}
		if opts.assetIDs {
			assetIDs = instanceAssetIDs(assetIDs, sp.ManufacturerID, sp.ManufacturerPartID, sp.Partner)
			assetIDs = appendAssetID(assetIDs, AssetIDPartInstanceID, sp.PartInstanceID, sp.Partner.BPN)
			if sp.VAN != "" {
				assetIDs = appendAssetID(assetIDs, AssetIDVAN, sp.VAN, sp.Partner.BPN)
			}
		}

	case twin.BatchPart != nil:
		bp := twin.BatchPart
		sd.AssetKind = twins.KindInstance
		if partnerBPN != "" && bp.Partner.BPN != partnerBPN {
			return ShellDescriptor{}, errors.ErrNotAuthorized
		}
		if opts.assetIDs {
			assetIDs = instanceAssetIDs(assetIDs, bp.ManufacturerID, bp.ManufacturerPartID, bp.Partner)
			assetIDs = appendAssetID(assetIDs, "batchId", bp.BatchID, bp.Partner.BPN)
		}

	case twin.JISPart != nil:
		jp := twin.JISPart
		sd.AssetKind = twins.KindInstance
		if partnerBPN != "" && jp.Partner.BPN != partnerBPN {
			return ShellDescriptor{}, errors.ErrNotAuthorized
		}
		if opts.assetIDs {
			assetIDs = instanceAssetIDs(assetIDs, jp.ManufacturerID, jp.ManufacturerPartID, jp.Partner)
			assetIDs = appendAssetID(assetIDs, "jisNumber", jp.JISNumber, jp.Partner.BPN)
		}

	default:
		return ShellDescriptor{}, errors.Wrap(errors.ErrMalformedEntity, errMissingPart)
	}

	if opts.assetIDs {
		sd.SpecificAssetIDs = assetIDs
	}

	switch {
	case opts.submodels:
		for _, aspect := range twin.Aspects {
			if aspectRegistered(aspect, stackID) {
				sd.SubmodelDescriptors = append(sd.SubmodelDescriptors, svc.submodelDescriptor(twin, aspect))
			}
		}
	case opts.submodelID != "":
		for _, aspect := range twin.Aspects {
			if aspect.SubmodelID == opts.submodelID {
				if !aspectRegistered(aspect, stackID) {
					return ShellDescriptor{}, errors.ErrNotFound
				}
				sd.SubmodelDescriptors = append(sd.SubmodelDescriptors, svc.submodelDescriptor(twin, aspect))
				break
			}
		}
		if len(sd.SubmodelDescriptors) == 0 {
			return ShellDescriptor{}, errors.ErrNotFound
		}
	}

	return sd, nil
}

func (svc *service) submodelDescriptor(twin twins.Twin, aspect twins.Aspect) SubmodelDescriptor {
	assetID := submodelAssetID(twin.GlobalID, aspect.SubmodelID)

	endpoint := Endpoint{
		Interface: submodelInterface,
		ProtocolInformation: ProtocolInformation{
			Href:                    fmt.Sprintf("%s/api/public/%s/submodel", svc.dataPlaneURL, twin.GlobalID),
			EndpointProtocol:        "HTTP",
			EndpointProtocolVersion: []string{"1.1"},
			Subprotocol:             "DSP",
			SubprotocolBody:         fmt.Sprintf("id=%s;dspEndpoint=%s", assetID, svc.controlPlaneURL),
			SubprotocolBodyEncoding: "plain",
			SecurityAttributes: []SecurityAttribute{
				{Type: "NONE", Key: "NONE", Value: "NONE"},
			},
		},
	}

	return SubmodelDescriptor{
		ID:      aspect.SubmodelID,
		IDShort: idShort(aspect.SemanticID),
		SemanticID: &Reference{
			Type: ExternalReference,
			Keys: []Key{{Type: GlobalReference, Value: aspect.SemanticID}},
		},
		Endpoints: []Endpoint{endpoint},
	}
}

// submodelAssetID derives the stable connector asset id of an aspect.
func submodelAssetID(globalID, submodelID string) string {
	sum := sha256.Sum256([]byte(globalID + "-" + submodelID))
	return hex.EncodeToString(sum[:])
}

// idShort derives the short name of a submodel from the fragment of its
// semantic id, e.g. "urn:samm:io.catenax.batch:3.0.0#Batch" -> "Batch".
func idShort(semanticID string) string {
	if i := strings.LastIndex(semanticID, "#"); i >= 0 && i+1 < len(semanticID) {
		return semanticID[i+1:]
	}
	if i := strings.LastIndex(semanticID, ":"); i >= 0 && i+1 < len(semanticID) {
		return semanticID[i+1:]
	}
	return semanticID
}

func aspectRegistered(aspect twins.Aspect, stackID string) bool {
	reg, ok := aspect.RegistrationFor(stackID)
	return ok && reg.Status == twins.DTRRegistered
}

func appendAssetID(ids []SpecificAssetID, name, value, subject string) []SpecificAssetID {
	id := SpecificAssetID{Name: name, Value: value}
	if subject != "" {
		id.ExternalSubjectID = &Reference{
			Type: ExternalReference,
			Keys: []Key{{Type: GlobalReference, Value: subject}},
		}
	}
	return append(ids, id)
}

func instanceAssetIDs(ids []SpecificAssetID, manufacturerID, manufacturerPartID string, partner twins.PartnerCatalogPart) []SpecificAssetID {
	ids = appendAssetID(ids, AssetIDManufacturerPartID, manufacturerPartID, PublicReadable)
	ids = appendAssetID(ids, AssetIDDigitalTwinType, digitalTwinTypePartInstance, partner.BPN)
	ids = appendAssetID(ids, AssetIDManufacturerID, manufacturerID, partner.BPN)
	ids = appendAssetID(ids, AssetIDCustomerPartID, partner.CustomerPartID, partner.BPN)
	return ids
}

// buildLookupFilter decodes the encoded search parameters into a twin
// filter and the set of collections the parameters allow searching.
func buildLookupFilter(params []string) (twins.Filter, map[Source]bool, error) {
	enabled := map[Source]bool{
		SourceCatalog:    true,
		SourceSerialized: true,
		SourceJIS:        true,
		SourceBatch:      true,
	}

	var f twins.Filter
	for _, raw := range params {
		p, err := DecodeSearchParam(raw)
		if err != nil {
			return twins.Filter{}, nil, err
		}

		switch p.Name {
		case "globalAssetId":
			if _, err := uuid.FromString(p.Value); err != nil {
				return twins.Filter{}, nil, errors.Wrap(errors.ErrMalformedEntity, err)
			}
			f.GlobalID = p.Value
		case "manufacturerId":
			f.ManufacturerID = p.Value
		case "manufacturerPartId":
			f.ManufacturerPartID = p.Value
		case "customerPartId":
			f.CustomerPartID = p.Value
		case "intrinsicId":
			// Accepted for compatibility; no collection indexes it.
		case "batchId":
			enabled[SourceCatalog] = false
			enabled[SourceSerialized] = false
			enabled[SourceJIS] = false
			f.BatchID = p.Value
		case "partInstanceId":
			enabled[SourceCatalog] = false
			enabled[SourceJIS] = false
			enabled[SourceBatch] = false
			f.PartInstanceID = p.Value
		case "van":
			enabled[SourceCatalog] = false
			enabled[SourceJIS] = false
			enabled[SourceBatch] = false
			f.VAN = p.Value
		case "jisNumber":
			enabled[SourceCatalog] = false
			enabled[SourceSerialized] = false
			enabled[SourceBatch] = false
			f.JISNumber = p.Value
		case "parentOrderNumber":
			enabled[SourceCatalog] = false
			enabled[SourceSerialized] = false
			enabled[SourceBatch] = false
			f.ParentOrderNumber = p.Value
		case "jisCallDate":
			callDate, err := time.Parse(time.RFC3339, p.Value)
			if err != nil {
				return twins.Filter{}, nil, errors.Wrap(errors.ErrMalformedEntity, err)
			}
			enabled[SourceCatalog] = false
			enabled[SourceSerialized] = false
			enabled[SourceBatch] = false
			f.JISCallDate = &callDate
		default:
			return twins.Filter{}, nil, errors.Wrap(errUnknownSearchParam, errors.New(p.Name))
		}
	}

	return f, enabled, nil
}

func sourceMatchesKind(src Source, kind twins.AssetKind) bool {
	switch kind {
	case "":
		return true
	case twins.KindType:
		return src == SourceCatalog
	case twins.KindInstance:
		return src != SourceCatalog
	}
	return false
}

func sourceIndex(src Source) int {
	for i, s := range sourceOrder {
		if s == src {
			return i
		}
	}
	return 0
}

func firstSource(kind twins.AssetKind) (Source, bool) {
	for _, src := range sourceOrder {
		if sourceMatchesKind(src, kind) {
			return src, true
		}
	}
	return 0, false
}

func nextSource(src Source, kind twins.AssetKind) (Source, bool) {
	for i := sourceIndex(src) + 1; i < len(sourceOrder); i++ {
		if sourceMatchesKind(sourceOrder[i], kind) {
			return sourceOrder[i], true
		}
	}
	return 0, false
}

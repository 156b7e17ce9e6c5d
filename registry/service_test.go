// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package registry_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/industrial-twin/twinhub/pkg/errors"
	"github.com/industrial-twin/twinhub/registry"
	"github.com/industrial-twin/twinhub/twins"
	"github.com/industrial-twin/twinhub/twins/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stackID         = "stack-1"
	otherStackID    = "stack-2"
	partnerBPN      = "BPNL000000000001"
	otherPartnerBPN = "BPNL000000000002"
	controlPlaneURL = "https://edc.example.com/api/v1/dsp"
	dataPlaneURL    = "https://edc.example.com/public"
	batchSemantic   = "urn:samm:io.catenax.batch:3.0.0#Batch"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newService(repo twins.Repository) registry.Service {
	return registry.New(repo, controlPlaneURL, dataPlaneURL)
}

func registered(stacks ...string) []twins.Registration {
	var regs []twins.Registration
	for _, s := range stacks {
		regs = append(regs, twins.Registration{StackID: s, DTRRegistered: true})
	}
	return regs
}

func catalogTwin(n int, created time.Time, partners ...twins.PartnerCatalogPart) twins.Twin {
	return twins.Twin{
		GlobalID:  fmt.Sprintf("11111111-0000-0000-0000-%012d", n),
		AASID:     fmt.Sprintf("cp-shell-%d", n),
		CreatedAt: created,
		CatalogPart: &twins.CatalogPart{
			ManufacturerID:     "BPNL00000000MAKE",
			ManufacturerPartID: fmt.Sprintf("MPI-%d", n),
			Partners:           partners,
		},
		Registrations: registered(stackID),
	}
}

func serializedTwin(n int, created time.Time, owner twins.PartnerCatalogPart) twins.Twin {
	return twins.Twin{
		GlobalID:  fmt.Sprintf("22222222-0000-0000-0000-%012d", n),
		AASID:     fmt.Sprintf("sp-shell-%d", n),
		CreatedAt: created,
		SerializedPart: &twins.SerializedPart{
			ManufacturerID:     "BPNL00000000MAKE",
			ManufacturerPartID: fmt.Sprintf("MPI-%d", n),
			Partner:            owner,
			PartInstanceID:     fmt.Sprintf("SN-%d", n),
			VAN:                fmt.Sprintf("VAN-%d", n),
		},
		Registrations: registered(stackID),
	}
}

func batchTwin(n int, created time.Time, owner twins.PartnerCatalogPart) twins.Twin {
	return twins.Twin{
		GlobalID:  fmt.Sprintf("33333333-0000-0000-0000-%012d", n),
		AASID:     fmt.Sprintf("batch-shell-%d", n),
		CreatedAt: created,
		BatchPart: &twins.BatchPart{
			ManufacturerID:     "BPNL00000000MAKE",
			ManufacturerPartID: fmt.Sprintf("MPI-%d", n),
			Partner:            owner,
			BatchID:            fmt.Sprintf("LOT-%d", n),
		},
		Registrations: registered(stackID),
	}
}

func searchParam(t *testing.T, name, value string) string {
	t.Helper()
	token, err := registry.EncodeSearchParam(registry.SearchParam{Name: name, Value: value})
	require.Nil(t, err, fmt.Sprintf("unexpected encode error %s", err))
	return token
}

func TestListShellDescriptorsPagination(t *testing.T) {
	repo := inmem.NewRepository()
	owner := twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"}
	for i := 0; i < 3; i++ {
		repo.Save(catalogTwin(i, baseTime.Add(time.Duration(i)*time.Minute), owner))
	}
	repo.Save(serializedTwin(9, baseTime.Add(10*time.Minute), owner))

	svc := newService(repo)

	var ids []string
	cursor := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10, "pagination did not terminate")

		page, err := svc.ListShellDescriptors(context.Background(), stackID, registry.DescriptorQuery{
			Limit:  2,
			Cursor: cursor,
		})
		require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))

		for _, sd := range page.Descriptors {
			ids = append(ids, sd.ID)
		}

		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	assert.Len(t, ids, 4, fmt.Sprintf("expected complete enumeration, got %v", ids))
	uniq := make(map[string]struct{})
	for _, id := range ids {
		uniq[id] = struct{}{}
	}
	assert.Len(t, uniq, 4, fmt.Sprintf("expected no duplicates, got %v", ids))

	// Catalog part twins are exhausted before any serialized part twin
	// appears, regardless of creation order.
	assert.Equal(t, "sp-shell-9", ids[len(ids)-1], fmt.Sprintf("expected serialized twin last, got %v", ids))
	for _, id := range ids[:3] {
		assert.Contains(t, id, "cp-shell", fmt.Sprintf("expected catalog twin before serialized, got %v", ids))
	}
}

func TestListShellDescriptorsInvalidCursor(t *testing.T) {
	repo := inmem.NewRepository()
	repo.Save(catalogTwin(0, baseTime, twins.PartnerCatalogPart{BPN: partnerBPN}))
	svc := newService(repo)

	cases := []struct {
		desc   string
		cursor string
	}{
		{
			desc:   "not base64",
			cursor: "!!!",
		},
		{
			desc:   "unknown source tag",
			cursor: base64.URLEncoding.EncodeToString([]byte(`{"type":"NOPE","timestamp":null}`)),
		},
	}

	for _, tc := range cases {
		page, err := svc.ListShellDescriptors(context.Background(), stackID, registry.DescriptorQuery{
			Limit:  10,
			Cursor: tc.cursor,
		})
		assert.Nil(t, err, fmt.Sprintf("%s: expected graceful empty page, got error %s", tc.desc, err))
		assert.Empty(t, page.Descriptors, fmt.Sprintf("%s: expected empty page", tc.desc))
		assert.Empty(t, page.Cursor, fmt.Sprintf("%s: expected no cursor", tc.desc))
	}
}

func TestListShellDescriptorsAssetKind(t *testing.T) {
	repo := inmem.NewRepository()
	owner := twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"}
	repo.Save(catalogTwin(0, baseTime, owner))
	repo.Save(serializedTwin(1, baseTime.Add(time.Minute), owner))
	repo.Save(batchTwin(2, baseTime.Add(2*time.Minute), owner))

	svc := newService(repo)

	collect := func(kind twins.AssetKind) []string {
		var ids []string
		cursor := ""
		for pages := 0; ; pages++ {
			require.Less(t, pages, 10, "pagination did not terminate")
			page, err := svc.ListShellDescriptors(context.Background(), stackID, registry.DescriptorQuery{
				AssetKind: kind,
				Limit:     10,
				Cursor:    cursor,
			})
			require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))
			for _, sd := range page.Descriptors {
				ids = append(ids, sd.ID)
			}
			if page.Cursor == "" {
				return ids
			}
			cursor = page.Cursor
		}
	}

	typeIDs := collect(twins.KindType)
	assert.Equal(t, []string{"cp-shell-0"}, typeIDs, fmt.Sprintf("expected only catalog twin, got %v", typeIDs))

	instanceIDs := collect(twins.KindInstance)
	assert.Len(t, instanceIDs, 2, fmt.Sprintf("expected both unit-level twins, got %v", instanceIDs))
	assert.NotContains(t, instanceIDs, "cp-shell-0", fmt.Sprintf("catalog twin leaked into instance listing: %v", instanceIDs))
}

func TestViewShellDescriptorVisibility(t *testing.T) {
	repo := inmem.NewRepository()
	repo.Save(catalogTwin(0, baseTime,
		twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"},
		twins.PartnerCatalogPart{BPN: otherPartnerBPN, CustomerPartID: "CUST-2"},
	))
	repo.Save(serializedTwin(1, baseTime, twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"}))

	svc := newService(repo)

	cases := []struct {
		desc    string
		aasID   string
		partner string
		err     error
	}{
		{
			desc:    "catalog part for mapped partner",
			aasID:   "cp-shell-0",
			partner: partnerBPN,
			err:     nil,
		},
		{
			desc:    "catalog part for unmapped partner",
			aasID:   "cp-shell-0",
			partner: "BPNL00000STRANGER",
			err:     errors.ErrNotAuthorized,
		},
		{
			desc:    "serialized part for its owner",
			aasID:   "sp-shell-1",
			partner: partnerBPN,
			err:     nil,
		},
		{
			desc:    "serialized part for another partner",
			aasID:   "sp-shell-1",
			partner: otherPartnerBPN,
			err:     errors.ErrNotAuthorized,
		},
		{
			desc:    "missing shell",
			aasID:   "no-such-shell",
			partner: partnerBPN,
			err:     errors.ErrNotFound,
		},
	}

	for _, tc := range cases {
		sd, err := svc.ViewShellDescriptor(context.Background(), stackID, tc.aasID, tc.partner)
		if tc.err != nil {
			assert.True(t, errors.Contains(err, tc.err), fmt.Sprintf("%s: expected %s got %s", tc.desc, tc.err, err))
			continue
		}
		require.Nil(t, err, fmt.Sprintf("%s: unexpected error %s", tc.desc, err))
		assert.Equal(t, tc.aasID, sd.ID, fmt.Sprintf("%s: expected id %s got %s", tc.desc, tc.aasID, sd.ID))
	}
}

func TestViewShellDescriptorScopesAssetIDs(t *testing.T) {
	repo := inmem.NewRepository()
	repo.Save(catalogTwin(0, baseTime,
		twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"},
		twins.PartnerCatalogPart{BPN: otherPartnerBPN, CustomerPartID: "CUST-2"},
	))

	svc := newService(repo)

	sd, err := svc.ViewShellDescriptor(context.Background(), stackID, "cp-shell-0", partnerBPN)
	require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))

	for _, id := range sd.SpecificAssetIDs {
		if id.Name == registry.AssetIDCustomerPartID {
			assert.Equal(t, "CUST-1", id.Value, fmt.Sprintf("expected only the requesting partner's customer part id, got %s", id.Value))
		}
		require.NotNil(t, id.ExternalSubjectID, fmt.Sprintf("asset id %s has no subject", id.Name))
		subject := id.ExternalSubjectID.Keys[0].Value
		assert.NotEqual(t, otherPartnerBPN, subject, fmt.Sprintf("asset id %s leaked to %s", id.Name, subject))
	}
}

func TestSubmodelGatingPerStack(t *testing.T) {
	twin := catalogTwin(0, baseTime, twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"})
	twin.Registrations = registered(stackID, otherStackID)
	twin.Aspects = []twins.Aspect{
		{
			SemanticID: batchSemantic,
			SubmodelID: "submodel-1",
			Registrations: []twins.AspectRegistration{
				{StackID: stackID, Status: twins.DTRRegistered},
				{StackID: otherStackID, Status: twins.EDCRegistered},
			},
		},
		{
			SemanticID: "urn:samm:io.catenax.part_type_information:1.0.0#PartTypeInformation",
			SubmodelID: "submodel-2",
			Registrations: []twins.AspectRegistration{
				{StackID: stackID, Status: twins.Stored},
			},
		},
	}
	repo := inmem.NewRepository()
	repo.Save(twin)

	svc := newService(repo)

	sd, err := svc.ViewShellDescriptor(context.Background(), stackID, "cp-shell-0", partnerBPN)
	require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))
	require.Len(t, sd.SubmodelDescriptors, 1, "only the fully registered aspect is exposed")
	assert.Equal(t, "submodel-1", sd.SubmodelDescriptors[0].ID)

	sd, err = svc.ViewShellDescriptor(context.Background(), otherStackID, "cp-shell-0", partnerBPN)
	require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))
	assert.Empty(t, sd.SubmodelDescriptors, "no aspect is registered on the second stack")
}

func TestSubmodelDescriptorShape(t *testing.T) {
	twin := catalogTwin(0, baseTime, twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"})
	twin.Aspects = []twins.Aspect{
		{
			SemanticID: batchSemantic,
			SubmodelID: "submodel-1",
			Registrations: []twins.AspectRegistration{
				{StackID: stackID, Status: twins.DTRRegistered},
			},
		},
	}
	repo := inmem.NewRepository()
	repo.Save(twin)

	svc := newService(repo)

	sd, err := svc.ViewSubmodelDescriptor(context.Background(), stackID, "cp-shell-0", "submodel-1", partnerBPN)
	require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))

	assert.Equal(t, "submodel-1", sd.ID)
	assert.Equal(t, "Batch", sd.IDShort)
	require.NotNil(t, sd.SemanticID)
	assert.Equal(t, batchSemantic, sd.SemanticID.Keys[0].Value)

	require.Len(t, sd.Endpoints, 1)
	ep := sd.Endpoints[0]
	assert.Equal(t, "SUBMODEL-3.0", ep.Interface)
	assert.Equal(t, dataPlaneURL+"/api/public/"+twin.GlobalID+"/submodel", ep.ProtocolInformation.Href)
	assert.Contains(t, ep.ProtocolInformation.SubprotocolBody, ";dspEndpoint="+controlPlaneURL)
	assert.Contains(t, ep.ProtocolInformation.SubprotocolBody, "id=")
}

func TestViewSubmodelDescriptorNotFound(t *testing.T) {
	twin := catalogTwin(0, baseTime, twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"})
	twin.Aspects = []twins.Aspect{
		{
			SemanticID: batchSemantic,
			SubmodelID: "submodel-1",
			Registrations: []twins.AspectRegistration{
				{StackID: stackID, Status: twins.EDCRegistered},
			},
		},
	}
	repo := inmem.NewRepository()
	repo.Save(twin)

	svc := newService(repo)

	cases := []struct {
		desc       string
		submodelID string
	}{
		{
			desc:       "unknown submodel",
			submodelID: "submodel-9",
		},
		{
			desc:       "aspect not yet registered",
			submodelID: "submodel-1",
		},
	}

	for _, tc := range cases {
		_, err := svc.ViewSubmodelDescriptor(context.Background(), stackID, "cp-shell-0", tc.submodelID, partnerBPN)
		assert.True(t, errors.Contains(err, errors.ErrNotFound), fmt.Sprintf("%s: expected %s got %s", tc.desc, errors.ErrNotFound, err))
	}
}

func TestListSubmodelDescriptorsPaging(t *testing.T) {
	twin := catalogTwin(0, baseTime, twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"})
	for i := 1; i <= 3; i++ {
		twin.Aspects = append(twin.Aspects, twins.Aspect{
			SemanticID: fmt.Sprintf("urn:samm:io.example.aspect:1.0.0#Aspect%d", i),
			SubmodelID: fmt.Sprintf("submodel-%d", i),
			Registrations: []twins.AspectRegistration{
				{StackID: stackID, Status: twins.DTRRegistered},
			},
		})
	}
	repo := inmem.NewRepository()
	repo.Save(twin)

	svc := newService(repo)

	page, err := svc.ListSubmodelDescriptors(context.Background(), stackID, "cp-shell-0", partnerBPN, 2, "")
	require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))
	assert.Len(t, page.Descriptors, 2)
	require.NotEmpty(t, page.Cursor, "expected continuation cursor")

	page, err = svc.ListSubmodelDescriptors(context.Background(), stackID, "cp-shell-0", partnerBPN, 2, page.Cursor)
	require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))
	assert.Len(t, page.Descriptors, 1)
	assert.Empty(t, page.Cursor, "expected enumeration to finish")

	page, err = svc.ListSubmodelDescriptors(context.Background(), stackID, "cp-shell-0", partnerBPN, 2, "garbage")
	assert.Nil(t, err, fmt.Sprintf("expected graceful empty page, got error %s", err))
	assert.Empty(t, page.Descriptors, "invalid cursor yields an empty page")
}

func TestLookupShells(t *testing.T) {
	repo := inmem.NewRepository()
	owner := twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"}
	repo.Save(catalogTwin(0, baseTime, owner))
	repo.Save(serializedTwin(1, baseTime.Add(time.Minute), owner))
	repo.Save(batchTwin(2, baseTime.Add(2*time.Minute), owner))

	svc := newService(repo)

	cases := []struct {
		desc   string
		params []string
		ids    []string
	}{
		{
			desc:   "no parameters",
			params: nil,
			ids:    nil,
		},
		{
			desc:   "unknown parameter name",
			params: []string{searchParam(t, "serialNumber", "SN-1")},
			ids:    nil,
		},
		{
			desc:   "manufacturer id falls through all collections",
			params: []string{searchParam(t, "manufacturerId", "BPNL00000000MAKE")},
			ids:    []string{"cp-shell-0", "sp-shell-1", "batch-shell-2"},
		},
		{
			desc:   "part instance id narrows to serialized parts",
			params: []string{searchParam(t, "partInstanceId", "SN-1")},
			ids:    []string{"sp-shell-1"},
		},
		{
			desc:   "batch id narrows to batches",
			params: []string{searchParam(t, "batchId", "LOT-2")},
			ids:    []string{"batch-shell-2"},
		},
		{
			desc:   "van narrows to serialized parts",
			params: []string{searchParam(t, "van", "VAN-1")},
			ids:    []string{"sp-shell-1"},
		},
		{
			desc: "combined narrowing with no match",
			params: []string{
				searchParam(t, "partInstanceId", "SN-1"),
				searchParam(t, "manufacturerPartId", "MPI-2"),
			},
			ids: nil,
		},
	}

	for _, tc := range cases {
		page, err := svc.LookupShells(context.Background(), stackID, tc.params, partnerBPN, 10, "")
		require.Nil(t, err, fmt.Sprintf("%s: unexpected error %s", tc.desc, err))
		assert.Equal(t, tc.ids, page.IDs, fmt.Sprintf("%s: expected %v got %v", tc.desc, tc.ids, page.IDs))
	}
}

func TestLookupShellsMalformedParam(t *testing.T) {
	repo := inmem.NewRepository()
	svc := newService(repo)

	_, err := svc.LookupShells(context.Background(), stackID, []string{"not-base64-json"}, partnerBPN, 10, "")
	assert.True(t, errors.Contains(err, errors.ErrMalformedEntity), fmt.Sprintf("expected %s got %s", errors.ErrMalformedEntity, err))

	_, err = svc.LookupShells(context.Background(), stackID, []string{searchParam(t, "globalAssetId", "not-a-uuid")}, partnerBPN, 10, "")
	assert.True(t, errors.Contains(err, errors.ErrMalformedEntity), fmt.Sprintf("expected %s got %s", errors.ErrMalformedEntity, err))
}

func TestLookupShellsPagination(t *testing.T) {
	repo := inmem.NewRepository()
	owner := twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"}
	for i := 0; i < 3; i++ {
		repo.Save(catalogTwin(i, baseTime.Add(time.Duration(i)*time.Minute), owner))
	}
	repo.Save(serializedTwin(9, baseTime.Add(10*time.Minute), owner))

	svc := newService(repo)
	params := []string{searchParam(t, "manufacturerId", "BPNL00000000MAKE")}

	var ids []string
	cursor := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10, "pagination did not terminate")
		page, err := svc.LookupShells(context.Background(), stackID, params, partnerBPN, 2, cursor)
		require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))
		ids = append(ids, page.IDs...)
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	require.Len(t, ids, 4, fmt.Sprintf("expected complete enumeration, got %v", ids))
	assert.Equal(t, "sp-shell-9", ids[3], fmt.Sprintf("expected serialized twin last, got %v", ids))
}

func TestLookupShellsPartnerVisibility(t *testing.T) {
	repo := inmem.NewRepository()
	repo.Save(serializedTwin(1, baseTime, twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"}))

	svc := newService(repo)
	params := []string{searchParam(t, "partInstanceId", "SN-1")}

	page, err := svc.LookupShells(context.Background(), stackID, params, otherPartnerBPN, 10, "")
	require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))
	assert.Empty(t, page.IDs, fmt.Sprintf("unit twin leaked to a foreign partner: %v", page.IDs))
}

func TestListAssetLinks(t *testing.T) {
	repo := inmem.NewRepository()
	repo.Save(catalogTwin(0, baseTime, twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"}))
	repo.Save(serializedTwin(1, baseTime, twins.PartnerCatalogPart{BPN: partnerBPN, CustomerPartID: "CUST-1"}))

	svc := newService(repo)

	links, err := svc.ListAssetLinks(context.Background(), stackID, "cp-shell-0", partnerBPN)
	require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))

	byName := make(map[string]registry.SpecificAssetID)
	for _, link := range links {
		byName[link.Name] = link
	}
	require.Contains(t, byName, registry.AssetIDManufacturerPartID)
	assert.Equal(t, registry.PublicReadable, byName[registry.AssetIDManufacturerPartID].ExternalSubjectID.Keys[0].Value)
	require.Contains(t, byName, registry.AssetIDDigitalTwinType)
	assert.Equal(t, "PartType", byName[registry.AssetIDDigitalTwinType].Value)

	links, err = svc.ListAssetLinks(context.Background(), stackID, "sp-shell-1", partnerBPN)
	require.Nil(t, err, fmt.Sprintf("unexpected error %s", err))
	byName = make(map[string]registry.SpecificAssetID)
	for _, link := range links {
		byName[link.Name] = link
	}
	assert.Equal(t, "PartInstance", byName[registry.AssetIDDigitalTwinType].Value)
	require.Contains(t, byName, registry.AssetIDPartInstanceID)
	assert.Equal(t, "SN-1", byName[registry.AssetIDPartInstanceID].Value)
}

func TestViewShellDescriptorPartMissing(t *testing.T) {
	repo := inmem.NewRepository()
	repo.Save(twins.Twin{
		GlobalID:      "44444444-0000-0000-0000-000000000000",
		AASID:         "orphan-shell",
		CreatedAt:     baseTime,
		Registrations: registered(stackID),
	})

	svc := newService(repo)

	_, err := svc.ViewShellDescriptor(context.Background(), stackID, "orphan-shell", partnerBPN)
	assert.True(t, errors.Contains(err, errors.ErrMalformedEntity), fmt.Sprintf("expected %s got %s", errors.ErrMalformedEntity, err))
}

// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

// Package inmem provides a map-backed twin repository, used in tests and
// in standalone deployments that run without external storage.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/industrial-twin/twinhub/pkg/errors"
	"github.com/industrial-twin/twinhub/twins"
)

var _ twins.Repository = (*Repository)(nil)

// Repository is an in-memory twins.Repository. The zero value is not
// usable; construct it with NewRepository.
type Repository struct {
	mu    sync.Mutex
	twins map[string]twins.Twin
}

// NewRepository returns an empty in-memory twin repository.
func NewRepository() *Repository {
	return &Repository{
		twins: make(map[string]twins.Twin),
	}
}

// Save stores or replaces a twin, keyed by its shell id.
func (rm *Repository) Save(twin twins.Twin) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.twins[twin.AASID] = twin
}

func (rm *Repository) FindByAASID(ctx context.Context, aasID string) (twins.Twin, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	twin, ok := rm.twins[aasID]
	if !ok {
		return twins.Twin{}, errors.ErrNotFound
	}
	return twin, nil
}

func (rm *Repository) FindCatalogPartTwins(ctx context.Context, f twins.Filter, before *time.Time, limit int) ([]twins.Twin, error) {
	return rm.find(f, before, limit, func(t twins.Twin) bool {
		cp := t.CatalogPart
		if cp == nil {
			return false
		}
		if f.PartnerBPN != "" {
			if _, ok := cp.PartnerFor(f.PartnerBPN); !ok {
				return false
			}
		}
		if f.ManufacturerID != "" && cp.ManufacturerID != f.ManufacturerID {
			return false
		}
		if f.ManufacturerPartID != "" && cp.ManufacturerPartID != f.ManufacturerPartID {
			return false
		}
		if f.CustomerPartID != "" && !catalogHasCustomerPartID(cp, f.CustomerPartID) {
			return false
		}
		return true
	})
}

func (rm *Repository) FindSerializedPartTwins(ctx context.Context, f twins.Filter, before *time.Time, limit int) ([]twins.Twin, error) {
	return rm.find(f, before, limit, func(t twins.Twin) bool {
		sp := t.SerializedPart
		if sp == nil {
			return false
		}
		if !matchInstance(f, sp.ManufacturerID, sp.ManufacturerPartID, sp.Partner) {
			return false
		}
		if f.PartInstanceID != "" && sp.PartInstanceID != f.PartInstanceID {
			return false
		}
		if f.VAN != "" && sp.VAN != f.VAN {
			return false
		}
		return true
	})
}

func (rm *Repository) FindJISPartTwins(ctx context.Context, f twins.Filter, before *time.Time, limit int) ([]twins.Twin, error) {
	return rm.find(f, before, limit, func(t twins.Twin) bool {
		jp := t.JISPart
		if jp == nil {
			return false
		}
		if !matchInstance(f, jp.ManufacturerID, jp.ManufacturerPartID, jp.Partner) {
			return false
		}
		if f.JISNumber != "" && jp.JISNumber != f.JISNumber {
			return false
		}
		if f.ParentOrderNumber != "" && jp.ParentOrderNumber != f.ParentOrderNumber {
			return false
		}
		if f.JISCallDate != nil {
			if jp.JISCallDate == nil || !jp.JISCallDate.Equal(*f.JISCallDate) {
				return false
			}
		}
		return true
	})
}

func (rm *Repository) FindBatchTwins(ctx context.Context, f twins.Filter, before *time.Time, limit int) ([]twins.Twin, error) {
	return rm.find(f, before, limit, func(t twins.Twin) bool {
		bp := t.BatchPart
		if bp == nil {
			return false
		}
		if !matchInstance(f, bp.ManufacturerID, bp.ManufacturerPartID, bp.Partner) {
			return false
		}
		if f.BatchID != "" && bp.BatchID != f.BatchID {
			return false
		}
		return true
	})
}

func (rm *Repository) find(f twins.Filter, before *time.Time, limit int, match func(twins.Twin) bool) ([]twins.Twin, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}

	var all []twins.Twin
	for _, t := range rm.twins {
		if f.DTRRegistered && !t.RegisteredFor(f.StackID) {
			continue
		}
		if f.GlobalID != "" && t.GlobalID != f.GlobalID {
			continue
		}
		if before != nil && !t.CreatedAt.Before(*before) {
			continue
		}
		if !match(t) {
			continue
		}
		all = append(all, t)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func matchInstance(f twins.Filter, manufacturerID, manufacturerPartID string, partner twins.PartnerCatalogPart) bool {
	if f.PartnerBPN != "" && partner.BPN != f.PartnerBPN {
		return false
	}
	if f.ManufacturerID != "" && manufacturerID != f.ManufacturerID {
		return false
	}
	if f.ManufacturerPartID != "" && manufacturerPartID != f.ManufacturerPartID {
		return false
	}
	if f.CustomerPartID != "" && partner.CustomerPartID != f.CustomerPartID {
		return false
	}
	return true
}

func catalogHasCustomerPartID(cp *twins.CatalogPart, customerPartID string) bool {
	for _, partner := range cp.Partners {
		if partner.CustomerPartID == customerPartID {
			return true
		}
	}
	return false
}

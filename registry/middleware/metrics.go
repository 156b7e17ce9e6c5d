// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/industrial-twin/twinhub/registry"
)

var _ registry.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     registry.Service
}

// Metrics instruments a registry service with request count and latency
// metrics.
func Metrics(counter metrics.Counter, latency metrics.Histogram, svc registry.Service) registry.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) ListShellDescriptors(ctx context.Context, stackID string, query registry.DescriptorQuery) (registry.DescriptorsPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list_shell_descriptors").Add(1)
		mm.latency.With("method", "list_shell_descriptors").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.ListShellDescriptors(ctx, stackID, query)
}

func (mm *metricsMiddleware) ViewShellDescriptor(ctx context.Context, stackID, aasID, partnerBPN string) (registry.ShellDescriptor, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "view_shell_descriptor").Add(1)
		mm.latency.With("method", "view_shell_descriptor").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.ViewShellDescriptor(ctx, stackID, aasID, partnerBPN)
}

func (mm *metricsMiddleware) ListSubmodelDescriptors(ctx context.Context, stackID, aasID, partnerBPN string, limit int, cursor string) (registry.SubmodelsPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list_submodel_descriptors").Add(1)
		mm.latency.With("method", "list_submodel_descriptors").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.ListSubmodelDescriptors(ctx, stackID, aasID, partnerBPN, limit, cursor)
}

func (mm *metricsMiddleware) ViewSubmodelDescriptor(ctx context.Context, stackID, aasID, submodelID, partnerBPN string) (registry.SubmodelDescriptor, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "view_submodel_descriptor").Add(1)
		mm.latency.With("method", "view_submodel_descriptor").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.ViewSubmodelDescriptor(ctx, stackID, aasID, submodelID, partnerBPN)
}

func (mm *metricsMiddleware) LookupShells(ctx context.Context, stackID string, params []string, partnerBPN string, limit int, cursor string) (registry.IDsPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "lookup_shells").Add(1)
		mm.latency.With("method", "lookup_shells").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.LookupShells(ctx, stackID, params, partnerBPN, limit, cursor)
}

func (mm *metricsMiddleware) ListAssetLinks(ctx context.Context, stackID, aasID, partnerBPN string) ([]registry.SpecificAssetID, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list_asset_links").Add(1)
		mm.latency.With("method", "list_asset_links").Observe(time.Since(begin).Seconds())
	}(time.Now())
	return mm.svc.ListAssetLinks(ctx, stackID, aasID, partnerBPN)
}

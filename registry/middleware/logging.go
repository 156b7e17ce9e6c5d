// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/industrial-twin/twinhub/registry"
)

var _ registry.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    registry.Service
}

// Logging returns a registry service wrapped with structured logging of
// every operation.
func Logging(logger *slog.Logger, svc registry.Service) registry.Service {
	return &loggingMiddleware{logger, svc}
}

func (lm *loggingMiddleware) ListShellDescriptors(ctx context.Context, stackID string, query registry.DescriptorQuery) (page registry.DescriptorsPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("stack_id", stackID),
			slog.Group("query",
				slog.String("partner_bpn", query.PartnerBPN),
				slog.Int("limit", query.Limit),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List shell descriptors failed", args...)
			return
		}
		args = append(args, slog.Int("count", len(page.Descriptors)))
		lm.logger.Info("List shell descriptors completed successfully", args...)
	}(time.Now())
	return lm.svc.ListShellDescriptors(ctx, stackID, query)
}

func (lm *loggingMiddleware) ViewShellDescriptor(ctx context.Context, stackID, aasID, partnerBPN string) (sd registry.ShellDescriptor, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("stack_id", stackID),
			slog.String("aas_id", aasID),
			slog.String("partner_bpn", partnerBPN),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("View shell descriptor failed", args...)
			return
		}
		lm.logger.Info("View shell descriptor completed successfully", args...)
	}(time.Now())
	return lm.svc.ViewShellDescriptor(ctx, stackID, aasID, partnerBPN)
}

func (lm *loggingMiddleware) ListSubmodelDescriptors(ctx context.Context, stackID, aasID, partnerBPN string, limit int, cursor string) (page registry.SubmodelsPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("stack_id", stackID),
			slog.String("aas_id", aasID),
			slog.String("partner_bpn", partnerBPN),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List submodel descriptors failed", args...)
			return
		}
		args = append(args, slog.Int("count", len(page.Descriptors)))
		lm.logger.Info("List submodel descriptors completed successfully", args...)
	}(time.Now())
	return lm.svc.ListSubmodelDescriptors(ctx, stackID, aasID, partnerBPN, limit, cursor)
}

func (lm *loggingMiddleware) ViewSubmodelDescriptor(ctx context.Context, stackID, aasID, submodelID, partnerBPN string) (sd registry.SubmodelDescriptor, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("stack_id", stackID),
			slog.String("aas_id", aasID),
			slog.String("submodel_id", submodelID),
			slog.String("partner_bpn", partnerBPN),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("View submodel descriptor failed", args...)
			return
		}
		lm.logger.Info("View submodel descriptor completed successfully", args...)
	}(time.Now())
	return lm.svc.ViewSubmodelDescriptor(ctx, stackID, aasID, submodelID, partnerBPN)
}

func (lm *loggingMiddleware) LookupShells(ctx context.Context, stackID string, params []string, partnerBPN string, limit int, cursor string) (page registry.IDsPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("stack_id", stackID),
			slog.String("partner_bpn", partnerBPN),
			slog.Int("params", len(params)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Lookup shells failed", args...)
			return
		}
		args = append(args, slog.Int("count", len(page.IDs)))
		lm.logger.Info("Lookup shells completed successfully", args...)
	}(time.Now())
	return lm.svc.LookupShells(ctx, stackID, params, partnerBPN, limit, cursor)
}

func (lm *loggingMiddleware) ListAssetLinks(ctx context.Context, stackID, aasID, partnerBPN string) (ids []registry.SpecificAssetID, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("stack_id", stackID),
			slog.String("aas_id", aasID),
			slog.String("partner_bpn", partnerBPN),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List asset links failed", args...)
			return
		}
		args = append(args, slog.Int("count", len(ids)))
		lm.logger.Info("List asset links completed successfully", args...)
	}(time.Now())
	return lm.svc.ListAssetLinks(ctx, stackID, aasID, partnerBPN)
}

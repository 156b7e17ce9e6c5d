// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/industrial-twin/twinhub/discovery"
	"github.com/industrial-twin/twinhub/registry"
)

var _ discovery.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    discovery.Service
}

// Logging returns a discovery service wrapped with structured logging of
// every operation.
func Logging(logger *slog.Logger, svc discovery.Service) discovery.Service {
	return &loggingMiddleware{logger, svc}
}

func (lm *loggingMiddleware) DiscoverShells(ctx context.Context, bpn string, query discovery.QuerySpec, policies []discovery.Policy) (result discovery.ShellsResult, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("bpn", bpn),
			slog.Int("query_keys", len(query)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Discover shells failed", args...)
			return
		}
		args = append(args, slog.Int("registries", len(result.Registries)))
		lm.logger.Info("Discover shells completed successfully", args...)
	}(time.Now())
	return lm.svc.DiscoverShells(ctx, bpn, query, policies)
}

func (lm *loggingMiddleware) DiscoverShell(ctx context.Context, bpn, shellID string, policies []discovery.Policy) (sd registry.ShellDescriptor, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("bpn", bpn),
			slog.String("shell_id", shellID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Discover shell failed", args...)
			return
		}
		lm.logger.Info("Discover shell completed successfully", args...)
	}(time.Now())
	return lm.svc.DiscoverShell(ctx, bpn, shellID, policies)
}

func (lm *loggingMiddleware) DiscoverSubmodels(ctx context.Context, bpn, shellID string, governance discovery.Governance) (result discovery.SubmodelsResult, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("bpn", bpn),
			slog.String("shell_id", shellID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Discover submodels failed", args...)
			return
		}
		args = append(args, slog.Int("submodels", len(result.Submodels)))
		lm.logger.Info("Discover submodels completed successfully", args...)
	}(time.Now())
	return lm.svc.DiscoverSubmodels(ctx, bpn, shellID, governance)
}

func (lm *loggingMiddleware) DiscoverSubmodel(ctx context.Context, bpn, shellID, submodelID string, governance discovery.Governance) (outcome discovery.SubmodelOutcome, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("bpn", bpn),
			slog.String("shell_id", shellID),
			slog.String("submodel_id", submodelID),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Discover submodel failed", args...)
			return
		}
		args = append(args, slog.String("status", string(outcome.Status)))
		lm.logger.Info("Discover submodel completed successfully", args...)
	}(time.Now())
	return lm.svc.DiscoverSubmodel(ctx, bpn, shellID, submodelID, governance)
}

func (lm *loggingMiddleware) DiscoverSubmodelBySemanticIDs(ctx context.Context, bpn, shellID string, semanticIDs []string, governance discovery.Governance) (result discovery.SubmodelsResult, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("bpn", bpn),
			slog.String("shell_id", shellID),
			slog.Int("semantic_ids", len(semanticIDs)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Discover submodel by semantic ids failed", args...)
			return
		}
		args = append(args, slog.Int("found", result.Found))
		lm.logger.Info("Discover submodel by semantic ids completed successfully", args...)
	}(time.Now())
	return lm.svc.DiscoverSubmodelBySemanticIDs(ctx, bpn, shellID, semanticIDs, governance)
}

func (lm *loggingMiddleware) KnownRegistries(ctx context.Context, bpn string) (entries []discovery.Entry, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("bpn", bpn),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List known registries failed", args...)
			return
		}
		args = append(args, slog.Int("count", len(entries)))
		lm.logger.Info("List known registries completed successfully", args...)
	}(time.Now())
	return lm.svc.KnownRegistries(ctx, bpn)
}

func (lm *loggingMiddleware) ForgetPartner(ctx context.Context, bpn string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("bpn", bpn),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Forget partner failed", args...)
			return
		}
		lm.logger.Info("Forget partner completed successfully", args...)
	}(time.Now())
	return lm.svc.ForgetPartner(ctx, bpn)
}

// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

// Package main starts the twinhub service: the provider-side registry
// facade and the consumer-side discovery orchestrator behind one HTTP
// server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/industrial-twin/twinhub/discovery"
	discoveryapi "github.com/industrial-twin/twinhub/discovery/api"
	"github.com/industrial-twin/twinhub/discovery/cache"
	discoverymw "github.com/industrial-twin/twinhub/discovery/middleware"
	"github.com/industrial-twin/twinhub/edc"
	"github.com/industrial-twin/twinhub/pkg/logger"
	"github.com/industrial-twin/twinhub/pkg/prometheus"
	"github.com/industrial-twin/twinhub/pkg/server"
	"github.com/industrial-twin/twinhub/pkg/uuid"
	"github.com/industrial-twin/twinhub/registry"
	registryapi "github.com/industrial-twin/twinhub/registry/api"
	registrymw "github.com/industrial-twin/twinhub/registry/middleware"
	"github.com/industrial-twin/twinhub/twins/inmem"
)

const (
	svcName       = "twinhub"
	envPrefixHTTP = "TH_HTTP_"
)

type config struct {
	LogLevel         string        `env:"TH_LOG_LEVEL"          envDefault:"info"`
	InstanceID       string        `env:"TH_INSTANCE_ID"        envDefault:""`
	StackID          string        `env:"TH_STACK_ID"           envDefault:"default"`
	ControlPlaneURL  string        `env:"TH_CONTROL_PLANE_URL"  envDefault:"http://localhost:8282/api/v1/dsp"`
	DataPlaneURL     string        `env:"TH_DATA_PLANE_URL"     envDefault:"http://localhost:8285"`
	CacheURL         string        `env:"TH_CACHE_URL"          envDefault:""`
	CacheTTL         time.Duration `env:"TH_CACHE_TTL"          envDefault:"60m"`
	FanOut           int           `env:"TH_NEGOTIATION_FANOUT" envDefault:"8"`
	RequestTimeout   time.Duration `env:"TH_REQUEST_TIMEOUT"    envDefault:"30s"`
	EDCDiscoveryURL  string        `env:"TH_EDC_DISCOVERY_URL"  envDefault:"http://localhost:8585"`
	EDCManagementURL string        `env:"TH_EDC_MANAGEMENT_URL" envDefault:"http://localhost:8181/management"`
	EDCAPIKey        string        `env:"TH_EDC_API_KEY"        envDefault:""`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load %s configuration : %s", svcName, err)
	}

	l, err := logger.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %s", err)
	}

	var exitCode int
	defer logger.ExitWithError(&exitCode)

	if cfg.InstanceID == "" {
		if cfg.InstanceID, err = uuid.New().ID(); err != nil {
			l.Error(fmt.Sprintf("failed to generate instance id: %s", err))
			exitCode = 1
			return
		}
	}

	registryCache, err := newCache(cfg)
	if err != nil {
		l.Error(fmt.Sprintf("failed to connect to cache: %s", err))
		exitCode = 1
		return
	}

	connector := edc.NewClient(edc.Config{
		DiscoveryURL:  cfg.EDCDiscoveryURL,
		ManagementURL: cfg.EDCManagementURL,
		APIKey:        cfg.EDCAPIKey,
	}, cfg.RequestTimeout)

	discoverySvc := newDiscoveryService(registryCache, connector, cfg.FanOut, l)
	registrySvc := newRegistryService(cfg, l)

	httpServerConfig := server.Config{Port: "9090"}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		l.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err))
		exitCode = 1
		return
	}

	mux := chi.NewRouter()
	mux.Mount("/api/v3", registryapi.MakeHandler(registrySvc, l, cfg.StackID))
	mux.Mount("/", discoveryapi.MakeHandler(discoverySvc, l))
	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"pass","instance_id":%q}`, cfg.InstanceID)
	})
	mux.Handle("/metrics", promhttp.Handler())

	hs := server.NewHTTP(ctx, cancel, svcName, httpServerConfig, mux, l)

	g.Go(func() error {
		return hs.Start()
	})
	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, l, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		l.Error(fmt.Sprintf("%s service terminated: %s", svcName, err))
	}
}

func newCache(cfg config) (discovery.Cache, error) {
	if cfg.CacheURL == "" {
		return cache.NewMemory(cfg.CacheTTL), nil
	}
	opts, err := redis.ParseURL(cfg.CacheURL)
	if err != nil {
		return nil, err
	}
	return cache.NewRedis(redis.NewClient(opts), cfg.CacheTTL), nil
}

func newDiscoveryService(registryCache discovery.Cache, connector discovery.Connector, fanOut int, l *slog.Logger) discovery.Service {
	svc := discovery.New(registryCache, connector, fanOut)
	svc = discoverymw.Logging(l, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "discovery")
	svc = discoverymw.Metrics(counter, latency, svc)
	return svc
}

func newRegistryService(cfg config, l *slog.Logger) registry.Service {
	// Standalone deployments run on the in-memory twin repository; a
	// persistent backend plugs in through twins.Repository.
	repo := inmem.NewRepository()

	svc := registry.New(repo, cfg.ControlPlaneURL, cfg.DataPlaneURL)
	svc = registrymw.Logging(l, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "registry")
	svc = registrymw.Metrics(counter, latency, svc)
	return svc
}

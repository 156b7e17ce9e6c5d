// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

// Package server provides a graceful HTTP server shell shared by the
// service binaries.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const stopWaitTime = 5 * time.Second

// Config holds the listener configuration of a server.
type Config struct {
	Host     string `env:"HOST"      envDefault:""`
	Port     string `env:"PORT"      envDefault:"8080"`
	CertFile string `env:"CERT_FILE" envDefault:""`
	KeyFile  string `env:"KEY_FILE"  envDefault:""`
}

// Server is a stoppable service listener.
type Server interface {
	Start() error
	Stop() error
}

var _ Server = (*httpServer)(nil)

type httpServer struct {
	ctx    context.Context
	cancel context.CancelFunc
	name   string
	config Config
	logger *slog.Logger
	server *http.Server
}

// NewHTTP wraps a handler in a gracefully stopping HTTP server.
func NewHTTP(ctx context.Context, cancel context.CancelFunc, name string, config Config, handler http.Handler, logger *slog.Logger) Server {
	address := net.JoinHostPort(config.Host, config.Port)
	return &httpServer{
		ctx:    ctx,
		cancel: cancel,
		name:   name,
		config: config,
		logger: logger,
		server: &http.Server{Addr: address, Handler: handler},
	}
}

func (s *httpServer) Start() error {
	errCh := make(chan error)
	switch {
	case s.config.CertFile != "" || s.config.KeyFile != "":
		s.logger.Info(fmt.Sprintf("%s service https server listening at %s with TLS cert %s and key %s", s.name, s.server.Addr, s.config.CertFile, s.config.KeyFile))
		go func() {
			errCh <- s.server.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		}()
	default:
		s.logger.Info(fmt.Sprintf("%s service http server listening at %s without TLS", s.name, s.server.Addr))
		go func() {
			errCh <- s.server.ListenAndServe()
		}()
	}
	select {
	case <-s.ctx.Done():
		return s.Stop()
	case err := <-errCh:
		return err
	}
}

func (s *httpServer) Stop() error {
	defer s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), stopWaitTime)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error(fmt.Sprintf("%s service server error occurred during shutdown at %s: %s", s.name, s.server.Addr, err))
		return fmt.Errorf("%s service server error occurred during shutdown at %s: %w", s.name, s.server.Addr, err)
	}
	s.logger.Info(fmt.Sprintf("%s service shutdown of http at %s", s.name, s.server.Addr))
	return nil
}

// StopSignalHandler stops the given servers when an interrupt or
// termination signal arrives.
func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, svcName string, servers ...Server) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-c:
		defer cancel()
		for _, server := range servers {
			if err := server.Stop(); err != nil {
				return err
			}
		}
		logger.Info(fmt.Sprintf("%s service shutdown by signal: %s", svcName, sig))
		return nil
	case <-ctx.Done():
		return nil
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the booking engine, sweeper and HTTP API into one
// process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/parkbay/internal/api"
	"github.com/friendsincode/parkbay/internal/config"
	"github.com/friendsincode/parkbay/internal/eventbus"
	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/leadership"
	"github.com/friendsincode/parkbay/internal/notify"
	"github.com/friendsincode/parkbay/internal/sweep"
	"github.com/friendsincode/parkbay/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server

	core        *Core
	api         *api.API
	leaderAware *sweep.LeaderAware
	relay       *eventbus.Relay
	relayClose  func() error

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("parkbay-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Event streams are long-lived; everything else gets a request deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	core, err := NewCore(cfg, logger)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		core:   core,
	}

	if err := srv.initSweep(); err != nil {
		_ = core.Close()
		return nil, err
	}
	if err := srv.initRelay(); err != nil {
		_ = core.Close()
		return nil, err
	}

	srv.api = api.New(core.Engine, core.Store, core.Sweeper, core.Bus, []byte(cfg.JWTSigningKey), logger)
	srv.api.SetIntegrity(core.Integrity)
	srv.api.SetAuditLog(core.Audit)
	if srv.leaderAware != nil {
		srv.api.SetLeaderStatus(srv.leaderAware)
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Websocket writes carry their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initSweep() error {
	if !s.cfg.SweepEnabled || !s.cfg.LeaderElectionEnabled {
		return nil
	}

	electionConfig := leadership.ElectionConfig{
		RedisAddr:       s.cfg.RedisAddr,
		RedisPassword:   s.cfg.RedisPassword,
		RedisDB:         s.cfg.RedisDB,
		ElectionKey:     "parkbay:leader:sweeper",
		LeaseDuration:   15 * time.Second,
		RenewalInterval: 5 * time.Second,
		RetryInterval:   2 * time.Second,
		InstanceID:      s.cfg.InstanceID,
	}

	election, err := leadership.NewElection(electionConfig, s.logger)
	if err != nil {
		return fmt.Errorf("create leader election: %w", err)
	}
	s.leaderAware = sweep.NewLeaderAware(s.core.Sweeper, election, s.logger)

	s.logger.Info().
		Str("redis_addr", s.cfg.RedisAddr).
		Str("instance_id", election.InstanceID()).
		Msg("leader election enabled for sweep")
	return nil
}

func (s *Server) initRelay() error {
	var transport eventbus.Transport
	switch s.cfg.EventRelay {
	case "":
		return nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
		t := eventbus.NewRedisTransport(client, s.cfg.EventRelaySubject)
		transport = t
		s.relayClose = func() error {
			_ = t.Close()
			return client.Close()
		}
	case "nats":
		nc, err := notify.ConnectNATS(s.cfg.NATSURL, "parkbay-relay")
		if err != nil {
			return err
		}
		t := eventbus.NewNATSTransport(nc, s.cfg.EventRelaySubject)
		transport = t
		s.relayClose = func() error {
			_ = t.Close()
			nc.Close()
			return nil
		}
	default:
		return fmt.Errorf("unsupported event relay %q", s.cfg.EventRelay)
	}

	types := append(slices.Clone(events.OwnerEventTypes), events.EventSweepCompleted)
	s.relay = eventbus.NewRelay(s.core.Bus, transport, s.cfg.InstanceID, types, s.logger)
	s.logger.Info().
		Str("transport", transport.Name()).
		Str("subject", s.cfg.EventRelaySubject).
		Str("node_id", s.relay.NodeID()).
		Msg("event relay enabled")
	return nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close stops background workers and releases owned resources.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	if s.leaderAware != nil {
		if err := s.leaderAware.Stop(); err != nil {
			firstErr = err
		}
	}
	if s.relayClose != nil {
		if err := s.relayClose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.core.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.core.Audit.Start(ctx)
	if s.relay != nil {
		if err := s.relay.Start(ctx); err != nil {
			// The stream still works for events produced on this instance.
			s.logger.Error().Err(err).Msg("event relay failed to start")
			s.relay = nil
		}
	}

	if !s.cfg.SweepEnabled {
		s.logger.Info().Msg("lifecycle sweep disabled on this instance")
		return
	}

	if s.leaderAware != nil {
		// The leader-aware wrapper owns its loop goroutine.
		if err := s.leaderAware.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware sweep failed to start")
		}
		return
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.core.Sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("sweep loop exited")
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	<-s.core.Audit.Done()
	if s.relay != nil {
		<-s.relay.Done()
	}
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Handle("/metrics", telemetry.Handler())
	s.api.Routes(s.router)
}

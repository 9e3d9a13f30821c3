package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/concurrent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory/store"
	"github.com/Protocol-Lattice/meeting-agent/pkg/models"
	"github.com/Protocol-Lattice/meeting-agent/pkg/observability"
	"github.com/Protocol-Lattice/meeting-agent/pkg/runtime"
	"github.com/Protocol-Lattice/meeting-agent/pkg/server"
)

const closeTimeout = 10 * time.Second

func newServeCommand(load loader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			var closers []func() error
			defer func() {
				if cerr := closeAll(closers); cerr != nil {
					logger.Warn("shutdown finished with errors", "error", cerr)
				}
			}()

			shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
				Enabled:     cfg.TracingEnabled,
				ServiceName: "meetingbot",
			})
			if err != nil {
				return err
			}
			closers = append(closers, func() error {
				sctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				return shutdownTracing(sctx)
			})

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics, err := observability.NewMetrics(registry)
			if err != nil {
				return err
			}

			resolver, err := newResolver(ctx, cfg)
			if err != nil {
				return err
			}
			docs, err := newDocumentStore(ctx, cfg, resolver)
			if err != nil {
				return err
			}

			embedder, err := newEmbedder(ctx, cfg, logger)
			if err != nil {
				docs.Close()
				return err
			}

			modelOpts := models.Options{Provider: cfg.LLMProvider, Model: cfg.LLMModel, APIKey: cfg.PlannerAPIKey()}
			planner, err := models.NewPlanner(ctx, modelOpts)
			if err != nil {
				docs.Close()
				return fmt.Errorf("planner: %w", err)
			}
			if c, ok := planner.(io.Closer); ok {
				closers = append(closers, c.Close)
			}

			opts := []runtime.Option{
				runtime.WithPlanner(planner),
				runtime.WithStore(docs),
				runtime.WithEmbedder(embedder),
				runtime.WithOrganizations(loadCatalog(cfg, logger), models.NewOrganizationMatcher(modelOpts)),
				runtime.WithTokenBudget(cfg.MemoryTokenLimit, memory.NewTokenCounter(cfg.LLMModel)),
				runtime.WithMaxIterations(cfg.AgentMaxIterations),
				runtime.WithTurnTimeout(cfg.TurnTimeout),
				runtime.WithIdleTTL(cfg.SessionIdleTTL),
				runtime.WithWorkerPool(concurrent.NewWorkerPool(cfg.WorkerPoolSize)),
				runtime.WithLogger(logger),
				runtime.WithMetrics(metrics),
			}
			if cfg.ArchiveEnabled() {
				archive, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
				if err != nil {
					docs.Close()
					return fmt.Errorf("transcript archive: %w", err)
				}
				opts = append(opts, runtime.WithArchive(archive))
			}

			rt, err := runtime.New(opts...)
			if err != nil {
				docs.Close()
				return err
			}
			// Close releases the archive and the document store.
			closers = append(closers, func() error {
				cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				return rt.Close(cctx)
			})

			var accounts server.Accounts
			if cfg.SupabaseURL != "" {
				accounts = auth.NewGoTrueClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, nil)
			}
			srv, err := server.New(server.Options{
				Runtime:     rt,
				Accounts:    accounts,
				PasswordKey: cfg.JWTPrivateKey,
				Metrics:     metrics,
				Gatherer:    registry,
				RateLimit:   server.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			logger.Info("meetingbot starting",
				"addr", cfg.HTTPAddr,
				"llm_provider", cfg.LLMProvider,
				"embed_provider", cfg.EmbedProvider,
				"archive", cfg.ArchiveEnabled(),
			)
			return srv.Run(ctx, cfg.HTTPAddr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

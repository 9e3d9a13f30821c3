package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/config"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory/embed"
	"github.com/Protocol-Lattice/meeting-agent/pkg/orgs"
)

func loadCatalog(cfg *config.Config, logger *slog.Logger) *orgs.Catalog {
	return orgs.Load(cfg.OrganizationsPath, logger)
}

// newEmbedder builds the provider embedder behind an LRU cache and the
// placeholder and dimension guard.
func newEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*embed.Client, error) {
	inner, err := embed.New(ctx, embed.Options{
		Provider: cfg.EmbedProvider,
		Model:    cfg.EmbedModel,
		APIKey:   cfg.EmbedAPIKey(),
		Host:     cfg.OllamaHost,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	cached, err := embed.NewCachedEmbedder(inner, cfg.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return embed.NewClient(cached, embed.WithDimensions(cfg.EmbedDimensions), embed.WithLogger(logger)), nil
}

func newResolver(ctx context.Context, cfg *config.Config) (auth.Resolver, error) {
	return auth.NewResolver(ctx, auth.Settings{
		JWTSecret:   cfg.JWTSecret,
		JWKSURL:     cfg.JWKSURL,
		Audience:    cfg.JWTAudience,
		SupabaseURL: cfg.SupabaseURL,
		AnonKey:     cfg.SupabaseAnonKey,
	})
}

func newDocumentStore(ctx context.Context, cfg *config.Config, resolver auth.Resolver) (*docstore.PostgresStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	store, err := docstore.NewPostgresStore(ctx, cfg.DatabaseURL, resolver)
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}
	return store, nil
}

package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"campaign-action-engine/internal/cache"
	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/observability"
)

// DocumentSource is where the catalog is read from: Postgres or a YAML file.
type DocumentSource interface {
	LoadDocument(ctx context.Context) (catalog.Document, error)
}

// Catalogs serves the current Registry and swaps in a new one on Reload.
// A reload that fails validation leaves the previous registry in place.
type Catalogs struct {
	src  DocumentSource
	snap cache.Snapshot[*catalog.Registry]
}

func NewCatalogs(src DocumentSource) *Catalogs {
	return &Catalogs{src: src}
}

func (c *Catalogs) Reload(ctx context.Context) error {
	doc, err := c.src.LoadDocument(ctx)
	if err != nil {
		observability.CatalogReloads.WithLabelValues("error").Inc()
		return fmt.Errorf("load catalog document: %w", err)
	}
	reg, err := catalog.Load(doc)
	if err != nil {
		observability.CatalogReloads.WithLabelValues("invalid").Inc()
		return fmt.Errorf("validate catalog: %w", err)
	}
	c.snap.Store(reg)
	observability.CatalogReloads.WithLabelValues("ok").Inc()
	log.Info().
		Int("campaigns", len(reg.Campaigns())).
		Int("warnings", len(reg.Warnings())).
		Msg("catalog snapshot rebuilt")
	return nil
}

// Load returns the current registry; ok is false before the first
// successful Reload.
func (c *Catalogs) Load() (*catalog.Registry, bool) {
	return c.snap.Load()
}

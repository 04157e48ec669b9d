package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/counter"
	"campaign-action-engine/internal/engine"
	"campaign-action-engine/internal/observability"
)

var (
	ErrCatalogNotReady    = errors.New("catalog not loaded yet")
	ErrUnknownCampaign    = errors.New("unknown campaign")
	ErrListingUnsupported = errors.New("counter backend cannot list counters")
)

// RegistrySource hands out the current catalog registry.
type RegistrySource interface {
	Load() (*catalog.Registry, bool)
}

// Ingestor evaluates incoming events against the live catalog, retrying
// updates that lost a counter race.
type Ingestor struct {
	eval        *engine.Evaluator
	catalogs    RegistrySource
	store       counter.Store
	maxAttempts int
}

func NewIngestor(eval *engine.Evaluator, catalogs RegistrySource, store counter.Store, maxAttempts int) *Ingestor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Ingestor{eval: eval, catalogs: catalogs, store: store, maxAttempts: maxAttempts}
}

func (i *Ingestor) catalog(campaignID string) (*catalog.RuleCatalog, error) {
	reg, ok := i.catalogs.Load()
	if !ok {
		return nil, ErrCatalogNotReady
	}
	cat, ok := reg.Campaign(campaignID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCampaign, campaignID)
	}
	return cat, nil
}

func (i *Ingestor) Ingest(ctx context.Context, req engine.Request) (engine.Result, error) {
	cat, err := i.catalog(req.CampaignID)
	if err != nil {
		return engine.Result{}, err
	}

	start := time.Now()
	defer func() { observability.EvaluationDuration.Observe(time.Since(start).Seconds()) }()

	var res engine.Result
	for attempt := 1; ; attempt++ {
		res, err = i.eval.Evaluate(ctx, req, cat, i.store)
		if err == nil {
			break
		}
		if !counter.IsContention(err) {
			return engine.Result{}, err
		}
		observability.CounterContention.Inc()
		if attempt >= i.maxAttempts || ctx.Err() != nil {
			return engine.Result{}, err
		}
		log.Debug().Err(err).Int("attempt", attempt).Str("event_id", req.ID).Msg("counter contention, retrying")
	}

	observability.EventsTotal.WithLabelValues(string(req.Action)).Inc()
	for _, e := range res.Effects {
		observability.EffectsTotal.WithLabelValues(string(e.Kind())).Inc()
	}
	return res, nil
}

// Summary reports per-rule counter totals for one campaign.
func (i *Ingestor) Summary(ctx context.Context, campaignID string) (engine.Summary, error) {
	cat, err := i.catalog(campaignID)
	if err != nil {
		return engine.Summary{}, err
	}
	lister, ok := i.store.(counter.Lister)
	if !ok {
		return engine.Summary{}, ErrListingUnsupported
	}
	entries, err := lister.List(ctx, campaignID)
	if err != nil {
		return engine.Summary{}, err
	}
	// Orphaned counters are already logged by Summarize; the report carries
	// their number.
	sum, orphans := engine.Summarize(cat, entries)
	sum.Orphaned = len(orphans)
	return sum, nil
}

package engine

import (
	"context"
	"fmt"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/counter"
)

type ReplayResult struct {
	Effects  []Effect        `json:"effects"`
	Counters []counter.Entry `json:"counters"`
	// Skipped counts events for campaigns absent from the registry.
	Skipped int `json:"skipped"`
}

// Replay evaluates an event history, in order, from empty counters. The
// final counters and the effects equal those of a live pass over the same
// events. Events without an id are numbered "#<position>" (1-based).
func (e *Evaluator) Replay(ctx context.Context, reqs []Request, reg *catalog.Registry) (ReplayResult, error) {
	store := counter.NewMemoryStore()
	out := ReplayResult{Effects: []Effect{}, Counters: []counter.Entry{}}

	for i, req := range reqs {
		req.Normalize(func() string { return fmt.Sprintf("#%d", i+1) })
		cat, ok := reg.Campaign(req.CampaignID)
		if !ok {
			e.logger.Warn().Str("campaign_id", req.CampaignID).Int("index", i).Msg("replay: unknown campaign, event skipped")
			out.Skipped++
			continue
		}
		res, err := e.Evaluate(ctx, req, cat, store)
		if err != nil {
			return ReplayResult{}, fmt.Errorf("replay event %d: %w", i, err)
		}
		out.Effects = append(out.Effects, res.Effects...)
	}

	for _, cat := range reg.Campaigns() {
		entries, err := store.List(ctx, cat.Campaign.ID)
		if err != nil {
			return ReplayResult{}, err
		}
		out.Counters = append(out.Counters, entries...)
	}
	return out, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/counter"
)

// DefaultHighValueCutoff is the UGC valuation above which a HIGH_VALUE_UGC
// alert fires when no cutoff is configured.
const DefaultHighValueCutoff = 100

var (
	ErrCampaignMismatch = errors.New("engine: event campaign does not match catalog")
	// ErrMissingEventID is returned for an event that raises a value alert
	// but carries no id to key the alert by.
	ErrMissingEventID   = errors.New("engine: value alert needs an event id")
)

// Evaluator decides which rules an event fires. It holds no state between
// calls: counters live in the store passed to Evaluate.
type Evaluator struct {
	highValueCutoff float64
	logger          zerolog.Logger
}

type Option func(*Evaluator)

func WithHighValueCutoff(v float64) Option { return func(e *Evaluator) { e.highValueCutoff = v } }
func WithLogger(l zerolog.Logger) Option   { return func(e *Evaluator) { e.logger = l } }

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{highValueCutoff: DefaultHighValueCutoff, logger: log.Logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate counts req.Event against every rule of cat watching its action
// kind and returns the effects that fire, in catalog order, followed by any
// value-gated alerts. Counter updates are committed through store in one
// Update; if that fails nothing fires and the error is returned as is.
func (e *Evaluator) Evaluate(ctx context.Context, req Request, cat *catalog.RuleCatalog, store counter.Store) (Result, error) {
	ev := req.Event
	if cat == nil {
		return Result{}, errors.New("engine: nil catalog")
	}
	if ev.CampaignID != cat.Campaign.ID {
		return Result{}, fmt.Errorf("%w: %q != %q", ErrCampaignMismatch, ev.CampaignID, cat.Campaign.ID)
	}

	alerts := e.valueAlerts(req, cat)
	if len(alerts) > 0 && ev.ID == "" {
		return Result{}, ErrMissingEventID
	}

	res := Result{Effects: []Effect{}, Counters: []counter.Entry{}}
	rules := cat.RulesFor(ev.Action)
	if len(rules) > 0 {
		scope := ev.scope()
		err := store.Update(ctx, scope, func(tx counter.Tx) error {
			res.Effects = res.Effects[:0]
			res.Counters = res.Counters[:0]
			for _, r := range rules {
				prev, _, err := tx.Get(ctx, r.ID)
				if err != nil {
					return fmt.Errorf("get counter %s: %w", scope.Key(r.ID), err)
				}
				next, fired := step(prev, r)
				if err := tx.Put(ctx, r.ID, next); err != nil {
					return fmt.Errorf("put counter %s: %w", scope.Key(r.ID), err)
				}
				res.Counters = append(res.Counters, counter.Entry{Key: scope.Key(r.ID), Counter: next})
				if fired {
					res.Effects = append(res.Effects, ruleEffect(ev, r, next.Count))
				}
			}
			return nil
		})
		if err != nil {
			return Result{}, err
		}
	}

	res.Effects = append(res.Effects, alerts...)

	e.logger.Debug().
		Str("campaign_id", ev.CampaignID).
		Str("user_id", ev.UserID).
		Str("event_id", ev.ID).
		Str("action", string(ev.Action)).
		Int("rules", len(rules)).
		Int("effects", len(res.Effects)).
		Msg("event evaluated")
	return res, nil
}

// step adds one occurrence to c and reports whether rule r fires at the new
// count. A rule fires the first time the count reaches its threshold, and
// again at every further multiple of it when repeatable.
func step(c counter.Counter, r catalog.Rule) (counter.Counter, bool) {
	next := counter.Counter{Count: c.Count + 1, LastFired: c.LastFired}
	if next.Count < r.Threshold {
		return next, false
	}
	if c.LastFired == nil || (r.Repeatable && next.Count%r.Threshold == 0) {
		n := next.Count
		next.LastFired = &n
		return next, true
	}
	return next, false
}

func ruleEffect(ev Event, r catalog.Rule, count int64) Effect {
	eff := Effect{
		Key:        ev.CampaignID + "/" + ev.UserID + "/" + r.ID + "/" + strconv.FormatInt(count, 10),
		CampaignID: ev.CampaignID,
		UserID:     ev.UserID,
		RuleID:     r.ID,
		Count:      count,
		EventID:    ev.ID,
	}
	switch src := r.Source.(type) {
	case catalog.RewardCriterion:
		eff.Payload = RewardGrant{CriterionID: src.ID, Reward: src.Reward, Value: src.Value}
	case catalog.ActionThreshold:
		eff.Payload = Alert{Type: AlertActionThreshold, ThresholdID: src.ID, Threshold: src.Threshold}
	case catalog.ActionRule:
		eff.Payload = Automation{RuleID: src.ID, Name: src.Name, Action: src.Action}
	}
	return eff
}

// valueAlerts are not count-gated: they fire on every qualifying event and
// are keyed by its id.
func (e *Evaluator) valueAlerts(req Request, cat *catalog.RuleCatalog) []Effect {
	ev := req.Event
	alerts := cat.Campaign.Alerts
	var out []Effect

	if req.RemainingBudget != nil && *req.RemainingBudget <= alerts.LowBudgetThreshold {
		b := *req.RemainingBudget
		out = append(out, valueEffect(ev, Alert{Type: AlertLowBudget, RemainingBudget: &b}))
	}
	if alerts.NotifyOnHighValueUGC && ev.Action == catalog.UGCCreation && ev.Value != nil && *ev.Value > e.highValueCutoff {
		v := *ev.Value
		out = append(out, valueEffect(ev, Alert{Type: AlertHighValueUGC, Value: &v}))
	}
	return out
}

func valueEffect(ev Event, a Alert) Effect {
	return Effect{
		Key:        ev.CampaignID + "/" + ev.UserID + "/" + string(a.Type) + "/" + ev.ID,
		CampaignID: ev.CampaignID,
		UserID:     ev.UserID,
		EventID:    ev.ID,
		Payload:    a,
	}
}

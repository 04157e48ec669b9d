package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/config"
	"campaign-action-engine/internal/journey"
)

//go:embed schema.sql
var schema string

// DefaultChannel is notified by the catalog tables' triggers.
const DefaultChannel = "catalog_changed"

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(min(cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns))
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the catalog and counter tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// LoadDocument reads the whole catalog. Child rows keep their position
// order so rule order survives a round trip through the database.
func (s *Store) LoadDocument(ctx context.Context) (catalog.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc catalog.Document
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return doc, fmt.Errorf("begin catalog read: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	campaigns, err := loadCampaigns(ctx, tx)
	if err != nil {
		return doc, err
	}
	if err := loadRewardCriteria(ctx, tx, campaigns); err != nil {
		return doc, err
	}
	if err := loadThresholds(ctx, tx, campaigns); err != nil {
		return doc, err
	}
	global, err := loadActionRules(ctx, tx, campaigns)
	if err != nil {
		return doc, err
	}
	templates, err := loadTemplates(ctx, tx)
	if err != nil {
		return doc, err
	}

	doc.Campaigns = make([]catalog.CampaignSpec, 0, len(campaigns.order))
	for _, id := range campaigns.order {
		doc.Campaigns = append(doc.Campaigns, *campaigns.byID[id])
	}
	doc.ActionRules = global
	doc.Templates = templates
	return doc, tx.Commit(ctx)
}

type campaignSet struct {
	order []string
	byID  map[string]*catalog.CampaignSpec
}

func (c campaignSet) get(id string) (*catalog.CampaignSpec, error) {
	spec, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("row references unknown campaign %q", id)
	}
	return spec, nil
}

func loadCampaigns(ctx context.Context, tx pgx.Tx) (campaignSet, error) {
	set := campaignSet{byID: map[string]*catalog.CampaignSpec{}}
	rows, err := tx.Query(ctx, `
		SELECT id, name, budget::float8, journey_template_id,
		       low_budget_threshold::float8, notify_on_high_value_ugc
		FROM campaigns
		ORDER BY id
	`)
	if err != nil {
		return set, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c        catalog.CampaignSpec
			template sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Budget, &template, &c.Alerts.LowBudgetThreshold, &c.Alerts.NotifyOnHighValueUGC); err != nil {
			return set, fmt.Errorf("scan campaign: %w", err)
		}
		c.JourneyTemplateID = template.String
		set.order = append(set.order, c.ID)
		set.byID[c.ID] = &c
	}
	return set, rows.Err()
}

func loadRewardCriteria(ctx context.Context, tx pgx.Tx, set campaignSet) error {
	rows, err := tx.Query(ctx, `
		SELECT campaign_id, id, action, reward_type, reward_value::float8, action_count, repeatable
		FROM reward_criteria
		ORDER BY campaign_id, position, id
	`)
	if err != nil {
		return fmt.Errorf("query reward_criteria: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			campaignID string
			r          catalog.RewardCriterionSpec
			repeatable sql.NullBool
		)
		if err := rows.Scan(&campaignID, &r.ID, &r.Action, &r.RewardType, &r.RewardValue, &r.ActionCount, &repeatable); err != nil {
			return fmt.Errorf("scan reward criterion: %w", err)
		}
		if repeatable.Valid {
			r.Repeatable = &repeatable.Bool
		}
		c, err := set.get(campaignID)
		if err != nil {
			return fmt.Errorf("reward criterion %s: %w", r.ID, err)
		}
		c.RewardCriteria = append(c.RewardCriteria, r)
	}
	return rows.Err()
}

func loadThresholds(ctx context.Context, tx pgx.Tx, set campaignSet) error {
	rows, err := tx.Query(ctx, `
		SELECT campaign_id, id, action, threshold, repeatable
		FROM action_thresholds
		ORDER BY campaign_id, position, id
	`)
	if err != nil {
		return fmt.Errorf("query action_thresholds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			campaignID string
			t          catalog.ActionThresholdSpec
		)
		if err := rows.Scan(&campaignID, &t.ID, &t.Action, &t.Threshold, &t.Repeatable); err != nil {
			return fmt.Errorf("scan action threshold: %w", err)
		}
		c, err := set.get(campaignID)
		if err != nil {
			return fmt.Errorf("action threshold %s: %w", t.ID, err)
		}
		c.Alerts.ActionThresholds = append(c.Alerts.ActionThresholds, t)
	}
	return rows.Err()
}

// loadActionRules attaches campaign rules and returns the global ones
// (campaign_id NULL).
func loadActionRules(ctx context.Context, tx pgx.Tx, set campaignSet) ([]catalog.ActionRuleSpec, error) {
	rows, err := tx.Query(ctx, `
		SELECT campaign_id, id, name, trigger_action, trigger_count, action_type, payload, repeatable
		FROM action_rules
		ORDER BY campaign_id NULLS LAST, position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query action_rules: %w", err)
	}
	defer rows.Close()

	var global []catalog.ActionRuleSpec
	for rows.Next() {
		var (
			campaignID sql.NullString
			r          catalog.ActionRuleSpec
			payload    []byte
		)
		if err := rows.Scan(&campaignID, &r.ID, &r.Name, &r.Trigger.Type, &r.Trigger.Count, &r.Action.Type, &payload, &r.Repeatable); err != nil {
			return nil, fmt.Errorf("scan action rule: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &r.Action.Payload); err != nil {
				return nil, fmt.Errorf("action rule %s payload: %w", r.ID, err)
			}
		}
		if !campaignID.Valid {
			global = append(global, r)
			continue
		}
		c, err := set.get(campaignID.String)
		if err != nil {
			return nil, fmt.Errorf("action rule %s: %w", r.ID, err)
		}
		c.ActionRules = append(c.ActionRules, r)
	}
	return global, rows.Err()
}

func loadTemplates(ctx context.Context, tx pgx.Tx) ([]journey.Template, error) {
	rows, err := tx.Query(ctx, `SELECT id, name, steps, draft FROM event_templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query event_templates: %w", err)
	}
	defer rows.Close()

	var out []journey.Template
	for rows.Next() {
		var (
			t     journey.Template
			steps []byte
		)
		if err := rows.Scan(&t.ID, &t.Name, &steps, &t.Draft); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if err := json.Unmarshal(steps, &t.Steps); err != nil {
			return nil, fmt.Errorf("template %s steps: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListenChannel() string {
	return DefaultChannel
}

func (s *Store) PgxPool() *pgxpool.Pool {
	if s.pool == nil {
		panic(errors.New("pgx pool is nil"))
	}
	return s.pool
}

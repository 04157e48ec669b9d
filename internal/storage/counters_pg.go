package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campaign-action-engine/internal/counter"
)

// Postgres error codes that mean another transaction holds or raced for
// the same counter rows.
var contentionCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// PostgresCounters keeps counters in the action_counters table. Each Update
// runs in one transaction and locks the scope's rows with SELECT ... FOR
// UPDATE, so concurrent updates of one user serialize in the database.
type PostgresCounters struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewPostgresCounters(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresCounters {
	return &PostgresCounters{pool: pool, lockTimeout: lockTimeout}
}

func (p *PostgresCounters) Update(ctx context.Context, scope counter.Scope, fn func(tx counter.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return p.classify(scope, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if p.lockTimeout > 0 {
		// SET LOCAL does not take bind parameters.
		q := fmt.Sprintf("SET LOCAL lock_timeout = %d", p.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, q); err != nil {
			return p.classify(scope, fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	ptx := &pgTx{tx: tx, scope: scope, seen: map[string]counter.Counter{}}
	if err := fn(ptx); err != nil {
		return p.classify(scope, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return p.classify(scope, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (p *PostgresCounters) List(ctx context.Context, campaignID string) ([]counter.Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT user_id, rule_id, count, last_fired
		FROM action_counters
		WHERE campaign_id = $1
		ORDER BY user_id, rule_id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query counters: %w", err)
	}
	defer rows.Close()

	out := make([]counter.Entry, 0)
	for rows.Next() {
		e := counter.Entry{Key: counter.Key{CampaignID: campaignID}}
		if err := rows.Scan(&e.Key.UserID, &e.Key.RuleID, &e.Counter.Count, &e.Counter.LastFired); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresCounters) classify(scope counter.Scope, err error) error {
	if isContention(err) {
		return &counter.ContentionError{Scope: scope, Backend: "postgres", Err: err}
	}
	return err
}

func isContention(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && contentionCodes[pgErr.Code]
}

type pgTx struct {
	tx    pgx.Tx
	scope counter.Scope
	// seen caches rows already locked in this transaction
	seen map[string]counter.Counter
}

func (t *pgTx) Get(ctx context.Context, ruleID string) (counter.Counter, bool, error) {
	if c, ok := t.seen[ruleID]; ok {
		return c, c.Count > 0, nil
	}
	// The insert guarantees a row exists to lock, even for a first event.
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO action_counters (campaign_id, user_id, rule_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, t.scope.CampaignID, t.scope.UserID, ruleID); err != nil {
		return counter.Counter{}, false, fmt.Errorf("ensure counter row: %w", err)
	}

	var c counter.Counter
	err := t.tx.QueryRow(ctx, `
		SELECT count, last_fired
		FROM action_counters
		WHERE campaign_id = $1 AND user_id = $2 AND rule_id = $3
		FOR UPDATE
	`, t.scope.CampaignID, t.scope.UserID, ruleID).Scan(&c.Count, &c.LastFired)
	if err != nil {
		return counter.Counter{}, false, fmt.Errorf("lock counter row: %w", err)
	}
	t.seen[ruleID] = c
	return c, c.Count > 0, nil
}

func (t *pgTx) Put(ctx context.Context, ruleID string, c counter.Counter) error {
	prev, _, err := t.Get(ctx, ruleID)
	if err != nil {
		return err
	}
	if err := counter.CheckAdvance(prev, c); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `
		UPDATE action_counters
		SET count = $4, last_fired = $5, updated_at = now()
		WHERE campaign_id = $1 AND user_id = $2 AND rule_id = $3
	`, t.scope.CampaignID, t.scope.UserID, ruleID, c.Count, c.LastFired); err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	t.seen[ruleID] = c
	return nil
}

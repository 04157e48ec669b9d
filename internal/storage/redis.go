package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"campaign-action-engine/internal/config"
	"campaign-action-engine/internal/counter"
)

func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisCounters keeps one hash per (campaign, user) scope holding
// "<rule>.count" and "<rule>.fired" fields, plus a set of the campaign's
// users for listing. Updates are optimistic: the hash is WATCHed and the
// write is a MULTI/EXEC, so a concurrent writer aborts the transaction.
type RedisCounters struct {
	client *redis.Client
}

func NewRedisCounters(client *redis.Client) *RedisCounters {
	return &RedisCounters{client: client}
}

func scopeKey(s counter.Scope) string {
	return fmt.Sprintf("counters:%s:%s", s.CampaignID, s.UserID)
}

func usersKey(campaignID string) string {
	return fmt.Sprintf("counters:%s:users", campaignID)
}

const (
	countSuffix = ".count"
	firedSuffix = ".fired"
)

func (r *RedisCounters) Update(ctx context.Context, scope counter.Scope, fn func(tx counter.Tx) error) error {
	key := scopeKey(scope)
	err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
		fields, err := rtx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("read counters: %w", err)
		}
		current, err := parseCounters(fields)
		if err != nil {
			return err
		}

		tx := &redisTx{current: current, staged: map[string]counter.Counter{}}
		if err := fn(tx); err != nil {
			return err
		}
		if len(tx.staged) == 0 {
			return nil
		}

		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, counterFields(tx.staged))
			pipe.SAdd(ctx, usersKey(scope.CampaignID), scope.UserID)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return &counter.ContentionError{Scope: scope, Backend: "redis", Err: err}
	}
	return err
}

func (r *RedisCounters) List(ctx context.Context, campaignID string) ([]counter.Entry, error) {
	users, err := r.client.SMembers(ctx, usersKey(campaignID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	slices.Sort(users)

	out := make([]counter.Entry, 0)
	for _, u := range users {
		scope := counter.Scope{CampaignID: campaignID, UserID: u}
		fields, err := r.client.HGetAll(ctx, scopeKey(scope)).Result()
		if err != nil {
			return nil, fmt.Errorf("read counters of %s: %w", u, err)
		}
		counters, err := parseCounters(fields)
		if err != nil {
			return nil, err
		}
		rules := make([]string, 0, len(counters))
		for id := range counters {
			rules = append(rules, id)
		}
		slices.Sort(rules)
		for _, id := range rules {
			out = append(out, counter.Entry{Key: scope.Key(id), Counter: counters[id]})
		}
	}
	return out, nil
}

// parseCounters turns a scope hash back into counters by rule id.
func parseCounters(fields map[string]string) (map[string]counter.Counter, error) {
	out := map[string]counter.Counter{}
	for f, v := range fields {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter field %q: %w", f, err)
		}
		switch {
		case strings.HasSuffix(f, countSuffix):
			id := strings.TrimSuffix(f, countSuffix)
			c := out[id]
			c.Count = n
			out[id] = c
		case strings.HasSuffix(f, firedSuffix):
			id := strings.TrimSuffix(f, firedSuffix)
			c := out[id]
			c.LastFired = &n
			out[id] = c
		default:
			return nil, fmt.Errorf("unexpected counter field %q", f)
		}
	}
	return out, nil
}

func counterFields(staged map[string]counter.Counter) map[string]any {
	out := make(map[string]any, len(staged)*2)
	for id, c := range staged {
		out[id+countSuffix] = c.Count
		if c.LastFired != nil {
			out[id+firedSuffix] = *c.LastFired
		}
	}
	return out
}

type redisTx struct {
	current map[string]counter.Counter
	staged  map[string]counter.Counter
}

func (t *redisTx) Get(_ context.Context, ruleID string) (counter.Counter, bool, error) {
	if c, ok := t.staged[ruleID]; ok {
		return c, true, nil
	}
	c, ok := t.current[ruleID]
	return c, ok, nil
}

func (t *redisTx) Put(ctx context.Context, ruleID string, c counter.Counter) error {
	prev, _, _ := t.Get(ctx, ruleID)
	if err := counter.CheckAdvance(prev, c); err != nil {
		return err
	}
	t.staged[ruleID] = c
	return nil
}

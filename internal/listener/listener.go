package listener

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ReloadFunc rebuilds the catalog snapshot from its source.
type ReloadFunc func(ctx context.Context) error

// Notifier gives access to the pool a LISTEN connection is taken from.
type Notifier interface {
	PgxPool() *pgxpool.Pool
	ListenChannel() string
}

// ListenAndRefresh calls reload whenever the catalog tables notify channel.
// A broken connection is replaced after a jittered backoff. It returns when
// ctx is done.
func ListenAndRefresh(ctx context.Context, st Notifier, reload ReloadFunc, channel string, baseBackoff time.Duration) {
	if channel == "" {
		channel = st.ListenChannel()
	}
	for {
		err := listen(ctx, st.PgxPool(), reload, channel)
		if ctx.Err() != nil {
			log.Info().Msg("listener stopped")
			return
		}
		backoff := jitter(baseBackoff)
		log.Error().Err(err).Dur("retry_in", backoff).Msg("listen connection lost")
		select {
		case <-ctx.Done():
			log.Info().Msg("listener stopped")
			return
		case <-time.After(backoff):
		}
		// Notifications may have been missed while disconnected.
		if err := reload(ctx); err != nil {
			log.Error().Err(err).Msg("refresh snapshot error")
		}
	}
}

func listen(ctx context.Context, pool *pgxpool.Pool, reload ReloadFunc, channel string) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return err
	}
	log.Info().Str("channel", channel).Msg("listening for DB changes")

	var lastRefresh time.Time
	for {
		ntf, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if time.Since(lastRefresh) < 200*time.Millisecond {
			continue // debounce burst of notifications
		}
		lastRefresh = time.Now()
		log.Info().Str("channel", ntf.Channel).Str("table", ntf.Payload).Msg("db change; refreshing snapshot")
		if err := reload(ctx); err != nil {
			log.Error().Err(err).Msg("refresh snapshot error")
		}
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x-1.5x
	return time.Duration(float64(base) * factor)
}

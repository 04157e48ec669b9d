package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// settle lets editors finish writing before the file is re-read.
const settle = 200 * time.Millisecond

// WatchFile calls reload after path is written, created or renamed into
// place. The parent directory is watched so atomic replaces are seen.
func WatchFile(ctx context.Context, path string, reload ReloadFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.Info().Str("path", abs).Msg("watching catalog file")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			log.Info().Msg("file watcher stopped")
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !relevant(ev) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(settle)
			pending = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("file watch error")
		case <-pending:
			pending = nil
			log.Info().Str("path", abs).Msg("catalog file changed; refreshing snapshot")
			if err := reload(ctx); err != nil {
				log.Error().Err(err).Msg("refresh snapshot error")
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

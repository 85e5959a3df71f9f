package workers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/dmvolsky/persona-telegram-bot/pkg/config"
	"github.com/dmvolsky/persona-telegram-bot/pkg/logger"
)

// configWatcher reloads the settings file on change and swaps the provider
// snapshot. A reload that fails to parse or validate keeps the previous
// snapshot; the bot never runs with a broken config.
type configWatcher struct {
	path     string
	provider *config.Provider
}

func NewConfigWatcher(path string, provider *config.Provider) (*configWatcher, error) {
	return &configWatcher{
		path:     filepath.Clean(path),
		provider: provider,
	}, nil
}

func (c *configWatcher) Name() string { return "config_watcher_worker" }

func (c *configWatcher) Start(ctx context.Context) error {
	slog.Info("Starting worker", "name", c.Name(), "path", c.path)
	defer slog.Info("Worker stopped", "name", c.Name())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fs watcher: %w", err)
	}
	defer watcher.Close()

	// watch the directory: editors replace the file on save, which would
	// drop a watch set on the file itself
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("watching config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != c.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			c.reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.ErrorContext(ctx, "Config watcher error", logger.Err(err))
		}
	}
}

func (c *configWatcher) reload(ctx context.Context) {
	snapshot, err := config.Load(c.path)
	if err != nil {
		slog.ErrorContext(ctx, "Reloading config failed, keeping previous", logger.Err(err))
		return
	}
	c.provider.Swap(snapshot)
	slog.InfoContext(ctx, "Config reloaded", "path", c.path)
}

package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/waveroom/waveroom/internal/logger"
)

// Watch reloads the config file whenever it changes and invokes onChange
// with the freshly loaded config. Only run-time tunables (log level) are
// expected to take effect without a restart; listeners decide what to apply.
// Watch returns once the watcher is installed; it stops when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("Config reload failed: %v", err)
					continue
				}
				logger.Info("Config reloaded from %s", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error: %v", err)
			}
		}
	}()

	return nil
}

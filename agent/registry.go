package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDebounce is how long to wait for more file events before reloading.
const reloadDebounce = 100 * time.Millisecond

// Registry resolves agent prompt templates. Built-in templates can be
// overridden from an agents.yaml file, which is hot-reloaded on change.
type Registry struct {
	mu        sync.RWMutex
	overrides map[string]string
	path      string
	logger    *slog.Logger
}

// overridesFile is the on-disk shape of the agents.yaml override file.
type overridesFile struct {
	Templates map[string]string `yaml:"templates"`
}

// NewRegistry creates a template registry. path may be empty, in which case
// only built-in templates are served and Watch is a no-op.
func NewRegistry(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		overrides: make(map[string]string),
		path:      path,
		logger:    logger,
	}
}

// Template returns the prompt template for an agent name. Overrides take
// precedence over built-ins; unknown names return the empty string.
func (r *Registry) Template(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tmpl, ok := r.overrides[name]; ok {
		return tmpl
	}
	return defaultTemplates[name]
}

// Load reads the override file. Missing file is not an error (built-ins
// apply); a malformed file is.
func (r *Registry) Load() error {
	if r.path == "" {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read agent templates: %w", err)
	}

	var file overridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse agent templates: %w", err)
	}

	r.mu.Lock()
	r.overrides = file.Templates
	if r.overrides == nil {
		r.overrides = make(map[string]string)
	}
	r.mu.Unlock()

	r.logger.Info("Loaded agent template overrides",
		slog.String("path", r.path),
		slog.Int("count", len(file.Templates)))
	return nil
}

// Watch reloads the override file whenever it changes, until ctx is done.
// Reload failures are logged and the previous templates stay in effect.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create template watcher: %w", err)
	}

	// Watch the file itself; editors that replace the file emit Create.
	if err := fsw.Add(r.path); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", r.path, err)
	}

	go func() {
		defer fsw.Close()

		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				// Debounce bursts of events from a single save
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					if err := r.Load(); err != nil {
						r.logger.Warn("Failed to reload agent templates",
							slog.String("path", r.path),
							slog.String("error", err.Error()))
					}
				})

			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				r.logger.Warn("Template watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

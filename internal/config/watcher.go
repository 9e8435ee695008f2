package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const watchDebounce = 300 * time.Millisecond

// PromptChange is delivered when a persona's prompt file changes on disk.
type PromptChange struct {
	Role         string
	SystemPrompt string
}

// Watcher watches persona prompt files and emits reloaded prompts.
// Editors write files in bursts, so events are debounced per path.
type Watcher struct {
	watcher  *fsnotify.Watcher
	byPath   map[string]string // prompt file path -> persona role
	onChange func(PromptChange)
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer

	done chan struct{}
}

// NewWatcher starts watching every persona PromptFile in cfg. Personas
// with inline prompts only are skipped.
func NewWatcher(cfg *Config, onChange func(PromptChange), logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		byPath:   make(map[string]string),
		onChange: onChange,
		logger:   logger.With().Str("component", "prompt-watcher").Logger(),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}

	dirs := map[string]bool{}
	for _, p := range cfg.Personas {
		if p.PromptFile == "" {
			continue
		}
		w.byPath[filepath.Clean(p.PromptFile)] = p.Role
		dirs[filepath.Dir(p.PromptFile)] = true
	}

	// Watch directories rather than files: rename-and-replace saves drop
	// the watch on the file itself.
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			path := filepath.Clean(event.Name)
			if _, watched := w.byPath[path]; watched {
				w.debounce(path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watch error")
		}
	}
}

func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, exists := w.pending[path]; exists {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.reload(path)
	})
}

func (w *Watcher) reload(path string) {
	role := w.byPath[path]

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn().Str("role", role).Str("path", path).Err(err).Msg("Failed to reload prompt file")
		return
	}

	w.logger.Info().Str("role", role).Str("path", path).Msg("Prompt file reloaded")
	w.onChange(PromptChange{
		Role:         role,
		SystemPrompt: strings.TrimSpace(string(data)),
	})
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

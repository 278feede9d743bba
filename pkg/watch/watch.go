// Package watch turns filesystem changes under a directory into debounced
// batches of changed module URLs.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/Sumatoshi-tech/modshim/pkg/fetch"
)

// DefaultDebounce is the quiet period after the last event before OnChange
// fires.
const DefaultDebounce = 50 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watch: already running")

// DefaultPatterns select the files the loader can import.
var DefaultPatterns = []string{"**/*.{js,mjs,cjs,jsx,json,css}"}

var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*~",
	"**/.DS_Store",
}

// Config holds the parameters for a Watcher.
type Config struct {
	// Dir is the directory watched recursively. Empty means the working
	// directory.
	Dir string

	// Patterns are doublestar globs, relative to Dir, selecting the files
	// that count as changes. Empty means DefaultPatterns.
	Patterns []string

	// Ignore adds globs to the built-in ignores.
	Ignore []string

	// Debounce is the coalescing window. Zero means DefaultDebounce.
	Debounce time.Duration

	// OnChange receives the sorted file:// URLs changed in one window.
	OnChange func(ctx context.Context, urls []string) error

	Logger *slog.Logger
}

// Watcher monitors a directory tree. Run must be called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	patterns []string
	ignores  []string
	dir      string
	debounce time.Duration
	logger   *slog.Logger
	started  atomic.Bool
}

// New validates cfg and registers every non-ignored directory under Dir.
func New(cfg Config) (*Watcher, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve directory: %w", err)
	}

	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	err = validatePatterns(patterns)
	if err != nil {
		return nil, err
	}

	err = validatePatterns(cfg.Ignore)
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		patterns: patterns,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		dir:      absDir,
		debounce: debounce,
		logger:   logger,
	}

	err = w.addDirectories()
	if err != nil {
		return nil, errors.Join(err, fsw.Close())
	}

	return w, nil
}

// Dir returns the absolute watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Matches reports whether a path relative to Dir counts as a change.
func (w *Watcher) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)

	return !matchAny(w.ignores, rel) && matchAny(w.patterns, rel)
}

// Run processes events until ctx is done. OnChange calls never overlap; a
// window that closes while a call is running is retried after it.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	defer func() {
		closeErr := w.fsw.Close()
		if closeErr != nil {
			w.logger.Warn("close fsnotify watcher", "error", closeErr)
		}
	}()

	var (
		mu      sync.Mutex
		pending = map[string]struct{}{}
		timer   *time.Timer
		running atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}

		if !running.CompareAndSwap(false, true) {
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()

			return
		}

		defer running.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if len(changed) == 0 || w.cfg.OnChange == nil {
			return
		}

		err := w.cfg.OnChange(ctx, changed)
		if err != nil {
			w.logger.WarnContext(ctx, "change handler failed", "error", err)
		}
	}

	defer func() {
		mu.Lock()
		defer mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}

			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}

			url, ok := w.changeURL(evt.Name)
			if !ok {
				continue
			}

			mu.Lock()
			pending[url] = struct{}{}

			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}

			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.WarnContext(ctx, "fsnotify queue overflow, changes may be missed")

				continue
			}

			w.logger.WarnContext(ctx, "fsnotify error", "error", err)
		}
	}
}

// changeURL maps an event path to its file URL if it counts as a change.
func (w *Watcher) changeURL(path string) (string, bool) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || !w.Matches(rel) {
		return "", false
	}

	url, err := fetch.URLFromPath(path)
	if err != nil {
		return "", false
	}

	return url, true
}

func (w *Watcher) addDirectories() error {
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("skipping inaccessible path", "path", path, "error", walkErr)

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if w.ignoredDir(path) {
			return filepath.SkipDir
		}

		addErr := w.fsw.Add(path)
		if addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, addErr)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk directory tree: %w", err)
	}

	return nil
}

func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || w.ignoredDir(path) {
		return
	}

	err = w.fsw.Add(path)
	if err != nil {
		w.logger.Warn("add new directory", "path", path, "error", err)
	}
}

func (w *Watcher) ignoredDir(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return true
	}

	if rel == "." {
		return false
	}

	rel = filepath.ToSlash(rel)

	return matchAny(w.ignores, rel) || matchAny(w.ignores, rel+"/")
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}

	return false
}

func validatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("watch: invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
	}

	return nil
}

package monitor

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultDebounce = 500 * time.Millisecond

// watchedExtensions are the file types a change event triggers analysis for.
var watchedExtensions = map[string]bool{
	".go": true,
	".py": true,
	".js": true,
	".ts": true,
}

// Watcher is an optional event-driven front-end to the monitor: filesystem
// changes are debounced into batches and each changed source file goes
// through the per-file drift check, feeding the same issue and alert
// pipeline the periodic cycle uses.
type Watcher struct {
	monitor  *Monitor
	debounce time.Duration
	// limiter caps how many per-file analyses a change burst may trigger
	limiter *rate.Limiter

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher for the monitor's project. A non-positive
// debounce uses the default.
func NewWatcher(m *Monitor, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		monitor:  m,
		debounce: debounce,
		limiter:  rate.NewLimiter(rate.Limit(2), 5),
		pending:  make(map[string]struct{}),
	}
}

// Start begins watching the project tree recursively.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := w.addRecursive(w.monitor.projectPath); err != nil {
		fsw.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	log.Info().Str("project", w.monitor.projectPath).Msg("file watcher started")
	go w.loop(runCtx)
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
// Safe to call more than once, including concurrently.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-w.done
	w.fsw.Close()
	log.Info().Msg("file watcher stopped")
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if skipDirs[entry.Name()] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	flush := time.NewTimer(w.debounce)
	if !flush.Stop() {
		<-flush.C
	}
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
			if !flush.Stop() {
				select {
				case <-flush.C:
				default:
				}
			}
			flush.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("file watcher error")

		case <-flush.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 && isDir(ev.Name) {
		// new directories must be watched too
		if !skipDirs[filepath.Base(ev.Name)] {
			if err := w.fsw.Add(ev.Name); err != nil {
				log.Warn().Err(err).Str("dir", ev.Name).Msg("watching new directory")
			}
		}
		return
	}

	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !watchedExtensions[filepath.Ext(ev.Name)] {
		return
	}

	w.mu.Lock()
	w.pending[ev.Name] = struct{}{}
	w.mu.Unlock()
}

// flush analyzes the batched files. The rate limiter bounds how much
// analysis a change burst can trigger; files over budget are deferred to
// the next periodic cycle.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	batch := make([]string, 0, len(w.pending))
	for path := range w.pending {
		batch = append(batch, path)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(batch)
	for _, path := range batch {
		if !w.limiter.Allow() {
			log.Debug().Str("file", path).Msg("analysis rate limit reached, deferring to next cycle")
			continue
		}
		report := w.monitor.detector.CheckFile(ctx, path)
		w.monitor.escalateDrift(ctx, report)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

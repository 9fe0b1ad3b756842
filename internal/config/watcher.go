package config

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"toolhub/internal/domain"
	"toolhub/internal/telemetry"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher keeps a validated configuration current against its file on disk.
// Snapshot always returns the last revision that loaded cleanly; a broken
// intermediate save logs a warning and leaves it untouched.
type Watcher struct {
	logger *zap.Logger
	loader *Loader
	path   string

	state    atomic.Value // Snapshot
	revision atomic.Uint64

	// Sends happen under subMu so an unsubscribing channel can be closed
	// without racing a broadcast.
	subMu sync.Mutex
	subs  map[chan Update]struct{}

	reloadMu  sync.Mutex
	watchOnce sync.Once
	watchCtx  context.Context
}

// NewWatcher loads the file once and fails fast if it does not validate.
// The filesystem watch starts lazily on the first Watch call and stops when
// ctx ends.
func NewWatcher(ctx context.Context, path string, logger *zap.Logger) (*Watcher, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	loader := NewLoader(logger)
	cfg, err := loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		logger:   logger.Named("config_watcher"),
		loader:   loader,
		path:     path,
		subs:     make(map[chan Update]struct{}),
		watchCtx: ctx,
	}
	snap := Snapshot{Config: cfg, Revision: 1, LoadedAt: time.Now()}
	w.state.Store(snap)
	w.revision.Store(snap.Revision)
	return w, nil
}

// Snapshot returns the current configuration revision.
func (w *Watcher) Snapshot() Snapshot {
	return w.state.Load().(Snapshot)
}

// Watch subscribes to configuration changes. The channel is buffered and
// best-effort: a slow reader misses intermediate revisions and should
// re-read Snapshot. It is closed when ctx ends.
func (w *Watcher) Watch(ctx context.Context) <-chan Update {
	if ctx == nil {
		ctx = context.Background()
	}
	ch := make(chan Update, 1)
	w.subMu.Lock()
	w.subs[ch] = struct{}{}
	w.subMu.Unlock()

	w.watchOnce.Do(func() {
		go w.run(w.watchCtx)
	})

	go func() {
		<-ctx.Done()
		w.subMu.Lock()
		delete(w.subs, ch)
		close(ch)
		w.subMu.Unlock()
	}()
	return ch
}

// Reload forces a reload outside the filesystem watch.
func (w *Watcher) Reload(ctx context.Context) error {
	return w.reload(ctx, UpdateSourceManual)
}

func (w *Watcher) reload(ctx context.Context, source UpdateSource) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	prev := w.Snapshot()
	cfg, err := w.loader.Load(ctx, w.path)
	if err != nil {
		return err
	}

	// Editors rewrite files without changing them; the revision bumps only
	// when the resolved contents differ.
	if domain.ETagFor(cfg) == domain.ETagFor(prev.Config) {
		return nil
	}

	next := Snapshot{Config: cfg, Revision: w.revision.Add(1), LoadedAt: time.Now()}
	w.state.Store(next)
	w.logger.Info("config reloaded",
		telemetry.EventField(telemetry.EventConfigReload),
		zap.Uint64("revision", next.Revision),
		zap.String("source", string(source)),
		zap.Int("providers", len(cfg.Providers)),
	)
	w.broadcast(Update{Snapshot: next, Source: source})
	return nil
}

func (w *Watcher) broadcast(update Update) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- update:
		default:
		}
	}
}

func (w *Watcher) run(ctx context.Context) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("config watch unavailable", zap.Error(err))
		return
	}
	defer fsw.Close()

	// Watch the directory, not the file: editors that save by writing a
	// temp file and renaming it over the original would detach a file-level
	// watch on the first save.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("config watch add failed", zap.String("path", w.path), zap.Error(err))
		return
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-fsw.Errors:
			if err != nil {
				w.logger.Warn("config watch error", zap.Error(err))
			}
		case event := <-fsw.Events:
			if !sameFile(event.Name, w.path) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(reloadDebounce)
		case <-timerC(debounce):
			debounce = nil
			if err := w.reload(ctx, UpdateSourceWatch); err != nil {
				w.logger.Warn("config reload failed", zap.Error(err))
			}
		}
	}
}

func sameFile(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return filepath.Clean(a) == filepath.Clean(b)
}

func timerC(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}

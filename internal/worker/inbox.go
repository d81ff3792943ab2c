package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/garyjia/labinvoice/internal/convert"
	"github.com/garyjia/labinvoice/internal/importer"
)

// Folders inside the inbox that documents are moved to once imported
const (
	ProcessedDirName = "processed"
	ReviewDirName    = "review"
)

// Importer imports a batch of documents
type Importer interface {
	ImportFiles(ctx context.Context, paths []string) (*importer.BatchResult, error)
}

// InboxStatus reports the watcher's counters
type InboxStatus struct {
	IsRunning      bool
	LastImport     time.Time
	ProcessedCount int
	ReviewCount    int
	LastError      error
}

// InboxWatcher imports documents dropped into a folder. Events are
// debounced so a file still being copied is imported once, when writes stop.
type InboxWatcher struct {
	dir      string
	debounce time.Duration
	importer Importer
	logger   *zap.Logger

	mu         sync.Mutex
	watcher    *fsnotify.Watcher
	cancel     context.CancelFunc
	done       chan struct{}
	isRunning  bool
	lastImport time.Time
	processed  int
	review     int
	lastError  error
}

// NewInboxWatcher creates a watcher for dir
func NewInboxWatcher(dir string, debounce time.Duration, imp Importer, logger *zap.Logger) *InboxWatcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &InboxWatcher{
		dir:      dir,
		debounce: debounce,
		importer: imp,
		logger:   logger,
	}
}

// Name implements Worker
func (w *InboxWatcher) Name() string { return "inbox_watcher" }

// Start watches the inbox. Documents already in the folder are queued too.
func (w *InboxWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("inbox watcher already running")
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	// Pick up files dropped while not running
	initial, err := w.scan()
	if err != nil {
		watcher.Close()
		return err
	}

	var loopCtx context.Context
	loopCtx, w.cancel = context.WithCancel(ctx)
	w.watcher = watcher
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("Inbox watcher started",
		zap.String("dir", w.dir),
		zap.Duration("debounce", w.debounce),
		zap.Int("queued", len(initial)))

	go w.loop(loopCtx, initial)
	return nil
}

// Stop ends the watch loop and waits for an import in flight
func (w *InboxWatcher) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	cancel, done, watcher := w.cancel, w.done, w.watcher
	w.mu.Unlock()

	cancel()
	<-done
	watcher.Close()

	st := w.Status()
	w.logger.Info("Inbox watcher stopped",
		zap.Int("processed_count", st.ProcessedCount),
		zap.Int("review_count", st.ReviewCount))
}

// Status returns the current counters
func (w *InboxWatcher) Status() InboxStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return InboxStatus{
		IsRunning:      w.isRunning,
		LastImport:     w.lastImport,
		ProcessedCount: w.processed,
		ReviewCount:    w.review,
		LastError:      w.lastError,
	}
}

func (w *InboxWatcher) loop(ctx context.Context, initial []string) {
	defer close(w.done)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if len(initial) == 0 {
		timer.Stop()
	}
	for _, p := range initial {
		pending[p] = struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.accepts(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Inbox watch error", zap.Error(err))

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				if _, err := os.Stat(p); err == nil {
					paths = append(paths, p)
				}
			}
			clear(pending)
			if len(paths) > 0 {
				w.importBatch(ctx, paths)
			}
		}
	}
}

// accepts reports whether path is a document directly inside the inbox.
// Hidden and temporary files (".x", "~x") are ignored.
func (w *InboxWatcher) accepts(path string) bool {
	if filepath.Dir(path) != filepath.Clean(w.dir) {
		return false
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return convert.Supported(path)
}

func (w *InboxWatcher) scan() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}
	var paths []string
	for _, e := range entries {
		p := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.accepts(p) {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (w *InboxWatcher) importBatch(ctx context.Context, paths []string) {
	slices.Sort(paths)

	w.logger.Info("Importing inbox documents", zap.Int("count", len(paths)))
	res, err := w.importer.ImportFiles(ctx, paths)

	w.mu.Lock()
	w.lastImport = time.Now()
	w.lastError = err
	w.mu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error("Failed to import inbox documents", zap.Error(err))
		}
		return
	}

	// Route each document to processed/ or review/
	inReview := make(map[string]bool, len(res.Exceptions))
	for _, e := range res.Exceptions {
		inReview[e.Path] = true
	}
	for _, p := range paths {
		dest := ProcessedDirName
		if inReview[p] {
			dest = ReviewDirName
		}
		if err := w.moveTo(p, dest); err != nil {
			w.logger.Error("Failed to move inbox document", zap.String("path", p), zap.Error(err))
		}
	}

	w.mu.Lock()
	w.review += len(inReview)
	w.processed += len(paths) - len(inReview)
	w.mu.Unlock()
}

// moveTo moves path into the named inbox subfolder, prefixing a timestamp
// when the name is already taken.
func (w *InboxWatcher) moveTo(path, sub string) error {
	dir := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(dir, time.Now().Format("20060102_150405_")+filepath.Base(path))
	}
	return os.Rename(path, target)
}

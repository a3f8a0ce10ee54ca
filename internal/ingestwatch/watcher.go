package ingestwatch

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Benny93/dkg-go/internal/diagnostics"
	"github.com/Benny93/dkg-go/internal/provenance"
	"github.com/Benny93/dkg-go/internal/stage"
)

// BatchWindow is how long the watcher waits after the last observed
// change before re-running the affected stages, so that a burst of saves
// (an editor writing several files in one export) collapses into one
// pipeline run per stage.
const BatchWindow = 2 * time.Second

// StageRunner is the subset of *stage.Pipeline the watcher depends on,
// so tests can substitute a fake.
type StageRunner interface {
	RunStage(ctx context.Context, stg provenance.Stage) (ok int, partiallyFailed bool, err error)
}

var _ StageRunner = (*stage.Pipeline)(nil)

// Watcher monitors a directory tree for design artifact changes and
// re-runs the Stage Pipeline for whichever stages had files change.
type Watcher struct {
	root      string
	pipeline  StageRunner
	diag      *diagnostics.Log
	stageExt  map[string]provenance.Stage
	batchWait time.Duration

	mu      sync.Mutex
	pending map[provenance.Stage]bool
}

// New creates a Watcher rooted at root, dispatching stage re-runs to
// pipeline. diag may be nil.
func New(root string, pipeline StageRunner, diag *diagnostics.Log) *Watcher {
	return &Watcher{
		root:      root,
		pipeline:  pipeline,
		diag:      diag,
		stageExt:  DefaultStageExtensions,
		batchWait: BatchWindow,
	}
}

// SetStageExtensions overrides the extension-to-stage mapping.
func (w *Watcher) SetStageExtensions(m map[string]provenance.Stage) {
	w.stageExt = m
}

// Run blocks, watching w.root for changes until ctx is cancelled. Every
// filesystem event on a watched file schedules the stage it maps to for a
// re-run. One timer is shared by all stages: every pending stage runs
// once BatchWindow elapses with no further watched-file event of any
// stage.
func (w *Watcher) Run(ctx context.Context) error {
	matcher := buildMatcher(w.root)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingestwatch: creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := addTree(fsw, w.root, matcher); err != nil {
		return fmt.Errorf("ingestwatch: watching tree: %w", err)
	}

	w.pending = make(map[provenance.Stage]bool)
	timer := time.NewTimer(w.batchWait)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			stg, matched := stageFor(event.Name, w.stageExt)
			if !matched {
				continue
			}
			if relPath, err := filepath.Rel(w.root, event.Name); err == nil {
				parts := splitPath(relPath)
				if matcher.Match(parts, false) {
					continue
				}
			}

			w.mu.Lock()
			w.pending[stg] = true
			w.mu.Unlock()
			timer.Reset(w.batchWait)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if w.diag != nil {
				w.diag.Append(diagnostics.KindWatchError, diagnostics.SeverityWarn, err.Error(), "", "")
			}

		case <-timer.C:
			w.mu.Lock()
			due := w.pending
			w.pending = make(map[provenance.Stage]bool)
			w.mu.Unlock()

			for stg := range due {
				if _, _, err := w.pipeline.RunStage(ctx, stg); err != nil {
					if w.diag != nil {
						w.diag.Append(diagnostics.KindWatchError, diagnostics.SeverityWarn,
							fmt.Sprintf("re-run of stage %q failed: %v", stg, err), "", "")
					}
				}
			}
		}
	}
}

// addTree registers root and every non-ignored subdirectory with fsw.
func addTree(fsw *fsnotify.Watcher, root string, matcher gitignore.Matcher) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if relPath != "." {
			parts := splitPath(relPath)
			if d.Name() == ".git" || matcher.Match(parts, true) {
				return filepath.SkipDir
			}
		}

		return fsw.Add(path)
	})
}

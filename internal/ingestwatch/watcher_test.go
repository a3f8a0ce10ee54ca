package ingestwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/dkg-go/internal/provenance"
)

type fakeRunner struct {
	mu  sync.Mutex
	ran []provenance.Stage
}

func (f *fakeRunner) RunStage(_ context.Context, stg provenance.Stage) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, stg)
	return 1, false, nil
}

func (f *fakeRunner) stagesRan() []provenance.Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]provenance.Stage, len(f.ran))
	copy(out, f.ran)
	return out
}

func TestWatcher_RunTriggersStageOnFileWrite(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	runner := &fakeRunner{}
	w := New(root, runner, nil)
	w.batchWait = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// fsnotify needs the watcher goroutine to have registered the root
	// before the write; give it a moment to start.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "top.sdc"), []byte("create_clock"), 0o644))

	require.Eventually(t, func() bool {
		return len(runner.stagesRan()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	assert.Contains(t, runner.stagesRan(), provenance.StageConstraints)

	cancel()
	<-done
}

func TestWatcher_IgnoresUnmappedExtensions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	runner := &fakeRunner{}
	w := New(root, runner, nil)
	w.batchWait = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, runner.stagesRan())
}

func TestWatcher_BatchesMultipleChangesToOneRun(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	runner := &fakeRunner{}
	w := New(root, runner, nil)
	w.batchWait = 150 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.xdc"), []byte("a"), 0o644))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.xdc"), []byte("b"), 0o644))

	require.Eventually(t, func() bool {
		return len(runner.stagesRan()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	ran := runner.stagesRan()
	count := 0
	for _, s := range ran {
		if s == provenance.StageConstraints {
			count++
		}
	}
	assert.Equal(t, 1, count, "two rapid changes to the same stage should collapse into one run")
}

func TestStageFor(t *testing.T) {
	t.Parallel()

	stg, ok := stageFor("/design/top.v", DefaultStageExtensions)
	require.True(t, ok)
	assert.Equal(t, provenance.StageRtl, stg)

	_, ok = stageFor("/design/README.md", DefaultStageExtensions)
	assert.False(t, ok)
}

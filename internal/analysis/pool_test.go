package analysis

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
)

// writeTone renders a mono 16-bit wav with the given duration.
func writeTone(t *testing.T, path string, freq, seconds float64) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	const rate = 44100
	n := int(seconds * rate)
	data := make([]int, n)
	for i := range data {
		data[i] = int(0.5 * 32767 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tasks := make([]Task, 0, 10)
	for i := range 9 {
		path := filepath.Join(dir, fmt.Sprintf("ok-%d.wav", i))
		writeTone(t, path, 200+float64(i)*50, 1.5)
		tasks = append(tasks, Task{SongID: fmt.Sprintf("song-%d", i), Path: path})
	}

	// one 100 ms file, too short to decode
	corrupt := filepath.Join(dir, "corrupt.wav")
	writeTone(t, corrupt, 440, 0.1)
	tasks = append(tasks, Task{SongID: "song-corrupt", Path: corrupt})

	pool := NewPool(4)
	summary, outcomes := pool.Analyze(context.Background(), tasks, nil)

	assert.Equal(t, 9, summary.Successes)
	assert.Equal(t, 1, summary.Failures)
	require.Len(t, outcomes, 10)

	for _, o := range outcomes {
		if o.SongID == "song-corrupt" {
			require.Error(t, o.Err)
			assert.True(t, errors.Is(o.Err, errors.ErrDecode))
		} else {
			require.NoError(t, o.Err, o.SongID)
			assert.True(t, o.Vector.IsFinite())
		}
	}
}

func TestOutcomesAreSortedBySongID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var tasks []Task
	for i := range 6 {
		path := filepath.Join(dir, fmt.Sprintf("t-%d.wav", i))
		writeTone(t, path, 300, 1.2)
		tasks = append(tasks, Task{SongID: fmt.Sprintf("song-%d", 5-i), Path: path})
	}

	_, outcomes := NewPool(3).Analyze(context.Background(), tasks, nil)
	require.Len(t, outcomes, 6)
	for i := 1; i < len(outcomes); i++ {
		assert.Less(t, outcomes[i-1].SongID, outcomes[i].SongID)
	}
}

func TestProgressCallbackFiresPerTask(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var tasks []Task
	for i := range 5 {
		path := filepath.Join(dir, fmt.Sprintf("p-%d.wav", i))
		writeTone(t, path, 250, 1.2)
		tasks = append(tasks, Task{SongID: fmt.Sprintf("song-%d", i), Path: path})
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	summary, _ := NewPool(2).Analyze(context.Background(), tasks, func(o Outcome) {
		mu.Lock()
		seen[o.SongID] = true
		mu.Unlock()
	})

	assert.Equal(t, 5, summary.Successes)
	assert.Len(t, seen, 5)
}

func TestCancellationStopsPickup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var tasks []Task
	for i := range 20 {
		path := filepath.Join(dir, fmt.Sprintf("c-%d.wav", i))
		writeTone(t, path, 220, 1.2)
		tasks = append(tasks, Task{SongID: fmt.Sprintf("song-%02d", i), Path: path})
	}

	ctx, cancel := context.WithCancel(context.Background())
	var done atomic.Int32
	pool := NewPool(2)

	summary, outcomes := pool.Analyze(ctx, tasks, func(o Outcome) {
		if done.Add(1) == 2 {
			cancel()
		}
	})

	// in-flight tasks finished, the rest were never picked up
	total := summary.Successes + summary.Failures
	assert.Equal(t, len(outcomes), total)
	assert.Less(t, total, len(tasks))
	assert.GreaterOrEqual(t, total, 2)
}

func TestPoolSizeDefaultsToParallelism(t *testing.T) {
	t.Parallel()

	pool := NewPool(0)
	assert.Greater(t, pool.workers, 0)
	assert.Equal(t, pool.workers, cap(pool.extractors))
}

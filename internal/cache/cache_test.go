package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	if opts.Log == nil {
		log := logrus.New()
		log.SetLevel(logrus.PanicLevel)
		opts.Log = log
	}
	c, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

type renderSettings struct {
	Gain float64 `json:"gain"`
	Mode string  `json:"mode"`
}

func TestPutGetRoundTrip(t *testing.T) {
	c := testCache(t, Options{})
	dir := t.TempDir()
	input := writeFile(t, dir, "input.wav", []byte("source material"))
	output := writeFile(t, dir, "output.wav", []byte("rendered result"))
	settings := renderSettings{Gain: -3, Mode: "style"}

	_, ok := c.Get(input, settings, TypeAudioProcessing)
	assert.False(t, ok, "empty cache should miss")

	require.NoError(t, c.Put(input, settings, TypeAudioProcessing, output, 0))

	cached, ok := c.Get(input, settings, TypeAudioProcessing)
	require.True(t, ok)
	data, err := os.ReadFile(cached)
	require.NoError(t, err)
	assert.Equal(t, []byte("rendered result"), data)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
	assert.Equal(t, int64(1), stats.TotalEntries)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-12)
}

func TestKeyDiscriminatesParamsAndType(t *testing.T) {
	c := testCache(t, Options{})
	dir := t.TempDir()
	input := writeFile(t, dir, "input.wav", []byte("source"))
	output := writeFile(t, dir, "output.wav", []byte("result"))

	require.NoError(t, c.Put(input, renderSettings{Gain: -3}, TypeAudioProcessing, output, 0))

	_, ok := c.Get(input, renderSettings{Gain: -6}, TypeAudioProcessing)
	assert.False(t, ok, "different params must miss")

	_, ok = c.Get(input, renderSettings{Gain: -3}, TypeQualityAnalysis)
	assert.False(t, ok, "different type must miss")

	_, ok = c.Get(input, renderSettings{Gain: -3}, TypeAudioProcessing)
	assert.True(t, ok)
}

func TestContentChangeInvalidates(t *testing.T) {
	c := testCache(t, Options{})
	dir := t.TempDir()
	input := writeFile(t, dir, "input.wav", []byte("take one"))
	output := writeFile(t, dir, "output.wav", []byte("result"))
	settings := renderSettings{Gain: 1}

	require.NoError(t, c.Put(input, settings, TypeAudioProcessing, output, 0))
	_, ok := c.Get(input, settings, TypeAudioProcessing)
	require.True(t, ok)

	// Same path, new content: the key derives from content, so the old
	// entry must not be returned.
	require.NoError(t, os.WriteFile(input, []byte("take two"), 0o644))
	_, ok = c.Get(input, settings, TypeAudioProcessing)
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	c := testCache(t, Options{})
	dir := t.TempDir()
	input := writeFile(t, dir, "input.wav", []byte("source"))
	output := writeFile(t, dir, "output.wav", []byte("result"))

	require.NoError(t, c.Put(input, nil, TypeAuditionRendering, output, time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get(input, nil, TypeAuditionRendering)
	assert.False(t, ok, "expired entry must miss")
	assert.Equal(t, int64(0), c.Stats().TotalEntries, "expired entry should be removed")
}

func TestMissingBlobReportsMiss(t *testing.T) {
	c := testCache(t, Options{})
	dir := t.TempDir()
	input := writeFile(t, dir, "input.wav", []byte("source"))
	output := writeFile(t, dir, "output.wav", []byte("result"))

	require.NoError(t, c.Put(input, nil, TypeAudioProcessing, output, 0))
	cached, ok := c.Get(input, nil, TypeAudioProcessing)
	require.True(t, ok)
	require.NoError(t, os.Remove(cached))

	_, ok = c.Get(input, nil, TypeAudioProcessing)
	assert.False(t, ok)
}

func TestEntryCapEviction(t *testing.T) {
	c := testCache(t, Options{MaxEntries: 5})
	dir := t.TempDir()
	output := writeFile(t, dir, "output.wav", []byte("result"))

	for i := 0; i < 12; i++ {
		input := writeFile(t, dir, "input.wav", []byte{byte(i)})
		require.NoError(t, c.Put(input, nil, TypeBatchProcessing, output, 0))
	}

	stats := c.Stats()
	assert.LessOrEqual(t, stats.TotalEntries, int64(5))
	assert.Positive(t, stats.Evictions)
}

func TestSizeCapEviction(t *testing.T) {
	c := testCache(t, Options{MaxSizeMB: 1})
	dir := t.TempDir()
	blob := make([]byte, 300*1024)
	output := writeFile(t, dir, "output.bin", blob)

	for i := 0; i < 6; i++ {
		input := writeFile(t, dir, "input.wav", []byte{byte(i)})
		require.NoError(t, c.Put(input, nil, TypeFormatConversion, output, 0))
	}

	stats := c.Stats()
	assert.LessOrEqual(t, stats.TotalSize, int64(1024*1024))
}

func TestLRUKeepsRecentlyUsed(t *testing.T) {
	c := testCache(t, Options{MaxEntries: 3})
	dir := t.TempDir()
	output := writeFile(t, dir, "output.wav", []byte("result"))

	inputs := make([]string, 4)
	for i := range inputs {
		inputs[i] = writeFile(t, dir, "in"+string(rune('a'+i))+".wav", []byte{byte(i)})
	}
	for _, in := range inputs[:3] {
		require.NoError(t, c.Put(in, nil, TypeAudioProcessing, output, 0))
	}

	// Touch the first entry so it is the most recently used.
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(inputs[0], nil, TypeAudioProcessing)
	require.True(t, ok)

	// The fourth put overflows the cap; the untouched entries go first.
	require.NoError(t, c.Put(inputs[3], nil, TypeAudioProcessing, output, 0))

	_, ok = c.Get(inputs[0], nil, TypeAudioProcessing)
	assert.True(t, ok, "recently used entry should survive eviction")
}

func TestGetOrProcessRunsOnce(t *testing.T) {
	c := testCache(t, Options{})
	dir := t.TempDir()
	input := writeFile(t, dir, "input.wav", []byte("source"))
	output := writeFile(t, dir, "output.wav", []byte("rendered"))

	calls := 0
	process := func() (string, error) {
		calls++
		return output, nil
	}

	path, cached, err := c.GetOrProcess(input, nil, TypeAudioProcessing, process)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, calls)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("rendered"), data)

	_, cached, err = c.GetOrProcess(input, nil, TypeAudioProcessing, process)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, calls, "second lookup must not reprocess")
}

func TestInvalidate(t *testing.T) {
	c := testCache(t, Options{})
	dir := t.TempDir()
	input := writeFile(t, dir, "input.wav", []byte("source"))
	output := writeFile(t, dir, "output.wav", []byte("result"))

	require.NoError(t, c.Put(input, nil, TypeAudioProcessing, output, 0))
	require.NoError(t, c.Invalidate(input, nil, TypeAudioProcessing))

	_, ok := c.Get(input, nil, TypeAudioProcessing)
	assert.False(t, ok)
}

func TestClearByType(t *testing.T) {
	c := testCache(t, Options{})
	dir := t.TempDir()
	input := writeFile(t, dir, "input.wav", []byte("source"))
	output := writeFile(t, dir, "output.wav", []byte("result"))

	require.NoError(t, c.Put(input, nil, TypeAudioProcessing, output, 0))
	require.NoError(t, c.Put(input, nil, TypeQualityAnalysis, output, 0))

	removed, err := c.Clear(TypeAudioProcessing)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := c.Get(input, nil, TypeQualityAnalysis)
	assert.True(t, ok, "other types must survive a scoped clear")

	removed, err = c.Clear("")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, int64(0), c.Stats().TotalEntries)
}

func TestEntriesListing(t *testing.T) {
	c := testCache(t, Options{})
	dir := t.TempDir()
	output := writeFile(t, dir, "output.wav", []byte("result"))

	for i := 0; i < 3; i++ {
		input := writeFile(t, dir, "input.wav", []byte{byte(i)})
		require.NoError(t, c.Put(input, nil, TypeAudioProcessing, output, 0))
	}

	entries, err := c.Entries(TypeAudioProcessing)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, TypeAudioProcessing, e.Type)
		assert.Equal(t, int64(len("result")), e.FileSize)
		assert.FileExists(t, e.FilePath)
	}

	entries, err = c.Entries(TypeQualityAnalysis)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConcurrentGetPut(t *testing.T) {
	c := testCache(t, Options{})
	dir := t.TempDir()
	const workers = 8

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			input := writeFile(t, dir, fmt.Sprintf("input-%d.wav", i), fmt.Appendf(nil, "source %d", i))
			output := writeFile(t, dir, fmt.Sprintf("output-%d.wav", i), fmt.Appendf(nil, "result %d", i))
			settings := renderSettings{Gain: float64(i)}

			assert.NoError(t, c.Put(input, settings, TypeAudioProcessing, output, 0))
			_, ok := c.Get(input, settings, TypeAudioProcessing)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, int64(workers), stats.HitCount)
	assert.Equal(t, int64(workers), stats.TotalEntries)
}

func TestCountersPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	c, err := Open(Options{Dir: dir, Log: log})
	require.NoError(t, err)
	work := t.TempDir()
	input := writeFile(t, work, "input.wav", []byte("source"))
	output := writeFile(t, work, "output.wav", []byte("result"))
	require.NoError(t, c.Put(input, nil, TypeAudioProcessing, output, 0))
	_, ok := c.Get(input, nil, TypeAudioProcessing)
	require.True(t, ok)
	require.NoError(t, c.Close())

	reopened, err := Open(Options{Dir: dir, Log: log})
	require.NoError(t, err)
	defer reopened.Close()

	stats := reopened.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(1), stats.TotalEntries)
	_, ok = reopened.Get(input, nil, TypeAudioProcessing)
	assert.True(t, ok, "entries must survive reopen")
}

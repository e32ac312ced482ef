// ABOUTME: Tests for the asset catalog and decoded cache
// ABOUTME: Covers catalog parsing, fetchers, dedupe, budgets and preload
package assets

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wavBytes builds a 16-bit stereo WAV with frames of silence
func wavBytes(rate, frames int) []byte {
	const channels, bits = 2, 16
	data := make([]byte, frames*channels*bits/8)

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(channels))
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*channels*bits/8))
	binary.Write(&b, binary.LittleEndian, uint16(channels*bits/8))
	binary.Write(&b, binary.LittleEndian, uint16(bits))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

const testCatalog = `
assets:
  - id: click
    url: /sfx/click.wav
    type: sfx
    duration: 0.1
    critical: true
  - id: pad
    url: /ambient/pad.wav
    type: ambient
    duration: 1
  - id: broken
    url: /sfx/broken.mp3
    type: sfx
  - id: theme
    url: /music/theme.wav
    type: music
    bitrate: 320000
    low_url: /music/theme-low.wav
`

type memFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	calls atomic.Int32
	gate  chan struct{}
}

func (m *memFetcher) Fetch(_ context.Context, url string) (io.ReadCloser, error) {
	m.calls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[url]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func testCache(t *testing.T, rate int) (*Cache, *memFetcher) {
	t.Helper()
	catalog, err := ParseCatalog(strings.NewReader(testCatalog))
	require.NoError(t, err)

	fetcher := &memFetcher{files: map[string][]byte{
		"/sfx/click.wav":       wavBytes(100, 10),
		"/ambient/pad.wav":     wavBytes(100, 100),
		"/sfx/broken.mp3":      []byte("not an mp3"),
		"/music/theme.wav":     wavBytes(100, 200),
		"/music/theme-low.wav": wavBytes(100, 50),
	}}
	cache, err := NewCache(CacheConfig{Catalog: catalog, Fetcher: fetcher, SampleRate: rate})
	require.NoError(t, err)
	return cache, fetcher
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, 9, c.Len())

	a, err := c.Get("educational-calm")
	require.NoError(t, err)
	assert.Equal(t, KindMusic, a.Kind)
	assert.Equal(t, "/audio/music/educational-calm.mp3", a.URL)
	assert.Equal(t, "muzyka-tła", a.PolishCategory)
	assert.Equal(t, 180.0, a.DurationSeconds)

	assert.Len(t, c.ByKind(KindSFX), 7)
	assert.Len(t, c.ByKind(KindAmbient), 1)
	assert.Len(t, c.Critical(), 5)
	assert.Equal(t, "brain-region-select", c.All()[0].ID)

	_, err = c.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownAsset)
}

func TestParseCatalogRejectsBadEntries(t *testing.T) {
	_, err := ParseCatalog(strings.NewReader("assets:\n  - id: a\n    type: sfx\n"))
	assert.Error(t, err)

	_, err = ParseCatalog(strings.NewReader("assets:\n  - id: a\n    url: /a.mp3\n    type: jingle\n"))
	assert.Error(t, err)

	dup := "assets:\n  - {id: a, url: /a.mp3, type: sfx}\n  - {id: a, url: /b.mp3, type: sfx}\n"
	_, err = ParseCatalog(strings.NewReader(dup))
	assert.Error(t, err)
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())

	c, err = LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, 9, c.Len())
}

func TestCacheLoadResamples(t *testing.T) {
	cache, fetcher := testCache(t, 200)

	buf, asset, err := cache.Load(context.Background(), "click")
	require.NoError(t, err)
	assert.Equal(t, "click", asset.ID)
	assert.Equal(t, 200, buf.Format.SampleRate)
	assert.Equal(t, 2, buf.Format.Channels)

	_, _, err = cache.Load(context.Background(), "click")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCacheHitMissCallbacks(t *testing.T) {
	catalog, err := ParseCatalog(strings.NewReader(testCatalog))
	require.NoError(t, err)
	var hits, misses []string
	cache, err := NewCache(CacheConfig{
		Catalog:    catalog,
		Fetcher:    &memFetcher{files: map[string][]byte{"/sfx/click.wav": wavBytes(100, 10)}},
		SampleRate: 100,
		OnHit:      func(id string) { hits = append(hits, id) },
		OnMiss:     func(id string) { misses = append(misses, id) },
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := cache.Load(context.Background(), "click")
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"click"}, misses)
	assert.Equal(t, []string{"click", "click"}, hits)
}

func TestCacheSampleRateChangePurges(t *testing.T) {
	cache, fetcher := testCache(t, 100)
	ctx := context.Background()

	_, _, err := cache.Load(ctx, "click")
	require.NoError(t, err)
	cache.SetSampleRate(100)
	assert.Equal(t, 1, cache.Len())

	cache.SetSampleRate(50)
	assert.Equal(t, 0, cache.Len())
	buf, _, err := cache.Load(ctx, "click")
	require.NoError(t, err)
	assert.Equal(t, 50, buf.Format.SampleRate)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestCacheDisabled(t *testing.T) {
	catalog, err := ParseCatalog(strings.NewReader(testCatalog))
	require.NoError(t, err)
	fetcher := &memFetcher{files: map[string][]byte{"/sfx/click.wav": wavBytes(100, 10)}}
	cache, err := NewCache(CacheConfig{Catalog: catalog, Fetcher: fetcher, SampleRate: 100, Disabled: true})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _, err := cache.Load(context.Background(), "click")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Equal(t, 0, cache.Len())
}

func TestCacheErrors(t *testing.T) {
	cache, _ := testCache(t, 100)
	ctx := context.Background()

	_, _, err := cache.Load(ctx, "unknown")
	assert.ErrorIs(t, err, ErrUnknownAsset)

	_, _, err = cache.Load(ctx, "broken")
	assert.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestAssetURLForBitrate(t *testing.T) {
	a := Asset{URL: "/hi.mp3", LowURL: "/lo.mp3", Bitrate: 320000}
	assert.Equal(t, "/hi.mp3", a.URLFor(0))
	assert.Equal(t, "/hi.mp3", a.URLFor(320000))
	assert.Equal(t, "/lo.mp3", a.URLFor(64000))

	a.LowURL = ""
	assert.Equal(t, "/hi.mp3", a.URLFor(64000))
}

func TestCacheBitrateCapSelectsLowVariant(t *testing.T) {
	cache, fetcher := testCache(t, 100)
	ctx := context.Background()

	full, _, err := cache.Load(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, 200, full.Frames())

	cache.SetPolicy(Policy{MaxBitrate: 64000})
	low, _, err := cache.Load(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, 50, low.Frames())
	assert.Equal(t, 2, cache.Len())

	// lifting the cap serves the cached full encoding again
	cache.SetPolicy(Policy{})
	again, _, err := cache.Load(ctx, "theme")
	require.NoError(t, err)
	assert.Same(t, full, again)
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestCacheByteBudgetEvictsOldest(t *testing.T) {
	cache, _ := testCache(t, 100)
	ctx := context.Background()

	// click is 80 bytes of PCM, pad is 800
	_, _, err := cache.Load(ctx, "click")
	require.NoError(t, err)
	_, _, err = cache.Load(ctx, "pad")
	require.NoError(t, err)
	assert.Equal(t, 880, cache.SizeBytes())

	cache.SetPolicy(Policy{MaxBytes: 850})
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 800, cache.SizeBytes())

	_, _, err = cache.Load(ctx, "click")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 80, cache.SizeBytes())
	assert.Equal(t, 850, cache.Policy().MaxBytes)
}

func TestCacheStreamsNonCritical(t *testing.T) {
	cache, fetcher := testCache(t, 100)
	cache.SetPolicy(Policy{StreamNonCritical: true})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := cache.Load(ctx, "pad")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Equal(t, 0, cache.Len())

	_, _, err := cache.Load(ctx, "click")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestConcurrentLoadsShareDecode(t *testing.T) {
	cache, fetcher := testCache(t, 100)
	fetcher.gate = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := cache.Load(context.Background(), "pad")
			assert.NoError(t, err)
		}()
	}
	// let the single in-flight fetch through once
	fetcher.gate <- struct{}{}
	close(fetcher.gate)
	wg.Wait()

	assert.LessOrEqual(t, fetcher.calls.Load(), int32(4))
	assert.Equal(t, 1, cache.Len())
}

func TestPreload(t *testing.T) {
	cache, _ := testCache(t, 100)

	require.NoError(t, cache.Preload(context.Background(), []string{"click", "pad"}, 2))
	assert.Equal(t, 2, cache.Len())
	assert.Positive(t, cache.SizeBytes())

	err := cache.Preload(context.Background(), []string{"click", "broken"}, 1)
	assert.Error(t, err)
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sfx"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sfx", "a.wav"), []byte("x"), 0o644))

	f := FileFetcher{BaseDir: dir}
	rc, err := f.Fetch(context.Background(), "/sfx/a.wav")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "x", string(data))

	_, err = f.Fetch(context.Background(), "/../etc/passwd")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "/sfx/missing.wav")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/static/audio/sfx/a.wav" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("wav"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL + "/static/")
	rc, err := f.Fetch(context.Background(), "audio/sfx/a.wav")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "wav", string(data))

	_, err = f.Fetch(context.Background(), "audio/missing.wav")
	assert.Error(t, err)
}

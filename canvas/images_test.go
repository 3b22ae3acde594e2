package canvas

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageCache_LoadCachesDecodedImage(t *testing.T) {
	assets := newFakeAssets()
	assets.addSolid(t, "a", 4, 3, red)
	cache := NewImageCache(assets)
	ctx := context.Background()

	assert.Nil(t, cache.Peek("a"), "nothing is cached before the first load")

	img, err := cache.Load(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
	assert.Equal(t, red, img.RGBAAt(1, 1))

	again, err := cache.Load(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, img, again)
	assert.Same(t, img, cache.Peek("a"))
	assert.Equal(t, 1, assets.count("a"))
}

func TestImageCache_ConcurrentLoadsShareOneFetch(t *testing.T) {
	assets := newFakeAssets()
	assets.addSolid(t, "a", 2, 2, green)
	assets.started = make(chan string, 2)
	assets.gate = make(chan struct{})
	cache := NewImageCache(assets)

	var wg sync.WaitGroup
	results := make([]*image.RGBA, 2)
	errs := make([]error, 2)
	load := func(i int) {
		defer wg.Done()
		results[i], errs[i] = cache.Load(context.Background(), "a")
	}

	wg.Add(2)
	go load(0)
	<-assets.started
	go load(1)

	// Give the second caller time to join the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(assets.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.NotNil(t, results[0])
	assert.Same(t, results[0], results[1], "both callers observe the same bitmap")
	assert.Equal(t, 1, assets.count("a"), "exactly one fetch and decode")
}

func TestImageCache_CallerCancellationDoesNotAbortFetch(t *testing.T) {
	assets := newFakeAssets()
	assets.addSolid(t, "a", 2, 2, blue)
	assets.started = make(chan string, 1)
	assets.gate = make(chan struct{})
	cache := NewImageCache(assets)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.Load(ctx, "a")
		done <- err
	}()
	<-assets.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(assets.gate)
	require.Eventually(t, func() bool { return cache.Peek("a") != nil }, time.Second, 5*time.Millisecond)
}

func TestImageCache_MissingRecordIsNotAnError(t *testing.T) {
	assets := newFakeAssets()
	cache := NewImageCache(assets)

	img, err := cache.Load(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, img)
	assert.Zero(t, cache.Len())

	img, err = cache.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, img)
}

func TestImageCache_DecodeFailure(t *testing.T) {
	assets := newFakeAssets()
	assets.images["bad"] = []byte("not an image")
	cache := NewImageCache(assets)

	_, err := cache.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Nil(t, cache.Peek("bad"))
}

func TestImageCache_PreloadIsIdempotent(t *testing.T) {
	assets := newFakeAssets()
	for _, id := range []string{"a", "b", "c"} {
		assets.addSolid(t, id, 1, 1, red)
	}
	assets.images["bad"] = []byte("garbage")
	cache := NewImageCache(assets)
	ctx := context.Background()

	cache.Preload(ctx, []string{"a", "b", "a", "", "bad"})
	cache.Preload(ctx, []string{"b", "c", "c"})

	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, assets.count(id), "fetches of %s", id)
		assert.NotNil(t, cache.Peek(id), "%s is cached", id)
	}
	assert.Nil(t, cache.Peek("bad"), "a bad asset does not block the batch")
}

func TestImageCache_EvictAndClearKeepRecords(t *testing.T) {
	assets := newFakeAssets()
	assets.addSolid(t, "a", 1, 1, red)
	assets.addSolid(t, "b", 1, 1, red)
	cache := NewImageCache(assets)
	ctx := context.Background()

	cache.Preload(ctx, []string{"a", "b"})
	require.Equal(t, 2, cache.Len())

	cache.Evict("a")
	assert.Nil(t, cache.Peek("a"))
	assert.NotNil(t, cache.Peek("b"))

	cache.Clear()
	assert.Zero(t, cache.Len())

	img, err := cache.Load(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, img, "record survives eviction")
	assert.Equal(t, 2, assets.count("a"))
}

package canvas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/anthonynsimon/bild/clone"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"hizuke-thumb/core"
)

var (
	// ErrDecode marks an image or font payload that could not be decoded.
	ErrDecode = errors.New("decode failed")
)

// preloadLimit bounds the number of concurrent fetches in Preload.
const preloadLimit = 8

// ImageSource is the slice of the store the image cache reads from.
type ImageSource interface {
	GetImage(ctx context.Context, id string) (*core.ImageRecord, error)
}

// ImageCache memoises decoded images by asset id. Concurrent loads of one
// id share a single fetch and every caller observes the same result. It is
// safe for concurrent use.
type ImageCache struct {
	source ImageSource

	mu      sync.RWMutex
	entries map[string]*image.RGBA

	group singleflight.Group
}

func NewImageCache(source ImageSource) *ImageCache {
	return &ImageCache{
		source:  source,
		entries: make(map[string]*image.RGBA),
	}
}

// Peek returns the decoded image for id if it is cached.
func (c *ImageCache) Peek(id string) *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[id]
}

// Load returns the decoded image for id, fetching and decoding it on a
// miss. A missing record yields (nil, nil). The fetch itself is not bound
// to ctx; ctx only limits how long this caller waits.
func (c *ImageCache) Load(ctx context.Context, id string) (*image.RGBA, error) {
	if id == "" {
		return nil, nil
	}
	if img := c.Peek(id); img != nil {
		return img, nil
	}

	ch := c.group.DoChan(id, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		img, _ := res.Val.(*image.RGBA)
		return img, nil
	}
}

func (c *ImageCache) fetch(ctx context.Context, id string) (*image.RGBA, error) {
	// A flight that settled between Peek and DoChan has already cached it.
	if img := c.Peek(id); img != nil {
		return img, nil
	}

	rec, err := c.source.GetImage(ctx, id)
	if errors.Is(err, core.ErrNotFound) || (err == nil && rec == nil) {
		logrus.WithField("imageId", id).Debug("Image not found")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load image %s: %w", id, err)
	}

	decoded, _, err := image.Decode(bytes.NewReader(rec.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: image %s: %v", ErrDecode, id, err)
	}
	img := clone.AsRGBA(decoded)

	c.mu.Lock()
	c.entries[id] = img
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"imageId": id,
		"width":   img.Rect.Dx(),
		"height":  img.Rect.Dy(),
	}).Debug("Image decoded")
	return img, nil
}

// Preload warms the cache for ids in parallel. Duplicates and empty ids are
// skipped; individual failures are logged and otherwise ignored.
func (c *ImageCache) Preload(ctx context.Context, ids []string) {
	seen := make(map[string]struct{}, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadLimit)

	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c.Peek(id) != nil {
			continue
		}

		id := id
		g.Go(func() error {
			if _, err := c.Load(gctx, id); err != nil {
				logrus.WithFields(logrus.Fields{
					"imageId": id,
					"error":   err,
				}).Debug("Image preload failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Evict drops the decoded entry for id. The stored record is untouched.
func (c *ImageCache) Evict(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Clear drops every decoded entry.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len reports the number of decoded entries.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

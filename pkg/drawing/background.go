package drawing

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"image"
	"strings"
	"sync"

	// register the decoders background images arrive in
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/classboard/classboard/pkg/observability"
)

// ResolvedState is the lifecycle of an asynchronously decoded background.
type ResolvedState int

const (
	BackgroundNotLoaded ResolvedState = iota
	BackgroundLoaded
	BackgroundFailed
)

// ResolvedImage is the decode outcome for a background image. Rendering is
// a pure function of (paths, resolved background); a NotLoaded or Failed
// background simply renders as no background.
type ResolvedImage struct {
	State  ResolvedState
	Width  int
	Height int
	Data   string // the original opaque blob (data URL)
}

// Background is a drawing surface's backdrop: a raster image, a vector
// template, or nothing.
type Background struct {
	ImageData string
	Image     *ResolvedImage
	Vector    *VectorTemplate
}

// IsEmpty reports whether no backdrop is set.
func (b Background) IsEmpty() bool {
	return b.ImageData == "" && b.Vector == nil
}

var errNotDataURL = errors.New("background blob is not a base64 data URL")

// ImageLoader decodes background blobs off the event path and caches the
// result, so every student selecting the same image or preset shares one
// decode.
type ImageLoader struct {
	cache  *lru.Cache[string, *ResolvedImage]
	logger observability.Logger

	mu      sync.Mutex
	pending map[string][]func(*ResolvedImage)
}

// NewImageLoader creates a loader with the given cache capacity.
func NewImageLoader(capacity int, logger observability.Logger) *ImageLoader {
	if capacity <= 0 {
		capacity = 32
	}
	cache, _ := lru.New[string, *ResolvedImage](capacity)
	return &ImageLoader{
		cache:   cache,
		logger:  logger,
		pending: make(map[string][]func(*ResolvedImage)),
	}
}

// Load resolves a background blob asynchronously and invokes done with the
// outcome. A decode failure yields a Failed image, never an error: the
// canvas falls back to rendering without a background. Concurrent loads of
// the same blob coalesce into one decode.
func (il *ImageLoader) Load(data string, done func(*ResolvedImage)) {
	key := blobKey(data)

	if cached, ok := il.cache.Get(key); ok {
		done(cached)
		return
	}

	il.mu.Lock()
	waiters, inflight := il.pending[key]
	il.pending[key] = append(waiters, done)
	il.mu.Unlock()
	if inflight {
		return
	}

	go func() {
		resolved := il.decode(data)
		il.cache.Add(key, resolved)

		il.mu.Lock()
		callbacks := il.pending[key]
		delete(il.pending, key)
		il.mu.Unlock()

		for _, cb := range callbacks {
			cb(resolved)
		}
	}()
}

// Resolve decodes synchronously, bypassing the goroutine but not the
// cache. Used by tests and by callers already off the event path.
func (il *ImageLoader) Resolve(data string) *ResolvedImage {
	key := blobKey(data)
	if cached, ok := il.cache.Get(key); ok {
		return cached
	}
	resolved := il.decode(data)
	il.cache.Add(key, resolved)
	return resolved
}

func (il *ImageLoader) decode(data string) *ResolvedImage {
	raw, err := dataURLBytes(data)
	if err == nil {
		var cfg image.Config
		cfg, _, err = image.DecodeConfig(bytes.NewReader(raw))
		if err == nil {
			return &ResolvedImage{State: BackgroundLoaded, Width: cfg.Width, Height: cfg.Height, Data: data}
		}
	}
	il.logger.Warn("Background image decode failed", map[string]interface{}{
		"error": err.Error(),
		"bytes": len(data),
	})
	return &ResolvedImage{State: BackgroundFailed, Data: data}
}

func dataURLBytes(data string) ([]byte, error) {
	const marker = ";base64,"
	idx := strings.Index(data, marker)
	if !strings.HasPrefix(data, "data:") || idx < 0 {
		return nil, errNotDataURL
	}
	return base64.StdEncoding.DecodeString(data[idx+len(marker):])
}

func blobKey(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// AspectFit computes the centered, aspect-preserving placement of an image
// inside a canvas, matching how every client letterboxes backgrounds.
func AspectFit(canvasWidth, canvasHeight, imageWidth, imageHeight float64) (offsetX, offsetY, drawWidth, drawHeight float64) {
	if imageWidth <= 0 || imageHeight <= 0 || canvasWidth <= 0 || canvasHeight <= 0 {
		return 0, 0, canvasWidth, canvasHeight
	}
	canvasRatio := canvasWidth / canvasHeight
	imageRatio := imageWidth / imageHeight

	drawWidth = canvasWidth
	drawHeight = canvasHeight
	if imageRatio > canvasRatio {
		drawHeight = canvasWidth / imageRatio
	} else {
		drawWidth = canvasHeight * imageRatio
	}
	offsetX = (canvasWidth - drawWidth) / 2
	offsetY = (canvasHeight - drawHeight) / 2
	return offsetX, offsetY, drawWidth, drawHeight
}

package drawing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classboard/classboard/pkg/observability"
)

func pngDataURL(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestImageLoaderDecodesDataURL(t *testing.T) {
	loader := NewImageLoader(8, observability.NewNoopLogger())

	resolved := loader.Resolve(pngDataURL(t, 40, 30))
	require.Equal(t, BackgroundLoaded, resolved.State)
	assert.Equal(t, 40, resolved.Width)
	assert.Equal(t, 30, resolved.Height)
}

func TestImageLoaderFailureIsNotFatal(t *testing.T) {
	loader := NewImageLoader(8, observability.NewNoopLogger())

	tests := []struct {
		name string
		blob string
	}{
		{"not a data url", "http://example.com/img.png"},
		{"bad base64", "data:image/png;base64,!!!!"},
		{"garbage bytes", "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("nope"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := loader.Resolve(tt.blob)
			assert.Equal(t, BackgroundFailed, resolved.State)
		})
	}
}

func TestImageLoaderSharesDecodes(t *testing.T) {
	loader := NewImageLoader(8, observability.NewNoopLogger())
	blob := pngDataURL(t, 10, 10)

	first := loader.Resolve(blob)
	second := loader.Resolve(blob)
	assert.Same(t, first, second, "same blob must share one decode")
}

func TestImageLoaderAsyncCallback(t *testing.T) {
	loader := NewImageLoader(8, observability.NewNoopLogger())
	blob := pngDataURL(t, 16, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	loader.Load(blob, func(resolved *ResolvedImage) {
		defer wg.Done()
		assert.Equal(t, BackgroundLoaded, resolved.State)
		assert.Equal(t, 16, resolved.Width)
	})
	wg.Wait()
}

func TestAspectFit(t *testing.T) {
	tests := []struct {
		name                       string
		cw, ch, iw, ih             float64
		wantX, wantY, wantW, wantH float64
	}{
		{"wider than canvas", 800, 600, 1600, 600, 0, 150, 800, 300},
		{"taller than canvas", 800, 600, 400, 600, 200, 0, 400, 600},
		{"exact fit", 800, 600, 800, 600, 0, 0, 800, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, w, h := AspectFit(tt.cw, tt.ch, tt.iw, tt.ih)
			assert.InDelta(t, tt.wantX, x, 1e-9)
			assert.InDelta(t, tt.wantY, y, 1e-9)
			assert.InDelta(t, tt.wantW, w, 1e-9)
			assert.InDelta(t, tt.wantH, h, 1e-9)
		})
	}
}

func TestPresetTemplatesAreSharedByReference(t *testing.T) {
	a, ok := PresetTemplate(PresetGrid)
	require.True(t, ok)
	b, _ := PresetTemplate(PresetGrid)
	assert.Same(t, a, b)

	_, ok = PresetTemplate("no-such-preset")
	assert.False(t, ok)
}

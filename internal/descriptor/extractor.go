package descriptor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	apperrors "go-photo-search/internal/errors"
)

// Descriptor is everything the scorer needs about one image.
type Descriptor struct {
	Grid      *PixelGrid
	Histogram LuminanceHistogram
}

// DefaultMaxPixels caps the declared width*height of an image before its
// raster is allocated.
const DefaultMaxPixels int64 = 50_000_000

// DecodeImage decodes PNG, JPEG, GIF, WebP or BMP bytes. Anything else, and
// images without pixels, fail with a decode error.
func DecodeImage(data []byte) (image.Image, string, error) {
	return decodeImage(data, DefaultMaxPixels)
}

func decodeImage(data []byte, maxPixels int64) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", apperrors.NewDecodeError("empty image data", nil)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperrors.NewDecodeError("unsupported or corrupt image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, apperrors.NewDecodeError(fmt.Sprintf("image has no pixels (%dx%d)", cfg.Width, cfg.Height), nil)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, format, apperrors.NewDecodeError(
			fmt.Sprintf("image too large (%dx%d exceeds %d pixels)", cfg.Width, cfg.Height, maxPixels), nil)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperrors.NewDecodeError("unsupported or corrupt image", err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, format, apperrors.NewDecodeError(fmt.Sprintf("image has no pixels (%dx%d)", b.Dx(), b.Dy()), nil)
	}
	return img, format, nil
}

// DecodeToGrid decodes data and resamples it into a freshly allocated grid.
func DecodeToGrid(data []byte) (*PixelGrid, error) {
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	grid := NewPixelGrid()
	Resample(img, grid)
	return grid, nil
}

// FromImage builds a descriptor from an already decoded image.
func FromImage(img image.Image) *Descriptor {
	grid := NewPixelGrid()
	Resample(img, grid)
	return &Descriptor{Grid: grid, Histogram: ToHistogram(grid)}
}

// Extractor builds descriptors while recycling grid buffers. A grid handed
// out by Extract belongs to its caller until Release; concurrent callers
// never share one.
type Extractor struct {
	gridPool  sync.Pool
	maxPixels int64
}

// NewExtractor creates an extractor with an empty buffer pool. Images larger
// than maxPixels are rejected before decoding; zero or less means
// DefaultMaxPixels.
func NewExtractor(maxPixels int64) *Extractor {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Extractor{
		maxPixels: maxPixels,
		gridPool: sync.Pool{
			New: func() interface{} {
				return NewPixelGrid()
			},
		},
	}
}

// Extract decodes data and derives its grid and histogram.
func (e *Extractor) Extract(data []byte) (*Descriptor, error) {
	img, _, err := decodeImage(data, e.maxPixels)
	if err != nil {
		return nil, err
	}
	grid := e.gridPool.Get().(*PixelGrid)
	Resample(img, grid)
	return &Descriptor{Grid: grid, Histogram: ToHistogram(grid)}, nil
}

// Release returns the descriptor's grid to the pool. The descriptor must not
// be used afterwards.
func (e *Extractor) Release(d *Descriptor) {
	if d == nil || d.Grid == nil {
		return
	}
	e.gridPool.Put(d.Grid)
	d.Grid = nil
}

package descriptor

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	apperrors "go-photo-search/internal/errors"
)

func createTestImage(width, height int, fillColor color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fillColor)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

// withDimensions rewrites the IHDR of a PNG so it claims width x height.
func withDimensions(t *testing.T, data []byte, width, height uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	if string(out[12:16]) != "IHDR" {
		t.Fatalf("unexpected first chunk %q", out[12:16])
	}
	binary.BigEndian.PutUint32(out[16:20], width)
	binary.BigEndian.PutUint32(out[20:24], height)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func histogramSum(h LuminanceHistogram) float64 {
	var sum float64
	for _, v := range h {
		sum += v
	}
	return sum
}

func TestDecodeToGrid_FixedSize(t *testing.T) {
	sizes := [][2]int{{100, 100}, {400, 300}, {7, 1200}, {1, 1}}

	for _, size := range sizes {
		data := encodePNG(t, createTestImage(size[0], size[1], color.RGBA{10, 20, 30, 255}))
		grid, err := DecodeToGrid(data)
		if err != nil {
			t.Fatalf("DecodeToGrid(%dx%d) error = %v", size[0], size[1], err)
		}
		if grid.Width != GridSize || grid.Height != GridSize {
			t.Errorf("grid for %dx%d is %dx%d, want %dx%d", size[0], size[1], grid.Width, grid.Height, GridSize, GridSize)
		}
		if len(grid.Pix) != GridSize*GridSize*4 {
			t.Errorf("len(Pix) = %d", len(grid.Pix))
		}
	}
}

func TestDecodeToGrid_UniformColorSurvivesResampling(t *testing.T) {
	data := encodePNG(t, createTestImage(400, 300, color.RGBA{255, 0, 0, 255}))
	grid, err := DecodeToGrid(data)
	if err != nil {
		t.Fatalf("DecodeToGrid() error = %v", err)
	}
	for i := 0; i < grid.Len(); i++ {
		r, g, b := grid.RGB(i)
		if r != 255 || g != 0 || b != 0 {
			t.Fatalf("pixel %d = (%d,%d,%d), want pure red", i, r, g, b)
		}
	}
}

func TestDecodeToGrid_Formats(t *testing.T) {
	src := createTestImage(64, 48, color.RGBA{120, 60, 200, 255})

	var jpegBuf, gifBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, src, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	if err := gif.Encode(&gifBuf, src, nil); err != nil {
		t.Fatalf("gif encode: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"png", encodePNG(t, src)},
		{"jpeg", jpegBuf.Bytes()},
		{"gif", gifBuf.Bytes()},
		{"webp lossy", readFixture(t, "blue-purple-pink.lossy.webp")},
		{"webp lossless", readFixture(t, "tux.lossless.webp")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid, err := DecodeToGrid(tt.data)
			if err != nil {
				t.Fatalf("DecodeToGrid(%s) error = %v", tt.name, err)
			}
			if grid.Width != GridSize || grid.Height != GridSize {
				t.Errorf("grid = %dx%d, want %dx%d", grid.Width, grid.Height, GridSize, GridSize)
			}
		})
	}
}

func TestDecodeToGrid_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("definitely not an image")},
		{"truncated png", encodePNG(t, createTestImage(10, 10, color.RGBA{1, 2, 3, 255}))[:20]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeToGrid(tt.data)
			if err == nil {
				t.Fatal("expected decode error")
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeDecode) {
				t.Errorf("expected decode error type, got %v", err)
			}
		})
	}
}

func TestDecodeImage_WebPFormat(t *testing.T) {
	_, format, err := DecodeImage(readFixture(t, "blue-purple-pink.lossy.webp"))
	if err != nil {
		t.Fatalf("DecodeImage() error = %v", err)
	}
	if format != "webp" {
		t.Errorf("format = %q, want webp", format)
	}
}

func TestDecodeToGrid_RejectsOversizedImages(t *testing.T) {
	small := encodePNG(t, createTestImage(8, 8, color.RGBA{1, 2, 3, 255}))

	tests := []struct {
		name          string
		width, height uint32
	}{
		{"12000 square", 12000, 12000},
		{"30000 square", 30000, 30000},
		{"one long row", 60_000_000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeToGrid(withDimensions(t, small, tt.width, tt.height))
			if err == nil {
				t.Fatal("expected oversized image to be rejected")
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeDecode) {
				t.Errorf("expected decode error type, got %v", err)
			}
		})
	}
}

func TestExtractor_PixelCap(t *testing.T) {
	data := encodePNG(t, createTestImage(64, 48, color.RGBA{9, 9, 9, 255}))

	if _, err := NewExtractor(64 * 47).Extract(data); !apperrors.IsType(err, apperrors.ErrorTypeDecode) {
		t.Errorf("Extract() above cap error = %v, want decode error", err)
	}

	d, err := NewExtractor(64 * 48).Extract(data)
	if err != nil {
		t.Fatalf("Extract() at cap error = %v", err)
	}
	if d.Grid == nil {
		t.Error("expected a grid")
	}
}

func TestResample_StraightAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.SetNRGBA(x, y, color.NRGBA{255, 0, 0, 128})
		}
	}

	grid := NewPixelGrid()
	Resample(img, grid)

	for i := 0; i < grid.Len(); i++ {
		r, g, b := grid.RGB(i)
		if r < 254 || g != 0 || b != 0 {
			t.Fatalf("pixel %d = (%d,%d,%d), want red with straight alpha", i, r, g, b)
		}
		if a := grid.Pix[i*4+3]; a < 127 || a > 129 {
			t.Fatalf("pixel %d alpha = %d, want about 128", i, a)
		}
	}
}

func TestLuminance(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    int
	}{
		{0, 0, 0, 0},
		{255, 255, 255, 255},
		{255, 0, 0, 76},  // 76.245
		{0, 255, 0, 150}, // 149.685
		{0, 0, 255, 29},  // 29.07
		{128, 128, 128, 128},
	}
	for _, tt := range tests {
		if got := Luminance(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("Luminance(%d,%d,%d) = %d, want %d", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}

func TestToHistogram_Normalized(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			v := uint8((x * 255) / 99)
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	d := FromImage(img)

	if sum := histogramSum(d.Histogram); math.Abs(sum-1) > 1e-9 {
		t.Errorf("histogram sum = %v, want 1", sum)
	}
	for i, v := range d.Histogram {
		if v < 0 {
			t.Fatalf("bin %d negative: %v", i, v)
		}
	}
}

func TestToHistogram_SingleBin(t *testing.T) {
	d := FromImage(createTestImage(100, 100, color.RGBA{255, 255, 255, 255}))
	if d.Histogram[255] != 1 {
		t.Errorf("bin 255 = %v, want 1", d.Histogram[255])
	}
	if d.Histogram[0] != 0 {
		t.Errorf("bin 0 = %v, want 0", d.Histogram[0])
	}
}

func TestToHistogram_EmptyGrid(t *testing.T) {
	h := ToHistogram(&PixelGrid{})
	if histogramSum(h) != 0 {
		t.Error("expected empty histogram for empty grid")
	}
}

func TestExtractor_ReleaseAndReuse(t *testing.T) {
	e := NewExtractor(0)
	red := encodePNG(t, createTestImage(50, 50, color.RGBA{255, 0, 0, 255}))
	blue := encodePNG(t, createTestImage(50, 50, color.RGBA{0, 0, 255, 255}))

	first, err := e.Extract(red)
	if err != nil {
		t.Fatalf("Extract(red) error = %v", err)
	}
	e.Release(first)
	if first.Grid != nil {
		t.Error("Release should detach the grid")
	}

	second, err := e.Extract(blue)
	if err != nil {
		t.Fatalf("Extract(blue) error = %v", err)
	}
	defer e.Release(second)

	r, g, b := second.Grid.RGB(0)
	if r != 0 || g != 0 || b != 255 {
		t.Errorf("reused grid pixel = (%d,%d,%d), want pure blue", r, g, b)
	}
	if second.Histogram[Luminance(0, 0, 255)] != 1 {
		t.Error("histogram should reflect the second image only")
	}

	e.Release(nil)
}

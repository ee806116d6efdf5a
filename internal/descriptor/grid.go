// Package descriptor turns arbitrary images into fixed-size descriptors that
// can be compared pixel for pixel: a resampled RGBA grid and a normalized
// luminance histogram.
package descriptor

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/floats"
)

// GridSize is the width and height every image is resampled to before
// scoring. All grids share it, so comparisons are always aligned.
const GridSize = 100

// HistogramBins is the number of luminance levels.
const HistogramBins = 256

// PixelGrid is a GridSize x GridSize raster of 8-bit RGBA samples.
// Pix holds 4 bytes per pixel in row-major order.
type PixelGrid struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewPixelGrid allocates an empty grid of the standard size.
func NewPixelGrid() *PixelGrid {
	return &PixelGrid{
		Width:  GridSize,
		Height: GridSize,
		Pix:    make([]uint8, GridSize*GridSize*4),
	}
}

// Len returns the number of pixels in the grid.
func (g *PixelGrid) Len() int {
	return g.Width * g.Height
}

// RGB returns the colour channels of pixel i.
func (g *PixelGrid) RGB(i int) (r, gr, b uint8) {
	o := i * 4
	return g.Pix[o], g.Pix[o+1], g.Pix[o+2]
}

// LuminanceHistogram holds the relative frequency of each grayscale level.
type LuminanceHistogram [HistogramBins]float64

// Resample scales img to the grid size with bilinear interpolation and
// writes the samples into dst. Samples are stored straight, not
// alpha-premultiplied, so translucent pixels keep their colour.
func Resample(img image.Image, dst *PixelGrid) {
	scaled := resize.Resize(uint(dst.Width), uint(dst.Height), img, resize.Bilinear)
	bounds := scaled.Bounds()

	i := 0
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			c := color.NRGBAModel.Convert(scaled.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			dst.Pix[i] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = c.A
			i += 4
		}
	}
}

// Luminance returns the rounded grayscale level of an RGB sample.
func Luminance(r, g, b uint8) int {
	gray := math.Round(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
	if gray < 0 {
		return 0
	}
	if gray > 255 {
		return 255
	}
	return int(gray)
}

// ToHistogram counts the luminance of every pixel and normalizes the counts
// by the pixel total, so a non-empty grid yields bins summing to one.
func ToHistogram(grid *PixelGrid) LuminanceHistogram {
	var hist LuminanceHistogram
	n := grid.Len()
	if n == 0 {
		return hist
	}
	for i := 0; i < n; i++ {
		r, g, b := grid.RGB(i)
		hist[Luminance(r, g, b)]++
	}
	floats.Scale(1/float64(n), hist[:])
	return hist
}

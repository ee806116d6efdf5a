// Package similarity scores how alike two image descriptors are.
package similarity

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"go-photo-search/internal/descriptor"
	"go-photo-search/pkg/models"
)

// maxColorDistance is the largest possible Euclidean distance between two
// 8-bit RGB samples.
var maxColorDistance = 255 * math.Sqrt(3)

// Weights balances the two similarity terms.
type Weights struct {
	Histogram float64
	Color     float64
}

// DefaultWeights favours global colour distribution over per-pixel colour,
// which is fragile to framing and crop differences after resampling.
func DefaultWeights() Weights {
	return Weights{Histogram: 0.6, Color: 0.4}
}

// HistogramSimilarity is the Pearson correlation between two luminance
// histograms, with negative correlation clamped to zero.
func HistogramSimilarity(h1, h2 *descriptor.LuminanceHistogram) float64 {
	const n = float64(descriptor.HistogramBins)

	sum1 := floats.Sum(h1[:])
	sum2 := floats.Sum(h2[:])
	sq1 := floats.Dot(h1[:], h1[:])
	sq2 := floats.Dot(h2[:], h2[:])
	correlation := floats.Dot(h1[:], h2[:])

	num := correlation - (sum1*sum2)/n
	den := math.Sqrt((sq1 - (sum1*sum1)/n) * (sq2 - (sum2*sum2)/n))
	if den == 0 || math.IsNaN(den) {
		return 0
	}
	return clamp01(num / den)
}

// ColorSimilarity is one minus the mean per-pixel RGB distance, normalized
// by the largest possible distance. Both grids must have the same size.
func ColorSimilarity(g1, g2 *descriptor.PixelGrid) float64 {
	n := g1.Len()
	if n == 0 || n != g2.Len() {
		panic("similarity: grids must be non-empty and equally sized")
	}

	var diff float64
	for i := 0; i < n; i++ {
		r1, gr1, b1 := g1.RGB(i)
		r2, gr2, b2 := g2.RGB(i)
		dr := float64(r1) - float64(r2)
		dg := float64(gr1) - float64(gr2)
		db := float64(b1) - float64(b2)
		diff += math.Sqrt(dr*dr + dg*dg + db*db)
	}
	return clamp01(1 - (diff/float64(n))/maxColorDistance)
}

// Combine weights the two terms into one score.
func (w Weights) Combine(histogram, color float64) float64 {
	return w.Histogram*histogram + w.Color*color
}

// Breakdown scores a pair and reports both terms alongside the result.
func Breakdown(a, b *descriptor.Descriptor, w Weights) models.ScoreBreakdown {
	h := HistogramSimilarity(&a.Histogram, &b.Histogram)
	c := ColorSimilarity(a.Grid, b.Grid)
	return models.ScoreBreakdown{
		Histogram: h,
		Color:     c,
		Combined:  w.Combine(h, c),
	}
}

// Score returns the combined similarity of two descriptors.
func Score(a, b *descriptor.Descriptor, w Weights) float64 {
	return Breakdown(a, b, w).Combined
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

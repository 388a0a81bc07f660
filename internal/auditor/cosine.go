package auditor

import (
	"context"
	"math"
	"strings"
)

// #region cosine
// Cosine scores deviation as cosine distance, 1 - cos(origin, candidate).
// Identical directions score 0 and orthogonal ones score 1.
type Cosine struct{}

// Score implements Auditor.
func (Cosine) Score(ctx context.Context, origin, candidate Representation) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return CosineDistance(origin, candidate)
}

// CosineDistance returns 1 - cosine similarity, clamped at 0. A zero vector
// has no direction and scores 1.
func CosineDistance(a, b Representation) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 1, nil
	}
	d := 1 - dot/(math.Sqrt(magA)*math.Sqrt(magB))
	if d < 0 {
		d = 0
	}
	return d, nil
}

// #endregion cosine

// #region dissonance
// DissonanceMarkers are phrases that signal stylistic drift regardless of
// semantic content.
var DissonanceMarkers = []string{
	"i hope this helps",
	"as an ai",
	"emotional appeal",
	"trust me",
}

// Dissonance returns 0.2 per marker found in text, capped at 1.
func Dissonance(text string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, m := range DissonanceMarkers {
		if strings.Contains(lower, m) {
			score += 0.2
		}
	}
	return math.Min(score, 1)
}

// #endregion dissonance

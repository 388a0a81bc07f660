package auditor

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// #region hash-embedder
// DefaultDim is the dimension of HashEmbedder vectors.
const DefaultDim = 64

// HashEmbedder is a deterministic, dependency-free Resolver. Each rune at
// position i increments bucket (rune + 31·i) mod Dim; the vector is then
// L2-normalized.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder returns an embedder with DefaultDim buckets.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dim: DefaultDim}
}

// Resolve embeds text. Blank text is unresolvable.
func (h *HashEmbedder) Resolve(ctx context.Context, text string) (Representation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: blank text", ErrUnresolvable)
	}
	return h.Embed(text), nil
}

// Embed computes the normalized bucket vector for text.
func (h *HashEmbedder) Embed(text string) Representation {
	dim := h.Dim
	if dim <= 0 {
		dim = DefaultDim
	}
	vec := make(Representation, dim)
	i := 0
	for _, r := range text {
		vec[(int(r)+i*31)%dim] += 1
		i++
	}
	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	if sumSq == 0 {
		return vec
	}
	norm := math.Sqrt(sumSq)
	for j := range vec {
		vec[j] /= norm
	}
	return vec
}

// #endregion hash-embedder

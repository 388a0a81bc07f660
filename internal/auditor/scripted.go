package auditor

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
)

// #region scripted
// Scripted is a Resolver and Auditor whose deviation scores are fixed per
// text. Unscripted texts fall back to HashEmbedder and Cosine. Replay suites
// and tests use it to pin exact scores.
type Scripted struct {
	mu       sync.RWMutex
	embedder *HashEmbedder
	fallback Auditor
	scores   map[string]float64
	failures map[string]error
}

// NewScripted creates an empty script.
func NewScripted() *Scripted {
	return &Scripted{
		embedder: NewHashEmbedder(),
		fallback: Cosine{},
		scores:   make(map[string]float64),
		failures: make(map[string]error),
	}
}

// Set pins the deviation reported for candidates whose payload is text.
func (s *Scripted) Set(text string, score float64) {
	key := repKey(s.embedder.Embed(text))
	s.mu.Lock()
	s.scores[key] = score
	s.mu.Unlock()
}

// Fail makes resolution of text return err.
func (s *Scripted) Fail(text string, err error) {
	s.mu.Lock()
	s.failures[text] = err
	s.mu.Unlock()
}

// Resolve implements Resolver.
func (s *Scripted) Resolve(ctx context.Context, text string) (Representation, error) {
	s.mu.RLock()
	err := s.failures[text]
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return s.embedder.Resolve(ctx, text)
}

// Score implements Auditor.
func (s *Scripted) Score(ctx context.Context, origin, candidate Representation) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	score, ok := s.scores[repKey(candidate)]
	s.mu.RUnlock()
	if ok {
		return score, nil
	}
	return s.fallback.Score(ctx, origin, candidate)
}

func repKey(r Representation) string {
	buf := make([]byte, 8*len(r))
	for i, v := range r {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return string(buf)
}

// #endregion scripted

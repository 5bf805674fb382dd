package embedding

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:[.'’][\p{L}\p{N}]+)*`)

// HashEmbedder is a deterministic local embedder using the hashing trick:
// each lower-cased token adds ±1 to the bucket its hash selects, and the
// result is L2-normalized. Needs no network and no corpus preparation.
type HashEmbedder struct {
	dimension int
	model     string
}

// NewHashEmbedder creates a HashEmbedder producing vectors of the given dimension.
// The model identity is hash-<dimension>, so changing the dimension re-embeds every bar.
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dimension: dimension, model: fmt.Sprintf("hash-%d", dimension)}
}

func (e *HashEmbedder) Model() string { return e.model }

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float64, e.dimension)
	for _, tok := range tokenize(text) {
		h := xxhash.Sum64String(tok)
		idx := int(h % uint64(e.dimension))
		if h>>63 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, e.dimension)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

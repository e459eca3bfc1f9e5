package embeddings

import (
	"context"
	"crypto/sha1"
	"strconv"
	"strings"
	"unicode"

	"github.com/0x5457/code-index/internal/constants"
)

// LocalEmbedder hashes identifier-like tokens into a fixed-size vector. It
// needs no network and is deterministic, which makes it the default for
// offline indexing and tests.
type LocalEmbedder struct {
	dim int
}

func NewLocal(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = constants.DefaultDimensions
	}
	return &LocalEmbedder{dim: dim}
}

func (e *LocalEmbedder) ModelName() string { return constants.DefaultLocalModel }

func (e *LocalEmbedder) Dimensions() int { return e.dim }

func (e *LocalEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vecs[i] = hashToVector(t, e.dim)
	}
	return vecs, nil
}

func (e *LocalEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hashToVector(text, e.dim), nil
}

// hashToVector sums one signed hash projection per token, so texts sharing
// tokens land near each other.
func hashToVector(s string, dim int) []float32 {
	vec := make([]float32, dim)
	tokens := tokenize(s)
	if len(tokens) == 0 {
		tokens = []string{s}
	}
	for _, tok := range tokens {
		var h [sha1.Size]byte
		for i := 0; i < dim; i++ {
			// one fresh digest per block of sha1.Size dimensions
			if i%sha1.Size == 0 {
				h = sha1.Sum([]byte(tok + "#" + strconv.Itoa(i/sha1.Size)))
			}
			vec[i] += float32(int8(h[i%sha1.Size])) / 127.0
		}
	}
	l2normalize(vec)
	return vec
}

// tokenize splits on non-alphanumerics and camelCase boundaries, lowercased.
func tokenize(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	var prev rune
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			cur = append(cur, r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return out
}

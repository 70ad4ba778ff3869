package llmclient

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Stub is a deterministic Backend used by tests and the `demo` CLI
// subcommand. It never calls a network service: Embed hashes the input text
// into a unit vector, and Complete applies a small set of canned rules so
// scripted scenarios (spec §8 S1-S6) are reproducible.
type Stub struct {
	dim       int
	responses map[string]string
}

// NewStub builds a Stub with the given embedding dimensionality (spec §6
// recommends 384 to match common sentence-embedding models). Responses maps
// a substring of the prompt's User field to a canned completion; when several
// keys match, the lexically first key wins.
func NewStub(dim int, responses map[string]string) *Stub {
	if dim <= 0 {
		dim = 384
	}
	return &Stub{dim: dim, responses: responses}
}

// Dimension returns the configured embedding length.
func (s *Stub) Dimension() int { return s.dim }

// Complete returns the canned response for the lexically first key that is a
// substring of the prompt's User field, or a generic acknowledgement otherwise.
func (s *Stub) Complete(_ context.Context, prompt Prompt) (string, error) {
	keys := make([]string, 0, len(s.responses))
	for key := range s.responses {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if strings.Contains(prompt.User, key) {
			return s.responses[key], nil
		}
	}
	return fmt.Sprintf("ack: %s", prompt.User), nil
}

// Embed deterministically derives a unit-length vector from text so that
// identical or near-identical goals hash to similar (cosine-close) vectors
// when they share tokens.
func (s *Stub) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.dim)
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		tokens = []string{""}
	}
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		for i := 0; i < s.dim; i++ {
			b := sum[i%len(sum)]
			shift := binary.LittleEndian.Uint16(rotate(sum[:], i))
			vec[i] += float32(b) - float32(shift%256)/2
		}
	}
	normalize(vec)
	return vec, nil
}

func rotate(b []byte, n int) []byte {
	n %= len(b)
	if n < 0 {
		n += len(b)
	}
	return append(append([]byte{}, b[n:]...), b[:n]...)[:2]
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// Package ids generates short semantic transaction identifiers such as
// "20261015-k3x9qa-04f2c1": the transaction date, a suffix of the provider id
// (or a merchant hash for manual entries) and a random component.
package ids

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"budgee-sync/src/store"
)

const (
	suffixLen          = 6
	DefaultBatchSize   = 8
	DefaultMaxAttempts = 5
)

var ErrExhausted = errors.New("semantic id candidates exhausted")

// Seed carries the fields an identifier is derived from.
type Seed struct {
	Date         time.Time
	ExternalID   string
	MerchantName string
}

type Generator struct {
	checker     store.SemanticIDChecker
	batchSize   int
	maxAttempts int
	random      io.Reader
}

type Option func(*Generator)

func WithBatchSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithRandom replaces the entropy source.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.random = r
	}
}

func NewGenerator(checker store.SemanticIDChecker, opts ...Option) *Generator {
	g := &Generator{
		checker:     checker,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		random:      rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns one unused identifier per seed, in seed order. Each round
// proposes batchSize candidates for every seed still unassigned, asks the store
// which are taken, and keeps the first free candidate per seed. Identifiers are
// also unique within the returned slice.
func (g *Generator) Generate(ctx context.Context, seeds []Seed) ([]string, error) {
	out := make([]string, len(seeds))
	claimed := make(map[string]struct{}, len(seeds))
	remaining := len(seeds)

	for attempt := 0; attempt < g.maxAttempts && remaining > 0; attempt++ {
		candidates := make([][]string, len(seeds))
		var all []string
		for i, seed := range seeds {
			if out[i] != "" {
				continue
			}
			prefix := Prefix(seed)
			for j := 0; j < g.batchSize; j++ {
				c, err := g.candidate(prefix)
				if err != nil {
					return nil, err
				}
				candidates[i] = append(candidates[i], c)
				all = append(all, c)
			}
		}

		taken, err := g.checker.ExistingSemanticIDs(ctx, all)
		if err != nil {
			return nil, fmt.Errorf("check semantic ids: %w", err)
		}
		used := make(map[string]struct{}, len(taken))
		for _, id := range taken {
			used[id] = struct{}{}
		}

		for i := range seeds {
			if out[i] != "" {
				continue
			}
			for _, c := range candidates[i] {
				if _, ok := used[c]; ok {
					continue
				}
				if _, ok := claimed[c]; ok {
					continue
				}
				out[i] = c
				claimed[c] = struct{}{}
				remaining--
				break
			}
		}
	}

	if remaining > 0 {
		return nil, fmt.Errorf("%w: %d of %d unassigned after %d attempts", ErrExhausted, remaining, len(seeds), g.maxAttempts)
	}
	return out, nil
}

// GenerateOne is Generate for a single seed.
func (g *Generator) GenerateOne(ctx context.Context, seed Seed) (string, error) {
	out, err := g.Generate(ctx, []Seed{seed})
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// Prefix is the deterministic part of an identifier.
func Prefix(seed Seed) string {
	date := seed.Date.UTC().Format("20060102")
	return date + "-" + suffix(seed)
}

func suffix(seed Seed) string {
	ext := alnum(seed.ExternalID)
	if ext != "" {
		if len(ext) > suffixLen {
			ext = ext[len(ext)-suffixLen:]
		}
		return ext
	}
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(seed.MerchantName))))
	return hex.EncodeToString(sum[:])[:suffixLen]
}

func (g *Generator) candidate(prefix string) (string, error) {
	var b [3]byte
	if _, err := io.ReadFull(g.random, b[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return prefix + "-" + hex.EncodeToString(b[:]), nil
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Package chunker splits raw text into bounded, overlap-aware passages.
package chunker

import (
	"regexp"
	"strings"
)

const (
	// DefaultMaxSize is the soft cap on chunk length in bytes.
	DefaultMaxSize = 800
	// DefaultOverlap is how many trailing sentences seed the next window.
	DefaultOverlap = 2

	// minInputLen is the length below which input is returned whole.
	minInputLen = 50
	// minChunkLen filters out noise chunks after splitting.
	minChunkLen = 20
)

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+`)

// Chunker performs deterministic sentence-based segmentation.
type Chunker struct {
	maxSize int
	overlap int
}

// New creates a chunker. Non-positive arguments fall back to defaults.
func New(maxSize, overlap int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}
}

// Chunk splits text into passages of at most maxSize bytes, seeding each
// window with the last overlap sentences of the previous one. Short or
// unpunctuated input is returned as a single passage; empty input yields
// nil. Same input always yields the same output.
func (c *Chunker) Chunk(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) < minInputLen || !strings.ContainsAny(trimmed, ".!?") {
		return []string{trimmed}
	}

	sentences := sentenceRe.FindAllString(trimmed, -1)
	if len(sentences) == 0 {
		return []string{trimmed}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}

	var chunks []string
	var window []string
	winLen := 0
	fresh := 0 // sentences added since the last overlap seed

	for _, s := range sentences {
		// +1 for the joining space
		if fresh > 0 && winLen+len(s)+1 > c.maxSize {
			chunks = append(chunks, strings.Join(window, " "))

			seed := window
			if len(seed) > c.overlap {
				seed = seed[len(seed)-c.overlap:]
			}
			// Shrink the seed until the incoming sentence fits, so overlap
			// never pushes a window past maxSize. A sentence that alone
			// exceeds maxSize ends up in a window of its own.
			for len(seed) > 0 && joinedLen(seed)+1+len(s) > c.maxSize {
				seed = seed[1:]
			}
			window = append([]string(nil), seed...)
			winLen = joinedLen(window)
			fresh = 0
		}
		window = append(window, s)
		if winLen > 0 {
			winLen++
		}
		winLen += len(s)
		fresh++
	}
	if fresh > 0 {
		chunks = append(chunks, strings.Join(window, " "))
	}

	// Drop sub-minimal chunks as noise.
	kept := chunks[:0]
	for _, ch := range chunks {
		if len(ch) > minChunkLen {
			kept = append(kept, ch)
		}
	}
	return kept
}

func joinedLen(parts []string) int {
	n := 0
	for i, p := range parts {
		if i > 0 {
			n++
		}
		n += len(p)
	}
	return n
}

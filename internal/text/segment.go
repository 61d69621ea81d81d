// Package text splits request text into the segments the tone engine renders
// one chunk at a time.
package text

import (
	"strings"
	"unicode/utf8"
)

// Segments splits s at sentence terminators (., !, ?) and line breaks, then
// packs consecutive sentences into segments of at most maxRunes runes.
// A single sentence longer than maxRunes is kept whole. maxRunes <= 0
// disables packing and returns one segment per sentence. Whitespace-only
// input yields no segments.
func Segments(s string, maxRunes int) []string {
	sentences := splitSentences(s)
	if maxRunes <= 0 || len(sentences) <= 1 {
		return sentences
	}

	var (
		out     []string
		current strings.Builder
		n       int
	)
	for _, sentence := range sentences {
		size := utf8.RuneCountInString(sentence)
		if n > 0 && n+1+size > maxRunes {
			out = append(out, current.String())
			current.Reset()
			n = 0
		}
		if n > 0 {
			current.WriteByte(' ')
			n++
		}
		current.WriteString(sentence)
		n += size
	}
	if n > 0 {
		out = append(out, current.String())
	}

	return out
}

func splitSentences(s string) []string {
	var (
		sentences []string
		start     int
	)
	flush := func(end int) {
		if sentence := strings.Join(strings.Fields(s[start:end]), " "); sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = end
	}

	for i, r := range s {
		switch r {
		case '.', '!', '?':
			// Runs like "?!" and "..." stay with their sentence.
			if next, _ := utf8.DecodeRuneInString(s[i+1:]); next == '.' || next == '!' || next == '?' {
				continue
			}
			flush(i + 1)
		case '\n', '\r':
			flush(i)
		}
	}
	flush(len(s))

	return sentences
}

package utils

import (
	"strings"
	"unicode"
)

// SplitText cuts text into chunks of at most chunkSize runes, each starting
// overlap runes before the previous one ended. A chunk ends at the last
// paragraph break, sentence end or space in its final quarter when there is
// one, so sections and words are rarely split.
func SplitText(text string, chunkSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if chunkSize <= 0 || len(runes) <= chunkSize {
		return []string{text}
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start+chunkSize*3/4, end)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint returns the best cut in runes[lo:hi], or hi when none exists.
func breakPoint(runes []rune, lo, hi int) int {
	best, rank := hi, 0
	for i := hi - 1; i > lo; i-- {
		r := runes[i]
		switch {
		case r == '\n' && runes[i-1] == '\n':
			return i + 1
		case rank < 2 && unicode.IsSpace(r) && strings.ContainsRune(".;:", runes[i-1]):
			best, rank = i+1, 2
		case rank < 1 && unicode.IsSpace(r):
			best, rank = i+1, 1
		}
	}
	return best
}

// Package highlight marks case-insensitive occurrences of a query in text.
package highlight

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Segment is a run of text, highlighted when it matches the query.
type Segment struct {
	Text        string
	Highlighted bool
}

// Split breaks text into segments around non-overlapping, case-insensitive
// literal matches of query and returns the number of matches. A blank query
// yields the whole text as a single plain segment.
func Split(text, query string) ([]Segment, int) {
	if strings.TrimSpace(query) == "" || text == "" {
		return []Segment{{Text: text}}, 0
	}

	fold := cases.Fold()
	needle := fold.String(query)
	width := utf8.RuneCountInString(query)

	// byte offsets of each rune start, plus len(text)
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))
	runes := len(offsets) - 1

	var segments []Segment
	matches, plain := 0, 0
	for r := 0; r+width <= runes; {
		start, end := offsets[r], offsets[r+width]
		if fold.String(text[start:end]) != needle {
			r++
			continue
		}
		if start > plain {
			segments = append(segments, Segment{Text: text[plain:start]})
		}
		segments = append(segments, Segment{Text: text[start:end], Highlighted: true})
		matches++
		plain = end
		r += width
	}
	if plain < len(text) {
		segments = append(segments, Segment{Text: text[plain:]})
	}
	return segments, matches
}

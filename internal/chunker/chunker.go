// Package chunker splits parsed pages into bounded, overlapping chunks.
//
// Each page is cut into windows of at most size characters. A window ends
// after the largest boundary unit found inside it (paragraph, then line,
// then sentence, then word) and falls back to a plain character cut. The
// next window starts overlap characters before the previous end, so
// dropping each chunk's leading Overlap characters and concatenating gives
// back the page text exactly.
package chunker

import (
	"fmt"
	"strings"

	"document-qa/internal/models"
)

var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune(" "),
}

// Validate reports an ErrConfiguration when size and overlap cannot make progress.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", models.ErrConfiguration, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk_overlap must not be negative, got %d", models.ErrConfiguration, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)", models.ErrConfiguration, overlap, size)
	}
	return nil
}

// Split chunks pages in document order. Blank pages produce no chunks.
func Split(pages []models.Page, size, overlap int) ([]models.Chunk, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		for i, p := range splitText(page.Text, size, overlap) {
			chunks = append(chunks, models.Chunk{
				Content:    p.text,
				Source:     page.Source,
				PageNumber: page.Number,
				ChunkID:    i + 1,
				Overlap:    p.overlap,
			})
		}
	}
	return chunks, nil
}

// Join rebuilds text from consecutive chunks by dropping each chunk's overlap.
func Join(chunks []models.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		r := []rune(c.Content)
		if c.Overlap > len(r) {
			continue
		}
		b.WriteString(string(r[c.Overlap:]))
	}
	return b.String()
}

type piece struct {
	text    string
	overlap int
}

func splitText(text string, size, overlap int) []piece {
	r := []rune(text)
	var out []piece
	start, carried := 0, 0
	for {
		if len(r)-start <= size {
			return append(out, piece{text: string(r[start:]), overlap: carried})
		}
		end := cutPoint(r, start, start+overlap, start+size)
		out = append(out, piece{text: string(r[start:end]), overlap: carried})
		start = end - overlap
		carried = overlap
	}
}

// cutPoint picks the chunk end in (lo, hi]. It returns the position just after
// the last occurrence of the highest ranked separator, or hi when none fits.
func cutPoint(r []rune, start, lo, hi int) int {
	for _, sep := range separators {
		for end := hi; end > lo; end-- {
			at := end - len(sep)
			if at >= start && hasAt(r, at, sep) {
				return end
			}
		}
	}
	return hi
}

func hasAt(r []rune, at int, sep []rune) bool {
	for i, c := range sep {
		if r[at+i] != c {
			return false
		}
	}
	return true
}

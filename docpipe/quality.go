// CLAUDE:SUMMARY PDF extraction quality scoring: flags scans that need OCR and text that points at missing figures.
package docpipe

import (
	"regexp"
	"strings"
	"unicode"
)

// ExtractionQuality captures metrics about PDF text extraction quality.
type ExtractionQuality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	WordlikeRatio   float64 `json:"wordlike_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
	VisualRefCount  int     `json:"visual_ref_count"`
}

// NeedsOCR reports whether the text layer is too thin or too garbled to
// trust. An empty text layer always needs OCR.
func (q *ExtractionQuality) NeedsOCR() bool {
	if q == nil {
		return false
	}
	if q.CharsPerPage == 0 {
		return true
	}
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

// HasVisualGap reports text that cites figures or tables in a PDF that has
// images the text layer cannot carry.
func (q *ExtractionQuality) HasVisualGap() bool {
	return q.VisualRefCount > 0 && q.HasImageStreams
}

func measureQuality(raw string, pages int, images bool) *ExtractionQuality {
	chars := 0
	for _, r := range raw {
		if !unicode.IsSpace(r) {
			chars++
		}
	}
	q := &ExtractionQuality{
		PageCount:       pages,
		PrintableRatio:  printableRatio(raw),
		WordlikeRatio:   wordlikeRatio(raw),
		HasImageStreams: images,
		VisualRefCount:  countVisualRefs(raw),
	}
	if pages > 0 {
		q.CharsPerPage = float64(chars) / float64(pages)
	}
	return q
}

// printableRatio is the share of non-whitespace runes that are printable
// and not garbage (private use area, U+FFFD, control characters).
func printableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		if r == '\n' || r == '\r' || r == '\t' || r == ' ' {
			continue
		}
		total++
		if !isGarbageRune(r) && unicode.IsPrint(r) {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF:
		return true
	case r == unicode.ReplacementChar:
		return true
	case r < 0x20 && r != '\n' && r != '\r' && r != '\t':
		return true
	}
	return false
}

// wordlikeRatio is the share of whitespace-separated tokens 2 to 15 runes long.
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		if n := len([]rune(f)); n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}

var visualRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(see|refer\s+to|voir|cf\.?)\s+(the\s+|la\s+)?(figure|fig\.?|table|tableau|diagram|diagramme|graph|graphique|chart|image|illustration|sch[eé]ma)\s*\d+`),
	regexp.MustCompile(`(?i)\b(figure|fig\.|table|tableau)\s+\d+`),
}

// countVisualRefs counts references to figures, tables and diagrams.
func countVisualRefs(text string) int {
	count := 0
	for _, pat := range visualRefPatterns {
		count += len(pat.FindAllString(text, -1))
	}
	return count
}

package aiops

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	promptWordMarkdown  = "Convert the content of this PDF into structured Markdown. Preserve headings, bullet points, and paragraph structure. Return ONLY the markdown content."
	promptWordText      = "Extract all text from this PDF document as plain text. Do not use any markdown formatting (like #, *, tables, etc). Simply extract the raw text content in a readable format. Return ONLY the text."
	promptExcel         = "Identify the main table or data in this PDF document and convert it into CSV format. Ensure the headers are correct. Return ONLY the CSV data, no other text or markdown code blocks."
	promptBankStatement = "This PDF is a bank statement. Extract every transaction into CSV with exactly these columns: Date, Description, Debit, Credit, Balance. Use one row per transaction in statement order, leave a cell empty when the statement has no value for it, and keep amounts as plain numbers without currency symbols. Return ONLY the CSV data, no other text or markdown code blocks."
	promptOutline       = "Analyze this PDF and structure it into a presentation outline. Divide the content into 'Slides'. For each slide, provide a Title and Bullet Points of the main content. Use Markdown. Format it as: # Slide 1: [Title]\n* [Point 1]\n* [Point 2]"
	promptPDFOCR        = "This is a scanned document in PDF format. Perform OCR to extract all readable text. Preserve the original layout and line breaks as much as possible. Return the extracted text."
	promptImageOCR      = "Extract all text visible in this image. Preserve the formatting as much as possible."
)

func promptSummarize(text string) string {
	return "Please summarize the following text concisely, highlighting the key points:\n\n" + text
}

func promptTranslate(text, lang string) string {
	return fmt.Sprintf("Translate the following text into %s. Only provide the translated text, no preamble:\n\n%s", lang, text)
}

func promptGrammar(text string) string {
	return "Correct the grammar and spelling of the following text. Improve clarity where necessary but maintain the original meaning. Only provide the corrected text:\n\n" + text
}

func promptCode(code, lang string) string {
	return fmt.Sprintf("Convert the following code to %s. Provide only the code block, no explanations:\n\n%s", lang, code)
}

// chatInstruction embeds the document once; every turn of the session
// reuses it.
func chatInstruction(docText string) string {
	return "You are a helpful assistant. The user has uploaded a document with the following content:\n\n" + docText +
		"\n\nAnswer questions based on this document. Keep answers concise and relevant to the document content."
}

func chatGreeting(name string) string {
	return fmt.Sprintf("I've analyzed %s. What would you like to know about it?", name)
}

// fenceOpen matches an opening fence with its optional language tag at the
// start of a line.
var fenceOpen = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_+.-]*(?:[ \t\r]+|$)")

// StripFences removes Markdown code fence markers (```csv, ```) the model
// adds even when told not to. Text sharing a line with a fence is kept.
func StripFences(text string) string {
	text = fenceOpen.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// Slide is one entry of a presentation outline.
type Slide struct {
	Number  int      `json:"number"`
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

var (
	slideHeading = regexp.MustCompile(`(?i)^#{1,3}\s*slide\s+(\d+)\s*[:.\-]\s*(.*)$`)
	bulletPrefix = regexp.MustCompile(`^(?:[*\-•+]|\d+[.)])\s+`)
)

// ErrNotOutline is returned when a response contains no slide heading.
var ErrNotOutline = errors.New("response did not follow slide outline format")

// ParseOutline reads the "# Slide N: Title" / "* bullet" grammar. Lines
// before the first slide heading are dropped; a non-bullet line inside a
// slide continues the previous bullet.
func ParseOutline(text string) ([]Slide, error) {
	var slides []Slide
	for _, raw := range strings.Split(StripFences(text), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if m := slideHeading.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			title := strings.TrimSpace(strings.Trim(strings.TrimSpace(m[2]), "*"))
			if title == "" {
				title = "Slide " + m[1]
			}
			slides = append(slides, Slide{Number: n, Title: title})
			continue
		}
		if len(slides) == 0 {
			continue
		}
		cur := &slides[len(slides)-1]
		if loc := bulletPrefix.FindStringIndex(line); loc != nil {
			cur.Bullets = append(cur.Bullets, strings.TrimSpace(line[loc[1]:]))
			continue
		}
		if n := len(cur.Bullets); n > 0 {
			cur.Bullets[n-1] += " " + line
		} else {
			cur.Bullets = append(cur.Bullets, line)
		}
	}
	if len(slides) == 0 {
		return nil, ErrNotOutline
	}
	return slides, nil
}

// RenderOutline writes slides back in canonical form.
func RenderOutline(slides []Slide) string {
	var sb strings.Builder
	for i, s := range slides {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "# Slide %d: %s\n", s.Number, s.Title)
		for _, b := range s.Bullets {
			sb.WriteString("* ")
			sb.WriteString(b)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

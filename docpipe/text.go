package docpipe

import (
	"strings"
	"unicode"
)

// extractText returns plain text as a single paragraph.
func extractText(data string) (string, []Section) {
	text := normalizeWhitespace(data)
	if text == "" {
		return "", nil
	}
	return firstLine(data), []Section{{
		Text: text,
		Type: "paragraph",
	}}
}

// extractRaw keeps structured text (CSV, JSON, XML, source) verbatim so that
// rows and indentation survive for downstream prompts.
func extractRaw(data string, format Format) (string, []Section) {
	text := strings.TrimSpace(strings.ReplaceAll(data, "\r\n", "\n"))
	if text == "" {
		return "", nil
	}
	return "", []Section{{
		Text:     text,
		Type:     "data",
		Metadata: map[string]string{"format": string(format)},
	}}
}

// extractMarkdown splits Markdown on ATX headings and blank lines.
func extractMarkdown(data string) (string, []Section) {
	var sections []Section
	var title string
	var current strings.Builder
	kind := "paragraph"
	inFence := false

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			sections = append(sections, Section{Text: text, Type: kind})
		}
		current.Reset()
		kind = "paragraph"
	}

	for _, line := range strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			if current.Len() > 0 {
				current.WriteByte('\n')
			}
			current.WriteString(line)
			continue
		}

		if level := headingLevel(trimmed); level > 0 {
			flush()
			text := strings.TrimSpace(strings.Trim(trimmed, "#"))
			if text != "" {
				if title == "" {
					title = text
				}
				sections = append(sections, Section{Title: text, Level: level, Text: text, Type: "heading"})
			}
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "|"):
			kind = "table"
		case isListItem(trimmed) && current.Len() == 0:
			kind = "list"
		}
		if current.Len() > 0 {
			if kind == "paragraph" {
				current.WriteByte(' ')
			} else {
				current.WriteByte('\n')
			}
		}
		current.WriteString(trimmed)
	}
	flush()

	if title == "" && len(sections) > 0 {
		title = firstLine(sections[0].Text)
	}
	return title, sections
}

func headingLevel(line string) int {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0
	}
	if level < len(line) && line[level] != ' ' {
		return 0
	}
	return level
}

func isListItem(line string) bool {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "+ ") {
		return true
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i+1 < len(line) && line[i] == '.' && line[i+1] == ' '
}

func normalizeWhitespace(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

func firstLine(text string) string {
	text = strings.TrimLeft(text, " \t\r\n")
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

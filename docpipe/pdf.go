// CLAUDE:SUMMARY PDF text extractor over pdfcpu: tokenizes page content streams for text operators, scores extraction quality.
// CLAUDE:DEPENDS docpipe/quality.go
// CLAUDE:EXPORTS extractPDF
package docpipe

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// extractPDF returns title, one section per non-empty page and quality
// metrics. An image-only PDF yields no sections but still reports quality.
func extractPDF(data []byte) (string, []Section, *ExtractionQuality, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return "", nil, nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	var sections []Section
	var title string
	var raw strings.Builder

	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageRaw := pageContentText(ctx, pageNr)
		raw.WriteString(pageRaw)
		text := cleanPDFText(pageRaw)
		if text == "" {
			continue
		}
		if title == "" {
			title = firstLine(pageRaw)
			if len(title) > 200 {
				title = title[:200]
			}
		}
		sections = append(sections, Section{
			Text: text,
			Type: "page",
			Metadata: map[string]string{
				"page": strconv.Itoa(pageNr),
			},
		})
	}

	quality := measureQuality(raw.String(), ctx.PageCount, hasImageStreams(ctx))
	return title, sections, quality, nil
}

func pageContentText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromContentStream(data)
}

// hasImageStreams reports whether any stream object is an image XObject.
func hasImageStreams(ctx *model.Context) bool {
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
			return true
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// textFromContentStream walks a content stream token by token. String
// operands are held until their operator arrives: Tj, TJ, ' and " show text;
// Td, TD and Tm break words; T* and ET break lines.
func textFromContentStream(data []byte) string {
	var sb strings.Builder
	var pending []string

	lex := &contentLexer{data: data}
	for {
		kind, tok := lex.next()
		switch kind {
		case tokEOF:
			return sb.String()
		case tokString:
			pending = append(pending, tok)
		case tokOperator:
			switch tok {
			case "Tj", "TJ":
				for _, s := range pending {
					sb.WriteString(s)
				}
			case "'", `"`:
				sb.WriteByte('\n')
				for _, s := range pending {
					sb.WriteString(s)
				}
			case "Td", "TD", "Tm":
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
			case "T*", "ET":
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
			case "BI":
				lex.skipInlineImage()
			}
			pending = pending[:0]
		}
	}
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokOperator
	tokOperand
)

type contentLexer struct {
	data []byte
	pos  int
}

func isPDFWhite(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (l *contentLexer) next() (tokenKind, string) {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isPDFWhite(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			return tokString, decodePDFString(l.literal())
		case c == '<' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '<':
			l.pos += 2
			return tokOperand, "<<"
		case c == '>' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '>':
			l.pos += 2
			return tokOperand, ">>"
		case c == '<':
			return tokString, decodePDFString(l.hex())
		case c == '/':
			l.pos++
			l.word()
			return tokOperand, "/"
		case c == '[' || c == ']' || c == '{' || c == '}' || c == ')' || c == '>':
			l.pos++
			return tokOperand, string(c)
		default:
			w := l.word()
			if w == "" {
				l.pos++
				continue
			}
			if isNumber(w) || w == "true" || w == "false" || w == "null" {
				return tokOperand, w
			}
			return tokOperator, w
		}
	}
	return tokEOF, ""
}

func (l *contentLexer) word() string {
	start := l.pos
	for l.pos < len(l.data) && !isPDFWhite(l.data[l.pos]) && !isPDFDelim(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// literal reads a balanced (...) string, leaving escapes for decodePDFString.
func (l *contentLexer) literal() []byte {
	l.pos++ // (
	start := l.pos
	depth := 1
	for l.pos < len(l.data) {
		switch l.data[l.pos] {
		case '\\':
			l.pos++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				out := l.data[start:l.pos]
				l.pos++
				return out
			}
		}
		l.pos++
	}
	return l.data[start:]
}

// hex reads a <...> string and returns it with escapes applied, so that
// decodePDFString leaves it unchanged.
func (l *contentLexer) hex() []byte {
	l.pos++ // <
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if c := l.data[l.pos]; !isPDFWhite(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		if v == '\\' || v == '(' || v == ')' {
			out = append(out, '\\')
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage jumps past ID ... EI.
func (l *contentLexer) skipInlineImage() {
	idx := bytes.Index(l.data[l.pos:], []byte("ID"))
	if idx < 0 {
		l.pos = len(l.data)
		return
	}
	l.pos += idx + 2
	end := bytes.Index(l.data[l.pos:], []byte("EI"))
	if end < 0 {
		l.pos = len(l.data)
		return
	}
	l.pos += end + 2
}

func isNumber(w string) bool {
	_, err := strconv.ParseFloat(w, 64)
	return err == nil
}

// decodePDFString applies PDF escape sequences and maps the resulting bytes
// to text: UTF-16BE when the string carries a BOM, Latin-1 otherwise.
func decodePDFString(raw []byte) string {
	var buf []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			buf = append(buf, raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			buf = append(buf, '\n')
		case 'r':
			buf = append(buf, '\r')
		case 't':
			buf = append(buf, '\t')
		case 'b':
			buf = append(buf, '\b')
		case 'f':
			buf = append(buf, '\f')
		case '\n':
			// line continuation
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				buf = append(buf, byte(val))
			} else {
				buf = append(buf, raw[i])
			}
		}
	}

	if len(buf) >= 2 && buf[0] == 0xFE && buf[1] == 0xFF {
		u := make([]uint16, 0, (len(buf)-2)/2)
		for i := 2; i+1 < len(buf); i += 2 {
			u = append(u, uint16(buf[i])<<8|uint16(buf[i+1]))
		}
		return string(utf16.Decode(u))
	}
	runes := make([]rune, len(buf))
	for i, b := range buf {
		runes[i] = rune(b)
	}
	return string(runes)
}

// cleanPDFText collapses whitespace and drops unprintable runes.
func cleanPDFText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) && !isGarbageRune(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

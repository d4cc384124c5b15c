// CLAUDE:SUMMARY Word (.docx) and OpenDocument (.odt) extraction from in-memory ZIP archives with XML depth and size limits.
package docpipe

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	maxXMLDepth = 256
	maxXMLBytes = 64 << 20
)

// openZipEntry returns a size-capped reader over one archive member.
func openZipEntry(data []byte, name string) (io.ReadCloser, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		return struct {
			io.Reader
			io.Closer
		}{io.LimitReader(rc, maxXMLBytes), rc}, nil
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

// xmlBlock is the element that opens a text block (w:p, text:h, text:p).
type xmlBlock struct {
	title    string
	sections []Section

	text  strings.Builder
	open  bool
	level int
	kind  string
}

func (b *xmlBlock) start(kind string, level int) {
	b.open = true
	b.text.Reset()
	b.kind = kind
	b.level = level
}

func (b *xmlBlock) end() {
	if !b.open {
		return
	}
	b.open = false
	text := strings.TrimSpace(b.text.String())
	if text == "" {
		return
	}
	if b.level > 0 {
		if b.title == "" {
			b.title = text
		}
		b.sections = append(b.sections, Section{Title: text, Level: b.level, Text: text, Type: "heading"})
		return
	}
	b.sections = append(b.sections, Section{Text: text, Type: b.kind})
}

// walkXML feeds tokens to visit and enforces maxXMLDepth.
func walkXML(r io.Reader, visit func(xml.Token)) error {
	dec := xml.NewDecoder(r)
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xml: %w", err)
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return fmt.Errorf("xml nesting depth exceeds %d", maxXMLDepth)
			}
		case xml.EndElement:
			depth--
		}
		visit(tok)
	}
}

// extractDocx reads word/document.xml. Paragraph styles Heading1..6, Title
// and Subtitle become headings; numbered paragraphs become list items.
func extractDocx(data []byte) (string, []Section, error) {
	rc, err := openZipEntry(data, "word/document.xml")
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	var b xmlBlock
	var style string
	var numbered bool
	err = walkXML(rc, func(tok xml.Token) {
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				b.end()
				b.start("paragraph", 0)
				style, numbered = "", false
			case "pStyle":
				style = attrValue(t, "val")
			case "numPr":
				numbered = true
			case "tab":
				if b.open {
					b.text.WriteByte('\t')
				}
			case "br":
				if b.open {
					b.text.WriteByte('\n')
				}
			}
		case xml.CharData:
			if b.open {
				b.text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "p" && b.open {
				b.level = docxHeadingLevel(style)
				if numbered {
					b.kind = "list"
				}
				b.end()
			}
		}
	})
	if err != nil {
		return "", nil, err
	}
	return b.title, b.sections, nil
}

// docxHeadingLevel maps a paragraph style name to a heading level.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)
	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if rest, ok := strings.CutPrefix(lower, prefix); ok {
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}

// extractODT reads content.xml: text:h with outline-level, text:p, and
// text:p inside text:list.
func extractODT(data []byte) (string, []Section, error) {
	rc, err := openZipEntry(data, "content.xml")
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	var b xmlBlock
	lists := 0
	err = walkXML(rc, func(tok xml.Token) {
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "h":
				b.end()
				level := 1
				if n, err := strconv.Atoi(attrValue(t, "outline-level")); err == nil && n > 0 {
					level = min(n, 6)
				}
				b.start("heading", level)
			case "p":
				if b.open {
					return
				}
				kind := "paragraph"
				if lists > 0 {
					kind = "list"
				}
				b.start(kind, 0)
			case "list":
				lists++
			case "s":
				if b.open {
					b.text.WriteByte(' ')
				}
			case "tab":
				if b.open {
					b.text.WriteByte('\t')
				}
			case "line-break":
				if b.open {
					b.text.WriteByte('\n')
				}
			}
		case xml.CharData:
			if b.open {
				b.text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "h", "p":
				b.end()
			case "list":
				lists--
			}
		}
	})
	if err != nil {
		return "", nil, err
	}
	return b.title, b.sections, nil
}

func attrValue(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

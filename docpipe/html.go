// CLAUDE:SUMMARY HTML extraction: prunes hidden and boilerplate nodes, sanitises with bluemonday, converts to Markdown sections.
package docpipe

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	htmlPolicy  = bluemonday.UGCPolicy()
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0(?:[^.1-9]|$)`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0(?:[^.1-9]|$)`),
	regexp.MustCompile(`(?i)position\s*:\s*absolute[^;]*-\d{4,}`),
	regexp.MustCompile(`(?i)(?:^|[;\s])(?:left|top)\s*:\s*-\d{4,}`),
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "hidden" {
			return true
		}
		if a.Key == "style" {
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val) {
					return true
				}
			}
		}
	}
	return false
}

// extractHTML returns the <title> (or first heading) and Markdown sections.
func extractHTML(data []byte) (string, []Section, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", nil, err
	}
	title := findHTMLTitle(doc)
	pruneHTML(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", nil, err
	}
	clean := htmlPolicy.SanitizeBytes(buf.Bytes())

	md, err := mdConverter.ConvertString(string(clean))
	if err != nil {
		return "", nil, err
	}
	mdTitle, sections := extractMarkdown(md)
	if title == "" {
		title = mdTitle
	}
	return title, sections, nil
}

// findHTMLTitle extracts the <title> text.
func findHTMLTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		if n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findHTMLTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// pruneHTML detaches boilerplate and invisible subtrees in place.
func pruneHTML(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if dropHTMLNode(c) {
			n.RemoveChild(c)
		} else {
			pruneHTML(c)
		}
		c = next
	}
}

func dropHTMLNode(n *html.Node) bool {
	if n.Type == html.CommentNode {
		return true
	}
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Template,
		atom.Nav, atom.Footer, atom.Header, atom.Iframe:
		return true
	}
	return hasHiddenStyle(n)
}

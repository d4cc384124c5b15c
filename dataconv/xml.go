package dataconv

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/docforge/transform"
)

type xmlElement struct {
	name     string
	attrs    []xml.Attr
	children []xmlChild
}

// xmlChild is either an element or a trimmed, non-empty text run.
type xmlChild struct {
	elem *xmlElement
	text string
}

// XMLToJSON maps an XML document to JSON.
//
// The root element's content becomes the top-level value. Child elements
// become keys, repeated siblings become arrays, whitespace-only text is
// dropped and an element holding only text collapses to that text. Attributes
// are kept as "@name" keys. Empty elements are omitted from their parent; an
// empty root yields "".
func XMLToJSON(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", transform.EmptyInputError("no XML input")
	}
	root, err := parseXML(text)
	if err != nil {
		return "", transform.ParseError("Invalid XML", err)
	}
	v := elementValue(root)
	if v == nil {
		v = stringValue("")
	}
	return v.indented("  "), nil
}

func parseXML(text string) (*xmlElement, error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	var stack []*xmlElement
	var root *xmlElement

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, fmt.Errorf("multiple root elements")
			}
			el := &xmlElement{name: t.Name.Local, attrs: t.Copy().Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, xmlChild{elem: el})
			} else {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			s := strings.TrimSpace(string(t))
			if s == "" {
				continue
			}
			if len(stack) == 0 {
				return nil, fmt.Errorf("text outside root element")
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, xmlChild{text: s})
		}
	}
	if root == nil {
		return nil, fmt.Errorf("no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].name)
	}
	return root, nil
}

// elementValue returns nil for an element with no attributes and no content.
func elementValue(el *xmlElement) *value {
	obj := newObject()
	for _, a := range el.attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		obj.set("@"+a.Name.Local, stringValue(a.Value))
	}
	for _, c := range el.children {
		key := "#text"
		var child *value
		if c.elem != nil {
			key = c.elem.name
			child = elementValue(c.elem)
			if child == nil {
				continue
			}
		} else {
			child = stringValue(c.text)
		}
		existing, ok := obj.fields[key]
		switch {
		case !ok:
			obj.set(key, child)
		case existing.kind == kindArray:
			existing.items = append(existing.items, child)
		default:
			obj.set(key, &value{kind: kindArray, items: []*value{existing, child}})
		}
	}
	if len(obj.keys) == 0 {
		return nil
	}
	if len(obj.keys) == 1 && obj.keys[0] == "#text" {
		return obj.fields["#text"]
	}
	return obj
}

// JSONToXML maps a JSON object to XML. Keys become tags, arrays expand to
// repeated sibling tags and null becomes an empty element. A root object with
// more than one key is wrapped in <root>.
func JSONToXML(data []byte) (string, error) {
	if strings.TrimSpace(string(data)) == "" {
		return "", transform.EmptyInputError("no JSON input")
	}
	root, err := parseJSON(data)
	if err != nil {
		return "", transform.ParseError("invalid JSON", err)
	}
	if root.kind != kindObject {
		return "", transform.ParseError("expected a JSON object", nil)
	}

	var sb strings.Builder
	if len(root.keys) == 1 {
		writeXMLObject(&sb, root)
	} else {
		sb.WriteString("<root>")
		writeXMLObject(&sb, root)
		sb.WriteString("</root>")
	}
	return sb.String(), nil
}

func writeXMLObject(sb *strings.Builder, obj *value) {
	for _, k := range obj.keys {
		writeXMLField(sb, k, obj.fields[k])
	}
}

func writeXMLField(sb *strings.Builder, name string, v *value) {
	if v.kind == kindArray {
		for _, it := range v.items {
			if it.kind == kindArray {
				sb.WriteString("<" + name + ">")
				writeXMLField(sb, "item", it)
				sb.WriteString("</" + name + ">")
				continue
			}
			writeXMLField(sb, name, it)
		}
		return
	}
	sb.WriteString("<" + name + ">")
	switch v.kind {
	case kindObject:
		writeXMLObject(sb, v)
	case kindNull:
	default:
		_ = xml.EscapeText(sb, []byte(v.scalar))
	}
	sb.WriteString("</" + name + ">")
}

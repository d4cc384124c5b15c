package dataconv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// value is a JSON value that remembers object key order. encoding/json maps
// lose it, and both the CSV header and the XML element order depend on it.
type value struct {
	kind   valueKind
	keys   []string
	fields map[string]*value
	items  []*value
	// scalar holds the string content, the number literal or "true"/"false".
	scalar string
}

type valueKind int

const (
	kindNull valueKind = iota
	kindString
	kindNumber
	kindBool
	kindObject
	kindArray
)

func newObject() *value {
	return &value{kind: kindObject, fields: make(map[string]*value)}
}

func (v *value) set(key string, child *value) {
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = child
}

func stringValue(s string) *value { return &value{kind: kindString, scalar: s} }

// parseJSON decodes a single JSON document and rejects trailing data.
func parseJSON(data []byte) (*value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (*value, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("unexpected end of JSON input")
		}
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := newObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				child, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.set(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := &value{kind: kindArray}
			for dec.More() {
				child, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr.items = append(arr.items, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return stringValue(t), nil
	case json.Number:
		return &value{kind: kindNumber, scalar: t.String()}, nil
	case bool:
		if t {
			return &value{kind: kindBool, scalar: "true"}, nil
		}
		return &value{kind: kindBool, scalar: "false"}, nil
	case nil:
		return &value{kind: kindNull}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// compact renders v as single-line JSON.
func (v *value) compact() string {
	var sb strings.Builder
	v.write(&sb, "", 0)
	return sb.String()
}

// indented renders v with the given indent unit, one member per line.
func (v *value) indented(indent string) string {
	var sb strings.Builder
	v.write(&sb, indent, 0)
	return sb.String()
}

func (v *value) write(sb *strings.Builder, indent string, depth int) {
	newline := func(d int) {
		if indent == "" {
			return
		}
		sb.WriteByte('\n')
		sb.WriteString(strings.Repeat(indent, d))
	}
	switch v.kind {
	case kindNull:
		sb.WriteString("null")
	case kindString:
		sb.WriteString(quote(v.scalar))
	case kindNumber, kindBool:
		sb.WriteString(v.scalar)
	case kindArray:
		if len(v.items) == 0 {
			sb.WriteString("[]")
			return
		}
		sb.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				sb.WriteByte(',')
			}
			newline(depth + 1)
			it.write(sb, indent, depth+1)
		}
		newline(depth)
		sb.WriteByte(']')
	case kindObject:
		if len(v.keys) == 0 {
			sb.WriteString("{}")
			return
		}
		sb.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			newline(depth + 1)
			sb.WriteString(quote(k))
			sb.WriteByte(':')
			if indent != "" {
				sb.WriteByte(' ')
			}
			v.fields[k].write(sb, indent, depth+1)
		}
		newline(depth)
		sb.WriteByte('}')
	}
}

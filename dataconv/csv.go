// CLAUDE:SUMMARY Naive JSON<->CSV encoders: header from the first record, comma split with quote trim on the way back.
package dataconv

import (
	"strings"

	"github.com/hazyhaar/docforge/transform"
)

// JSONToCSV converts an array of objects (or a single object) to CSV.
//
// The header row is the first object's keys in document order. Each cell is
// the JSON encoding of the value, so strings come out quoted and nested values
// come out as inline JSON. Missing and null values become "".
func JSONToCSV(data []byte) (string, error) {
	if strings.TrimSpace(string(data)) == "" {
		return "", transform.EmptyInputError("no JSON input")
	}
	root, err := parseJSON(data)
	if err != nil {
		return "", transform.ParseError("invalid JSON", err)
	}

	var rows []*value
	switch root.kind {
	case kindArray:
		rows = root.items
	case kindObject:
		rows = []*value{root}
	default:
		return "", transform.ParseError("expected an array of objects", nil)
	}
	if len(rows) == 0 {
		return "", transform.EmptyInputError("Empty JSON array")
	}
	for _, r := range rows {
		if r.kind != kindObject {
			return "", transform.ParseError("expected an array of objects", nil)
		}
	}

	headers := rows[0].keys
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(headers, ","))
	for _, r := range rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			v, ok := r.fields[h]
			if !ok || v.kind == kindNull {
				cells[i] = `""`
				continue
			}
			cells[i] = v.compact()
		}
		lines = append(lines, strings.Join(cells, ","))
	}
	return strings.Join(lines, "\n"), nil
}

// CSVToJSON converts CSV text with a header row to a JSON array of objects
// whose values are all strings. Fields are split on every comma and one
// surrounding pair of double quotes is trimmed; quoted commas, escaped quotes
// and multi-line fields are not supported.
//
// A row with fewer cells than the header omits the missing keys.
func CSVToJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", transform.EmptyInputError("no CSV input")
	}
	rows := strings.Split(trimmed, "\n")
	if len(rows) < 2 {
		return "", transform.ParseError("Invalid CSV: Needs header and at least one row", nil)
	}

	headers := splitCSVLine(rows[0])
	out := &value{kind: kindArray}
	for _, row := range rows[1:] {
		cells := splitCSVLine(row)
		obj := newObject()
		for i, h := range headers {
			if i >= len(cells) {
				break
			}
			obj.set(h, stringValue(cells[i]))
		}
		out.items = append(out.items, obj)
	}
	return out.indented("  "), nil
}

func splitCSVLine(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, `"`)
		p = strings.TrimSuffix(p, `"`)
		parts[i] = p
	}
	return parts
}

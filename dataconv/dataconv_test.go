package dataconv

import (
	"encoding/binary"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/hazyhaar/docforge/transform"
)

func TestCSVToJSON_Scenario(t *testing.T) {
	// WHAT: The documented header + two rows example.
	// WHY: Values stay strings and key order follows the header.
	out, err := CSVToJSON("name,age\nJohn,30\nJane,25")
	if err != nil {
		t.Fatal(err)
	}
	want := "[\n  {\n    \"name\": \"John\",\n    \"age\": \"30\"\n  },\n  {\n    \"name\": \"Jane\",\n    \"age\": \"25\"\n  }\n]"
	if out != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestCSVToJSON_QuoteTrimAndCRLF(t *testing.T) {
	// WHAT: Surrounding quotes and \r are trimmed from cells.
	out, err := CSVToJSON("\"name\",\"city\"\r\n\"Ann\",\"Oslo\"\r\n")
	if err != nil {
		t.Fatal(err)
	}
	var rows []map[string]string
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Ann" || rows[0]["city"] != "Oslo" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestCSVToJSON_HeaderOnly(t *testing.T) {
	// WHAT: A header without data rows is rejected.
	_, err := CSVToJSON("name,age")
	if !transform.IsKind(err, transform.KindParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCSVToJSON_ShortRowOmitsKeys(t *testing.T) {
	out, err := CSVToJSON("a,b,c\n1,2")
	if err != nil {
		t.Fatal(err)
	}
	var rows []map[string]string
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatal(err)
	}
	if _, ok := rows[0]["c"]; ok {
		t.Fatalf("missing cell should omit the key: %v", rows[0])
	}
}

func TestJSONToCSV_Basic(t *testing.T) {
	// WHAT: Header from first object keys, values JSON-encoded.
	out, err := JSONToCSV([]byte(`[{"name":"John","age":30},{"name":"Jane","age":null}]`))
	if err != nil {
		t.Fatal(err)
	}
	want := "name,age\n\"John\",30\n\"Jane\",\"\""
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestJSONToCSV_BareObject(t *testing.T) {
	// WHAT: A single object is treated as a one-row array.
	out, err := JSONToCSV([]byte(`{"z":1,"a":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if out != "z,a\n1,true" {
		t.Fatalf("got %q", out)
	}
}

func TestJSONToCSV_EmptyArray(t *testing.T) {
	// WHAT: [] fails with EmptyInputError.
	// WHY: There is no header to derive.
	_, err := JSONToCSV([]byte(`[]`))
	if !transform.IsKind(err, transform.KindEmptyInput) {
		t.Fatalf("expected empty_input, got %v", err)
	}
}

func TestJSONToCSV_Malformed(t *testing.T) {
	for _, in := range []string{`[{"a":1}`, `42`, `[1,2]`, `{"a":1} {"b":2}`} {
		_, err := JSONToCSV([]byte(in))
		if !transform.IsKind(err, transform.KindParse) {
			t.Errorf("%s: expected parse error, got %v", in, err)
		}
	}
}

func TestCSVRoundTrip(t *testing.T) {
	// WHAT: jsonToCsv then csvToJson recovers flat string records.
	// WHY: The quoted cells written by the encoder are trimmed by the decoder.
	in := `[{"name":"John","city":"Paris"},{"name":"Jane","city":"Lyon"}]`
	csv, err := JSONToCSV([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	back, err := CSVToJSON(csv)
	if err != nil {
		t.Fatal(err)
	}
	var got, want []map[string]string
	if err := json.Unmarshal([]byte(back), &got); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(in), &want); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip: got %v, want %v", got, want)
	}
}

func TestXMLToJSON_RepeatedSiblings(t *testing.T) {
	// WHAT: Repeated tags become arrays, text-only elements collapse.
	out, err := XMLToJSON(`<root>
  <person>
    <name>John</name>
    <tag>a</tag>
    <tag>b</tag>
    <tag>c</tag>
  </person>
</root>`)
	if err != nil {
		t.Fatal(err)
	}
	var got any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"person": map[string]any{
			"name": "John",
			"tag":  []any{"a", "b", "c"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestXMLToJSON_AttributesAndEmpty(t *testing.T) {
	out, err := XMLToJSON(`<r><item id="7">x</item><empty/></r>`)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	item, ok := got["item"].(map[string]any)
	if !ok || item["@id"] != "7" || item["#text"] != "x" {
		t.Fatalf("item = %v", got["item"])
	}
	if _, ok := got["empty"]; ok {
		t.Fatal("empty element should be omitted")
	}
}

func TestXMLToJSON_Malformed(t *testing.T) {
	// WHAT: Mismatched and truncated documents fail with ParseError.
	for _, in := range []string{`<a><b></a>`, `<a>`, `<a/><b/>`, `plain text`} {
		out, err := XMLToJSON(in)
		if !transform.IsKind(err, transform.KindParse) {
			t.Errorf("%q: expected parse error, got %v", in, err)
		}
		if out != "" {
			t.Errorf("%q: partial output %q", in, out)
		}
	}
}

func TestJSONToXML_RootWrap(t *testing.T) {
	// WHAT: Multi-key roots are wrapped; single-key roots are not.
	out, err := JSONToXML([]byte(`{"a":"1","b":"2"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out != "<root><a>1</a><b>2</b></root>" {
		t.Fatalf("got %q", out)
	}
	out, err = JSONToXML([]byte(`{"doc":{"tag":["x","y"],"n":null,"amp":"a&b"}}`))
	if err != nil {
		t.Fatal(err)
	}
	want := "<doc><tag>x</tag><tag>y</tag><n></n><amp>a&amp;b</amp></doc>"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestXMLRoundTrip(t *testing.T) {
	// WHAT: jsonToXml then xmlToJson recovers the object under the single root.
	in := `{"root":{"person":{"name":"John","address":{"city":"Paris","zip":"75001"}}}}`
	x, err := JSONToXML([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	back, err := XMLToJSON(x)
	if err != nil {
		t.Fatal(err)
	}
	var got any
	var whole map[string]any
	if err := json.Unmarshal([]byte(back), &got); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(in), &whole); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, whole["root"]) {
		t.Fatalf("round trip: got %v, want %v", got, whole["root"])
	}
}

func TestPCMToWAV_Header(t *testing.T) {
	// WHAT: Output length and the channel/rate/bit-depth fields.
	pcm := make([]byte, 480)
	wav := PCMToWAV(pcm, 24000, 1)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatal("bad chunk ids")
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels = %d", ch)
	}
	if sr := binary.LittleEndian.Uint32(wav[24:28]); sr != 24000 {
		t.Errorf("sample rate = %d", sr)
	}
	if bps := binary.LittleEndian.Uint16(wav[34:36]); bps != 16 {
		t.Errorf("bits per sample = %d", bps)
	}
	if n := binary.LittleEndian.Uint32(wav[40:44]); n != 480 {
		t.Errorf("data size = %d", n)
	}

	stereo := PCMToWAV(nil, 44100, 2)
	if binary.LittleEndian.Uint16(stereo[22:24]) != 2 || binary.LittleEndian.Uint32(stereo[28:32]) != 44100*4 {
		t.Error("stereo header fields wrong")
	}
}

func TestSecret(t *testing.T) {
	s, err := Secret(SecretOptions{Length: 64, Digits: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 64 || strings.Trim(s, digitChars) != "" {
		t.Fatalf("secret %q", s)
	}
	if _, err := Secret(SecretOptions{Length: 10}); !transform.IsKind(err, transform.KindValidation) {
		t.Fatalf("empty charset: got %v", err)
	}
	if d, _ := Secret(SecretOptions{Lowercase: true}); len(d) != 32 {
		t.Fatalf("default length = %d", len(d))
	}
}

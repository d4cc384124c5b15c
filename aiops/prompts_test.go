package aiops

import (
	"errors"
	"reflect"
	"testing"
)

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```csv\na,b\n1,2\n```": "a,b\n1,2",
		"a,b\n1,2":              "a,b\n1,2",
		"```\nx\n```\n":         "x",
		"  ```csv\n```":         "",
		// Fence on the same line as data keeps the data.
		"```csv Date,Amount\n2024-01-01,5\n```": "Date,Amount\n2024-01-01,5",
		"```csv\nDate,Amount\n2024-01-01,5```":  "Date,Amount\n2024-01-01,5",
		"```Date,Amount\n1,2\n```":              "Date,Amount\n1,2",
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Errorf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseOutline(t *testing.T) {
	// WHAT: Headings start slides, bullets attach, stray preamble is dropped.
	in := "Sure! Here you go.\n\n```markdown\n# Slide 1: **Intro**\n* First point\n  continued\n- Second\n\n## Slide 2 - Results\n1. Up\nLoose line\n```"
	got, err := ParseOutline(in)
	if err != nil {
		t.Fatal(err)
	}
	want := []Slide{
		{Number: 1, Title: "Intro", Bullets: []string{"First point continued", "Second"}},
		{Number: 2, Title: "Results", Bullets: []string{"Up Loose line"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestParseOutline_NoSlides(t *testing.T) {
	for _, in := range []string{"", "Just prose.\n* a bullet", "# Introduction\n* x"} {
		if _, err := ParseOutline(in); !errors.Is(err, ErrNotOutline) {
			t.Errorf("%q: got %v", in, err)
		}
	}
}

func TestRenderOutline_RoundTrip(t *testing.T) {
	slides := []Slide{{Number: 1, Title: "A", Bullets: []string{"x"}}, {Number: 2, Title: "B"}}
	back, err := ParseOutline(RenderOutline(slides))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, slides) {
		t.Fatalf("got %+v", back)
	}
}

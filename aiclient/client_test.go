package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", BaseURL: srv.URL})
}

func TestGenerate_RequestShape(t *testing.T) {
	// WHAT: Key in header, system instruction, history then inline data + prompt.
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" || r.URL.Query().Get("key") != "" {
			t.Errorf("api key not sent as header")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode: %v", err)
		}
		if !strings.Contains(string(body), `"data":"JVBERi0="`) {
			t.Errorf("inline data not base64: %s", body)
		}
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "},{"text":"world"}]}}]}`)
	})

	out, err := c.Generate(context.Background(), GenerateRequest{
		System:  "be brief",
		History: []Turn{{Role: "user", Text: "hi"}, {Role: "model", Text: "hey"}},
		Parts:   []Part{InlinePart("application/pdf", []byte("%PDF-")), TextPart("summarize")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello world" {
		t.Fatalf("out = %q", out)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("system = %+v", got.SystemInstruction)
	}
	if len(got.Contents) != 3 || got.Contents[2].Role != "user" || len(got.Contents[2].Parts) != 2 {
		t.Fatalf("contents = %+v", got.Contents)
	}
	if got.Contents[2].Parts[0].InlineData.MIMEType != "application/pdf" {
		t.Errorf("inline mime = %q", got.Contents[2].Parts[0].InlineData.MIMEType)
	}
}

func TestGenerate_StatusSentinels(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:       ErrUnauthorized,
		http.StatusForbidden:          ErrUnauthorized,
		http.StatusTooManyRequests:    ErrRateLimited,
		http.StatusServiceUnavailable: ErrUnavailable,
	}
	for code, want := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		})
		_, err := c.Generate(context.Background(), GenerateRequest{Parts: []Part{TextPart("x")}})
		if !errors.Is(err, want) {
			t.Errorf("%d: got %v, want %v", code, err, want)
		}
	}
}

func TestGenerate_SentinelCarriesMessage(t *testing.T) {
	// WHAT: A 429 keeps its sentinel and the service's error.message.
	// WHY: Users see why the remote call failed, not only that it did.
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"code":429,"message":"Quota exceeded for model"}}`)
	})
	_, err := c.Generate(context.Background(), GenerateRequest{Parts: []Part{TextPart("x")}})
	if !errors.Is(err, ErrRateLimited) || !strings.Contains(err.Error(), "Quota exceeded for model") {
		t.Fatalf("got %v", err)
	}
}

func TestGenerate_BadRequestMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":400,"message":"Request payload size exceeds the limit"}}`)
	})
	_, err := c.Generate(context.Background(), GenerateRequest{Parts: []Part{TextPart("x")}})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 400 || se.Body != "Request payload size exceeds the limit" {
		t.Fatalf("got %v", err)
	}
}

func TestGenerate_Empty(t *testing.T) {
	for _, body := range []string{
		`{"candidates":[]}`,
		`{"promptFeedback":{"blockReason":"SAFETY"}}`,
		`{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`,
	} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, body) })
		if _, err := c.Generate(context.Background(), GenerateRequest{Parts: []Part{TextPart("x")}}); !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("%s: got %v", body, err)
		}
	}
}

func TestMissingAPIKey(t *testing.T) {
	// WHAT: No key fails fast without a request.
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	if c.Available() {
		t.Fatal("available without key")
	}
	if _, err := c.Generate(context.Background(), GenerateRequest{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("got %v", err)
	}
}

func TestSpeak(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, DefaultSpeechModel) {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		resp := map[string]any{"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{
			map[string]any{"inlineData": map[string]any{"mimeType": "audio/L16;rate=24000", "data": pcm}},
		}}}}}
		json.NewEncoder(w).Encode(resp)
	})
	out, err := c.Speak(context.Background(), "hello", "Kore")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(pcm) {
		t.Fatalf("pcm = %v", out)
	}
	gc := got.GenerationConfig
	if gc == nil || gc.ResponseModalities[0] != "AUDIO" || gc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Fatalf("generation config = %+v", gc)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	// WHAT: A slow server surfaces a timeout net.Error through the wrap.
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.cfg.HTTPClient.Timeout = 50 * time.Millisecond

	_, err := c.Generate(context.Background(), GenerateRequest{Parts: []Part{TextPart("x")}})
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("got %v", err)
	}
}

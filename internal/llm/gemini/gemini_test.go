package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jo-hoe/leafdoctor/internal/config"
)

func newTestClient(url string) *Client {
	return New(config.GeminiSettings{BaseURL: url, APIKey: "g-key", Model: "gemini-test"}, 2*time.Second)
}

func TestGemini_Analyze_Success(t *testing.T) {
	var seenKey, seenPath string
	var seenBody generateRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKey = r.Header.Get("x-goog-api-key")
		seenPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&seenBody); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[
			{"text":"thinking...","thought":true},
			{"text":"### 1. Plant & Disease Identification\n"},
			{"text":"- **Diagnosis:** Late Blight"}
		]},"finishReason":"STOP"}]}`))
	}))
	defer ts.Close()

	img := []byte{1, 2, 3, 4}
	out, err := newTestClient(ts.URL).Analyze(context.Background(), "Diagnose", bytes.NewReader(img), "image/png")
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if out != "### 1. Plant & Disease Identification\n- **Diagnosis:** Late Blight" {
		t.Fatalf("unexpected text: %q", out)
	}
	if seenKey != "g-key" {
		t.Fatalf("api key header = %q", seenKey)
	}
	if seenPath != "/v1beta/models/gemini-test:generateContent" {
		t.Fatalf("path = %q", seenPath)
	}
	if len(seenBody.Contents) != 1 || len(seenBody.Contents[0].Parts) != 2 {
		t.Fatalf("unexpected contents: %+v", seenBody.Contents)
	}
	parts := seenBody.Contents[0].Parts
	if parts[0].Text != "Diagnose" {
		t.Fatalf("prompt part = %+v", parts[0])
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MimeType != "image/png" {
		t.Fatalf("image part = %+v", parts[1])
	}
	if parts[1].InlineData.Data != base64.StdEncoding.EncodeToString(img) {
		t.Fatalf("image data not base64 of input")
	}
}

func TestGemini_Analyze_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Analyze(context.Background(), "p", bytes.NewBufferString("x"), "image/jpeg")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("error lacks status/message: %v", err)
	}
}

func TestGemini_Analyze_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("z", 1000), http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Analyze(context.Background(), "p", bytes.NewBufferString("x"), "image/jpeg")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
	if len(err.Error()) > 600 {
		t.Fatalf("error body not truncated: %d chars", len(err.Error()))
	}
}

func TestGemini_Analyze_Blocked(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Analyze(context.Background(), "p", bytes.NewBufferString("x"), "image/jpeg")
	if err == nil || !strings.Contains(err.Error(), "SAFETY") {
		t.Fatalf("expected blocked error, got %v", err)
	}
}

func TestGemini_Analyze_EmptyImage(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	if _, err := newTestClient(ts.URL).Analyze(context.Background(), "p", bytes.NewBuffer(nil), "image/png"); err == nil {
		t.Fatalf("expected error for empty image")
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("server should not be called for empty image")
	}
}

func TestGemini_Analyze_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := newTestClient(ts.URL).Analyze(ctx, "p", bytes.NewBufferString("x"), "image/png"); err == nil {
		t.Fatalf("expected context cancellation error")
	}
}

func TestNew_StripsModelsPrefix(t *testing.T) {
	c := New(config.GeminiSettings{BaseURL: "http://x/", Model: "models/gemini-2.5-flash"}, 0)
	if c.model != "gemini-2.5-flash" || c.baseURL != "http://x" {
		t.Fatalf("model=%q baseURL=%q", c.model, c.baseURL)
	}
}

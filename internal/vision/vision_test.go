package vision

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
)

func testConfig() Config {
	return Config{
		Enabled:   true,
		Model:     "gemini-2.0-flash",
		MaxImages: 5,
		Timeout:   5 * time.Second,
		UserAgent: "clawbridge-test",
	}
}

// newFakeVisionClient returns an openai client pointed at a stub server that
// always answers chat completions with the given description.
func newFakeVisionClient(t *testing.T, description string) (*openai.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + description + `"}}]}`))
	}))
	client := openai.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL+"/"))
	return &client, srv.Close
}

// imageServer serves a fake image payload of the given size.
func imageServer(size int, contentType string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(bytes.Repeat([]byte{0xFF}, size))
	}))
}

func TestAnalyze_UnavailableClient(t *testing.T) {
	a := New(nil, testConfig(), zerolog.Nop())
	if _, ok := a.Analyze(context.Background(), []string{"https://example.com/img.jpg"}, ""); ok {
		t.Error("Analyze() should be absent when the vision client is nil")
	}
}

func TestAnalyze_Disabled(t *testing.T) {
	client, done := newFakeVisionClient(t, "unused")
	defer done()
	cfg := testConfig()
	cfg.Enabled = false
	a := New(client, cfg, zerolog.Nop())
	if _, ok := a.Analyze(context.Background(), []string{"https://example.com/img.jpg"}, ""); ok {
		t.Error("Analyze() should be absent when disabled by configuration")
	}
}

func TestAnalyze_EmptyInput(t *testing.T) {
	client, done := newFakeVisionClient(t, "unused")
	defer done()
	a := New(client, testConfig(), zerolog.Nop())
	if _, ok := a.Analyze(context.Background(), nil, ""); ok {
		t.Error("Analyze() should be absent for an empty input list")
	}
}

func TestAnalyze_Success(t *testing.T) {
	client, done := newFakeVisionClient(t, "a chart showing growth")
	defer done()
	img := imageServer(2048, "image/png")
	defer img.Close()

	a := NewWithHTTPClient(client, img.Client(), testConfig(), zerolog.Nop())
	out, ok := a.Analyze(context.Background(), []string{img.URL + "/1.png", img.URL + "/2.png"}, "quarterly results")
	if !ok {
		t.Fatal("Analyze() returned absent")
	}
	if !strings.Contains(out, "📷 Image analysis (2 image(s)):") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "[Image 1] a chart showing growth") {
		t.Errorf("missing first description:\n%s", out)
	}
	if !strings.Contains(out, "[Image 2] a chart showing growth") {
		t.Errorf("missing second description:\n%s", out)
	}
}

func TestAnalyze_DownloadFailuresKeepCount(t *testing.T) {
	client, done := newFakeVisionClient(t, "unused")
	defer done()
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer img.Close()

	a := NewWithHTTPClient(client, img.Client(), testConfig(), zerolog.Nop())
	urls := []string{img.URL + "/a.jpg", img.URL + "/b.jpg", img.URL + "/c.jpg"}
	out, ok := a.Analyze(context.Background(), urls, "")
	if !ok {
		t.Fatal("Analyze() returned absent; placeholders should still be produced")
	}
	for i := 1; i <= 3; i++ {
		want := "[Image " + string(rune('0'+i)) + "] download failed"
		if !strings.Contains(out, want) {
			t.Errorf("missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyze_TruncatesToMaxImages(t *testing.T) {
	client, done := newFakeVisionClient(t, "desc")
	defer done()
	img := imageServer(2048, "image/jpeg")
	defer img.Close()

	cfg := testConfig()
	cfg.MaxImages = 2
	a := NewWithHTTPClient(client, img.Client(), cfg, zerolog.Nop())
	out, ok := a.Analyze(context.Background(), []string{img.URL, img.URL, img.URL, img.URL}, "")
	if !ok {
		t.Fatal("Analyze() returned absent")
	}
	if !strings.Contains(out, "(2 image(s))") {
		t.Errorf("header should report the truncated count:\n%s", out)
	}
	if strings.Contains(out, "[Image 3]") {
		t.Errorf("images beyond the cap should not be attempted:\n%s", out)
	}
}

func TestAnalyze_RejectsTinyImage(t *testing.T) {
	client, done := newFakeVisionClient(t, "unused")
	defer done()
	img := imageServer(10, "image/jpeg") // under the 1 KB floor
	defer img.Close()

	a := NewWithHTTPClient(client, img.Client(), testConfig(), zerolog.Nop())
	out, ok := a.Analyze(context.Background(), []string{img.URL}, "")
	if !ok {
		t.Fatal("Analyze() returned absent")
	}
	if !strings.Contains(out, "[Image 1] download failed") {
		t.Errorf("tiny image should be rejected as a download failure:\n%s", out)
	}
}

func TestMimeFromContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/png", "image/png"},
		{"image/gif; charset=binary", "image/gif"},
		{"image/webp", "image/webp"},
		{"image/jpeg", "image/jpeg"},
		{"application/octet-stream", "image/jpeg"},
		{"", "image/jpeg"},
	}
	for _, tt := range tests {
		if got := mimeFromContentType(tt.contentType); got != tt.want {
			t.Errorf("mimeFromContentType(%q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stefanclaw/clawbridge/internal/fetcher"
)

type stubFetcher struct {
	res *fetcher.Result
	err error
}

func (s stubFetcher) Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error) {
	return s.res, s.err
}

type stubVision struct {
	out     string
	ok      bool
	called  bool
	context string
}

func (s *stubVision) Analyze(ctx context.Context, imageURLs []string, textContext string) (string, bool) {
	s.called = true
	s.context = textContext
	return s.out, s.ok
}

type stubEnhancer struct {
	out    string
	ok     bool
	called bool
}

func (s *stubEnhancer) Enhance(ctx context.Context, raw, sourceURL string) (string, bool) {
	s.called = true
	return s.out, s.ok
}

var errDown = errors.New("down")

func failing() stubFetcher { return stubFetcher{err: errDown} }

func succeeding(text string, images ...string) stubFetcher {
	return stubFetcher{res: &fetcher.Result{Text: text, ImageURLs: images}}
}

func TestPreprocess_NoURLs(t *testing.T) {
	p := New(failing(), failing(), failing(), nil, nil, zerolog.Nop())

	out, summaries := p.Preprocess(context.Background(), "just plain text")
	if out != "just plain text" {
		t.Errorf("Preprocess() = %q, want unchanged", out)
	}
	if len(summaries) != 0 {
		t.Errorf("summaries = %v, want none", summaries)
	}
}

func TestPreprocess_TweetWithImages(t *testing.T) {
	vision := &stubVision{out: "📷 Image analysis (1 image(s)):\n\n[Image 1] a cat", ok: true}
	p := New(
		succeeding("📌 Tweet source: x\n📝 Content:\nhello world", "https://pbs.example/img.jpg"),
		failing(), failing(), vision, nil, zerolog.Nop(),
	)

	out, summaries := p.Preprocess(context.Background(), "check this out https://x.com/user/status/123")

	if !vision.called {
		t.Fatal("vision should run when the tweet has images")
	}
	if vision.context != "hello world" {
		t.Errorf("vision context = %q, want tweet body", vision.context)
	}
	if len(summaries) != 1 || summaries[0] != "✅ https://x.com/user/status/123 → fxtwitter+img" {
		t.Errorf("summaries = %v", summaries)
	}
	if !strings.Contains(out, "hello world") || !strings.Contains(out, "[Image 1] a cat") {
		t.Errorf("enriched text missing content:\n%s", out)
	}
	if !strings.Contains(out, blockHeader) || !strings.Contains(out, "=== End of link content ===") {
		t.Errorf("enriched text missing delimiters:\n%s", out)
	}
}

func TestPreprocess_TweetNoImagesSkipsVision(t *testing.T) {
	vision := &stubVision{out: "unused", ok: true}
	p := New(succeeding("📝 Content:\ntext only"), failing(), failing(), vision, nil, zerolog.Nop())

	_, summaries := p.Preprocess(context.Background(), "https://x.com/user/status/1")
	if vision.called {
		t.Error("vision should not run without images")
	}
	if summaries[0] != "✅ https://x.com/user/status/1 → fxtwitter" {
		t.Errorf("summaries = %v", summaries)
	}
}

func TestPreprocess_FxFallsBackToYtDlp(t *testing.T) {
	p := New(failing(), succeeding("video info"), failing(), nil, nil, zerolog.Nop())

	out, summaries := p.Preprocess(context.Background(), "https://x.com/user/status/1")
	if summaries[0] != "✅ https://x.com/user/status/1 → yt-dlp" {
		t.Errorf("summaries = %v", summaries)
	}
	if !strings.Contains(out, "video info") {
		t.Errorf("enriched text missing fallback content:\n%s", out)
	}
}

func TestPreprocess_ChainFallsBackToHTTP(t *testing.T) {
	p := New(failing(), failing(), succeeding("📌 Title: page"), nil, nil, zerolog.Nop())

	_, summaries := p.Preprocess(context.Background(), "https://x.com/user/status/1")
	if summaries[0] != "✅ https://x.com/user/status/1 → http" {
		t.Errorf("summaries = %v", summaries)
	}
}

func TestPreprocess_YouTubeChain(t *testing.T) {
	p := New(failing(), succeeding("🎬 info"), failing(), nil, nil, zerolog.Nop())

	_, summaries := p.Preprocess(context.Background(), "https://youtu.be/abc123")
	if summaries[0] != "✅ https://youtu.be/abc123 → yt-dlp" {
		t.Errorf("summaries = %v", summaries)
	}
}

func TestPreprocess_GeneralEnhanced(t *testing.T) {
	enhancer := &stubEnhancer{out: "long content\n\n=== Structured Extraction ===\nfacts\n=== end ===", ok: true}
	p := New(failing(), failing(), succeeding("long content"), nil, enhancer, zerolog.Nop())

	out, summaries := p.Preprocess(context.Background(), "https://example.com/article")
	if !enhancer.called {
		t.Fatal("enhancer should run on general content")
	}
	if summaries[0] != "✅ https://example.com/article → http+extract" {
		t.Errorf("summaries = %v", summaries)
	}
	if !strings.Contains(out, "Structured Extraction") {
		t.Errorf("enriched text missing extraction block:\n%s", out)
	}
}

func TestPreprocess_GeneralShortNotEnhanced(t *testing.T) {
	enhancer := &stubEnhancer{ok: false}
	p := New(failing(), failing(), succeeding("short"), nil, enhancer, zerolog.Nop())

	_, summaries := p.Preprocess(context.Background(), "https://example.com/x")
	if summaries[0] != "✅ https://example.com/x → http" {
		t.Errorf("summaries = %v", summaries)
	}
}

func TestPreprocess_SpecializedNeverEnhanced(t *testing.T) {
	enhancer := &stubEnhancer{out: "x", ok: true}
	long := strings.Repeat("tweet text ", 50)
	p := New(succeeding(long), failing(), failing(), nil, enhancer, zerolog.Nop())

	p.Preprocess(context.Background(), "https://x.com/user/status/1")
	if enhancer.called {
		t.Error("enhancer must not run on specialized-chain content")
	}
}

func TestPreprocess_AllFail(t *testing.T) {
	p := New(failing(), failing(), failing(), nil, nil, zerolog.Nop())

	text := "see https://x.com/user/status/1"
	out, summaries := p.Preprocess(context.Background(), text)
	if out != text {
		t.Errorf("Preprocess() = %q, want unchanged text on total failure", out)
	}
	if len(summaries) != 1 || summaries[0] != "⚠️ https://x.com/user/status/1 → unfetched" {
		t.Errorf("summaries = %v", summaries)
	}
}

func TestPreprocess_FailureDoesNotAbortRest(t *testing.T) {
	p := New(failing(), failing(), succeeding("📌 Title: ok"), nil, nil, zerolog.Nop())

	// The scraper stub succeeds for every URL, so both get content; to see a
	// mixed outcome, the x.com URL must exhaust fx and yt-dlp first and still
	// land on http.
	out, summaries := p.Preprocess(context.Background(),
		"https://x.com/user/status/1 and https://example.com/page")
	if len(summaries) != 2 {
		t.Fatalf("summaries = %v, want 2", summaries)
	}
	if !strings.HasPrefix(summaries[0], "✅ https://x.com/user/status/1") {
		t.Errorf("first summary = %q", summaries[0])
	}
	if !strings.HasPrefix(summaries[1], "✅ https://example.com/page") {
		t.Errorf("second summary = %q", summaries[1])
	}
	if strings.Count(out, "📌 Title: ok") != 2 {
		t.Errorf("enrichment block should hold both contents:\n%s", out)
	}
}

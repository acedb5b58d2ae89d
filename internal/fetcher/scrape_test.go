package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestScraper(handler http.HandlerFunc) (*Scraper, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewScraperWithHTTPClient(srv.Client(), testOpts(), zerolog.Nop()), srv
}

func TestScraper_TitleAndDescription(t *testing.T) {
	s, srv := newTestScraper(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "clawbridge-test" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Write([]byte(`<html><head>
			<title>  Page   Title </title>
			<meta property="og:title" content="OG Page Title"/>
			<meta property="og:description" content="OG description."/>
			<meta name="description" content="Plain description."/>
		</head><body></body></html>`))
	})
	defer srv.Close()

	res, err := s.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	for _, want := range []string{
		"📌 Title: Page Title",
		"📌 OG Title: OG Page Title",
		"📝 Description: OG description.",
	} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("text missing %q:\n%s", want, res.Text)
		}
	}
	if strings.Contains(res.Text, "Plain description.") {
		t.Error("og:description should win over meta description")
	}
}

func TestScraper_TitleOnly(t *testing.T) {
	s, srv := newTestScraper(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Only Title</title></head><body></body></html>`))
	})
	defer srv.Close()

	res, err := s.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if !strings.Contains(res.Text, "📌 Title: Only Title") {
		t.Errorf("text = %q", res.Text)
	}
	if strings.Contains(res.Text, "Description") {
		t.Errorf("no description line expected:\n%s", res.Text)
	}
}

func TestScraper_MetaDescriptionFallback(t *testing.T) {
	s, srv := newTestScraper(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><meta name="description" content="Meta only."/></head></html>`))
	})
	defer srv.Close()

	res, err := s.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if !strings.Contains(res.Text, "📝 Description: Meta only.") {
		t.Errorf("text = %q", res.Text)
	}
}

func TestScraper_NothingFound(t *testing.T) {
	s, srv := newTestScraper(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>no metadata here</p></body></html>`))
	})
	defer srv.Close()

	if _, err := s.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("Fetch() should fail when neither title nor description is found")
	}
}

func TestScraper_Non200(t *testing.T) {
	s, srv := newTestScraper(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	if _, err := s.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("Fetch() should fail on HTTP 404")
	}
}

func TestScraper_BodyCapped(t *testing.T) {
	// Title sits past the read cap, so it must not be found.
	page := `<html><head>` + strings.Repeat(" ", scrapeBodyCap) + `<title>Too Far</title></head></html>`
	s, srv := newTestScraper(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	})
	defer srv.Close()

	if _, err := s.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("title beyond the body cap should not be extracted")
	}
}

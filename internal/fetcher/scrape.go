package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"github.com/rs/zerolog"
)

// scrapeBodyCap limits how much of a page is read for title/meta extraction.
const scrapeBodyCap = 10000

// Scraper is the last-resort fetch strategy: a single GET with a browser-like
// user agent, extracting the page title and meta description.
type Scraper struct {
	http *http.Client
	opts Options
	log  zerolog.Logger
}

// NewScraper creates a Scraper.
func NewScraper(opts Options, log zerolog.Logger) *Scraper {
	return &Scraper{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
		log:  log.With().Str("fetcher", "http").Logger(),
	}
}

// NewScraperWithHTTPClient creates a Scraper with a custom http.Client (for
// testing).
func NewScraperWithHTTPClient(c *http.Client, opts Options, log zerolog.Logger) *Scraper {
	return &Scraper{http: c, opts: opts, log: log}
}

// Fetch GETs the URL and extracts the <title> tag, og:title, and either
// og:description or the meta description. A page yielding neither a title nor
// a description is an error: a lone source line is not a usable result.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	s.log.Info().Str("url", rawURL).Msg("scraping page")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.http.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("url", rawURL).Msg("scrape failed")
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Warn().Int("status", resp.StatusCode).Str("url", rawURL).Msg("scrape failed")
		return nil, fmt.Errorf("page returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, scrapeBodyCap))
	if err != nil {
		return nil, fmt.Errorf("reading page: %w", err)
	}
	html := string(body)

	og := opengraph.NewOpenGraph()
	// ProcessHTML can choke on a truncated page; OpenGraph data is optional
	// so a parse error just means we fall back to goquery.
	_ = og.ProcessHTML(strings.NewReader(html))

	var titleTag, metaDesc string
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		titleTag = strings.TrimSpace(strings.Join(strings.Fields(doc.Find("title").First().Text()), " "))
		metaDesc, _ = doc.Find(`meta[name="description"]`).Attr("content")
	}

	parts := []string{"🔗 Source: " + rawURL}
	if titleTag != "" {
		parts = append(parts, "📌 Title: "+titleTag)
	}
	if og.Title != "" {
		parts = append(parts, "📌 OG Title: "+og.Title)
	}
	desc := og.Description
	if desc == "" {
		desc = metaDesc
	}
	if desc != "" {
		parts = append(parts, "📝 Description: "+desc)
	}

	if len(parts) <= 1 {
		s.log.Warn().Str("url", rawURL).Msg("no title or description found")
		return nil, fmt.Errorf("no title or description found")
	}

	text := strings.Join(parts, "\n")
	s.log.Info().Int("chars", len(text)).Msg("page scraped")
	return &Result{Text: text}, nil
}

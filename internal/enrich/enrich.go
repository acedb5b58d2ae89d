// Package enrich orchestrates the URL enrichment pipeline: detect URLs in a
// message, run each platform's fallback chain, compose in image analysis and
// structured extraction where they apply, and assemble the enriched message.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stefanclaw/clawbridge/internal/detect"
	"github.com/stefanclaw/clawbridge/internal/fetcher"
)

const (
	blockHeader  = "=== Auto-fetched link content below ==="
	blockTrailer = "=== End of link content ===\nPlease respond to the user's message based on the link content above."
)

// URLFetcher is one fetch strategy in a fallback chain.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error)
}

// ImageAnalyzer turns image URLs into text descriptions. The second return
// is false when analysis is disabled or produced nothing.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, imageURLs []string, textContext string) (string, bool)
}

// ContentEnhancer appends a structured-extraction block to long raw content.
type ContentEnhancer interface {
	Enhance(ctx context.Context, raw, sourceURL string) (string, bool)
}

// Preprocessor runs the enrichment pipeline. URLs are processed strictly in
// detection order; one URL failing never aborts the rest.
type Preprocessor struct {
	fx       URLFetcher
	ytdlp    URLFetcher
	scraper  URLFetcher
	vision   ImageAnalyzer
	enhancer ContentEnhancer
	log      zerolog.Logger
}

// New creates a Preprocessor from the three fetch strategies and the two
// optional enrichment stages.
func New(fx, ytdlp, scraper URLFetcher, vision ImageAnalyzer, enhancer ContentEnhancer, log zerolog.Logger) *Preprocessor {
	return &Preprocessor{
		fx:       fx,
		ytdlp:    ytdlp,
		scraper:  scraper,
		vision:   vision,
		enhancer: enhancer,
		log:      log.With().Str("component", "enrich").Logger(),
	}
}

// Preprocess enriches the message text with fetched link content and returns
// it alongside one status line per detected URL. Text without URLs comes back
// unchanged with a nil summary list.
func (p *Preprocessor) Preprocess(ctx context.Context, text string) (string, []string) {
	urls := detect.Detect(text)
	if len(urls) == 0 {
		return text, nil
	}
	p.log.Info().Int("count", len(urls)).Msg("urls detected")

	var enrichments []string
	var summaries []string

	for _, u := range urls {
		content, method := p.fetchOne(ctx, u)
		if content != "" {
			enrichments = append(enrichments, content)
			summaries = append(summaries, fmt.Sprintf("✅ %s → %s", u.URL, method))
			p.log.Info().Str("url", u.URL).Stringer("method", method).Msg("url fetched")
		} else {
			summaries = append(summaries, fmt.Sprintf("⚠️ %s → %s", u.URL, fetcher.MethodUnfetched))
			p.log.Warn().Str("url", u.URL).Msg("url fetch failed")
		}
	}

	if len(enrichments) == 0 {
		return text, summaries
	}

	block := strings.Join(enrichments, "\n\n---\n")
	enriched := fmt.Sprintf("%s\n\n%s\n\n%s\n\n%s\n", text, blockHeader, block, blockTrailer)
	return enriched, summaries
}

// fetchOne runs the platform's fallback chain for a single URL and returns
// the winning content with its method tag, or ("", MethodUnfetched).
func (p *Preprocessor) fetchOne(ctx context.Context, u detect.DetectedURL) (string, fetcher.Method) {
	var content string
	method := fetcher.MethodUnfetched

	switch u.Platform {
	case detect.PlatformXTwitter:
		if res, err := p.fx.Fetch(ctx, u.URL); err == nil {
			content, method = res.Text, fetcher.MethodFxTwitter
			if len(res.ImageURLs) > 0 && p.vision != nil {
				if desc, ok := p.vision.Analyze(ctx, res.ImageURLs, fetcher.TweetBody(res.Text)); ok {
					content += "\n\n" + desc
					method = fetcher.MethodFxTwitterVision
				}
			}
		} else if res, err := p.ytdlp.Fetch(ctx, u.URL); err == nil {
			content, method = res.Text, fetcher.MethodYtDlp
		}

	case detect.PlatformYouTube:
		if res, err := p.ytdlp.Fetch(ctx, u.URL); err == nil {
			content, method = res.Text, fetcher.MethodYtDlp
		}
	}

	if content == "" {
		if res, err := p.scraper.Fetch(ctx, u.URL); err == nil {
			content, method = res.Text, fetcher.MethodHTTP
		}
	}

	// Structured extraction applies to general URLs only; the specialized
	// chains already produce structured summaries.
	if content != "" && u.Platform == detect.PlatformGeneral && p.enhancer != nil {
		if enhanced, ok := p.enhancer.Enhance(ctx, content, u.URL); ok {
			content, method = enhanced, fetcher.MethodHTTPExtract
		}
	}

	return content, method
}

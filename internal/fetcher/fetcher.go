// Package fetcher implements the per-platform URL fetch strategies. Each
// fetcher takes one URL and returns a normalized text summary, or an error
// when the strategy produced nothing usable. Fetchers log their own
// diagnostics; the orchestrator treats any error as "no result" and moves on.
package fetcher

import "time"

// Method identifies which fetch strategy produced a result. It is a closed
// set so status reporting can be checked exhaustively instead of built from
// string concatenation.
type Method int

const (
	// MethodUnfetched means no strategy in the chain produced content.
	MethodUnfetched Method = iota
	// MethodFxTwitter is the fxtwitter mirror API.
	MethodFxTwitter
	// MethodFxTwitterVision is the mirror API plus image analysis.
	MethodFxTwitterVision
	// MethodYtDlp is the yt-dlp metadata extractor.
	MethodYtDlp
	// MethodHTTP is the raw title/meta scrape.
	MethodHTTP
	// MethodHTTPExtract is the raw scrape plus structured extraction.
	MethodHTTPExtract
)

// String returns the user-facing label used in per-URL summary lines.
func (m Method) String() string {
	switch m {
	case MethodFxTwitter:
		return "fxtwitter"
	case MethodFxTwitterVision:
		return "fxtwitter+img"
	case MethodYtDlp:
		return "yt-dlp"
	case MethodHTTP:
		return "http"
	case MethodHTTPExtract:
		return "http+extract"
	default:
		return "unfetched"
	}
}

// Result is the outcome of one successful fetch attempt.
type Result struct {
	Text      string
	ImageURLs []string
}

// Options bounds every fetch strategy.
type Options struct {
	Timeout   time.Duration
	MaxImages int
	UserAgent string
}

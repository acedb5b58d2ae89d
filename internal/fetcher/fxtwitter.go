package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// fxHostPattern rewrites twitter.com / x.com to the fxtwitter mirror API host.
var fxHostPattern = regexp.MustCompile(`https?://(www\.)?(twitter\.com|x\.com)`)

// FxTwitter fetches tweet content via the api.fxtwitter.com read-only mirror,
// avoiding the platform's own authenticated API.
type FxTwitter struct {
	http *http.Client
	opts Options
	log  zerolog.Logger
}

// NewFxTwitter creates an FxTwitter fetcher.
func NewFxTwitter(opts Options, log zerolog.Logger) *FxTwitter {
	return &FxTwitter{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
		log:  log.With().Str("fetcher", "fxtwitter").Logger(),
	}
}

// NewFxTwitterWithHTTPClient creates an FxTwitter fetcher with a custom
// http.Client (for testing).
func NewFxTwitterWithHTTPClient(c *http.Client, opts Options, log zerolog.Logger) *FxTwitter {
	return &FxTwitter{http: c, opts: opts, log: log}
}

type fxResponse struct {
	Tweet *fxTweet `json:"tweet"`
}

type fxTweet struct {
	Author    *fxAuthor  `json:"author"`
	Text      string     `json:"text"`
	Article   *fxArticle `json:"article"`
	Media     *fxMedia   `json:"media"`
	Likes     int64      `json:"likes"`
	Retweets  int64      `json:"retweets"`
	Replies   int64      `json:"replies"`
	CreatedAt string     `json:"created_at"`
	Quote     *fxTweet   `json:"quote"`
}

type fxAuthor struct {
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

type fxArticle struct {
	Title   string `json:"title"`
	Content struct {
		Blocks []fxBlock `json:"blocks"`
	} `json:"content"`
}

type fxBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type fxMedia struct {
	Photos []struct {
		URL string `json:"url"`
	} `json:"photos"`
	Videos []struct {
		Type         string `json:"type"`
		ThumbnailURL string `json:"thumbnail_url"`
	} `json:"videos"`
}

// Fetch retrieves a tweet through the mirror API. Every field is optional for
// partial success, but a response without the top-level tweet record is an
// error. Harvested image URLs (photos plus GIF thumbnails) are capped at
// Options.MaxImages.
func (f *FxTwitter) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	apiURL := fxHostPattern.ReplaceAllString(rawURL, "https://api.fxtwitter.com")

	f.log.Info().Str("url", apiURL).Msg("fetching tweet")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.http.Do(req)
	if err != nil {
		f.log.Warn().Err(err).Str("url", rawURL).Msg("tweet fetch failed")
		return nil, fmt.Errorf("fetching tweet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.log.Warn().Int("status", resp.StatusCode).Str("url", rawURL).Msg("tweet fetch failed")
		return nil, fmt.Errorf("fxtwitter returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var parsed fxResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		f.log.Warn().Err(err).Str("url", rawURL).Msg("tweet response not parseable")
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Tweet == nil {
		f.log.Warn().Str("url", rawURL).Msg("no tweet record in response")
		return nil, fmt.Errorf("no tweet record in response")
	}

	result := f.render(rawURL, parsed.Tweet)
	f.log.Info().Int("chars", len(result.Text)).Int("images", len(result.ImageURLs)).Msg("tweet fetched")
	return result, nil
}

func (f *FxTwitter) render(rawURL string, tweet *fxTweet) *Result {
	var parts []string
	parts = append(parts, "📌 Tweet source: "+rawURL)

	if tweet.Author != nil {
		parts = append(parts, fmt.Sprintf("👤 Author: %s (@%s)", tweet.Author.Name, tweet.Author.ScreenName))
	}
	if tweet.Text != "" {
		parts = append(parts, "📝 Content:\n"+tweet.Text)
	}

	if tweet.Article != nil {
		if tweet.Article.Title != "" {
			parts = append(parts, "📰 Article title: "+tweet.Article.Title)
		}
		if body := renderArticleBlocks(tweet.Article.Content.Blocks); body != "" {
			parts = append(parts, "📝 Article content:\n"+body)
		}
	}

	var imageURLs []string
	if tweet.Media != nil {
		photos := tweet.Media.Photos
		for _, photo := range photos {
			if len(imageURLs) >= f.opts.MaxImages {
				break
			}
			if photo.URL != "" {
				imageURLs = append(imageURLs, photo.URL)
			}
		}
		if len(photos) > 0 {
			parts = append(parts, fmt.Sprintf("🖼️ Contains %d photo(s)", len(photos)))
		}

		// GIFs come back typed as videos; their thumbnails are still worth
		// running through image analysis.
		gifCount := 0
		for _, video := range tweet.Media.Videos {
			if video.Type == "gif" && video.ThumbnailURL != "" && len(imageURLs) < f.opts.MaxImages {
				imageURLs = append(imageURLs, video.ThumbnailURL)
				gifCount++
			}
		}
		if gifCount > 0 {
			parts = append(parts, fmt.Sprintf("🎞️ Contains %d GIF(s) (thumbnails captured for analysis)", gifCount))
		}
		if videoCount := len(tweet.Media.Videos) - gifCount; videoCount > 0 {
			parts = append(parts, fmt.Sprintf("🎬 Contains %d video(s)", videoCount))
		}
	}

	if tweet.Likes != 0 || tweet.Retweets != 0 || tweet.Replies != 0 {
		parts = append(parts, fmt.Sprintf("💬 Engagement: %d likes / %d retweets / %d replies",
			tweet.Likes, tweet.Retweets, tweet.Replies))
	}
	if tweet.CreatedAt != "" {
		parts = append(parts, "📅 Posted: "+tweet.CreatedAt)
	}

	// One level of quoted tweet; deeper nesting is ignored.
	if tweet.Quote != nil {
		screenName := "?"
		if tweet.Quote.Author != nil {
			screenName = tweet.Quote.Author.ScreenName
		}
		parts = append(parts, fmt.Sprintf("\n↩️ Quoted tweet (@%s):\n%s", screenName, tweet.Quote.Text))
	}

	return &Result{Text: strings.Join(parts, "\n"), ImageURLs: imageURLs}
}

// renderArticleBlocks re-renders a long-form article's ordered content blocks
// as markdown-ish text by block type.
func renderArticleBlocks(blocks []fxBlock) string {
	var lines []string
	for _, block := range blocks {
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}
		switch {
		case strings.HasPrefix(block.Type, "header"):
			lines = append(lines, "\n## "+text)
		case block.Type == "blockquote":
			lines = append(lines, "> "+text)
		case block.Type == "ordered-list-item" || block.Type == "unordered-list-item":
			lines = append(lines, "- "+text)
		default:
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n")
}

// TweetBody returns the tweet body line from rendered fxtwitter content, used
// as context for image analysis.
func TweetBody(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "📝 Content:") {
			rest := strings.TrimSpace(strings.TrimPrefix(line, "📝 Content:"))
			if rest == "" && i+1 < len(lines) {
				return strings.TrimSpace(lines[i+1])
			}
			return rest
		}
	}
	return ""
}

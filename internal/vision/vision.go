// Package vision downloads images in memory and describes them through a
// vision-capable chat model. It is platform-agnostic: it never knows where
// the image URLs came from.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/rs/zerolog"
)

const (
	// minImageBytes rejects tiny responses that are likely placeholders or
	// error pages rather than real images.
	minImageBytes = 1000
	// maxImageBytes rejects oversized downloads.
	maxImageBytes = 20 * 1024 * 1024
	// contextCap limits how much post text is passed as a hint.
	contextCap = 500
)

// Config holds image analysis settings.
type Config struct {
	Enabled   bool
	Model     string
	MaxImages int
	Timeout   time.Duration
	UserAgent string
}

// Analyzer runs the image analysis sub-pipeline. A nil client means the
// vision capability is absent and every Analyze call short-circuits.
type Analyzer struct {
	client *openai.Client
	http   *http.Client
	cfg    Config
	log    zerolog.Logger
}

// New creates an Analyzer. Pass a nil client when no vision credential is
// configured.
func New(client *openai.Client, cfg Config, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		client: client,
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		log:    log.With().Str("component", "vision").Logger(),
	}
}

// NewWithHTTPClient creates an Analyzer with a custom download client (for
// testing).
func NewWithHTTPClient(client *openai.Client, httpc *http.Client, cfg Config, log zerolog.Logger) *Analyzer {
	return &Analyzer{client: client, http: httpc, cfg: cfg, log: log}
}

// Available reports whether image analysis can run at all.
func (a *Analyzer) Available() bool {
	return a.cfg.Enabled && a.client != nil
}

// Analyze downloads each image and asks the vision model to describe it,
// using textContext as an optional hint. Every attempted image yields exactly
// one entry, in input order, failures included, so the description count
// always equals the attempted count. Returns ("", false) when analysis is
// disabled, the vision client is absent, or the input list is empty.
func (a *Analyzer) Analyze(ctx context.Context, imageURLs []string, textContext string) (string, bool) {
	if !a.cfg.Enabled {
		a.log.Info().Msg("image analysis disabled")
		return "", false
	}
	if a.client == nil {
		a.log.Info().Msg("vision client unavailable, skipping image analysis")
		return "", false
	}
	if len(imageURLs) == 0 {
		return "", false
	}

	urls := imageURLs
	if len(urls) > a.cfg.MaxImages {
		urls = urls[:a.cfg.MaxImages]
	}
	a.log.Info().Int("count", len(urls)).Msg("analyzing images")

	descriptions := make([]string, 0, len(urls))
	for i, imgURL := range urls {
		dataURI, err := a.downloadToDataURI(ctx, imgURL)
		if err != nil {
			a.log.Warn().Err(err).Str("url", truncate(imgURL, 80)).Msg("image download failed")
			descriptions = append(descriptions, fmt.Sprintf("[Image %d] download failed, could not analyze", i+1))
			continue
		}

		desc, err := a.describe(ctx, dataURI, textContext)
		if err != nil || desc == "" {
			a.log.Warn().Err(err).Str("url", truncate(imgURL, 80)).Msg("image analysis failed")
			descriptions = append(descriptions, fmt.Sprintf("[Image %d] analysis failed, no description available", i+1))
			continue
		}

		a.log.Info().Int("chars", len(desc)).Msg("image described")
		descriptions = append(descriptions, fmt.Sprintf("[Image %d] %s", i+1, desc))
	}

	if len(descriptions) == 0 {
		return "", false
	}

	header := fmt.Sprintf("📷 Image analysis (%d image(s)):", len(urls))
	return header + "\n\n" + strings.Join(descriptions, "\n\n"), true
}

// downloadToDataURI fetches the image into memory and encodes it as a base64
// data URI. Nothing is written to disk.
func (a *Analyzer) downloadToDataURI(ctx context.Context, imgURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if len(data) < minImageBytes {
		return "", fmt.Errorf("image too small (%d bytes), likely a placeholder", len(data))
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image too large (over %d bytes)", maxImageBytes)
	}

	mimeType := mimeFromContentType(resp.Header.Get("Content-Type"))
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
}

// describe submits one encoded image plus an optional text hint to the
// vision model.
func (a *Analyzer) describe(ctx context.Context, dataURI, textContext string) (string, error) {
	prompt := "Describe this image in detail. Include any visible text, data, charts, or other visual information."
	if textContext != "" {
		prompt = fmt.Sprintf(
			"This image comes from a social media post that says: %s\n\n"+
				"Given that context, describe the image in detail. "+
				"Include any visible text, data, charts, or other visual information.",
			truncate(textContext, contextCap))
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	resp, err := a.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							{
								OfText: &openai.ChatCompletionContentPartTextParam{Text: prompt},
							},
							{
								OfImageURL: &openai.ChatCompletionContentPartImageParam{
									ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
										URL:    dataURI,
										Detail: "auto",
									},
								},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision call returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// mimeFromContentType maps a response content type to a supported image MIME
// type, defaulting to JPEG.
func mimeFromContentType(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return "image/png"
	case strings.Contains(contentType, "gif"):
		return "image/gif"
	case strings.Contains(contentType, "webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

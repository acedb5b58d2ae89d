package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// YtDlp extracts URL metadata by running the yt-dlp binary in info-only mode.
// It supports YouTube and the hundreds of other sites yt-dlp knows about.
type YtDlp struct {
	binary    string
	available bool
	opts      Options
	log       zerolog.Logger
}

// NewYtDlp creates a YtDlp fetcher. available reflects the YtDlp capability
// (binary found on PATH at startup); when false every Fetch reports no result
// without spawning anything.
func NewYtDlp(available bool, opts Options, log zerolog.Logger) *YtDlp {
	return &YtDlp{
		binary:    "yt-dlp",
		available: available,
		opts:      opts,
		log:       log.With().Str("fetcher", "yt-dlp").Logger(),
	}
}

// Available reports whether the yt-dlp binary can be used.
func (y *YtDlp) Available() bool {
	return y.available
}

// ytdlpInfo is the subset of yt-dlp's JSON info dump we render.
type ytdlpInfo struct {
	Title             string                     `json:"title"`
	Uploader          string                     `json:"uploader"`
	Channel           string                     `json:"channel"`
	Description       string                     `json:"description"`
	Duration          float64                    `json:"duration"`
	ViewCount         int64                      `json:"view_count"`
	LikeCount         int64                      `json:"like_count"`
	UploadDate        string                     `json:"upload_date"`
	Subtitles         map[string]json.RawMessage `json:"subtitles"`
	AutomaticCaptions map[string]json.RawMessage `json:"automatic_captions"`
}

// Fetch runs yt-dlp against the URL in skip-download mode and renders the
// returned metadata.
func (y *YtDlp) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if !y.available {
		return nil, fmt.Errorf("yt-dlp not available")
	}

	y.log.Info().Str("url", rawURL).Msg("extracting metadata")

	runCtx, cancel := context.WithTimeout(ctx, y.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, y.binary,
		"-J",
		"--no-warnings",
		"--skip-download",
		"--socket-timeout", strconv.Itoa(int(y.opts.Timeout.Seconds())),
		rawURL,
	)
	out, err := cmd.Output()
	if err != nil {
		y.log.Warn().Err(err).Str("url", rawURL).Msg("yt-dlp failed")
		return nil, fmt.Errorf("running yt-dlp: %w", err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		y.log.Warn().Err(err).Str("url", rawURL).Msg("yt-dlp output not parseable")
		return nil, fmt.Errorf("decoding yt-dlp output: %w", err)
	}

	text, ok := renderInfo(rawURL, info)
	if !ok {
		y.log.Warn().Str("url", rawURL).Msg("yt-dlp returned no usable metadata")
		return nil, fmt.Errorf("no metadata extracted")
	}

	y.log.Info().Int("chars", len(text)).Msg("metadata extracted")
	return &Result{Text: text}, nil
}

// descriptionCap limits how much of a video description is included.
const descriptionCap = 1000

func renderInfo(rawURL string, info ytdlpInfo) (string, bool) {
	parts := []string{"🔗 Source: " + rawURL}

	if info.Title != "" {
		parts = append(parts, "📌 Title: "+info.Title)
	}

	uploader := info.Uploader
	if uploader == "" {
		uploader = info.Channel
	}
	if uploader != "" {
		parts = append(parts, "👤 Uploader/channel: "+uploader)
	}

	if info.Description != "" {
		desc := info.Description
		if len(desc) > descriptionCap {
			desc = desc[:descriptionCap] + "...(truncated)"
		}
		parts = append(parts, "📝 Description:\n"+desc)
	}

	if info.Duration > 0 {
		parts = append(parts, "⏱️ Duration: "+formatDuration(int(info.Duration)))
	}

	var stats []string
	if info.ViewCount > 0 {
		stats = append(stats, formatCount(info.ViewCount)+" views")
	}
	if info.LikeCount > 0 {
		stats = append(stats, formatCount(info.LikeCount)+" likes")
	}
	if len(stats) > 0 {
		parts = append(parts, "📊 Stats: "+strings.Join(stats, " / "))
	}

	if d := formatUploadDate(info.UploadDate); d != "" {
		parts = append(parts, "📅 Upload date: "+d)
	}

	if langs := subtitleLangs(info, 10); len(langs) > 0 {
		parts = append(parts, "💬 Subtitle languages: "+strings.Join(langs, ", "))
	}

	if len(parts) <= 1 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// formatDuration renders seconds as H:MM:SS, or M:SS under an hour.
func formatDuration(seconds int) string {
	mins, secs := seconds/60, seconds%60
	hours, mins := mins/60, mins%60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// formatCount renders a count with thousands separators (1234567 -> 1,234,567).
func formatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatUploadDate reformats yt-dlp's YYYYMMDD to YYYY-MM-DD.
func formatUploadDate(raw string) string {
	if len(raw) != 8 {
		return ""
	}
	return raw[:4] + "-" + raw[4:6] + "-" + raw[6:]
}

// subtitleLangs collects subtitle then auto-caption language codes, capped.
// Each group is sorted so output is deterministic.
func subtitleLangs(info ytdlpInfo, max int) []string {
	langs := append(sortedKeys(info.Subtitles), sortedKeys(info.AutomaticCaptions)...)
	if len(langs) > max {
		langs = langs[:max]
	}
	return langs
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

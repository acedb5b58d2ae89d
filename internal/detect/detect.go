// Package detect finds URLs in free text and classifies them by platform.
package detect

import "regexp"

// Platform identifies which fetch chain handles a URL.
type Platform int

const (
	// PlatformXTwitter matches x.com, twitter.com and t.co links.
	PlatformXTwitter Platform = iota
	// PlatformYouTube matches youtube.com/watch, youtu.be and shorts links.
	PlatformYouTube
	// PlatformGeneral matches any other http(s) URL.
	PlatformGeneral
)

func (p Platform) String() string {
	switch p {
	case PlatformXTwitter:
		return "x_twitter"
	case PlatformYouTube:
		return "youtube"
	default:
		return "general"
	}
}

// DetectedURL is a URL found in a message, tagged with its platform. The
// platform is decided once at detection time and never reclassified.
type DetectedURL struct {
	URL      string
	Platform Platform
}

// Patterns run in priority order: specialized platforms claim their URLs
// before the general catch-all sees them.
var platformPatterns = []struct {
	platform Platform
	patterns []*regexp.Regexp
}{
	{PlatformXTwitter, []*regexp.Regexp{
		regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:twitter\.com|x\.com)/\S+`),
		regexp.MustCompile(`(?:https?://)?t\.co/\S+`),
	}},
	{PlatformYouTube, []*regexp.Regexp{
		regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/watch\S+`),
		regexp.MustCompile(`(?:https?://)?youtu\.be/\S+`),
		regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/shorts/\S+`),
	}},
	{PlatformGeneral, []*regexp.Regexp{
		regexp.MustCompile(`https?://\S+`),
	}},
}

// Detect scans text for URLs and classifies each one. Output is ordered by
// platform priority group, then left-to-right within each group. Duplicate
// URL strings keep their first classification. Pure function, no I/O.
func Detect(text string) []DetectedURL {
	var found []DetectedURL
	seen := make(map[string]bool)

	for _, group := range platformPatterns {
		for _, pattern := range group.patterns {
			for _, match := range pattern.FindAllString(text, -1) {
				if seen[match] {
					continue
				}
				seen[match] = true
				found = append(found, DetectedURL{URL: match, Platform: group.platform})
			}
		}
	}

	return found
}

package platform

import (
	"net/url"
	"strings"
)

// Platform is the content platform a URL belongs to.
type Platform string

const (
	YouTube Platform = "youtube"
	Reddit  Platform = "reddit"
	Generic Platform = "generic"
)

// Classify maps a URL to its platform by hostname inspection only.
// No network I/O; anything unrecognized is Generic.
func Classify(rawURL string) Platform {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Generic
	}
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch {
	case host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com"):
		return YouTube
	case host == "reddit.com" || host == "redd.it" || strings.HasSuffix(host, ".reddit.com"):
		return Reddit
	default:
		return Generic
	}
}

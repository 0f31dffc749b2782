package lens

import (
	"net/url"
	"regexp"
	"strings"
)

const creatorProfilePrefix = "https://lensstudio.snapchat.com/creator/"

var contentHashPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// ParseUUID extracts a 32-character content hash from a search term. The
// term may be the bare hash or a share deeplink carrying it as the "uuid"
// query parameter. Returns "" when the term carries no hash.
func ParseUUID(term string) string {
	trimmed := strings.TrimSpace(term)
	if contentHashPattern.MatchString(trimmed) {
		return trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	candidate := strings.ToLower(parsed.Query().Get("uuid"))
	if contentHashPattern.MatchString(candidate) {
		return candidate
	}
	return ""
}

// CreatorProfileSlug returns the trailing path segment when the term is a
// creator profile link, and "" otherwise.
func CreatorProfileSlug(term string) string {
	trimmed := strings.TrimSpace(term)
	if !strings.HasPrefix(trimmed, creatorProfilePrefix) {
		return ""
	}
	slug := trimmed[strings.LastIndex(trimmed, "/")+1:]
	return slug
}

package service

import (
	"regexp"
	"strings"
)

var (
	nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)
	videoURLRe  = regexp.MustCompile(`^https?://(www\.)?(youtube\.com/watch\?v=|youtu\.be/|vimeo\.com/).+$`)
	imageURLRe  = regexp.MustCompile(`(?i)^https?://.+\.(jpg|jpeg|png|gif|webp|svg)$`)
)

// Slugify derives a URL-safe identifier: lowercase, runs of non-alphanumeric
// characters collapsed to a single hyphen, leading/trailing hyphens removed.
// Idempotent: Slugify(Slugify(s)) == Slugify(s).
func Slugify(s string) string {
	s = nonAlnumRun.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// ValidVideoURL reports whether v is an acceptable YouTube or Vimeo URL.
// Empty is valid; the field is optional.
func ValidVideoURL(v string) bool {
	return v == "" || videoURLRe.MatchString(v)
}

// ValidImageURL reports whether v looks like a hosted image URL.
func ValidImageURL(v string) bool {
	return imageURLRe.MatchString(v)
}

package workspace

import (
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases the input and collapses every non-alphanumeric
// run to a single dash.
func Slugify(input string) string {
	lower := strings.ToLower(strings.TrimSpace(input))
	slug := nonSlugChars.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// TeamSlug builds a workspace slug from the Slack team name plus the
// last four characters of the team id. The suffix keeps slugs short
// and collision-resistant without a global counter.
func TeamSlug(teamName, teamID string) string {
	suffix := teamID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	suffix = strings.ToLower(suffix)
	base := Slugify(teamName)
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

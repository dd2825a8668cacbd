package slack

import "regexp"

var (
	boldPattern       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	starBulletPattern = regexp.MustCompile(`(?m)^\*\s+`)
	dashBulletPattern = regexp.MustCompile(`(?m)^-\s+`)
)

// ToMrkdwn converts the pipeline's markdown to Slack's mrkdwn dialect:
// **bold** becomes *bold*, and markdown bullets at the start of a line
// become •. Double-emphasis runs first so a line-leading "*" that is
// emphasis is not misread as a bullet.
func ToMrkdwn(text string) string {
	text = boldPattern.ReplaceAllString(text, "*$1*")
	text = starBulletPattern.ReplaceAllString(text, "• ")
	text = dashBulletPattern.ReplaceAllString(text, "• ")
	return text
}

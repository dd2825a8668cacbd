package extract

import (
	"context"
	"regexp"
	"strings"
)

// FallbackExtractor derives a task draft from keyword heuristics
// alone. It is used whenever the AI path is unavailable, errors, or
// returns unparseable output, and its confidence is pinned to 0.5 so
// downstream consumers can tell heuristic drafts from model-derived
// ones.
type FallbackExtractor struct{}

var (
	criticalKeywords = []string{"urgent", "asap", "critical", "production down"}
	highKeywords     = []string{"important", "blocking"}
	lowKeywords      = []string{"minor", "nice to have"}

	bugKeywords         = []string{"bug", "broken", "not working", "error", "crash", "fails"}
	featureKeywords     = []string{"feature", "add ", "new "}
	improvementKeywords = []string{"improve", "enhance", "update"}
	questionKeywords    = []string{"?", "how", "why"}

	filePathPattern = regexp.MustCompile(`(?i)(?:^|[\s(])([.\w/-]+\.[a-z]{1,4})(?:[\s):]|$)`)
	sentenceEnd     = regexp.MustCompile(`[.!?\n]`)
)

// Extract applies the deterministic rules to the input text. The
// context and channel arguments exist to satisfy Extractor; neither is
// consulted.
func (FallbackExtractor) Extract(_ context.Context, text, _ string) TaskDraft {
	lower := strings.ToLower(text)

	priority := PriorityMedium
	switch {
	case containsAny(lower, criticalKeywords):
		priority = PriorityCritical
	case containsAny(lower, highKeywords):
		priority = PriorityHigh
	case containsAny(lower, lowKeywords):
		priority = PriorityLow
	}

	taskType := TypeTask
	switch {
	case containsAny(lower, bugKeywords):
		taskType = TypeBug
	case containsAny(lower, featureKeywords):
		taskType = TypeFeature
	case containsAny(lower, improvementKeywords):
		taskType = TypeImprovement
	case containsAny(lower, questionKeywords):
		taskType = TypeQuestion
	}

	draft := TaskDraft{
		Title:       firstSentenceTitle(text),
		Description: text,
		Priority:    priority,
		TaskType:    taskType,
		Confidence:  0.5,
	}
	if paths := extractFilePaths(text); len(paths) > 0 {
		draft.CodeContext = &CodeContext{FilePaths: paths}
	}
	return draft
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractFilePaths collects path-looking tokens in order of first
// appearance. A token only counts when it contains a path separator or
// carries a source-file extension.
func extractFilePaths(text string) []string {
	var paths []string
	for _, match := range filePathPattern.FindAllStringSubmatch(text, -1) {
		token := match[1]
		if strings.Contains(token, "/") ||
			strings.HasSuffix(token, ".ts") ||
			strings.HasSuffix(token, ".tsx") ||
			strings.HasSuffix(token, ".js") {
			paths = append(paths, token)
		}
	}
	return paths
}

func firstSentenceTitle(text string) string {
	title := text
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		title = text[:loc[0]]
	}
	title = strings.TrimSpace(title)
	if r := []rune(title); len(r) > 80 {
		title = string(r[:77]) + "..."
	}
	return title
}

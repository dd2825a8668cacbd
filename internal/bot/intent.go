package bot

import (
	"regexp"
	"strings"

	"github.com/fixbothq/fixbot/internal/task"
)

// intent is what the user asked the bot to do. Anything that is not a
// recognized command becomes a task-creation request.
type intent int

const (
	intentCreate intent = iota
	intentSummarize
	intentUpdateStatus
	intentAssign
)

var (
	markPattern   = regexp.MustCompile(`(?i)\bmark\s+([A-Za-z]+-\d+)\s+as\s+([a-z_ ]+)`)
	assignPattern = regexp.MustCompile(`(?i)\bassign\s+([A-Za-z]+-\d+)\s+to\s+<@([A-Z0-9]+)>`)
)

// command is a parsed bot instruction.
type command struct {
	kind      intent
	displayID string
	status    task.Status
	assignee  string
}

// classify decides what a cleaned mention text asks for. Routing is
// deterministic rather than model-driven so command handling keeps
// working when the extraction service is down.
func classify(text string) command {
	if m := markPattern.FindStringSubmatch(text); m != nil {
		if status, ok := parseStatus(m[2]); ok {
			return command{kind: intentUpdateStatus, displayID: strings.ToUpper(m[1]), status: status}
		}
	}
	if m := assignPattern.FindStringSubmatch(text); m != nil {
		return command{kind: intentAssign, displayID: strings.ToUpper(m[1]), assignee: strings.ToUpper(m[2])}
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "summarize" || lower == "summary" || lower == "status" {
		return command{kind: intentSummarize}
	}
	return command{kind: intentCreate}
}

func parseStatus(raw string) (task.Status, bool) {
	normalized := strings.Join(strings.Fields(strings.ToLower(raw)), "_")
	if status := task.Status(normalized); status.Valid() {
		return status, true
	}
	return "", false
}

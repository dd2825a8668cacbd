package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// LLMExtractor asks the extraction service for a structured draft and
// post-validates everything it returns. Any failure along the way —
// transport error, timeout, no JSON in the reply, parse failure —
// degrades to the deterministic fallback on the original input text.
type LLMExtractor struct {
	generator Generator
	fallback  FallbackExtractor
	logger    *slog.Logger
	timeout   time.Duration
}

// NewLLMExtractor creates an AI-backed extractor.
func NewLLMExtractor(log *slog.Logger, generator Generator, timeout time.Duration) *LLMExtractor {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMExtractor{
		generator: generator,
		logger:    log.With(slog.String("service", "extract")),
		timeout:   timeout,
	}
}

// rawDraft is the trust boundary for the model's untyped JSON. Every
// field is defaulted during coercion; nothing here reaches the caller
// unvalidated except CodeContext, whose shape the storage schema
// enforces.
type rawDraft struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    any          `json:"priority"`
	TaskType    any          `json:"taskType"`
	Confidence  any          `json:"confidence"`
	CodeContext *CodeContext `json:"codeContext"`
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, text, channelContext string) TaskDraft {
	if e.generator == nil {
		return e.fallback.Extract(ctx, text, channelContext)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	response, err := e.generator.Generate(callCtx, buildPrompt(text, channelContext))
	if err != nil {
		e.logger.Warn("extraction call failed, using fallback", slog.Any("error", err))
		return e.fallback.Extract(ctx, text, channelContext)
	}

	region := firstJSONObject(response)
	if region == "" {
		e.logger.Warn("no JSON object in extraction response, using fallback")
		return e.fallback.Extract(ctx, text, channelContext)
	}

	var raw rawDraft
	if err := json.Unmarshal([]byte(region), &raw); err != nil {
		e.logger.Warn("extraction response unparseable, using fallback", slog.Any("error", err))
		return e.fallback.Extract(ctx, text, channelContext)
	}

	title := clampRunes(raw.Title, 80)
	if title == "" {
		title = clampRunes(text, 80)
	}
	description := raw.Description
	if description == "" {
		description = text
	}

	return TaskDraft{
		Title:       title,
		Description: description,
		Priority:    coercePriority(raw.Priority),
		TaskType:    coerceTaskType(raw.TaskType),
		Confidence:  coerceConfidence(raw.Confidence),
		CodeContext: raw.CodeContext,
	}
}

func buildPrompt(text, channelContext string) string {
	var b strings.Builder
	b.WriteString("Extract task information from this Slack message and respond with ONLY a JSON object (no markdown, no explanation):\n")
	if channelContext != "" {
		fmt.Fprintf(&b, "\nChannel: #%s", channelContext)
	}
	fmt.Fprintf(&b, "\nMessage: %s\n", text)
	b.WriteString(`
Required JSON format:
{
  "title": "Brief task title (max 80 chars, start with verb)",
  "description": "Fuller description",
  "priority": "critical|high|medium|low",
  "taskType": "bug|feature|improvement|task|question",
  "confidence": 0.0-1.0,
  "codeContext": { "filePaths": [], "errorMessage": "" } // optional
}`)
	return b.String()
}

// clampRunes truncates s to at most n characters, never splitting a
// multibyte rune.
func clampRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// firstJSONObject returns the first balanced {...} region of the
// response, or empty string when there is none. Braces inside JSON
// strings are skipped.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

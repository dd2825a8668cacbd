package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	response string
	err      error
	prompt   string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.response, g.err
}

func newTestExtractor(gen Generator) *LLMExtractor {
	return NewLLMExtractor(nil, gen, time.Second)
}

func TestExtractParsesValidResponse(t *testing.T) {
	gen := &fakeGenerator{response: `Here you go:
{"title": "Fix login flow", "description": "Users cannot log in", "priority": "high", "taskType": "bug", "confidence": 0.9}`}

	draft := newTestExtractor(gen).Extract(context.Background(), "login broken", "eng-bugs")

	assert.Equal(t, "Fix login flow", draft.Title)
	assert.Equal(t, "Users cannot log in", draft.Description)
	assert.Equal(t, PriorityHigh, draft.Priority)
	assert.Equal(t, TypeBug, draft.TaskType)
	assert.Equal(t, 0.9, draft.Confidence)
	assert.Contains(t, gen.prompt, "Channel: #eng-bugs")
	assert.Contains(t, gen.prompt, "Message: login broken")
}

func TestExtractClampsInvalidFields(t *testing.T) {
	gen := &fakeGenerator{response: `{"title": "Do the thing", "priority": "SEV1", "taskType": "incident", "confidence": "high"}`}

	draft := newTestExtractor(gen).Extract(context.Background(), "do the thing", "")

	assert.Equal(t, PriorityMedium, draft.Priority)
	assert.Equal(t, TypeTask, draft.TaskType)
	assert.Equal(t, 0.7, draft.Confidence)
	// Missing description falls back to the original text.
	assert.Equal(t, "do the thing", draft.Description)
}

func TestExtractClampsLongTitle(t *testing.T) {
	long := strings.Repeat("t", 120)
	gen := &fakeGenerator{response: `{"title": "` + long + `", "priority": "low", "taskType": "task", "confidence": 0.8}`}

	draft := newTestExtractor(gen).Extract(context.Background(), "text", "")
	assert.Len(t, draft.Title, 80)
}

func TestExtractClampsTitleOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("日", 100)
	gen := &fakeGenerator{response: `{"title": "` + long + `", "priority": "low", "taskType": "task", "confidence": 0.8}`}

	draft := newTestExtractor(gen).Extract(context.Background(), "text", "")
	assert.True(t, utf8.ValidString(draft.Title))
	assert.Len(t, []rune(draft.Title), 80)

	// A short multibyte title is within the character limit and must
	// come through untouched.
	gen = &fakeGenerator{response: `{"title": "` + strings.Repeat("日", 50) + `", "priority": "low", "taskType": "task", "confidence": 0.8}`}
	draft = newTestExtractor(gen).Extract(context.Background(), "text", "")
	assert.Equal(t, strings.Repeat("日", 50), draft.Title)
}

func TestExtractFallsBackOnServiceError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("timeout")}

	draft := newTestExtractor(gen).Extract(context.Background(), "URGENT: login is broken on auth.ts", "")

	// Fallback on the original input text, not the failed response.
	assert.Equal(t, PriorityCritical, draft.Priority)
	assert.Equal(t, TypeBug, draft.TaskType)
	assert.Equal(t, 0.5, draft.Confidence)
	require.NotNil(t, draft.CodeContext)
	assert.Equal(t, []string{"auth.ts"}, draft.CodeContext.FilePaths)
}

func TestExtractFallsBackWithoutJSON(t *testing.T) {
	gen := &fakeGenerator{response: "I could not extract anything useful."}

	draft := newTestExtractor(gen).Extract(context.Background(), "minor tweak", "")
	assert.Equal(t, 0.5, draft.Confidence)
	assert.Equal(t, PriorityLow, draft.Priority)
}

func TestExtractFallsBackOnUnparseableJSON(t *testing.T) {
	gen := &fakeGenerator{response: `{"title": `}

	draft := newTestExtractor(gen).Extract(context.Background(), "broken stuff", "")
	assert.Equal(t, 0.5, draft.Confidence)
}

func TestExtractPassesCodeContextThrough(t *testing.T) {
	gen := &fakeGenerator{response: `{"title": "Fix crash", "priority": "high", "taskType": "bug", "confidence": 0.8,
		"codeContext": {"filePaths": ["src/db.ts"], "errorMessage": "nil deref"}}`}

	draft := newTestExtractor(gen).Extract(context.Background(), "crash in db layer", "")
	require.NotNil(t, draft.CodeContext)
	assert.Equal(t, []string{"src/db.ts"}, draft.CodeContext.FilePaths)
	assert.Equal(t, "nil deref", draft.CodeContext.ErrorMessage)
}

func TestExtractNilGeneratorUsesFallback(t *testing.T) {
	draft := newTestExtractor(nil).Extract(context.Background(), "urgent fix", "")
	assert.Equal(t, 0.5, draft.Confidence)
	assert.Equal(t, PriorityCritical, draft.Priority)
}

func TestFirstJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, firstJSONObject(`noise {"a": 1} trailing`))
	assert.Equal(t, `{"a": {"b": 2}}`, firstJSONObject(`{"a": {"b": 2}} {"c": 3}`))
	assert.Equal(t, `{"s": "br}ace"}`, firstJSONObject(`{"s": "br}ace"}`))
	assert.Equal(t, "", firstJSONObject("no braces"))
	assert.Equal(t, "", firstJSONObject(`{"unterminated": true`))
}

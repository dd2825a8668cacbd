package extract

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackUrgentBrokenFile(t *testing.T) {
	draft := FallbackExtractor{}.Extract(context.Background(), "URGENT: login is broken on auth.ts", "")

	assert.Equal(t, PriorityCritical, draft.Priority)
	assert.Equal(t, TypeBug, draft.TaskType)
	assert.Equal(t, 0.5, draft.Confidence)
	require.NotNil(t, draft.CodeContext)
	assert.Equal(t, []string{"auth.ts"}, draft.CodeContext.FilePaths)
	assert.Equal(t, "URGENT: login is broken on auth.ts", draft.Description)
}

func TestFallbackPriorityPrecedence(t *testing.T) {
	tests := []struct {
		text string
		want Priority
	}{
		{"production down right now", PriorityCritical},
		{"this is urgent and minor", PriorityCritical},
		{"blocking the release", PriorityHigh},
		{"nice to have someday", PriorityLow},
		{"please look at this", PriorityMedium},
	}
	for _, tt := range tests {
		draft := FallbackExtractor{}.Extract(context.Background(), tt.text, "")
		assert.Equal(t, tt.want, draft.Priority, tt.text)
	}
}

func TestFallbackTaskTypePrecedence(t *testing.T) {
	tests := []struct {
		text string
		want TaskType
	}{
		{"the page crashes on load", TypeBug},
		{"add a new export button", TypeFeature},
		{"improve the onboarding copy", TypeImprovement},
		{"why does this take so long", TypeQuestion},
		{"rotate the signing keys", TypeTask},
		// bug keywords win over question mark
		{"error when saving?", TypeBug},
	}
	for _, tt := range tests {
		draft := FallbackExtractor{}.Extract(context.Background(), tt.text, "")
		assert.Equal(t, tt.want, draft.TaskType, tt.text)
	}
}

func TestFallbackTitleFirstSentence(t *testing.T) {
	draft := FallbackExtractor{}.Extract(context.Background(), "Fix the header. It overlaps the nav on mobile.", "")
	assert.Equal(t, "Fix the header", draft.Title)

	long := strings.Repeat("x", 100)
	draft = FallbackExtractor{}.Extract(context.Background(), long, "")
	assert.Len(t, draft.Title, 80)
	assert.True(t, strings.HasSuffix(draft.Title, "..."))
}

func TestFallbackTitleTruncatesOnRuneBoundary(t *testing.T) {
	draft := FallbackExtractor{}.Extract(context.Background(), strings.Repeat("é", 100), "")

	assert.True(t, utf8.ValidString(draft.Title))
	assert.Len(t, []rune(draft.Title), 80)
	assert.True(t, strings.HasSuffix(draft.Title, "..."))
}

func TestFallbackFilePaths(t *testing.T) {
	draft := FallbackExtractor{}.Extract(context.Background(), "see src/app/page.tsx and auth.ts plus notes.txt", "")
	require.NotNil(t, draft.CodeContext)
	assert.Equal(t, []string{"src/app/page.tsx", "auth.ts"}, draft.CodeContext.FilePaths)

	draft = FallbackExtractor{}.Extract(context.Background(), "no paths here", "")
	assert.Nil(t, draft.CodeContext)
}

package embed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLowercasesAndReplacesSlashes(t *testing.T) {
	assert.Equal(t, "notes_team_a", sanitize("Notes/Team A"))
}

func TestSanitizeCollapsesRepeatedSeparators(t *testing.T) {
	assert.Equal(t, "a.b_c", sanitize("a....b__c"))
}

func TestSanitizeTrimsLeadingAndTrailingSeparators(t *testing.T) {
	assert.Equal(t, "vault", sanitize("--vault.."))
}

func TestSanitizePadsShortNames(t *testing.T) {
	got := sanitize("a")
	assert.GreaterOrEqual(t, len(got), minCollectionNameLen)
}

func TestSanitizeTruncatesLongNames(t *testing.T) {
	got := sanitize(strings.Repeat("x", 100))
	assert.LessOrEqual(t, len(got), maxCollectionNameLen)
}

func TestSanitizePrefixesIPv4LookingNames(t *testing.T) {
	got := sanitize("192.168.1.1")
	assert.True(t, strings.HasPrefix(got, "col_"))
}

func TestCollectionNameChangesWithModel(t *testing.T) {
	a := CollectionName("notes", "nomic-embed-text-v1.5")
	b := CollectionName("notes", "qwen3-embedding:8b")
	assert.NotEqual(t, a, b)
}

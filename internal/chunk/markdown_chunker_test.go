package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func input(relPath, content string) *FileInput {
	return &FileInput{
		Source:       relPath,
		RelativePath: relPath,
		Content:      []byte(content),
	}
}

func TestChunkSingleFileNoHeaders(t *testing.T) {
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), input("a.md", "just a short paragraph with no headers at all."))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "short paragraph")
}

func TestChunkExtractsFrontmatterTagsAndCreateDate(t *testing.T) {
	c := NewMarkdownChunker()
	content := "---\ntags:\n- project\n- notes\ncreate: 2024-01-02\n---\n# Title\n\nBody text here that is long enough to survive tail merge rules.\n"
	chunks, err := c.Chunk(context.Background(), input("note.md", content))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].Metadata.Frontmatter.Tags, "project")
	assert.Contains(t, chunks[0].Metadata.Frontmatter.Tags, "notes")
	assert.Equal(t, "2024-01-02", chunks[0].Metadata.Frontmatter.CreateDate)
}

func TestChunkMalformedFrontmatterFallsBackToBody(t *testing.T) {
	c := NewMarkdownChunker()
	content := "---\ntags:\n- a\n# Heading without closing fence\n\nBody content long enough to not be merged away entirely here.\n"
	chunks, err := c.Chunk(context.Background(), input("broken.md", content))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
}

func TestChunkProtectsCodeBlocksFromSplitting(t *testing.T) {
	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MinSize: 10, MaxSize: 40, ChunkLevel: 2})
	content := "# Title\n\n```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```\n"
	chunks, err := c.Chunk(context.Background(), input("code.md", content))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	joined := strings.Join(func() []string {
		var texts []string
		for _, ch := range chunks {
			texts = append(texts, ch.Text)
		}
		return texts
	}(), "\n")
	assert.Contains(t, joined, "```go")
	assert.Contains(t, joined, "}\n```")
}

func TestChunkHeaderPathBreadcrumb(t *testing.T) {
	c := NewMarkdownChunker()
	content := "# Top\n\n## Sub\n\nSome content under the subheading that is reasonably long for a test.\n"
	chunks, err := c.Chunk(context.Background(), input("doc.md", content))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Equal(t, "# Top > ## Sub", last.Metadata.HeaderPath)
	assert.Equal(t, []string{"Top", "Sub"}, last.Metadata.Headers)
}

func TestChunkRelativePathUsesPosixSeparators(t *testing.T) {
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), input("folder/sub/note.md", "# H\n\nbody text that is long enough not to be merged.\n"))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "folder/sub/note.md", chunks[0].Metadata.RelativePath)
	assert.Equal(t, "folder/sub", chunks[0].Metadata.FolderPath)
}

func TestChunkEmptyContentReturnsNoChunks(t *testing.T) {
	c := NewMarkdownChunker()
	chunks, err := c.Chunk(context.Background(), input("empty.md", "   \n\n  "))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkSplitsOversizedSectionByParagraphs(t *testing.T) {
	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MinSize: 10, MaxSize: 100, ChunkLevel: 2})
	var sb strings.Builder
	sb.WriteString("# Big Section\n\n")
	for i := 0; i < 10; i++ {
		sb.WriteString("This is paragraph number ")
		sb.WriteString(strings.Repeat("x", 20))
		sb.WriteString(".\n\n")
	}
	chunks, err := c.Chunk(context.Background(), input("big.md", sb.String()))
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 100+40) // paragraphs aren't split mid-way
	}
}

func TestChunkTailMergeCombinesShortFinalChunk(t *testing.T) {
	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MinSize: 200, MaxSize: 1500, ChunkLevel: 2})
	content := "# A\n\n" + strings.Repeat("word ", 60) + "\n\n# B\n\nshort tail\n"
	chunks, err := c.Chunk(context.Background(), input("tail.md", content))
	require.NoError(t, err)
	// The short "B" section should have merged into "A" rather than standing alone.
	found := false
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "short tail") && strings.Contains(ch.Text, "word word") {
			found = true
		}
	}
	assert.True(t, found, "expected short tail section merged into previous chunk")
}

func TestChunkEnforcesChunkBudget(t *testing.T) {
	c := NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{MinSize: 1, MaxSize: 20, ChunkLevel: 6})
	var sb strings.Builder
	for i := 0; i < maxChunksPerFile+5; i++ {
		sb.WriteString("# H\n\nbody text that is unique enough per section here.\n\n")
	}
	_, err := c.Chunk(context.Background(), input("huge.md", sb.String()))
	assert.Error(t, err)
}

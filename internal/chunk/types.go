// Package chunk implements header-aware semantic chunking of Markdown
// vault files.
package chunk

import "context"

// Default chunk-size bounds, in characters.
const (
	DefaultMinSize    = 200
	DefaultMaxSize    = 1500
	DefaultChunkLevel = 2
)

// Chunk is a semantic unit of text derived from one Markdown file.
type Chunk struct {
	Text     string
	Metadata Metadata
}

// Metadata is the string-keyed map every chunk carries alongside its text.
type Metadata struct {
	Source       string            // file name
	RelativePath string            // POSIX, vault-root-relative
	FolderPath   string            // POSIX folder containing Source
	HeaderPath   string            // "# h1 > ## h2 > ..." breadcrumb, may be empty
	Headers      []string          // ordered header titles anchoring this chunk
	Level        int               // 1-6, level of the anchoring header (0 if none)
	Frontmatter  Frontmatter       // tags + create_date, zero value when absent
	Extra        map[string]string // merged extra_metadata passed in by the caller
}

// Frontmatter holds the YAML frontmatter fields the chunker understands.
type Frontmatter struct {
	Tags       []string
	CreateDate string
	Extra      map[string]string
}

func (f Frontmatter) isZero() bool {
	return len(f.Tags) == 0 && f.CreateDate == "" && len(f.Extra) == 0
}

// FileInput is the input to a Chunker.
type FileInput struct {
	Source       string
	RelativePath string
	Content      []byte
	MinSize      int
	MaxSize      int
	ChunkLevel   int
	ExtraMeta    map[string]string
}

// Chunker splits a Markdown file into semantic chunks.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
}

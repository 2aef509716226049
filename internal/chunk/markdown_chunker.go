package chunk

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// maxFrontmatterScan bounds how far the chunker looks for a closing
// frontmatter fence before giving up and treating the file as body.
const maxFrontmatterScan = 64 * 1024

// maxChunksPerFile enforces the delete_chunks_by_prefix safe upper bound
// (DESIGN.md, Open Question 1) upstream, at emission time, rather than
// building a metadata-filtered true prefix delete.
const maxChunksPerFile = 1000

var (
	headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	fenceOpenRe   = regexp.MustCompile("(?m)^( {0,3})(`{3,}|~{3,})")
	codeBlockPhRe = regexp.MustCompile(`__CODE_BLOCK_(\d+)__`)
)

// MarkdownChunkerOptions configures size bounds.
type MarkdownChunkerOptions struct {
	MinSize    int
	MaxSize    int
	ChunkLevel int
}

// MarkdownChunker implements header-aware semantic Markdown chunking.
type MarkdownChunker struct {
	opts MarkdownChunkerOptions
}

func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MinSize == 0 {
		opts.MinSize = DefaultMinSize
	}
	if opts.MaxSize == 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.ChunkLevel == 0 {
		opts.ChunkLevel = DefaultChunkLevel
	}
	return &MarkdownChunker{opts: opts}
}

// Chunk splits a markdown file into header-bounded semantic chunks.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	minSize, maxSize, chunkLevel := c.opts.MinSize, c.opts.MaxSize, c.opts.ChunkLevel
	if file.MinSize != 0 {
		minSize = file.MinSize
	}
	if file.MaxSize != 0 {
		maxSize = file.MaxSize
	}
	if file.ChunkLevel != 0 {
		chunkLevel = file.ChunkLevel
	}

	content := string(file.Content)

	fm, body, err := extractFrontmatter(content)
	if err != nil {
		// MalformedFrontmatter: treat the whole file as body, do not fail the sync.
		fm = Frontmatter{}
		body = content
	}

	protected, blocks := protectCodeBlocks(body)

	sections := parseHeaderSections(protected, chunkLevel)

	folderPath := path.Dir(file.RelativePath)
	if folderPath == "." {
		folderPath = ""
	}

	baseMeta := Metadata{
		Source:       file.Source,
		RelativePath: file.RelativePath,
		FolderPath:   folderPath,
		Frontmatter:  fm,
		Extra:        file.ExtraMeta,
	}

	var chunks []*Chunk
	for _, sec := range sections {
		text := restoreCodeBlocks(sec.text, blocks)
		text = strings.TrimSpace(text)
		// Skip empty sections and sections holding nothing but their header line.
		if text == "" || strings.TrimSpace(strings.TrimLeft(text, "#")) == sec.headerTitle {
			continue
		}

		meta := baseMeta
		meta.Headers = append([]string(nil), sec.headers...)
		meta.HeaderPath = joinHeaderPath(sec.headerMarks)
		meta.Level = sec.level

		if len(text) <= maxSize {
			chunks = append(chunks, &Chunk{Text: text, Metadata: meta})
			continue
		}

		for _, piece := range splitByParagraphsGreedy(text, maxSize) {
			chunks = append(chunks, &Chunk{Text: piece, Metadata: meta})
		}
	}

	chunks = mergeShortTail(chunks, minSize, maxSize)

	if len(chunks) == 0 && strings.TrimSpace(restoreCodeBlocks(protected, blocks)) != "" {
		chunks = append(chunks, &Chunk{
			Text:     strings.TrimSpace(restoreCodeBlocks(protected, blocks)),
			Metadata: baseMeta,
		})
	}

	if len(chunks) > maxChunksPerFile {
		return nil, fmt.Errorf("%s: would produce %d chunks, exceeding the %d-chunk budget", file.RelativePath, len(chunks), maxChunksPerFile)
	}

	return chunks, nil
}

// extractFrontmatter parses a leading `---\n...\n---\n` YAML-ish block:
// list items accumulate into tags, `create:` becomes CreateDate, other
// `key: value` pairs go into Extra. Returns an error if no closing fence
// is found within maxFrontmatterScan.
func extractFrontmatter(content string) (Frontmatter, string, error) {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return Frontmatter{}, content, nil
	}

	scanWindow := content
	if len(scanWindow) > maxFrontmatterScan {
		scanWindow = scanWindow[:maxFrontmatterScan]
	}

	rest := scanWindow[4:]
	closeIdx := strings.Index(rest, "\n---")
	if closeIdx == -1 {
		return Frontmatter{}, content, fmt.Errorf("no closing frontmatter fence found")
	}

	block := rest[:closeIdx]
	bodyStart := 4 + closeIdx + len("\n---")
	body := content[bodyStart:]
	body = strings.TrimPrefix(strings.TrimPrefix(body, "\r"), "\n")

	fm := Frontmatter{Extra: map[string]string{}}
	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") {
			fm.Tags = append(fm.Tags, strings.TrimSpace(strings.TrimPrefix(trimmed, "-")))
			continue
		}
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "create":
			fm.CreateDate = value
		case "tags":
			// inline "tags: [a, b]" form
			value = strings.Trim(value, "[]")
			for _, t := range strings.Split(value, ",") {
				if t = strings.TrimSpace(t); t != "" {
					fm.Tags = append(fm.Tags, t)
				}
			}
		default:
			fm.Extra[key] = value
		}
	}
	if len(fm.Extra) == 0 {
		fm.Extra = nil
	}

	return fm, body, nil
}

// protectCodeBlocks replaces fenced code blocks with placeholders so
// header/paragraph scanning never splits inside one. Fences must match
// their opening length to support nested fences.
func protectCodeBlocks(content string) (string, []string) {
	var blocks []string
	lines := strings.Split(content, "\n")
	var out []string

	i := 0
	for i < len(lines) {
		line := lines[i]
		m := fenceOpenRe.FindStringSubmatch(line)
		if m == nil {
			out = append(out, line)
			i++
			continue
		}

		fenceChar := m[2][0]
		fenceLen := len(m[2])
		var block []string
		block = append(block, line)
		i++
		closed := false
		for i < len(lines) {
			block = append(block, lines[i])
			closing := strings.TrimSpace(lines[i])
			if len(closing) >= fenceLen && strings.Count(closing, string(fenceChar)) == len(closing) && closing[0] == fenceChar {
				closed = true
				i++
				break
			}
			i++
		}
		if !closed {
			// Unterminated fence: treat rest of file as part of the block.
		}

		idx := len(blocks)
		blocks = append(blocks, strings.Join(block, "\n"))
		out = append(out, fmt.Sprintf("__CODE_BLOCK_%d__", idx))
	}

	return strings.Join(out, "\n"), blocks
}

func restoreCodeBlocks(content string, blocks []string) string {
	return codeBlockPhRe.ReplaceAllStringFunc(content, func(ph string) string {
		m := codeBlockPhRe.FindStringSubmatch(ph)
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx >= len(blocks) {
			return ph
		}
		return blocks[idx]
	})
}

type headerMark struct {
	level int
	title string
}

type headerSection struct {
	level       int
	text        string
	headerMarks []headerMark
	headers     []string
	headerTitle string
}

// parseHeaderSections walks the file once, keeping a six-slot header stack
// (H1-H6), emitting a section on each header boundary, and assembling
// pending chunk text keyed to chunkLevel.
func parseHeaderSections(content string, chunkLevel int) []headerSection {
	lines := strings.Split(content, "\n")
	stack := make([]headerMark, 6)

	var sections []headerSection
	var pending *headerSection
	var body strings.Builder

	flush := func() {
		if pending != nil {
			pending.text = body.String()
			sections = append(sections, *pending)
			body.Reset()
			pending = nil
		}
	}

	for _, line := range lines {
		m := headerPattern.FindStringSubmatch(line)
		if m == nil {
			if pending != nil {
				body.WriteString(line)
				body.WriteString("\n")
			}
			continue
		}

		level := len(m[1])
		title := strings.TrimSpace(m[2])

		stack[level-1] = headerMark{level: level, title: title}
		for i := level; i < 6; i++ {
			stack[i] = headerMark{}
		}

		var marks []headerMark
		var titles []string
		for i := 0; i < level; i++ {
			if stack[i].title != "" {
				marks = append(marks, stack[i])
				titles = append(titles, stack[i].title)
			}
		}

		if level <= chunkLevel {
			flush()
			pending = &headerSection{level: level, headerMarks: marks, headers: titles, headerTitle: title}
			body.WriteString(line)
			body.WriteString("\n")
		} else if pending != nil {
			pending.headerMarks = marks
			pending.headers = titles
			body.WriteString(line)
			body.WriteString("\n")
		} else {
			pending = &headerSection{level: level, headerMarks: marks, headers: titles, headerTitle: title}
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()

	if len(sections) == 0 && strings.TrimSpace(content) != "" {
		sections = append(sections, headerSection{text: content})
	}

	return sections
}

// joinHeaderPath renders the breadcrumb as "# h1 > ## h2 > ...".
func joinHeaderPath(marks []headerMark) string {
	if len(marks) == 0 {
		return ""
	}
	parts := make([]string, len(marks))
	for i, m := range marks {
		parts[i] = strings.Repeat("#", m.level) + " " + m.title
	}
	return strings.Join(parts, " > ")
}

// splitByParagraphsGreedy splits text on blank lines, packing paragraphs
// greedily into pieces no larger than maxSize.
func splitByParagraphsGreedy(text string, maxSize int) []string {
	paras := strings.Split(text, "\n\n")

	var pieces []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			pieces = append(pieces, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, p := range paras {
		p = strings.TrimRight(p, "\n")
		if strings.TrimSpace(p) == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+2+len(p) > maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	if len(pieces) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return pieces
}

// mergeShortTail merges a too-short final chunk into the previous one when
// the combination still fits within maxSize.
func mergeShortTail(chunks []*Chunk, minSize, maxSize int) []*Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	last := chunks[len(chunks)-1]
	prev := chunks[len(chunks)-2]
	if len(last.Text) < minSize && len(prev.Text)+2+len(last.Text) <= maxSize {
		prev.Text = prev.Text + "\n\n" + last.Text
		return chunks[:len(chunks)-1]
	}
	return chunks
}

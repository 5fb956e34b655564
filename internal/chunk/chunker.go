package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// headingPattern matches markdown headings: # Title through ###### Title.
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Options configures the chunker.
type Options struct {
	// MaxChars caps the size of a single chunk.
	MaxChars int

	// Overlap is the character budget repeated across a sub-split
	// boundary so context survives the split point.
	Overlap int

	// MinSection is the minimum heading-section body size; smaller
	// sections are merged into the preceding section.
	MinSection int
}

// Chunker splits documents into chunks. Chunking is deterministic: the same
// text and path always produce identical chunk IDs and boundaries.
type Chunker struct {
	opts Options
}

// NewChunker creates a chunker with default options.
func NewChunker() *Chunker {
	return NewChunkerWithOptions(Options{})
}

// NewChunkerWithOptions creates a chunker with custom options.
func NewChunkerWithOptions(opts Options) *Chunker {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.Overlap <= 0 {
		opts.Overlap = DefaultOverlap
	}
	if opts.Overlap >= opts.MaxChars {
		opts.Overlap = opts.MaxChars / 4
	}
	if opts.MinSection <= 0 {
		opts.MinSection = DefaultMinSection
	}
	return &Chunker{opts: opts}
}

// section is a heading-delimited region of the document.
type section struct {
	heading   string
	startLine int // 1-indexed
	lines     []string
}

func (s *section) bodyLen() int {
	n := 0
	for _, l := range s.lines {
		n += len(l) + 1
	}
	return n
}

// Chunk splits a document into chunks. A document that cannot be decoded
// reports a per-document error so the caller can skip it without aborting
// the batch.
func (c *Chunker) Chunk(text, sourcePath string) ([]*Chunk, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("document %s: invalid UTF-8", sourcePath)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sections := c.parseSections(text)

	var chunks []*Chunk
	for _, sec := range sections {
		chunks = append(chunks, c.splitSection(sourcePath, sec)...)
	}
	return chunks, nil
}

// parseSections splits the document at heading boundaries and merges
// sections smaller than MinSection into their predecessor, so tiny headings
// do not become near-empty chunks.
func (c *Chunker) parseSections(text string) []*section {
	lines := strings.Split(text, "\n")

	var sections []*section
	current := &section{startLine: 1}

	flush := func() {
		if len(current.lines) == 0 {
			return
		}
		body := strings.TrimSpace(strings.Join(current.lines, "\n"))
		if body == "" {
			return
		}
		if len(body) < c.opts.MinSection && len(sections) > 0 {
			prev := sections[len(sections)-1]
			prev.lines = append(prev.lines, current.lines...)
			return
		}
		sections = append(sections, current)
	}

	for i, line := range lines {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = &section{
				heading:   strings.TrimSpace(m[2]),
				startLine: i + 1,
				lines:     []string{line},
			}
			continue
		}
		if len(current.lines) == 0 {
			current.startLine = i + 1
		}
		current.lines = append(current.lines, line)
	}
	flush()

	return sections
}

// splitSection turns one section into one or more chunks. Sections within
// the character budget become a single chunk (heading sections are atomic);
// over-long sections are sub-split line-wise with a deterministic overlap
// window.
func (c *Chunker) splitSection(sourcePath string, sec *section) []*Chunk {
	if sec.bodyLen() <= c.opts.MaxChars {
		ch := c.makeChunk(sourcePath, sec.heading, sec.startLine, sec.lines)
		if ch == nil {
			return nil
		}
		return []*Chunk{ch}
	}

	var chunks []*Chunk
	start := 0
	for start < len(sec.lines) {
		end := start
		size := 0
		for end < len(sec.lines) {
			lineLen := len(sec.lines[end]) + 1
			if size > 0 && size+lineLen > c.opts.MaxChars {
				break
			}
			size += lineLen
			end++
		}

		if ch := c.makeChunk(sourcePath, sec.heading, sec.startLine+start, sec.lines[start:end]); ch != nil {
			chunks = append(chunks, ch)
		}

		if end >= len(sec.lines) {
			break
		}

		// Step back from the boundary until the overlap budget is met.
		// The next window always starts at least one line past the
		// previous one, so progress is guaranteed.
		back := end
		overlap := 0
		for back > start+1 && overlap < c.opts.Overlap {
			back--
			overlap += len(sec.lines[back]) + 1
		}
		start = back
	}

	return chunks
}

// makeChunk builds a chunk from a line range, skipping empty bodies.
// A single line exceeding the budget is truncated to keep the cap hard.
func (c *Chunker) makeChunk(sourcePath, heading string, startLine int, lines []string) *Chunk {
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return nil
	}
	if len(text) > c.opts.MaxChars {
		cut := c.opts.MaxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	return &Chunk{
		ID:          ChunkID(sourcePath, startLine),
		SourcePath:  sourcePath,
		StartLine:   startLine,
		EndLine:     startLine + len(lines) - 1,
		Text:        text,
		Heading:     heading,
		ContentHash: ContentHash(text),
	}
}

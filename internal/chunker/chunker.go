// Package chunker splits page markdown into bounded-size chunks and
// derives lightweight per-chunk metadata. Chunk boundaries never fall
// inside a markdown line, so list items, headings, and code-fence
// lines stay intact.
package chunker

import (
	"regexp"
	"strings"

	"github.com/avasilyev/crawlrag/pkg/models"
)

// DefaultChunkSize is the default maximum chunk length in characters.
const DefaultChunkSize = 5000

// Chunk splits markdown into chunks of at most maxSize characters by
// greedy line accumulation. A single line longer than maxSize is never
// split; it becomes its own oversized chunk.
func Chunk(markdown string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	lines := strings.Split(markdown, "\n")

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunk := strings.TrimRight(current.String(), " \t\n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, line := range lines {
		addition := len(line)
		if current.Len() > 0 {
			addition++ // joining newline
		}
		if current.Len() > 0 && current.Len()+addition > maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	flush()

	return chunks
}

// headingPattern matches an ATX heading: 1-6 '#' followed by text.
var headingPattern = regexp.MustCompile(`^#{1,6}\s+\S`)

// SectionInfo is lightweight per-chunk metadata.
type SectionInfo struct {
	Heading   string
	WordCount int
	CharCount int
	LineCount int
}

// NoHeading is the sentinel used when a chunk contains no ATX heading.
const NoHeading = "No heading"

// ExtractSectionInfo derives heading and size metadata for one chunk.
// The heading is the first line matching an ATX heading pattern.
func ExtractSectionInfo(chunk string) SectionInfo {
	info := SectionInfo{
		Heading:   NoHeading,
		WordCount: models.WordCount(chunk),
		CharCount: len(chunk),
	}

	lines := strings.Split(chunk, "\n")
	info.LineCount = len(lines)

	for _, line := range lines {
		if headingPattern.MatchString(line) {
			info.Heading = strings.TrimSpace(line)
			break
		}
	}

	return info
}

// Metadata returns the section info as a storable metadata bag.
func (s SectionInfo) Metadata() models.Metadata {
	return models.Metadata{
		"heading":    s.Heading,
		"word_count": s.WordCount,
		"char_count": s.CharCount,
		"line_count": s.LineCount,
	}
}

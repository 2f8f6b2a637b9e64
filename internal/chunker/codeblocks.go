package chunker

import "strings"

// DefaultMinCodeBlockLength filters out trivial snippets; only
// substantial fenced blocks become stored code examples.
const DefaultMinCodeBlockLength = 300

// contextWindow is how much surrounding markdown is captured around a
// code block for summary generation.
const contextWindow = 1000

// CodeBlock is a fenced code block extracted from raw page markdown,
// with surrounding context for summarization.
type CodeBlock struct {
	Code          string
	Language      string
	ContextBefore string
	ContextAfter  string
}

// ExtractCodeBlocks scans raw markdown for fenced code blocks of at
// least minLength characters. It operates on the original markdown,
// independent of chunk boundaries.
func ExtractCodeBlocks(markdown string, minLength int) []CodeBlock {
	if minLength <= 0 {
		minLength = DefaultMinCodeBlockLength
	}

	const fence = "```"

	// Collect fence positions. Content starting with a fence would make
	// the first marker open an unmatched block, so pair from there.
	var positions []int
	for i := 0; i+len(fence) <= len(markdown); {
		idx := strings.Index(markdown[i:], fence)
		if idx < 0 {
			break
		}
		positions = append(positions, i+idx)
		i += idx + len(fence)
	}

	var blocks []CodeBlock
	for i := 0; i+1 < len(positions); i += 2 {
		open, closing := positions[i], positions[i+1]

		section := markdown[open+len(fence) : closing]

		// The first line after the opening fence may name the language.
		language := ""
		code := section
		if nl := strings.Index(section, "\n"); nl >= 0 {
			first := strings.TrimSpace(section[:nl])
			if first != "" && !strings.ContainsAny(first, " \t") && len(first) <= 20 {
				language = first
				code = section[nl+1:]
			}
		}
		code = strings.TrimSpace(code)

		if len(code) < minLength {
			continue
		}

		beforeStart := open - contextWindow
		if beforeStart < 0 {
			beforeStart = 0
		}
		afterEnd := closing + len(fence) + contextWindow
		if afterEnd > len(markdown) {
			afterEnd = len(markdown)
		}

		blocks = append(blocks, CodeBlock{
			Code:          code,
			Language:      language,
			ContextBefore: strings.TrimSpace(markdown[beforeStart:open]),
			ContextAfter:  strings.TrimSpace(markdown[closing+len(fence) : afterEnd]),
		})
	}

	return blocks
}

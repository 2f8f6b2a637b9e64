package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// maxPromptContent bounds how much document text is sent to the model.
const maxPromptContent = 25000

// maxSummaryDisplayLength is where stored summaries get cut off.
const maxSummaryDisplayLength = 500

// SourceSummary generates a 3-5 sentence summary of a source's content.
// On model failure it falls back to a generic summary so ingestion
// never stalls on the enrichment step.
func (c *Client) SourceSummary(ctx context.Context, sourceID, content string) string {
	fallback := fmt.Sprintf("Content from %s", sourceID)
	if strings.TrimSpace(content) == "" {
		return fallback
	}

	prompt := fmt.Sprintf(`<source_content>
%s
</source_content>

The above content is from the documentation for '%s'. Please provide a concise summary (3-5 sentences) that describes what this library/tool/framework is about and what problems it helps solve.`,
		truncate(content, maxPromptContent), sourceID)

	summary, err := c.Complete(ctx,
		"You are a helpful assistant that provides concise library/tool/framework summaries.",
		prompt, 150)
	if err != nil {
		slog.Warn("source summary generation failed", "source_id", sourceID, "error", err)
		return fallback
	}
	if summary == "" {
		return fallback
	}

	if len(summary) > maxSummaryDisplayLength {
		summary = summary[:maxSummaryDisplayLength] + "..."
	}
	return summary
}

// CodeExampleSummary generates a short summary of a code example given
// its surrounding context. Falls back to a fixed description on failure.
func (c *Client) CodeExampleSummary(ctx context.Context, code, contextBefore, contextAfter string) string {
	const fallback = "Code example for demonstration purposes."

	prompt := fmt.Sprintf(`<context_before>
%s
</context_before>

<code_example>
%s
</code_example>

<context_after>
%s
</context_after>

Based on the code example and its surrounding context, provide a summary (2-3 sentences) that describes what this code example demonstrates and its purpose.`,
		contextBefore, truncate(code, 5000), contextAfter)

	summary, err := c.Complete(ctx,
		"You are a helpful assistant that provides concise code example summaries.",
		prompt, 100)
	if err != nil {
		slog.Warn("code example summary generation failed", "error", err)
		return fallback
	}
	if summary == "" {
		return fallback
	}
	return summary
}

// SituatingContext asks the model for a short sentence situating a
// chunk within its full source document, for contextual embedding.
func (c *Client) SituatingContext(ctx context.Context, fullDocument, chunk string) (string, error) {
	prompt := fmt.Sprintf(`<document>
%s
</document>

Here is the chunk we want to situate within the whole document:
<chunk>
%s
</chunk>

Please give a short succinct context to situate this chunk within the overall document for the purposes of improving search retrieval of the chunk. Answer only with the succinct context and nothing else.`,
		truncate(fullDocument, maxPromptContent), chunk)

	return c.Complete(ctx,
		"You are a helpful assistant that situates document chunks for search retrieval.",
		prompt, 200)
}

// truncate cuts s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

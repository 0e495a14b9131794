// Package search looks up live web results to augment a prompt.
package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxSnippetRunes = 500
	maxBlockRunes   = 4000
)

type Hit struct {
	Title   string `json:"title"`
	Snippet string `json:"content"`
	URL     string `json:"url"`
}

type Result struct {
	Summary string `json:"answer"`
	Hits    []Hit  `json:"results"`
}

// Searcher never fails: implementations degrade to an empty Result.
type Searcher interface {
	Search(ctx context.Context, query string) Result
}

// Block renders r as a system-prompt section. An empty result renders nothing.
func (r Result) Block(query string) string {
	if len(r.Hits) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n\n[Recent web search results for: \"%s\"]\n", query)
	if r.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n\n", r.Summary)
	}
	b.WriteString("Results:\n")
	for i, hit := range r.Hits {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   Source: %s\n", i+1, hit.Title, truncateRunes(hit.Snippet, maxSnippetRunes), hit.URL)
	}
	b.WriteString("\nBased on the above information, provide your response:\n")

	return truncateRunes(b.String(), maxBlockRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Nop is a Searcher that never finds anything.
type Nop struct{}

func (Nop) Search(context.Context, string) Result { return Result{} }

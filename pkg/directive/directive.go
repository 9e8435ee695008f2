// Package directive parses the in-band control markers an agent may embed
// in its final answer: delegation hand-offs and memory assertions. The
// grammar is a small regular language kept separate from the execution
// loop so it can be swapped for a structured channel later.
package directive

import (
	"regexp"
	"strings"
)

var (
	delegatePattern = regexp.MustCompile(`\[DELEGATE:(\w+)\]`)
	rememberPattern = regexp.MustCompile(`\[REMEMBER:(\w+)\|([^\]]+)\]`)
)

// Note is one memory assertion carried by a REMEMBER directive.
type Note struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// Extraction is the parsed form of a final-answer text.
type Extraction struct {
	VisibleText string `json:"visible_text"`
	DelegateTo  string `json:"delegate_to,omitempty"`
	Memories    []Note `json:"memories,omitempty"`
}

// Extract strips recognized directives from raw text. Only the first
// DELEGATE match is honored, though all are removed. Every REMEMBER match
// becomes one Note. Bracketed text matching neither grammar passes through
// untouched. Extract is idempotent: running it on its own VisibleText
// yields no further directives.
func Extract(raw string) Extraction {
	ext := Extraction{}

	if m := delegatePattern.FindStringSubmatch(raw); m != nil {
		ext.DelegateTo = m[1]
	}

	for _, m := range rememberPattern.FindAllStringSubmatch(raw, -1) {
		ext.Memories = append(ext.Memories, Note{Kind: m[1], Content: m[2]})
	}

	visible := delegatePattern.ReplaceAllString(raw, "")
	visible = rememberPattern.ReplaceAllString(visible, "")
	ext.VisibleText = strings.TrimSpace(visible)

	return ext
}

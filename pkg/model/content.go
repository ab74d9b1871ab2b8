package model

import (
	"sort"
	"strings"
)

// RenderProperties serializes a property map as stable "label: k=v" text.
// Keys are sorted so the rendering is deterministic; entity-id matching
// against serialized content depends on that stability.
func RenderProperties(label BlockLabel, props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(label))
	b.WriteString(":")
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(props[k])
	}
	return b.String()
}

// ContentText returns the block's full serialized content: rendered
// properties followed by every chunk text. Content predicates in graph
// queries match against this text.
func (b *Block) ContentText() string {
	parts := make([]string, 0, len(b.Chunks)+1)
	if len(b.Properties) > 0 {
		parts = append(parts, RenderProperties(b.Label, b.Properties))
	}
	for _, c := range b.Chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

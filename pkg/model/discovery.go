package model

import "context"

// RawBlock is one unit of content as yielded by a fetcher, before chunking.
// Either Properties or Text must be set.
type RawBlock struct {
	Label       BlockLabel        `json:"label"`
	LastUpdated int64             `json:"last_updated"`
	Properties  map[string]string `json:"properties,omitempty"`
	Text        string            `json:"text,omitempty"`
}

// Discovery is one page's worth of freshly fetched content, handed to the
// ingestor by a fetcher. It is self-describing enough to validate without
// knowing which source produced it.
type Discovery struct {
	ID         string     `json:"id"`
	Type       PageType   `json:"type"`
	Connection string     `json:"connection"`
	Blocks     []RawBlock `json:"blocks"`
	Entities   []Name     `json:"entities,omitempty"`
}

// IsValid reports whether the discovery carries enough to ingest: an id, a
// known page type, a connection, and at least one raw block with content.
func (d *Discovery) IsValid() bool {
	if d == nil || d.ID == "" || d.Connection == "" {
		return false
	}
	if _, err := ParsePageType(string(d.Type)); err != nil {
		return false
	}
	if len(d.Blocks) == 0 {
		return false
	}
	for _, b := range d.Blocks {
		if b.Label == "" || b.LastUpdated == 0 {
			return false
		}
		if len(b.Properties) == 0 && b.Text == "" {
			return false
		}
	}
	return true
}

// Fetcher is the pull interface a per-source fetcher implements. Next
// returns a batch of discoveries plus a continuation token; an empty token
// means the source is exhausted.
type Fetcher interface {
	Next(ctx context.Context, token string) ([]Discovery, string, error)
}

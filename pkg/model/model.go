package model

import (
	"fmt"
	"time"
)

// Page is the top-level unit discovered from a source: an email thread, a
// CRM account, a support ticket, or a document. A page owns an ordered set
// of blocks and a recomputed summary.
//
// Pages are replaced on every ingestion cycle for the same (library, id),
// so the graph always reflects the latest fetched state.
type Page struct {
	ID          string   `json:"id"`
	Type        PageType `json:"type"`
	Connection  string   `json:"connection"`
	Summary     string   `json:"summary"`
	LastUpdated int64    `json:"last_updated"`
	Blocks      []*Block `json:"blocks"`
}

// Block is a labeled content component of a page. It carries structured
// properties, unstructured chunks, or both.
type Block struct {
	ID          string            `json:"id"`
	Label       BlockLabel        `json:"label"`
	LastUpdated int64             `json:"last_updated"`
	Properties  map[string]string `json:"properties,omitempty"`
	Chunks      []Chunk           `json:"chunks,omitempty"`
}

// Chunk is a size-bounded slice of a block's unstructured text. Chunks are
// embedded on demand when content is reranked, never persisted with one.
type Chunk struct {
	Text string `json:"text"`
}

// IsValid reports whether the block satisfies the data model invariant:
// a non-zero label and timestamp plus at least one property or chunk.
func (b *Block) IsValid() bool {
	if b == nil {
		return false
	}
	if b.Label == "" || b.LastUpdated == 0 {
		return false
	}
	return len(b.Properties) > 0 || len(b.Chunks) > 0
}

// Name is a person or organization referenced by one or more pages. The ID
// is the canonical identity (typically an email address), the value is the
// display name. Roles accumulate as a union across mentions.
type Name struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Roles []Role `json:"roles"`
}

// MergeRoles unions the given roles into the name, preserving order of
// first appearance.
func (n *Name) MergeRoles(roles ...Role) {
	for _, r := range roles {
		found := false
		for _, have := range n.Roles {
			if have == r {
				found = true
				break
			}
		}
		if !found {
			n.Roles = append(n.Roles, r)
		}
	}
}

// RowKind discriminates vector rows between per-block embeddings and the
// page-level summary embedding.
type RowKind string

const (
	RowKindBlock       RowKind = "block"
	RowKindPageSummary RowKind = "page_summary"
)

// Row is one embedding record in the vector index. ID equals the source
// block id (RowKindBlock) or the page id (RowKindPageSummary); the metadata
// fields mirror the graph node so queries can filter without a join.
type Row struct {
	ID         string
	Kind       RowKind
	Embedding  []float32
	Library    string
	DateDay    string
	BlockLabel BlockLabel
	PageType   PageType
	Connection string
}

// DateDay formats an epoch-seconds timestamp as the UTC day used for range
// filtering in the vector index.
func DateDay(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format("2006-01-02")
}

// BlockLabel is the closed set of block kinds.
type BlockLabel string

const (
	LabelTitle   BlockLabel = "title"
	LabelBody    BlockLabel = "body"
	LabelComment BlockLabel = "comment"
	LabelMember  BlockLabel = "member"
	LabelDeal    BlockLabel = "deal"
	LabelContact BlockLabel = "contact"
	LabelSummary BlockLabel = "summary"
)

// BlockLabels lists every valid label, in a stable order.
func BlockLabels() []BlockLabel {
	return []BlockLabel{
		LabelTitle, LabelBody, LabelComment,
		LabelMember, LabelDeal, LabelContact, LabelSummary,
	}
}

// ParseBlockLabel validates a raw label string against the closed set.
func ParseBlockLabel(raw string) (BlockLabel, error) {
	for _, l := range BlockLabels() {
		if string(l) == raw {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown block label %q", raw)
}

// PageType is the closed set of source kinds a page can originate from.
type PageType string

const (
	PageTypeEmailThread   PageType = "email_thread"
	PageTypeCRMAccount    PageType = "crm_account"
	PageTypeSupportTicket PageType = "support_ticket"
	PageTypeDocument      PageType = "document"
)

// PageTypes lists every valid page type, in a stable order.
func PageTypes() []PageType {
	return []PageType{
		PageTypeEmailThread, PageTypeCRMAccount,
		PageTypeSupportTicket, PageTypeDocument,
	}
}

// ParsePageType validates a raw page type string against the closed set.
func ParsePageType(raw string) (PageType, error) {
	for _, p := range PageTypes() {
		if string(p) == raw {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown page type %q", raw)
}

// Role describes how a name relates to a page.
type Role string

const (
	RoleAuthor      Role = "author"
	RoleRecipient   Role = "recipient"
	RoleParticipant Role = "participant"
	RoleUnknown     Role = "unknown"
)

// ParseRole validates a raw role string, mapping anything unrecognized to
// RoleUnknown so model-produced roles degrade instead of failing.
func ParseRole(raw string) Role {
	switch Role(raw) {
	case RoleAuthor, RoleRecipient, RoleParticipant:
		return Role(raw)
	default:
		return RoleUnknown
	}
}

package models

import (
	"fmt"
	"time"
)

// Snapshot is one immutable ingestion result: the filtered markets, the
// inverted keyword index over exactly those markets, and the build time.
// It is never mutated after construction; any number of analysis calls may
// read it concurrently.
type Snapshot struct {
	Markets []*Market
	Index   map[string][]*Market
	BuiltAt time.Time

	// Partial records that pagination failed after at least one page
	// succeeded. Not an error: callers may choose to act on it.
	Partial bool
}

// Engine lifecycle states exposed to callers so a zero-result response can be
// told apart from "index not built yet" and "last ingestion failed".
const (
	StateEmpty    = "empty"
	StateBuilding = "building"
	StateReady    = "ready"
)

// EngineStatus is the controller's externally visible state.
type EngineStatus struct {
	State           string    `json:"state"`
	BuiltAt         time.Time `json:"built_at,omitzero"`
	Partial         bool      `json:"partial"`
	MarketCount     int       `json:"market_count"`
	EntityKeywords  int       `json:"entity_keywords"`
	GenericKeywords int       `json:"generic_keywords"`
	LastError       string    `json:"last_error,omitempty"`
}

// IndexDocumentVersion is the schema version written by ExportIndex.
// Loaders refuse documents with a version they do not recognise.
const IndexDocumentVersion = 1

// IndexDocument is the persisted/exported form of a Snapshot. The index maps
// each keyword to positions in Markets rather than duplicating the items.
// Unknown extra fields in a stored document are ignored on load.
type IndexDocument struct {
	Version int              `json:"version"`
	BuiltAt time.Time        `json:"built_at"`
	Partial bool             `json:"partial"`
	Markets []*Market        `json:"markets"`
	Index   map[string][]int `json:"index"`
}

// ToSnapshot rebuilds a Snapshot from the document. It fails on an
// unrecognised version or an index entry pointing outside Markets.
func (d *IndexDocument) ToSnapshot() (*Snapshot, error) {
	if d.Version != IndexDocumentVersion {
		return nil, fmt.Errorf("unsupported index document version %d (supported: %d)", d.Version, IndexDocumentVersion)
	}

	index := make(map[string][]*Market, len(d.Index))
	for keyword, positions := range d.Index {
		refs := make([]*Market, 0, len(positions))
		for _, pos := range positions {
			if pos < 0 || pos >= len(d.Markets) {
				return nil, fmt.Errorf("index entry for %q references market %d of %d", keyword, pos, len(d.Markets))
			}
			refs = append(refs, d.Markets[pos])
		}
		index[keyword] = refs
	}

	return &Snapshot{
		Markets: d.Markets,
		Index:   index,
		BuiltAt: d.BuiltAt,
		Partial: d.Partial,
	}, nil
}

// NewIndexDocument flattens a Snapshot into its persisted form.
func NewIndexDocument(snap *Snapshot) *IndexDocument {
	positions := make(map[*Market]int, len(snap.Markets))
	for i, m := range snap.Markets {
		positions[m] = i
	}

	index := make(map[string][]int, len(snap.Index))
	for keyword, refs := range snap.Index {
		ids := make([]int, 0, len(refs))
		for _, m := range refs {
			if pos, ok := positions[m]; ok {
				ids = append(ids, pos)
			}
		}
		index[keyword] = ids
	}

	return &IndexDocument{
		Version: IndexDocumentVersion,
		BuiltAt: snap.BuiltAt,
		Partial: snap.Partial,
		Markets: snap.Markets,
		Index:   index,
	}
}

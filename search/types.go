package search

import "github.com/arthur-debert/nanocache/types"

// SearchOptions configures search behavior
type SearchOptions struct {
	// Query is the text to look for
	Query string

	// Fields lists the payload keys to search. Empty searches every key
	// holding a string, number or bool.
	Fields []string

	// CaseSensitive controls whether search is case-sensitive
	CaseSensitive bool

	// ExactMatch requires the entire field to match the query
	ExactMatch bool

	// EnableHighlight fills SearchResult.Highlights
	EnableHighlight bool

	// HighlightStart and HighlightEnd wrap each match; "**" when empty
	HighlightStart string
	HighlightEnd   string

	// MaxResults limits the number of results. 0 means no limit.
	MaxResults int
}

// SearchResult is one matching entity
type SearchResult struct {
	Entity types.Entity `json:"entity" yaml:"entity"`

	// Score is the relevance of the best matching field (0.0 to 1.0)
	Score float64 `json:"score" yaml:"score"`

	// MatchType describes the best match
	MatchType MatchType `json:"match_type" yaml:"match_type"`

	// MatchedFields lists the payload keys that matched, name first
	MatchedFields []string `json:"matched_fields" yaml:"matched_fields"`

	// Highlights maps a matched key to its text with markers
	Highlights map[string]string `json:"highlights,omitempty" yaml:"highlights,omitempty"`
}

// MatchType indicates the type of match found
type MatchType string

const (
	MatchExactName    MatchType = "exact_name"
	MatchPartialName  MatchType = "partial_name"
	MatchExactField   MatchType = "exact_field"
	MatchPartialField MatchType = "partial_field"
)

// EntityProvider supplies the entities to search. *nanocache.Cache
// satisfies it, so searches only ever see cached entities.
type EntityProvider interface {
	Snapshot() []types.Entity
}

// fieldMatch is the outcome of searching one payload key
type fieldMatch struct {
	key         string
	score       float64
	matchType   MatchType
	highlighted string
}

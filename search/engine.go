package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arthur-debert/nanocache/types"
)

const nameKey = "name"

// Engine searches entity payloads
type Engine struct {
	provider EntityProvider
}

// NewEngine creates a new search engine over provider
func NewEngine(provider EntityProvider) *Engine {
	return &Engine{
		provider: provider,
	}
}

// Search returns matching entities, best score first. Ties keep the
// provider's order.
func (e *Engine) Search(options SearchOptions) []SearchResult {
	results := []SearchResult{}
	if options.Query == "" {
		return results
	}

	for _, entity := range e.provider.Snapshot() {
		if result := e.searchEntity(entity, options); result != nil {
			results = append(results, *result)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if options.MaxResults > 0 && len(results) > options.MaxResults {
		results = results[:options.MaxResults]
	}
	return results
}

// searchEntity searches the selected keys of one entity
func (e *Engine) searchEntity(entity types.Entity, options SearchOptions) *SearchResult {
	var matches []fieldMatch
	for _, key := range searchKeys(entity, options.Fields) {
		text, ok := fieldText(entity.Payload[key])
		if !ok {
			continue
		}
		if m := e.searchField(key, text, options); m != nil {
			matches = append(matches, *m)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	result := &SearchResult{
		Entity:        entity,
		MatchedFields: make([]string, 0, len(matches)),
	}
	if options.EnableHighlight {
		result.Highlights = make(map[string]string, len(matches))
	}
	for _, m := range matches {
		if m.score > result.Score {
			result.Score = m.score
			result.MatchType = m.matchType
		}
		result.MatchedFields = append(result.MatchedFields, m.key)
		if options.EnableHighlight {
			result.Highlights[m.key] = m.highlighted
		}
	}
	return result
}

// searchField matches query against one value
func (e *Engine) searchField(key, text string, options SearchOptions) *fieldMatch {
	haystack, needle := text, options.Query
	if !options.CaseSensitive {
		haystack, needle = strings.ToLower(text), strings.ToLower(needle)
	}

	m := &fieldMatch{key: key, highlighted: text}
	switch {
	case options.ExactMatch:
		if haystack != needle {
			return nil
		}
		m.score = 1.0
		m.matchType = MatchExactField
		if key == nameKey {
			m.matchType = MatchExactName
		}
	case strings.Contains(haystack, needle):
		m.score = calculateScore(haystack, needle, key)
		m.matchType = MatchPartialField
		if key == nameKey {
			m.matchType = MatchPartialName
		}
	default:
		return nil
	}

	if options.EnableHighlight {
		start, end := options.HighlightStart, options.HighlightEnd
		if start == "" && end == "" {
			start, end = "**", "**"
		}
		m.highlighted = highlight(text, haystack, needle, start, end)
	}
	return m
}

// calculateScore computes a relevance score for a substring match
func calculateScore(fieldValue, query, key string) float64 {
	score := 0.5

	// Boost name matches
	if key == nameKey {
		score = 0.8
	}

	if strings.HasPrefix(fieldValue, query) {
		score += 0.2
	}

	// Boost if the query covers most of the field
	if len(fieldValue) > 0 && float64(len(query))/float64(len(fieldValue)) > 0.5 {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// highlight wraps each non-overlapping occurrence of needle. Positions are
// found in haystack, the case-folded text, and applied to text; when folding
// changed byte lengths the text is returned unmarked.
func highlight(text, haystack, needle, startMarker, endMarker string) string {
	if needle == "" || len(haystack) != len(text) {
		return text
	}

	var builder strings.Builder
	lastEnd := 0
	for i := 0; i <= len(haystack)-len(needle); {
		if haystack[i:i+len(needle)] != needle {
			i++
			continue
		}
		builder.WriteString(text[lastEnd:i])
		builder.WriteString(startMarker)
		builder.WriteString(text[i : i+len(needle)])
		builder.WriteString(endMarker)
		i += len(needle)
		lastEnd = i
	}
	builder.WriteString(text[lastEnd:])
	return builder.String()
}

// searchKeys returns the keys to search: the requested ones, or every
// payload key with name first and the rest sorted
func searchKeys(entity types.Entity, fields []string) []string {
	if len(fields) > 0 {
		return fields
	}
	keys := make([]string, 0, len(entity.Payload))
	for key := range entity.Payload {
		if key != nameKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if _, ok := entity.Payload[nameKey]; ok {
		keys = append([]string{nameKey}, keys...)
	}
	return keys
}

// fieldText renders scalar payload values. Nested values are not searched.
func fieldText(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool, int, int64, float64:
		return fmt.Sprint(v), true
	default:
		return "", false
	}
}

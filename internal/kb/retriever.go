// Package kb implements the keyword-scored knowledge lookup the agent
// consults before escalating to a human. Entries are loaded once from a JSON
// file and shared read-only across all workers.
package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Entry is a single knowledge-base section.
type Entry struct {
	Section string `json:"section"`
	Text    string `json:"text"`
}

// Retriever scores entries against a query by token overlap.
type Retriever struct {
	entries []Entry
}

// Defined answer strings. The agent treats these as "no useful result" and
// may escalate.
const (
	MsgEmptyKB    = "Knowledge base is empty."
	MsgShortQuery = "Query too short to search."
	MsgNoMatch    = "No relevant information found in the knowledge base."
)

// Load reads a JSON array of entries from disk.
func Load(path string) (*Retriever, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}

	return &Retriever{entries: entries}, nil
}

// New builds a retriever from in-memory entries.
func New(entries []Entry) *Retriever {
	return &Retriever{entries: entries}
}

// Len returns the number of loaded entries.
func (r *Retriever) Len() int {
	return len(r.entries)
}

// Search returns a formatted answer with the top 3 entries scoring above
// zero for the query, or one of the defined miss messages. Scoring counts
// how many query tokens (longer than 2 characters, lowercased) appear
// anywhere in the section heading or text.
func (r *Retriever) Search(query string) string {
	if len(r.entries) == 0 {
		return MsgEmptyKB
	}

	tokens := make(map[string]struct{})
	for _, t := range strings.Fields(query) {
		if len(t) > 2 {
			tokens[strings.ToLower(t)] = struct{}{}
		}
	}
	if len(tokens) == 0 {
		return MsgShortQuery
	}

	type scored struct {
		entry Entry
		score int
	}
	results := make([]scored, 0, len(r.entries))
	for _, e := range r.entries {
		haystack := strings.ToLower(e.Section) + " " + strings.ToLower(e.Text)
		score := 0
		for t := range tokens {
			if strings.Contains(haystack, t) {
				score++
			}
		}
		if score > 0 {
			results = append(results, scored{entry: e, score: score})
		}
	}

	if len(results) == 0 {
		return MsgNoMatch
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > 3 {
		results = results[:3]
	}

	parts := make([]string, 0, len(results))
	for _, s := range results {
		parts = append(parts, fmt.Sprintf("**%s**\n%s", s.entry.Section, s.entry.Text))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

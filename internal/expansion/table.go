// Package expansion holds the synonym table used for progressive query
// expansion. The table is plain YAML loaded at startup, keeping domain
// vocabulary out of the retrieval logic.
package expansion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table maps a query term to its deterministic expansions, e.g. a brand
// name to generic names, therapeutic class and alternate spellings.
type Table struct {
	entries map[string][]string
}

type tableFile struct {
	Expansions map[string][]string `yaml:"expansions"`
}

// Load reads a YAML expansion table from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read expansion table %s: %w", path, err)
	}

	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse expansion table: %w", err)
	}

	return FromMap(f.Expansions), nil
}

// FromMap builds a table from an in-memory mapping. Terms are matched
// case-insensitively.
func FromMap(m map[string][]string) *Table {
	entries := make(map[string][]string, len(m))
	for term, exps := range m {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		kept := make([]string, 0, len(exps))
		for _, e := range exps {
			if e = strings.TrimSpace(e); e != "" {
				kept = append(kept, e)
			}
		}
		if len(kept) > 0 {
			entries[term] = kept
		}
	}
	return &Table{entries: entries}
}

// Empty returns a table with no entries; expansion becomes a no-op.
func Empty() *Table {
	return &Table{entries: map[string][]string{}}
}

// Expansions returns the alternates for query, or nil when the query is
// not in the table.
func (t *Table) Expansions(query string) []string {
	return t.entries[strings.ToLower(strings.TrimSpace(query))]
}

// Len reports how many terms the table covers.
func (t *Table) Len() int {
	return len(t.entries)
}

// Package query defines the boolean query tree shipped between peers and the
// evaluators that score it against a filter or against the exact local index.
package query

import (
	"fmt"

	"github.com/kailas-cloud/peersearch/internal/domain"
	"github.com/kailas-cloud/peersearch/internal/domain/text"
)

// Kind tags a node of the query tree.
type Kind string

// Node kinds.
const (
	KindWord   Kind = "word"
	KindFilter Kind = "filter"
	KindNot    Kind = "not"
	KindNAmong Kind = "n_among"
)

// Comp is one node of the query tree. Only the fields relevant to Kind are set:
// Word for KindWord, Name/Value for KindFilter, a single child in Among for KindNot,
// N and Among for KindNAmong. Among is always encoded so nil and empty children survive the wire.
type Comp struct {
	Kind  Kind   `json:"kind"`
	Word  string `json:"word,omitempty"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
	N     int    `json:"n,omitempty"`
	Among []Comp `json:"among"`
}

// Word matches documents containing term.
func Word(term string) Comp { return Comp{Kind: KindWord, Word: term} }

// FilterOn matches documents tagged name=value.
func FilterOn(name, value string) Comp { return Comp{Kind: KindFilter, Name: name, Value: value} }

// Not inverts c.
func Not(c Comp) Comp { return Comp{Kind: KindNot, Among: []Comp{c}} }

// NAmong matches when at least n of comps match.
func NAmong(n int, comps ...Comp) Comp { return Comp{Kind: KindNAmong, N: n, Among: comps} }

// FilterPair is a name=value document filter.
type FilterPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Key returns the string under which the pair is stored in a Filter.
func (p FilterPair) Key() string { return FilterKey(p.Name, p.Value) }

// FilterKey builds the filter key for name=value.
func FilterKey(name, value string) string { return name + "=" + value }

// Query is a search query: a tree of components under a single root.
type Query struct {
	Root Comp `json:"root"`
}

// New wraps root into a Query.
func New(root Comp) Query { return Query{Root: root} }

// FromWords builds the query every term of which must match.
func FromWords(words []string) Query {
	comps := make([]Comp, len(words))
	for i, w := range words {
		comps[i] = Word(w)
	}
	return New(NAmong(len(words), comps...))
}

// FromText tokenizes s the same way documents are indexed and requires every term.
// Returns domain.ErrInvalidQuery when s holds no usable term.
func FromText(s string) (Query, error) {
	words := text.Words(s)
	if len(words) == 0 {
		return Query{}, fmt.Errorf("%w: no term of %d+ characters in %q", domain.ErrInvalidQuery, text.MinWordLen, s)
	}
	return FromWords(words), nil
}

// WithFilter returns a query requiring both q and the name=value filter.
func (q Query) WithFilter(name, value string) Query {
	return New(NAmong(2, q.Root, FilterOn(name, value)))
}

// PositiveTerms returns the words that appear outside any Not, in tree order, without duplicates.
func (q Query) PositiveTerms() []string {
	var terms []string
	seen := make(map[string]struct{})
	q.Root.walkPositive(func(c Comp) {
		if c.Kind != KindWord {
			return
		}
		if _, ok := seen[c.Word]; ok {
			return
		}
		seen[c.Word] = struct{}{}
		terms = append(terms, c.Word)
	})
	return terms
}

// PositiveFilters returns the filters that appear outside any Not, in tree order, without duplicates.
func (q Query) PositiveFilters() []FilterPair {
	var filters []FilterPair
	seen := make(map[FilterPair]struct{})
	q.Root.walkPositive(func(c Comp) {
		if c.Kind != KindFilter {
			return
		}
		p := FilterPair{Name: c.Name, Value: c.Value}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		filters = append(filters, p)
	})
	return filters
}

// walkPositive visits every node not below a Not.
func (c Comp) walkPositive(visit func(Comp)) {
	switch c.Kind {
	case KindNot:
		return
	case KindNAmong:
		for _, child := range c.Among {
			child.walkPositive(visit)
		}
	default:
		visit(c)
	}
}

func (c Comp) validate() error {
	switch c.Kind {
	case KindWord, KindFilter:
		return nil
	case KindNot:
		if len(c.Among) != 1 {
			return fmt.Errorf("not expects exactly one child, got %d", len(c.Among))
		}
		return c.Among[0].validate()
	case KindNAmong:
		if c.N < 0 {
			return fmt.Errorf("n_among threshold must not be negative, got %d", c.N)
		}
		for i := range c.Among {
			if err := c.Among[i].validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown component kind %q", c.Kind)
	}
}

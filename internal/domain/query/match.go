package query

import (
	"sort"

	"github.com/kailas-cloud/peersearch/internal/domain"
)

// LeafScorer resolves the leaves of the tree. Combinators (Not, NAmong) are evaluated
// once in score, so every scorer shares the same boolean semantics.
type LeafScorer interface {
	WordScore(word string) uint32
	FilterScore(name, value string) uint32
}

// WeightSource is an approximate key -> weight lookup, e.g. a peer filter.
type WeightSource interface {
	Weight(key string) uint32
}

// ExactIndex is the read-only view of the local index the engine needs.
// TermDocs and FilterDocs must return ids in a deterministic order.
type ExactIndex interface {
	TermDocs(term string) []domain.LocalCid
	FilterDocs(name, value string) []domain.LocalCid
	ContainsTerm(term string, lcid domain.LocalCid) bool
	ContainsFilter(name, value string, lcid domain.LocalCid) bool
}

// Ranked is a matching document with its exact score.
type Ranked struct {
	Lcid  domain.LocalCid
	Score uint32
}

// Score evaluates the query with the given leaf scorer.
func (q Query) Score(s LeafScorer) uint32 { return q.Root.score(s) }

// MatchScore evaluates the query against an approximate filter.
func (q Query) MatchScore(f WeightSource) uint32 {
	return q.Root.score(weightLeaves{src: f})
}

// MatchScoreIndex evaluates the query for one document of the exact index.
// Leaves score 1 when the document holds the term or filter, 0 otherwise.
func (q Query) MatchScoreIndex(lcid domain.LocalCid, idx ExactIndex) uint32 {
	return q.Root.score(indexLeaves{idx: idx, lcid: lcid})
}

// Rank scores every candidate document once and returns those with a positive score,
// best first. Equal scores keep candidate order.
func (q Query) Rank(idx ExactIndex) []Ranked {
	candidates := q.candidates(idx)
	ranked := make([]Ranked, 0, len(candidates))
	for _, lcid := range candidates {
		if score := q.MatchScoreIndex(lcid, idx); score > 0 {
			ranked = append(ranked, Ranked{Lcid: lcid, Score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

// MatchingDocs returns the ids of matching documents, best first.
func (q Query) MatchingDocs(idx ExactIndex) []domain.LocalCid {
	ranked := q.Rank(idx)
	out := make([]domain.LocalCid, len(ranked))
	for i, r := range ranked {
		out[i] = r.Lcid
	}
	return out
}

// candidates unions the documents found under every positive term and filter,
// keeping the first position at which each id shows up.
func (q Query) candidates(idx ExactIndex) []domain.LocalCid {
	var out []domain.LocalCid
	seen := make(map[domain.LocalCid]struct{})
	add := func(ids []domain.LocalCid) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, term := range q.PositiveTerms() {
		add(idx.TermDocs(term))
	}
	for _, f := range q.PositiveFilters() {
		add(idx.FilterDocs(f.Name, f.Value))
	}
	return out
}

func (c Comp) score(s LeafScorer) uint32 {
	switch c.Kind {
	case KindWord:
		return s.WordScore(c.Word)
	case KindFilter:
		return s.FilterScore(c.Name, c.Value)
	case KindNot:
		if len(c.Among) == 0 || c.Among[0].score(s) == 0 {
			return 1
		}
		return 0
	case KindNAmong:
		var sum uint32
		matching := 0
		for i := range c.Among {
			score := c.Among[i].score(s)
			sum += score
			if score > 0 {
				matching++
			}
		}
		if matching >= c.N {
			return sum
		}
		return 0
	default:
		return 0
	}
}

type weightLeaves struct {
	src WeightSource
}

func (w weightLeaves) WordScore(word string) uint32 { return w.src.Weight(word) }

func (w weightLeaves) FilterScore(name, value string) uint32 {
	return w.src.Weight(FilterKey(name, value))
}

type indexLeaves struct {
	idx  ExactIndex
	lcid domain.LocalCid
}

func (l indexLeaves) WordScore(word string) uint32 {
	if l.idx.ContainsTerm(word, l.lcid) {
		return 1
	}
	return 0
}

func (l indexLeaves) FilterScore(name, value string) uint32 {
	if l.idx.ContainsFilter(name, value, l.lcid) {
		return 1
	}
	return 0
}

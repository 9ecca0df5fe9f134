// Package index holds the exact in-memory index of the local documents and
// derives from it the approximate filter advertised to peers.
package index

import (
	"math"
	"sort"
	"sync"

	"github.com/kailas-cloud/peersearch/internal/domain"
	"github.com/kailas-cloud/peersearch/internal/domain/filter"
	"github.com/kailas-cloud/peersearch/internal/domain/query"
)

type entry struct {
	cid     string
	terms   []string
	filters []query.FilterPair
}

// Index maps terms and filters to local documents. It is safe for concurrent use;
// queries run against a consistent snapshot under the read lock.
type Index struct {
	mu         sync.RWMutex
	next       domain.LocalCid
	byCID      map[string]domain.LocalCid
	docs       map[domain.LocalCid]entry
	terms      map[string]map[domain.LocalCid]float64
	filters    map[query.FilterPair]map[domain.LocalCid]struct{}
	filterSize int
}

// New creates an empty index whose advertised filter has filterSize buckets.
func New(filterSize int) *Index {
	return &Index{
		byCID:      make(map[string]domain.LocalCid),
		docs:       make(map[domain.LocalCid]entry),
		terms:      make(map[string]map[domain.LocalCid]float64),
		filters:    make(map[query.FilterPair]map[domain.LocalCid]struct{}),
		filterSize: filterSize,
	}
}

// Add indexes a document. Term weights are term frequencies normalised by the word count.
// Re-adding a known cid replaces its postings and keeps its LocalCid.
func (i *Index) Add(cid string, words []string, filters []query.FilterPair) domain.LocalCid {
	i.mu.Lock()
	defer i.mu.Unlock()

	lcid, known := i.byCID[cid]
	if known {
		i.removeLocked(lcid)
	} else {
		lcid = i.next
		i.next++
	}

	freq := make(map[string]int)
	for _, w := range words {
		freq[w]++
	}
	terms := make([]string, 0, len(freq))
	for term, n := range freq {
		postings := i.terms[term]
		if postings == nil {
			postings = make(map[domain.LocalCid]float64)
			i.terms[term] = postings
		}
		postings[lcid] = float64(n) / float64(len(words))
		terms = append(terms, term)
	}

	kept := make([]query.FilterPair, 0, len(filters))
	for _, f := range filters {
		set := i.filters[f]
		if set == nil {
			set = make(map[domain.LocalCid]struct{})
			i.filters[f] = set
		}
		if _, dup := set[lcid]; dup {
			continue
		}
		set[lcid] = struct{}{}
		kept = append(kept, f)
	}

	i.byCID[cid] = lcid
	i.docs[lcid] = entry{cid: cid, terms: terms, filters: kept}
	return lcid
}

// Remove drops a document. Returns false when cid is not indexed.
func (i *Index) Remove(cid string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	lcid, ok := i.byCID[cid]
	if !ok {
		return false
	}
	i.removeLocked(lcid)
	delete(i.byCID, cid)
	delete(i.docs, lcid)
	return true
}

func (i *Index) removeLocked(lcid domain.LocalCid) {
	e := i.docs[lcid]
	for _, term := range e.terms {
		postings := i.terms[term]
		delete(postings, lcid)
		if len(postings) == 0 {
			delete(i.terms, term)
		}
	}
	for _, f := range e.filters {
		set := i.filters[f]
		delete(set, lcid)
		if len(set) == 0 {
			delete(i.filters, f)
		}
	}
}

// Lookup returns the cid of a local document.
func (i *Index) Lookup(lcid domain.LocalCid) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.docs[lcid]
	return e.cid, ok
}

// Len returns the number of indexed documents.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Rank evaluates q against the exact index, best first.
func (i *Index) Rank(q query.Query) []query.Ranked {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return q.Rank(snapshot{i})
}

// MatchingDocs returns the ids of the documents matching q, best first.
func (i *Index) MatchingDocs(q query.Query) []domain.LocalCid {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return q.MatchingDocs(snapshot{i})
}

// Filter builds the approximate filter of the current content. A term or filter
// weighs as many documents as hold it.
func (i *Index) Filter() *filter.Filter {
	i.mu.RLock()
	defer i.mu.RUnlock()

	f := filter.New(i.filterSize)
	for term, postings := range i.terms {
		f.Add(term, clampWeight(len(postings)))
	}
	for pair, set := range i.filters {
		f.Add(pair.Key(), clampWeight(len(set)))
	}
	return f
}

func clampWeight(n int) uint32 {
	if n > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint32(n)
}

// snapshot reads the index without locking; callers hold the read lock.
type snapshot struct {
	i *Index
}

var _ query.ExactIndex = snapshot{}

func (s snapshot) TermDocs(term string) []domain.LocalCid {
	postings := s.i.terms[term]
	out := make([]domain.LocalCid, 0, len(postings))
	for lcid := range postings {
		out = append(out, lcid)
	}
	sortIDs(out)
	return out
}

func (s snapshot) FilterDocs(name, value string) []domain.LocalCid {
	set := s.i.filters[query.FilterPair{Name: name, Value: value}]
	out := make([]domain.LocalCid, 0, len(set))
	for lcid := range set {
		out = append(out, lcid)
	}
	sortIDs(out)
	return out
}

func (s snapshot) ContainsTerm(term string, lcid domain.LocalCid) bool {
	_, ok := s.i.terms[term][lcid]
	return ok
}

func (s snapshot) ContainsFilter(name, value string, lcid domain.LocalCid) bool {
	_, ok := s.i.filters[query.FilterPair{Name: name, Value: value}][lcid]
	return ok
}

func sortIDs(ids []domain.LocalCid) {
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
}

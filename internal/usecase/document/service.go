package document

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/peersearch/internal/domain"
	domdoc "github.com/kailas-cloud/peersearch/internal/domain/document"
	"github.com/kailas-cloud/peersearch/internal/domain/query"
	"github.com/kailas-cloud/peersearch/internal/extract"
	"github.com/kailas-cloud/peersearch/internal/metrics"
)

// Document filter names.
const (
	FilterLang = "lang"
	FilterExt  = "ext"
)

// Service stores raw documents and keeps the local index in sync with the store.
type Service struct {
	repo          Repository
	index         Indexer
	logger        *zap.Logger
	reindexPageSz int
}

// New creates a document service.
func New(repo Repository, index Indexer, logger *zap.Logger) *Service {
	return &Service{repo: repo, index: index, logger: logger, reindexPageSz: 100}
}

// Upsert validates, stores and indexes a document.
// Returns true if the document was created, false if updated.
func (s *Service) Upsert(ctx context.Context, cid, html string, paths []string) (bool, error) {
	doc, err := domdoc.New(cid, html, paths)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}

	created, err := s.repo.Put(ctx, &doc)
	if err != nil {
		return false, fmt.Errorf("store document: %w", err)
	}
	s.indexDocument(&doc)
	return created, nil
}

// Get retrieves a stored document.
func (s *Service) Get(ctx context.Context, cid string) (domdoc.Document, error) {
	doc, err := s.repo.Get(ctx, cid)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// Delete removes a document from the store and the index.
func (s *Service) Delete(ctx context.Context, cid string) error {
	if err := s.repo.Delete(ctx, cid); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.index.Remove(cid)
	metrics.DocumentsIndexed.Set(float64(s.index.Len()))
	return nil
}

// Reindex loads every stored document into the index. Returns the number of documents indexed.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	total := 0
	cursor := ""
	for {
		docs, next, err := s.repo.List(ctx, cursor, s.reindexPageSz)
		if err != nil {
			return total, fmt.Errorf("list documents: %w", err)
		}
		for i := range docs {
			s.indexDocument(&docs[i])
		}
		total += len(docs)
		if next == "" {
			break
		}
		cursor = next
	}
	s.logger.Info("local index rebuilt", zap.Int("documents", total))
	return total, nil
}

func (s *Service) indexDocument(doc *domdoc.Document) {
	parsed := extract.Parse(doc.HTML())
	words := parsed.Words()
	filters := Filters(parsed.Language(), doc.Paths())
	lcid := s.index.Add(doc.CID(), words, filters)
	metrics.DocumentsIndexed.Set(float64(s.index.Len()))

	s.logger.Debug("document indexed",
		zap.String("cid", doc.CID()),
		zap.Uint32("lcid", uint32(lcid)),
		zap.Int("words", len(words)),
	)
}

// Filters returns the index filters of a document: its language and the extension of each path.
func Filters(lang string, paths []string) []query.FilterPair {
	filters := []query.FilterPair{{Name: FilterLang, Value: lang}}
	seen := make(map[string]struct{})
	for _, p := range paths {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		filters = append(filters, query.FilterPair{Name: FilterExt, Value: ext})
	}
	return filters
}

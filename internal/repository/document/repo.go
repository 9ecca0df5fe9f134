package document

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/peersearch/internal/db"
	"github.com/kailas-cloud/peersearch/internal/domain"
	domdoc "github.com/kailas-cloud/peersearch/internal/domain/document"
)

// store is the consumer interface for documents (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	ScanPage(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error)
}

// Repo implements usecase/document.Repository.
type Repo struct {
	store  store
	prefix string
}

// New creates a document repository. Keys are namespaced by prefix.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Put creates or replaces a document. Returns true if created.
func (r *Repo) Put(ctx context.Context, doc *domdoc.Document) (bool, error) {
	key := r.docKey(doc.CID())
	fields, err := buildHashFields(doc)
	if err != nil {
		return false, err
	}

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check exists %s: %w", key, err)
	}

	if err := r.store.HSet(ctx, key, fields); err != nil {
		return false, fmt.Errorf("hset %s: %w", key, err)
	}

	return !exists, nil
}

// Get returns a document by CID.
func (r *Repo) Get(ctx context.Context, cid string) (domdoc.Document, error) {
	key := r.docKey(cid)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domdoc.Document{}, domain.ErrDocumentNotFound
		}
		return domdoc.Document{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return parseHashFields(cid, m)
}

// List returns one SCAN page of documents. The cursor is opaque; an empty next cursor ends the listing.
// Keys removed between SCAN and HGETALL are skipped.
func (r *Repo) List(ctx context.Context, cursor string, limit int) ([]domdoc.Document, string, error) {
	if limit <= 0 {
		limit = 20
	}

	var pos uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		pos = parsed
	}

	keys, next, err := r.store.ScanPage(ctx, pos, r.docKey("*"), int64(limit))
	if err != nil {
		return nil, "", fmt.Errorf("scan documents: %w", err)
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, "", fmt.Errorf("load documents: %w", err)
	}

	docs := make([]domdoc.Document, 0, len(keys))
	for i, m := range hashes {
		if len(m) == 0 {
			continue
		}
		doc, err := parseHashFields(strings.TrimPrefix(keys[i], r.docKey("")), m)
		if err != nil {
			return nil, "", err
		}
		docs = append(docs, doc)
	}

	var nextCursor string
	if next != 0 {
		nextCursor = strconv.FormatUint(next, 10)
	}
	return docs, nextCursor, nil
}

// Delete removes a document.
func (r *Repo) Delete(ctx context.Context, cid string) error {
	key := r.docKey(cid)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (r *Repo) docKey(cid string) string {
	return r.prefix + "doc:" + cid
}

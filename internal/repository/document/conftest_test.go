package document

import (
	"context"
	"testing"

	domdoc "github.com/kailas-cloud/peersearch/internal/domain/document"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn         func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	delFn          func(ctx context.Context, key string) error
	existsFn       func(ctx context.Context, key string) (bool, error)
	scanPageFn     func(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return make([]map[string]string, len(keys)), nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) ScanPage(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	if m.scanPageFn != nil {
		return m.scanPageFn(ctx, cursor, pattern, count)
	}
	return nil, 0, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, "ps:")
	return repo, ms
}

func testDocument(t *testing.T) domdoc.Document {
	t.Helper()
	doc, err := domdoc.New("doc-1", "<html><title>Hi</title><p>hello world</p></html>", []string{"/a/index.html", "/b.html"})
	if err != nil {
		t.Fatalf("domdoc.New: %v", err)
	}
	return doc
}

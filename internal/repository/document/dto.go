package document

import (
	"encoding/json"
	"fmt"

	domdoc "github.com/kailas-cloud/peersearch/internal/domain/document"
)

const (
	fieldHTML  = "html"
	fieldPaths = "paths"
)

// buildHashFields converts a domain Document into a flat map[string]string for HSET.
func buildHashFields(doc *domdoc.Document) (map[string]string, error) {
	paths := doc.Paths()
	if paths == nil {
		paths = []string{}
	}
	raw, err := json.Marshal(paths)
	if err != nil {
		return nil, fmt.Errorf("marshal paths: %w", err)
	}
	return map[string]string{
		fieldHTML:  doc.HTML(),
		fieldPaths: string(raw),
	}, nil
}

// parseHashFields converts a flat hash map back into a domain Document.
func parseHashFields(cid string, m map[string]string) (domdoc.Document, error) {
	var paths []string
	if raw := m[fieldPaths]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &paths); err != nil {
			return domdoc.Document{}, fmt.Errorf("unmarshal paths of %s: %w", cid, err)
		}
	}
	return domdoc.Reconstruct(cid, m[fieldHTML], paths), nil
}

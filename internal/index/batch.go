package index

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/schema"
)

// Query is a compiled bleve query.
type Query = query.Query

type bleveMapping = mapping.IndexMapping

// Document is one source row ready for ingestion. Values hold int64, uint64
// or string; a missing name leaves the field unset.
type Document struct {
	ID     string
	Values map[string]any
}

// NewDocument returns a document keyed by the decimal rendering of key.
func NewDocument(key int64) Document {
	return Document{ID: strconv.FormatInt(key, 10), Values: make(map[string]any)}
}

// SetInt sets a signed integer field.
func (d Document) SetInt(name string, v int64) { d.Values[name] = v }

// SetUInt sets an unsigned integer field.
func (d Document) SetUInt(name string, v uint64) { d.Values[name] = v }

// SetText sets a text field.
func (d Document) SetText(name string, v string) { d.Values[name] = v }

// Hit is one search result. Fields holds stored values as returned by the
// engine: strings for text, float64 for numbers.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]any
}

var errInvalidated = errors.Newf(errors.ErrCodeInternal, "index handle used outside its Read or Write")

// Writer stages documents into the pending batch of a Write.
type Writer struct {
	e     *Engine
	batch *bleve.Batch
	added int
}

// Catalogue returns the engine's field table.
func (w *Writer) Catalogue() Catalogue { return w.e.catalogue }

// Len returns the number of documents staged so far.
func (w *Writer) Len() int { return w.added }

// Add stages doc. Unknown fields and values of the wrong kind are rejected.
func (w *Writer) Add(doc Document) error {
	if w.batch == nil {
		return errInvalidated
	}
	if doc.ID == "" {
		return errors.Newf(errors.ErrCodeInvalidValue, "document has no identifier")
	}

	body := make(map[string]any, len(doc.Values))
	for name, v := range doc.Values {
		f, ok := w.e.catalogue.Lookup(name)
		if !ok {
			return errors.Newf(errors.ErrCodeFieldNotFound, "field `%s` not found in index", name).
				WithDetail("document", doc.ID).
				WithSuggestion("Run with --rebuild after changing the schema")
		}
		converted, err := convertValue(f, v)
		if err != nil {
			return errors.New(errors.ErrCodeInvalidValue, err.Error(), nil).
				WithDetail("document", doc.ID).
				WithDetail("field", name)
		}
		body[name] = converted
	}

	if err := w.batch.Index(doc.ID, body); err != nil {
		return errors.New(errors.ErrCodeIndexFailed,
			fmt.Sprintf("failed to stage document %s", doc.ID), err)
	}
	w.added++
	return nil
}

func convertValue(f Field, v any) (any, error) {
	switch f.Kind {
	case schema.KindText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field `%s` expects text, got %T", f.Name, v)
		}
		return s, nil
	case schema.KindInt:
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("field `%s` expects a signed integer, got %T", f.Name, v)
		}
		return float64(n), nil
	case schema.KindUInt:
		n, ok := v.(uint64)
		if !ok {
			return nil, fmt.Errorf("field `%s` expects an unsigned integer, got %T", f.Name, v)
		}
		return float64(n), nil
	default:
		return nil, fmt.Errorf("field `%s` has unsupported kind %s", f.Name, f.Kind)
	}
}

func (w *Writer) invalidate() { w.batch = nil }

// Reader queries the committed state of the index.
type Reader struct {
	e *Engine
}

// Catalogue returns the engine's field table.
func (r *Reader) Catalogue() Catalogue { return r.e.catalogue }

// Search returns up to limit hits for q, best first, with stored fields.
func (r *Reader) Search(ctx context.Context, q Query, limit int) ([]Hit, error) {
	if r.e == nil {
		return nil, errInvalidated
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = r.e.catalogue.StoredNames()

	res, err := r.e.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "search failed", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score, Fields: h.Fields})
	}
	return hits, nil
}

// DocCount returns the number of committed documents.
func (r *Reader) DocCount() (uint64, error) {
	if r.e == nil {
		return 0, errInvalidated
	}
	n, err := r.e.idx.DocCount()
	if err != nil {
		return 0, errors.New(errors.ErrCodeSearchFailed, "failed to count documents", err)
	}
	return n, nil
}

func (r *Reader) invalidate() { r.e = nil }

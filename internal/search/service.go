// Package search answers query-language searches against the index and
// renders hits as display rows.
package search

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/index"
	"github.com/Aman-CERP/rowsearch/internal/metrics"
	"github.com/Aman-CERP/rowsearch/internal/query"
	"github.com/Aman-CERP/rowsearch/internal/schema"
)

const (
	// MaxResults caps every search; there is no pagination.
	MaxResults = 50

	// DefaultParseCacheSize is the number of parsed queries kept.
	DefaultParseCacheSize = 256

	// MaxQueryLength bounds the raw query string in bytes.
	MaxQueryLength = 4096
)

// Row maps field names to rendered values. Unset fields are absent.
type Row map[string]string

// FieldInfo describes a schema field for clients.
type FieldInfo struct {
	Name        string `json:"name"`
	Display     string `json:"display"`
	Description string `json:"description"`
	DataType    string `json:"data_type"`
}

// Service composes parsing, compilation and index reads.
type Service struct {
	engine *index.Engine
	schema schema.Schema
	limit  int
	parsed *lru.Cache[string, []query.Token]
}

// NewService creates a Service over engine.
func NewService(engine *index.Engine, s schema.Schema) (*Service, error) {
	return newServiceWithCache(engine, s, DefaultParseCacheSize)
}

func newServiceWithCache(engine *index.Engine, s schema.Schema, cacheSize int) (*Service, error) {
	cache, err := lru.New[string, []query.Token](cacheSize)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInternal, "failed to create query cache", err)
	}
	return &Service{
		engine: engine,
		schema: s,
		limit:  MaxResults,
		parsed: cache,
	}, nil
}

// Search runs raw and returns at most MaxResults rows, best first. An empty
// query matches nothing and does not touch the index.
func (s *Service) Search(ctx context.Context, raw string) ([]Row, error) {
	start := time.Now()

	rows, err := s.search(ctx, raw)

	status := "ok"
	if err != nil {
		status = "error"
		if errors.IsBadRequest(err) {
			status = "bad_request"
		}
		slog.Warn("search_failed",
			slog.String("query", raw),
			slog.String("code", errors.GetCode(err)),
			slog.String("error", err.Error()))
	} else {
		slog.Debug("search_complete",
			slog.String("query", raw),
			slog.Int("results", len(rows)),
			slog.Duration("duration", time.Since(start)))
	}
	metrics.ObserveSearch(status, time.Since(start))

	return rows, err
}

func (s *Service) search(ctx context.Context, raw string) ([]Row, error) {
	if len(raw) > MaxQueryLength {
		return nil, errors.Newf(errors.ErrCodeQueryTooLong, "query exceeds %d bytes", MaxQueryLength)
	}

	tokens, err := s.parse(raw)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return []Row{}, nil
	}

	return index.Read(s.engine, func(r *index.Reader) ([]Row, error) {
		q, err := query.Compile(tokens, r.Catalogue())
		if err != nil {
			return nil, err
		}
		hits, err := r.Search(ctx, q, s.limit)
		if err != nil {
			return nil, err
		}

		rows := make([]Row, 0, len(hits))
		for _, h := range hits {
			rows = append(rows, s.render(h))
		}
		return rows, nil
	})
}

func (s *Service) parse(raw string) ([]query.Token, error) {
	key := strings.TrimSpace(raw)
	if tokens, ok := s.parsed.Get(key); ok {
		return tokens, nil
	}
	tokens, err := query.Parse(key)
	if err != nil {
		return nil, err
	}
	s.parsed.Add(key, tokens)
	return tokens, nil
}

// render formats stored values: integers in decimal, text as is.
func (s *Service) render(h index.Hit) Row {
	row := make(Row, len(h.Fields))
	for name, v := range h.Fields {
		def, ok := s.schema.Lookup(name)
		if !ok {
			continue
		}
		if text, ok := renderValue(def.DataType.Kind, v); ok {
			row[name] = text
		}
	}
	return row
}

func renderValue(kind schema.Kind, v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		switch kind {
		case schema.KindUInt:
			return strconv.FormatUint(uint64(x), 10), true
		case schema.KindInt:
			return strconv.FormatInt(int64(x), 10), true
		default:
			return strconv.FormatFloat(x, 'f', -1, 64), true
		}
	case []any:
		// Multi-valued stored fields are not produced by ingestion.
		if len(x) > 0 {
			return renderValue(kind, x[0])
		}
	}
	return "", false
}

// Fields lists the schema in declaration order.
func (s *Service) Fields() []FieldInfo {
	return DescribeFields(s.schema)
}

// DescribeFields lists the fields of sc in declaration order.
func DescribeFields(sc schema.Schema) []FieldInfo {
	defs := sc.Fields()
	out := make([]FieldInfo, 0, len(defs))
	for _, f := range defs {
		out = append(out, FieldInfo{
			Name:        f.Name,
			Display:     f.Display,
			Description: f.Description,
			DataType:    f.DataType.UIType(),
		})
	}
	return out
}

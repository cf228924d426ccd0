package worker

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/index"
	"github.com/Aman-CERP/rowsearch/internal/schema"
)

// columnBinding ties a schema field to its position in the result set.
type columnBinding struct {
	field schema.FieldDefinition
	pos   int
}

// rowMapper turns scanned rows into documents.
type rowMapper struct {
	bindings []columnBinding
	keyPos   int
	dest     []any
	values   []any
}

// newRowMapper matches result columns to schema fields. Fields whose column
// is not selected stay unset; the key column is required.
func newRowMapper(columns []string, s schema.Schema, keyColumn string) (*rowMapper, error) {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := pos[c]; !dup {
			pos[c] = i
		}
	}

	keyPos, ok := pos[keyColumn]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeSourceFetch, "key column `%s` missing from query result", keyColumn).
			WithSuggestion("Select the key column in datasource.query")
	}

	m := &rowMapper{
		keyPos: keyPos,
		dest:   make([]any, len(columns)),
		values: make([]any, len(columns)),
	}
	for i := range m.dest {
		m.dest[i] = &m.values[i]
	}
	for _, f := range s.Fields() {
		if p, ok := pos[f.Column]; ok {
			m.bindings = append(m.bindings, columnBinding{field: f, pos: p})
		}
	}
	return m, nil
}

// scan reads the current row into a document and returns its key.
func (m *rowMapper) scan(rows *sql.Rows) (index.Document, int64, error) {
	if err := rows.Scan(m.dest...); err != nil {
		return index.Document{}, 0, errors.New(errors.ErrCodeSourceStream, "failed to scan row", err)
	}

	raw := m.values[m.keyPos]
	if raw == nil {
		return index.Document{}, 0, errors.Newf(errors.ErrCodeInvalidValue, "row has a NULL key")
	}
	key, err := toInt64(raw)
	if err != nil {
		return index.Document{}, 0, errors.New(errors.ErrCodeInvalidValue,
			fmt.Sprintf("row key is not an integer: %v", err), err)
	}

	doc := index.NewDocument(key)
	for _, b := range m.bindings {
		v := m.values[b.pos]
		if v == nil {
			continue
		}
		if err := setValue(doc, b.field, v); err != nil {
			return index.Document{}, 0, errors.New(errors.ErrCodeInvalidValue, err.Error(), err).
				WithDetail("document", doc.ID).
				WithDetail("column", b.field.Column)
		}
	}
	return doc, key, nil
}

func setValue(doc index.Document, f schema.FieldDefinition, v any) error {
	switch f.DataType.Kind {
	case schema.KindText:
		doc.SetText(f.Name, strings.TrimSpace(toText(v)))
	case schema.KindInt:
		n, err := toInt64(v)
		if err != nil {
			return fmt.Errorf("column `%s`: %w", f.Column, err)
		}
		doc.SetInt(f.Name, n)
	case schema.KindUInt:
		n, err := toUint64(v)
		if err != nil {
			return fmt.Errorf("column `%s`: %w", f.Column, err)
		}
		doc.SetUInt(f.Name, n)
	}
	return nil
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows a signed integer", x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x > math.MaxInt64 {
			return 0, fmt.Errorf("value %v is not a whole number", x)
		}
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to an integer", v)
	}
}

func toUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("value %d is negative", x)
		}
		return uint64(x), nil
	case int32:
		if x < 0 {
			return 0, fmt.Errorf("value %d is negative", x)
		}
		return uint64(x), nil
	case int:
		if x < 0 {
			return 0, fmt.Errorf("value %d is negative", x)
		}
		return uint64(x), nil
	case float64:
		if x != math.Trunc(x) || x < 0 || x > math.MaxUint64 {
			return 0, fmt.Errorf("value %v is not a non-negative whole number", x)
		}
		return uint64(x), nil
	case []byte:
		return strconv.ParseUint(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseUint(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to an unsigned integer", v)
	}
}

package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bq "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/index"
	"github.com/Aman-CERP/rowsearch/internal/schema"
)

// Compile builds one flat boolean query from tokens. Every field reference
// is resolved against cat; the first failure aborts compilation.
func Compile(tokens []Token, cat index.Catalogue) (bq.Query, error) {
	if len(tokens) == 0 {
		return bleve.NewMatchNoneQuery(), nil
	}

	b := &builder{cat: cat, root: bleve.NewBooleanQuery()}
	for _, tok := range tokens {
		var err error
		switch t := tok.(type) {
		case TextTerm:
			b.text(t)
		case FieldEquals:
			err = b.equals(t)
		case FieldRange:
			err = b.rangeOf(t)
		default:
			err = compileError("unsupported token %T", tok)
		}
		if err != nil {
			return nil, err
		}
	}

	// Exclusions alone select nothing; they only narrow what other
	// clauses match.
	if b.positive == 0 {
		return bleve.NewMatchNoneQuery(), nil
	}
	return b.root, nil
}

type builder struct {
	cat      index.Catalogue
	root     *bq.BooleanQuery
	positive int
}

func (b *builder) add(occ Occurrence, q bq.Query) {
	switch occ {
	case Must:
		b.root.AddMust(q)
		b.positive++
	case MustNot:
		b.root.AddMustNot(q)
	default:
		b.root.AddShould(q)
		b.positive++
	}
}

// lookup resolves a field filter's name. Fields the index stores but does
// not index cannot be filtered on and are reported as undefined.
func (b *builder) lookup(name string) (index.Field, error) {
	f, ok := b.cat.Lookup(name)
	if !ok || !f.Indexed {
		return index.Field{}, compileError("field `%s` not defined", name)
	}
	return f, nil
}

// text adds one clause per word: a disjunction over all indexed text fields.
func (b *builder) text(t TextTerm) {
	fields := b.cat.TextFields()
	for _, word := range t.Words {
		if len(fields) == 0 {
			b.add(t.Occurrence, bleve.NewMatchNoneQuery())
			continue
		}
		word = strings.ToLower(word)
		alts := make([]bq.Query, 0, len(fields))
		for _, f := range fields {
			alts = append(alts, termQuery(f.Name, word))
		}
		b.add(t.Occurrence, bleve.NewDisjunctionQuery(alts...))
	}
}

func (b *builder) equals(t FieldEquals) error {
	f, err := b.lookup(t.Field)
	if err != nil {
		return err
	}

	if f.Kind == schema.KindText {
		b.add(t.Occurrence, termQuery(f.Name, strings.ToLower(t.Value)))
		return nil
	}

	v, err := parseNumber(f, t.Value)
	if err != nil {
		return err
	}
	b.add(t.Occurrence, numericRange(f.Name, &v, &v))
	return nil
}

func (b *builder) rangeOf(t FieldRange) error {
	f, err := b.lookup(t.Field)
	if err != nil {
		return err
	}
	if !f.IsNumeric() {
		return compileError("field `%s` not numeric", t.Field)
	}

	var lo, hi *float64
	if t.Lower != nil {
		v, err := parseNumber(f, *t.Lower)
		if err != nil {
			return err
		}
		lo = &v
	}
	if t.Upper != nil {
		v, err := parseNumber(f, *t.Upper)
		if err != nil {
			return err
		}
		hi = &v
	}
	b.add(t.Occurrence, numericRange(f.Name, lo, hi))
	return nil
}

// parseNumber parses value with the width and sign of the field's kind.
func parseNumber(f index.Field, value string) (float64, error) {
	switch f.Kind {
	case schema.KindUInt:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return 0, valueError(f, value, err)
		}
		return float64(n), nil
	case schema.KindInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, valueError(f, value, err)
		}
		return float64(n), nil
	default:
		return 0, compileError("field `%s` not numeric", f.Name)
	}
}

func termQuery(field, term string) bq.Query {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

func numericRange(field string, lo, hi *float64) bq.Query {
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(lo, hi, &inclusive, &inclusive)
	q.SetField(field)
	return q
}

func compileError(format string, args ...any) error {
	return errors.Newf(errors.ErrCodeQueryCompile, format, args...)
}

func valueError(f index.Field, value string, cause error) error {
	var reason string
	if ne, ok := cause.(*strconv.NumError); ok {
		reason = ne.Err.Error()
	} else {
		reason = cause.Error()
	}
	return errors.New(errors.ErrCodeQueryCompile,
		fmt.Sprintf("failed to parse value `%s` for field `%s` - %s", value, f.Name, reason), cause).
		WithDetail("field", f.Name).
		WithDetail("value", value)
}

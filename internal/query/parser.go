// Package query implements the search language: a whitespace separated list
// of tokens, each optionally prefixed with '+' (must) or '-' (must not).
//
//	token        := [occurrence] (field_filter | bare_text)
//	field_filter := field ':' (range | literal)
//	range        := [number] '..' [number]
//	bare_text    := literal, split on '_' into words
//
// Parse turns a raw string into tokens; Compile turns tokens into a bleve
// query against an index catalogue.
package query

import (
	"strings"

	"github.com/Aman-CERP/rowsearch/internal/errors"
)

// Occurrence says how a token's clause combines with the others.
type Occurrence int

const (
	// Should clauses contribute to scoring; at least one must match when no
	// Must clause is present.
	Should Occurrence = iota
	// Must clauses are required.
	Must
	// MustNot clauses exclude matching documents.
	MustNot
)

func (o Occurrence) String() string {
	switch o {
	case Must:
		return "must"
	case MustNot:
		return "must_not"
	default:
		return "should"
	}
}

// Token is one parsed query element: TextTerm, FieldEquals or FieldRange.
type Token interface {
	Occur() Occurrence
	token()
}

// TextTerm is bare text matched against every indexed text field.
type TextTerm struct {
	Occurrence Occurrence
	Words      []string
}

// FieldEquals is field:value.
type FieldEquals struct {
	Occurrence Occurrence
	Field      string
	Value      string
}

// FieldRange is field:lower..upper; a nil bound is open.
type FieldRange struct {
	Occurrence Occurrence
	Field      string
	Lower      *string
	Upper      *string
}

func (t TextTerm) Occur() Occurrence    { return t.Occurrence }
func (t FieldEquals) Occur() Occurrence { return t.Occurrence }
func (t FieldRange) Occur() Occurrence  { return t.Occurrence }

func (TextTerm) token()    {}
func (FieldEquals) token() {}
func (FieldRange) token()  {}

const (
	fieldSeparator = ":"
	rangeSeparator = ".."
	wordSeparator  = "_"
)

// Parse splits raw into tokens. Empty input yields an empty slice.
func Parse(raw string) ([]Token, error) {
	parts := strings.Fields(raw)
	tokens := make([]Token, 0, len(parts))

	for _, part := range parts {
		tok, err := parseToken(part)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func parseToken(s string) (Token, error) {
	occ := Should
	switch {
	case strings.HasPrefix(s, "+"):
		occ, s = Must, s[1:]
	case strings.HasPrefix(s, "-"):
		occ, s = MustNot, s[1:]
	}

	field, value, ok := strings.Cut(s, fieldSeparator)
	if !ok {
		return TextTerm{Occurrence: occ, Words: splitWords(s)}, nil
	}

	lower, upper, isRange := strings.Cut(value, rangeSeparator)
	if !isRange {
		return FieldEquals{Occurrence: occ, Field: field, Value: value}, nil
	}

	lo, err := parseBound(lower)
	if err != nil {
		return nil, err
	}
	hi, err := parseBound(upper)
	if err != nil {
		return nil, err
	}
	return FieldRange{Occurrence: occ, Field: field, Lower: lo, Upper: hi}, nil
}

func splitWords(s string) []string {
	var words []string
	for _, w := range strings.Split(s, wordSeparator) {
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// parseBound returns nil for an empty bound.
func parseBound(s string) (*string, error) {
	if s == "" {
		return nil, nil
	}
	if !isNumber(s) {
		return nil, errors.Newf(errors.ErrCodeInvalidQuery, "value `%s` is not a number", s).
			WithSuggestion("Range bounds must be whole numbers, e.g. price:10..20")
	}
	return &s, nil
}

// isNumber accepts decimal digits with an optional leading minus sign.
func isNumber(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

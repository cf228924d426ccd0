package index

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Aman-CERP/rowsearch/internal/schema"
)

// TextAnalyzerName is the analyzer applied to text fields: unicode word
// segmentation followed by lower-casing, no stemming or stop words, so a
// lower-cased query word matches the indexed term exactly.
const TextAnalyzerName = "rowsearch_text"

const (
	mappingTypeText   = "text"
	mappingTypeNumber = "number"
)

// Field is the engine handle for one schema field, resolved once when the
// index is opened.
type Field struct {
	Name    string
	Kind    schema.Kind
	Indexed bool
	Stored  bool
}

// IsNumeric reports whether the field holds Int or UInt values.
func (f Field) IsNumeric() bool {
	return f.Kind == schema.KindInt || f.Kind == schema.KindUInt
}

// Catalogue is the name to handle table shared by ingestion and query
// compilation. It only lists schema fields the opened index actually maps.
type Catalogue struct {
	fields []Field
	byName map[string]int
}

func newCatalogue(fields []Field) Catalogue {
	c := Catalogue{fields: fields, byName: make(map[string]int, len(fields))}
	for i, f := range fields {
		c.byName[f.Name] = i
	}
	return c
}

// Lookup returns the handle for name.
func (c Catalogue) Lookup(name string) (Field, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Field{}, false
	}
	return c.fields[i], true
}

// Fields returns all handles in schema order.
func (c Catalogue) Fields() []Field {
	out := make([]Field, len(c.fields))
	copy(out, c.fields)
	return out
}

// TextFields returns the indexed text fields in schema order.
func (c Catalogue) TextFields() []Field {
	var out []Field
	for _, f := range c.fields {
		if f.Kind == schema.KindText && f.Indexed {
			out = append(out, f)
		}
	}
	return out
}

// StoredNames lists the fields returned with search hits.
func (c Catalogue) StoredNames() []string {
	names := make([]string, 0, len(c.fields))
	for _, f := range c.fields {
		if f.Stored {
			names = append(names, f.Name)
		}
	}
	return names
}

// Len returns the number of resolved fields.
func (c Catalogue) Len() int { return len(c.fields) }

// buildMapping translates the schema into a static bleve mapping: one
// property per field, nothing dynamic, nothing in the _all field.
func buildMapping(s schema.Schema) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add text analyzer: %w", err)
	}
	im.DefaultAnalyzer = TextAnalyzerName
	im.IndexDynamic = false
	im.StoreDynamic = false
	im.DocValuesDynamic = false

	doc := bleve.NewDocumentStaticMapping()
	for _, f := range s.Fields() {
		var fm *mapping.FieldMapping
		switch f.DataType.Kind {
		case schema.KindText:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = TextAnalyzerName
			fm.Index = true
		default:
			fm = bleve.NewNumericFieldMapping()
			fm.Index = f.DataType.Indexed
			fm.DocValues = f.DataType.Indexed
		}
		fm.Store = true
		fm.IncludeInAll = false
		doc.AddFieldMappingsAt(f.Name, fm)
	}
	im.DefaultMapping = doc

	return im, nil
}

// resolveCatalogue cross-checks the schema against the mapping the index was
// opened with. A field the index does not map, or maps with an incompatible
// type, is left out and reported in missing.
func resolveCatalogue(m mapping.IndexMapping, s schema.Schema) (cat Catalogue, missing []string) {
	impl, ok := m.(*mapping.IndexMappingImpl)
	if !ok || impl.DefaultMapping == nil {
		for _, f := range s.Fields() {
			missing = append(missing, f.Name)
		}
		return newCatalogue(nil), missing
	}

	var fields []Field
	for _, def := range s.Fields() {
		prop, ok := impl.DefaultMapping.Properties[def.Name]
		if !ok || prop == nil || len(prop.Fields) == 0 {
			missing = append(missing, def.Name)
			continue
		}
		fm := prop.Fields[0]

		want := mappingTypeText
		if def.DataType.IsNumeric() {
			want = mappingTypeNumber
		}
		if fm.Type != want {
			missing = append(missing, def.Name)
			continue
		}

		fields = append(fields, Field{
			Name:    def.Name,
			Kind:    def.DataType.Kind,
			Indexed: fm.Index,
			Stored:  fm.Store,
		})
	}

	return newCatalogue(fields), missing
}

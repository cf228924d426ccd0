// Package schema declares the fields mirrored from the datasource into the
// search index: their names, source columns, labels and data types.
package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the semantic type of a field.
type Kind int

const (
	// KindText is free text, always indexed and stored.
	KindText Kind = iota
	// KindInt is a signed 64-bit integer.
	KindInt
	// KindUInt is an unsigned 64-bit integer.
	KindUInt
)

// String returns the name used in configuration files.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindUInt:
		return "UInt"
	default:
		return "Text"
	}
}

// DataType is a field's type. Numeric types carry an indexed flag; text is
// always indexed.
type DataType struct {
	Kind    Kind
	Indexed bool
}

// Int returns a signed integer data type.
func Int(indexed bool) DataType { return DataType{Kind: KindInt, Indexed: indexed} }

// UInt returns an unsigned integer data type.
func UInt(indexed bool) DataType { return DataType{Kind: KindUInt, Indexed: indexed} }

// Text returns the text data type.
func Text() DataType { return DataType{Kind: KindText, Indexed: true} }

// IsNumeric reports whether the type is Int or UInt.
func (d DataType) IsNumeric() bool {
	return d.Kind == KindInt || d.Kind == KindUInt
}

// UIType is the coarse type shown to search clients: "number" or "string".
func (d DataType) UIType() string {
	if d.IsNumeric() {
		return "number"
	}
	return "string"
}

func (d DataType) String() string {
	if d.Kind == KindText {
		return "Text"
	}
	return fmt.Sprintf("%s{indexed: %t}", d.Kind, d.Indexed)
}

// dataTypeYAML is the on-disk form: {type: Int, indexed: true}.
type dataTypeYAML struct {
	Type    string `yaml:"type"`
	Indexed *bool  `yaml:"indexed,omitempty"`
}

// UnmarshalYAML decodes the tagged form. The indexed flag defaults to true
// for numeric types and is ignored for text.
func (d *DataType) UnmarshalYAML(node *yaml.Node) error {
	var raw dataTypeYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}

	indexed := true
	if raw.Indexed != nil {
		indexed = *raw.Indexed
	}

	switch strings.ToLower(raw.Type) {
	case "int":
		*d = Int(indexed)
	case "uint":
		*d = UInt(indexed)
	case "text":
		*d = Text()
	case "":
		return fmt.Errorf("line %d: data type is missing", node.Line)
	default:
		return fmt.Errorf("line %d: unknown data type %q (use Int, UInt or Text)", node.Line, raw.Type)
	}
	return nil
}

// MarshalYAML encodes the tagged form.
func (d DataType) MarshalYAML() (any, error) {
	out := dataTypeYAML{Type: d.Kind.String()}
	if d.IsNumeric() {
		indexed := d.Indexed
		out.Indexed = &indexed
	}
	return out, nil
}

// FieldDefinition declares one mirrored field.
type FieldDefinition struct {
	Name        string   `yaml:"name"`
	Column      string   `yaml:"column"`
	Display     string   `yaml:"display"`
	Description string   `yaml:"description,omitempty"`
	DataType    DataType `yaml:"data_type"`
}

// Schema is the ordered, immutable list of field definitions.
type Schema struct {
	fields []FieldDefinition
	byName map[string]int
}

// New validates the definitions and builds a Schema.
// Names must be non-empty and unique; every field needs a source column.
func New(fields []FieldDefinition) (Schema, error) {
	s := Schema{
		fields: make([]FieldDefinition, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)

	for i, f := range s.fields {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("field #%d has no name", i+1)
		}
		if f.Column == "" {
			return Schema{}, fmt.Errorf("field %q has no column", f.Name)
		}
		if _, dup := s.byName[f.Name]; dup {
			return Schema{}, fmt.Errorf("field %q is declared more than once", f.Name)
		}
		s.byName[f.Name] = i
	}
	return s, nil
}

// MustNew is New for statically known schemas; it panics on error.
func MustNew(fields ...FieldDefinition) Schema {
	s, err := New(fields)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the definitions in declaration order.
func (s Schema) Fields() []FieldDefinition {
	out := make([]FieldDefinition, len(s.fields))
	copy(out, s.fields)
	return out
}

// Len returns the number of fields.
func (s Schema) Len() int { return len(s.fields) }

// Lookup finds a field by name.
func (s Schema) Lookup(name string) (FieldDefinition, bool) {
	i, ok := s.byName[name]
	if !ok {
		return FieldDefinition{}, false
	}
	return s.fields[i], true
}

// FieldForColumn finds the first field mapped from the given source column.
func (s Schema) FieldForColumn(column string) (FieldDefinition, bool) {
	for _, f := range s.fields {
		if f.Column == column {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

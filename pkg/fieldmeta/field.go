// Package fieldmeta models the user-defined field schema of a table: one
// descriptor per field, carrying both the API-facing identity (id, name) and
// the storage-facing identity (physical column name and type), plus the
// conversion from raw storage values to the cell values exposed to consumers.
package fieldmeta

import (
	"fmt"
	"strconv"
	"time"
)

// FieldType is the user-facing field type.
type FieldType string

const (
	TypeSingleLineText FieldType = "singleLineText"
	TypeLongText       FieldType = "longText"
	TypeNumber         FieldType = "number"
	TypeCheckbox       FieldType = "checkbox"
	TypeDate           FieldType = "date"
	TypeSingleSelect   FieldType = "singleSelect"
	TypeMultipleSelect FieldType = "multipleSelect"
	TypeAttachment     FieldType = "attachment"
	TypeUser           FieldType = "user"
	TypeLink           FieldType = "link"
)

// CellValueType classifies the value a cell holds after conversion.
type CellValueType string

const (
	CellValueString   CellValueType = "string"
	CellValueNumber   CellValueType = "number"
	CellValueBoolean  CellValueType = "boolean"
	CellValueDateTime CellValueType = "dateTime"
)

// DBType is the storage column type.
type DBType string

const (
	DBTypeText      DBType = "text"
	DBTypeDouble    DBType = "double precision"
	DBTypeBoolean   DBType = "boolean"
	DBTypeTimestamp DBType = "timestamptz"
	DBTypeJSON      DBType = "jsonb"
)

// Field is one field descriptor. Immutable once loaded for a request.
type Field struct {
	ID            string
	Name          string
	DBFieldName   string
	Type          FieldType
	CellValueType CellValueType
	DBType        DBType
}

// IsJSON reports whether the field stores structured JSON values.
func (f *Field) IsJSON() bool { return f.DBType == DBTypeJSON }

// CellValue converts a raw storage value into the cell value exposed to API
// consumers. Numeric storage values become float64, timestamps become
// RFC 3339 strings, everything else is coerced to a string. Nil stays nil.
func (f *Field) CellValue(raw interface{}) interface{} {
	if raw == nil {
		return nil
	}
	switch f.CellValueType {
	case CellValueNumber:
		switch v := raw.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case []byte:
			if n, err := strconv.ParseFloat(string(v), 64); err == nil {
				return n
			}
			return string(v)
		case string:
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return n
			}
			return v
		}
	case CellValueBoolean:
		switch v := raw.(type) {
		case bool:
			return v
		case []byte:
			return string(v) == "true" || string(v) == "t"
		case string:
			return v == "true" || v == "t"
		}
	case CellValueDateTime:
		if t, ok := raw.(time.Time); ok {
			return t.UTC().Format(time.RFC3339)
		}
	}
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// FieldSet indexes a table's fields by id and by name. Lookups try the id
// index first and fall back to the name index, so a field name that collides
// with another field's id resolves to the id owner.
type FieldSet struct {
	byID    map[string]*Field
	byName  map[string]*Field
	ordered []*Field
}

// NewFieldSet builds a FieldSet preserving the given field order.
func NewFieldSet(fields []*Field) *FieldSet {
	s := &FieldSet{
		byID:    make(map[string]*Field, len(fields)),
		byName:  make(map[string]*Field, len(fields)),
		ordered: fields,
	}
	for _, f := range fields {
		s.byID[f.ID] = f
		s.byName[f.Name] = f
	}
	return s
}

// Get resolves a field by id, falling back to name.
func (s *FieldSet) Get(key string) (*Field, bool) {
	if f, ok := s.byID[key]; ok {
		return f, true
	}
	f, ok := s.byName[key]
	return f, ok
}

// Fields returns all fields in load order.
func (s *FieldSet) Fields() []*Field { return s.ordered }

// Len returns the number of fields in the set.
func (s *FieldSet) Len() int { return len(s.ordered) }

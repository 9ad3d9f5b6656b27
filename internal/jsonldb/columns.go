// Handles the schema header written on line 1 of every table file.

package jsonldb

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

var errSchemaVersionRequired = errors.New("schema version is required")

var textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

// currentVersion is the current version of the JSONL table format.
const currentVersion = "1.0"

// columnType represents the type of a table column.
type columnType string

const (
	columnTypeText   columnType = "text"
	columnTypeNumber columnType = "number"
	columnTypeBool   columnType = "bool"
	columnTypeDate   columnType = "date"
	columnTypeJSONB  columnType = "jsonb"
)

// column represents a table column in storage.
type column struct {
	Name        string     `json:"name"`
	Type        columnType `json:"type"`
	Required    bool       `json:"required,omitempty"`
	Description string     `json:"description,omitempty"`
}

// schemaHeader is the first row of a JSONL data file.
type schemaHeader struct {
	Version string   `json:"version"`
	Columns []column `json:"columns"`
}

// Validate checks that the schema header is well-formed.
func (h *schemaHeader) Validate() error {
	if h.Version == "" {
		return errSchemaVersionRequired
	}
	for i, col := range h.Columns {
		if col.Name == "" {
			return fmt.Errorf("column %d: name is required", i)
		}
		if col.Type == "" {
			return fmt.Errorf("column %d: type is required", i)
		}
	}
	return nil
}

// Schema returns the JSON Schema of the row type T, with properties inlined.
//
// Field descriptions come from `jsonschema:"description=..."` struct tags.
func Schema[T any]() (*jsonschema.Schema, error) {
	st, err := structTypeOf[T]()
	if err != nil {
		return nil, err
	}
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	return r.ReflectFromType(st), nil
}

func structTypeOf[T any]() (reflect.Type, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}
	return t, nil
}

// schemaFromType extracts column definitions using JSON Schema reflection.
func schemaFromType[T any]() ([]column, error) {
	st, err := structTypeOf[T]()
	if err != nil {
		return nil, err
	}
	schema, err := Schema[T]()
	if err != nil {
		return nil, err
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	byName := make(map[string]reflect.Type, st.NumField())
	for i := range st.NumField() {
		f := st.Field(i)
		if f.IsExported() {
			byName[jsonFieldName(&f)] = f.Type
		}
	}

	var columns []column
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		colType := columnTypeText
		if ft, ok := byName[pair.Key]; ok {
			colType = goTypeToColumnType(ft)
		}
		columns = append(columns, column{
			Name:        pair.Key,
			Type:        colType,
			Required:    required[pair.Key],
			Description: pair.Value.Description,
		})
	}
	return columns, nil
}

// jsonFieldName returns the JSON field name for a struct field.
func jsonFieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return field.Name
	}
	for i, c := range tag {
		if c == ',' {
			if i == 0 {
				return field.Name
			}
			return tag[:i]
		}
	}
	return tag
}

// goTypeToColumnType maps Go types to JSONL column types.
func goTypeToColumnType(t reflect.Type) columnType {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == reflect.TypeFor[time.Time]() {
		return columnTypeDate
	}
	// IDs and similar scalar types serialize through their text form.
	if t.Implements(textMarshalerType) || reflect.PointerTo(t).Implements(textMarshalerType) {
		return columnTypeText
	}
	switch t.Kind() { //nolint:exhaustive // Everything else is stored as text.
	case reflect.String:
		return columnTypeText
	case reflect.Bool:
		return columnTypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return columnTypeNumber
	case reflect.Struct, reflect.Slice, reflect.Array, reflect.Map:
		return columnTypeJSONB
	default:
		return columnTypeText
	}
}

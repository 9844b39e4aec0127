package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"olsync/internal/dump"
)

// FieldType enumerates the scalar column types the columnar format receives.
type FieldType int

const (
	// TypeString is a UTF8 byte-array column.
	TypeString FieldType = iota
	// TypeInt64 is a 64-bit integer column.
	TypeInt64
	// TypeJSON is a string column holding a re-serialized nested structure.
	TypeJSON
)

// Field is one column in a category schema.
type Field struct {
	Name string
	Type FieldType
}

// Schema is the fixed field set for one record category.
type Schema struct {
	Category dump.Category
	Fields   []Field
}

var authorSchema = Schema{
	Category: dump.CategoryAuthors,
	Fields: []Field{
		{Name: "key", Type: TypeString},
		{Name: "revision", Type: TypeInt64},
		{Name: "last_modified", Type: TypeString},
		{Name: "name", Type: TypeString},
		{Name: "personal_name", Type: TypeString},
		{Name: "birth_date", Type: TypeString},
		{Name: "death_date", Type: TypeString},
		{Name: "bio", Type: TypeString},
		{Name: "alternate_names", Type: TypeJSON},
		{Name: "links", Type: TypeJSON},
	},
}

var editionSchema = Schema{
	Category: dump.CategoryEditions,
	Fields: []Field{
		{Name: "key", Type: TypeString},
		{Name: "revision", Type: TypeInt64},
		{Name: "last_modified", Type: TypeString},
		{Name: "title", Type: TypeString},
		{Name: "subtitle", Type: TypeString},
		{Name: "publish_date", Type: TypeString},
		{Name: "number_of_pages", Type: TypeInt64},
		{Name: "publishers", Type: TypeJSON},
		{Name: "isbn_10", Type: TypeJSON},
		{Name: "isbn_13", Type: TypeJSON},
		{Name: "languages", Type: TypeJSON},
		{Name: "works", Type: TypeJSON},
	},
}

var workSchema = Schema{
	Category: dump.CategoryWorks,
	Fields: []Field{
		{Name: "key", Type: TypeString},
		{Name: "revision", Type: TypeInt64},
		{Name: "last_modified", Type: TypeString},
		{Name: "title", Type: TypeString},
		{Name: "subtitle", Type: TypeString},
		{Name: "description", Type: TypeString},
		{Name: "first_publish_date", Type: TypeString},
		{Name: "subjects", Type: TypeJSON},
		{Name: "authors", Type: TypeJSON},
		{Name: "covers", Type: TypeJSON},
	},
}

// ForCategory returns the schema for the given category.
func ForCategory(category dump.Category) (Schema, error) {
	switch category {
	case dump.CategoryAuthors:
		return authorSchema, nil
	case dump.CategoryEditions:
		return editionSchema, nil
	case dump.CategoryWorks:
		return workSchema, nil
	default:
		return Schema{}, fmt.Errorf("no schema for category %q", category)
	}
}

// ParquetSchema renders the schema as the JSON tag document the parquet
// writer consumes. Every column is OPTIONAL so explicit nulls survive.
func (s Schema) ParquetSchema() string {
	type tag struct {
		Tag string `json:"Tag"`
	}
	fields := make([]tag, 0, len(s.Fields))
	for _, field := range s.Fields {
		physical := "BYTE_ARRAY, convertedtype=UTF8"
		if field.Type == TypeInt64 {
			physical = "INT64"
		}
		fields = append(fields, tag{Tag: fmt.Sprintf("name=%s, type=%s, repetitiontype=OPTIONAL", field.Name, physical)})
	}
	doc := struct {
		Tag    string `json:"Tag"`
		Fields []tag  `json:"Fields"`
	}{
		Tag:    "name=parquet_go_root, repetitiontype=REQUIRED",
		Fields: fields,
	}
	encoded, _ := json.Marshal(doc)
	return string(encoded)
}

// FieldNames returns the column names in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, field := range s.Fields {
		names = append(names, field.Name)
	}
	return names
}

func (s Schema) String() string {
	return fmt.Sprintf("%s(%s)", s.Category, strings.Join(s.FieldNames(), ","))
}

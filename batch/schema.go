package batch

import (
	"fmt"
	"strings"
)

/*
A schema describes the fixed output elements of an operator. Rows carry values
positionally; the schema supplies names and types for those positions. Values
are represented with a small set of Go types:

  * Int: int64
  * Float: float64
  * String: string
  * Bool: bool
  * Timestamp: time.Time

A nil value is a SQL null of any type.
*/

////////////////////////////////////////////////////////////////////////////////

// Type is the type of an element.
type Type uint8

const (
	// Int is a 64-bit signed integer.
	Int Type = iota
	// Float is a 64-bit float.
	Float
	// String is a string.
	String
	// Bool is a boolean.
	Bool
	// Timestamp is a point in time.
	Timestamp
)

// String returns a string representation of the type.
func (t Type) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Bool:
		return "bool"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ParseType parses a type name as produced by Type.String.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "int", "integer", "long":
		return Int, nil
	case "float", "double":
		return Float, nil
	case "string", "text":
		return String, nil
	case "bool", "boolean":
		return Bool, nil
	case "timestamp", "time":
		return Timestamp, nil
	default:
		return 0, fmt.Errorf("unrecognized type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(data []byte) error {
	parsed, err := ParseType(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Element is a named, typed output column.
type Element struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// String returns a string representation of the element.
func (e Element) String() string {
	return e.Name + " " + e.Type.String()
}

// NewElement constructs a new element.
func NewElement(name string, typ Type) Element {
	return Element{Name: name, Type: typ}
}

// Schema is an ordered list of elements.
type Schema []Element

// Names returns the element names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, e := range s {
		names[i] = e.Name
	}
	return names
}

// Index returns the position of the named element, or -1. Names compare
// case-insensitively.
func (s Schema) Index(name string) int {
	for i, e := range s {
		if strings.EqualFold(e.Name, name) {
			return i
		}
	}
	return -1
}

// Lookup builds a map from lower-cased element name to position.
func (s Schema) Lookup() map[string]int {
	m := make(map[string]int, len(s))
	for i, e := range s {
		m[strings.ToLower(e.Name)] = i
	}
	return m
}

// Select returns the subset of the schema with the given names, in the order
// given.
func (s Schema) Select(names ...string) (Schema, error) {
	out := make(Schema, 0, len(names))
	for _, name := range names {
		idx := s.Index(name)
		if idx < 0 {
			return nil, fmt.Errorf("element %s not found in %s", name, s)
		}
		out = append(out, s[idx])
	}
	return out, nil
}

// String returns a string representation of the schema.
func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, e := range s {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

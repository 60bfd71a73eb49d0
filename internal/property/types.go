// Package property declares the typed configuration properties accepted by each
// catalog and table kind, and validates raw property maps against them.
package property

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType is the declared type of a property value.
type ValueType int

const (
	String ValueType = iota
	Integer
	Long
	Boolean
	Enum
)

// String returns the upper-case type name used in error messages.
func (t ValueType) String() string {
	switch t {
	case String:
		return "STRING"
	case Integer:
		return "INTEGER"
	case Long:
		return "LONG"
	case Boolean:
		return "BOOLEAN"
	case Enum:
		return "ENUM"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// EnumValue is one variant of an EnumType.
type EnumValue struct {
	// Name is the variant name accepted from callers, e.g. "INNODB".
	Name string
	// Native is the literal the backend understands, e.g. "InnoDB".
	// Empty means the backend uses the variant name.
	Native string
}

// NativeOrName returns the backend literal for the variant.
func (v EnumValue) NativeOrName() string {
	if v.Native == "" {
		return v.Name
	}
	return v.Native
}

// EnumType is a closed set of named variants.
type EnumType struct {
	Name   string
	Values []EnumValue
}

// NewEnumType builds an enum whose native literals equal the variant names.
func NewEnumType(name string, variants ...string) EnumType {
	values := make([]EnumValue, len(variants))
	for i, v := range variants {
		values[i] = EnumValue{Name: v}
	}
	return EnumType{Name: name, Values: values}
}

// Lookup matches raw against variant names. The comparison is
// case-sensitive.
func (e EnumType) Lookup(raw string) (EnumValue, bool) {
	for _, v := range e.Values {
		if v.Name == raw {
			return v, true
		}
	}
	return EnumValue{}, false
}

// LookupStored is Lookup that also accepts native literals, the spelling a
// backend hands back.
func (e EnumType) LookupStored(raw string) (EnumValue, bool) {
	if v, ok := e.Lookup(raw); ok {
		return v, true
	}
	for _, v := range e.Values {
		if v.Native != "" && v.Native == raw {
			return v, true
		}
	}
	return EnumValue{}, false
}

// Names returns the variant names in declaration order.
func (e EnumType) Names() []string {
	names := make([]string, len(e.Values))
	for i, v := range e.Values {
		names[i] = v.Name
	}
	return names
}

func (e EnumType) String() string {
	return fmt.Sprintf("ENUM<%s>[%s]", e.Name, strings.Join(e.Names(), ","))
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}

func parseInt32(raw string) (int32, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func parseInt64(raw string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}

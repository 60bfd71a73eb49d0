package property

import (
	"fmt"
	"strconv"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
)

// Declaration is the schema of one named property. It is immutable once built.
type Declaration struct {
	name         string
	description  string
	valueType    ValueType
	enum         EnumType
	required     bool
	immutable    bool
	reserved     bool
	hidden       bool
	hasDefault   bool
	defaultValue any
}

// Option configures a Declaration under construction.
type Option func(*Declaration)

// Required marks the property as mandatory at creation.
func Required() Option { return func(d *Declaration) { d.required = true } }

// Immutable rejects alterations that change the value.
func Immutable() Option { return func(d *Declaration) { d.immutable = true } }

// Reserved marks the property as system-managed; callers may never set it.
func Reserved() Option { return func(d *Declaration) { d.reserved = true } }

// Hidden excludes the property from caller-facing output.
func Hidden() Option { return func(d *Declaration) { d.hidden = true } }

// Default sets the default value. The value may be given in typed form
// (int32, int64, int, bool, EnumValue) or as its string encoding.
func Default(v any) Option {
	return func(d *Declaration) {
		d.hasDefault = true
		d.defaultValue = v
	}
}

// OfEnum sets the enumeration for an Enum-typed declaration.
func OfEnum(e EnumType) Option { return func(d *Declaration) { d.enum = e } }

// NewDeclaration builds a Declaration and checks its invariants.
func NewDeclaration(name, description string, valueType ValueType, opts ...Option) (Declaration, error) {
	d := Declaration{name: name, description: description, valueType: valueType}
	for _, opt := range opts {
		opt(&d)
	}

	if name == "" {
		return Declaration{}, metaerrors.InvalidDeclaration(name, "name must not be empty")
	}
	if valueType == Enum && len(d.enum.Values) == 0 {
		return Declaration{}, metaerrors.InvalidDeclaration(name, "enum declaration without variants")
	}
	if d.reserved && d.required {
		return Declaration{}, metaerrors.InvalidDeclaration(name, "reserved property cannot be required")
	}
	if d.required && d.hasDefault {
		return Declaration{}, metaerrors.InvalidDeclaration(name, "required property cannot carry a default")
	}
	if d.hasDefault {
		v, err := d.normalizeDefault(d.defaultValue)
		if err != nil {
			return Declaration{}, metaerrors.InvalidDeclaration(name, err.Error())
		}
		d.defaultValue = v
	}
	return d, nil
}

// MustDeclaration is like NewDeclaration but panics on error. It is meant for
// package-level declaration tables.
func MustDeclaration(name, description string, valueType ValueType, opts ...Option) Declaration {
	d, err := NewDeclaration(name, description, valueType, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Declaration) Name() string         { return d.name }
func (d Declaration) Description() string  { return d.description }
func (d Declaration) ValueType() ValueType { return d.valueType }
func (d Declaration) EnumType() EnumType   { return d.enum }
func (d Declaration) IsRequired() bool     { return d.required }
func (d Declaration) IsImmutable() bool    { return d.immutable }
func (d Declaration) IsReserved() bool     { return d.reserved }
func (d Declaration) IsHidden() bool       { return d.hidden }
func (d Declaration) HasDefault() bool     { return d.hasDefault }

// DefaultValue returns the typed default, or nil if there is none.
func (d Declaration) DefaultValue() any { return d.defaultValue }

// TypeName describes the declared type for errors and introspection.
func (d Declaration) TypeName() string {
	if d.valueType == Enum {
		return d.enum.String()
	}
	return d.valueType.String()
}

// EncodedDefault returns the string form of the default value.
func (d Declaration) EncodedDefault() (string, bool) {
	if !d.hasDefault {
		return "", false
	}
	s, err := d.Encode(d.defaultValue)
	if err != nil {
		return "", false
	}
	return s, true
}

// Decode parses a caller-supplied raw value into the declared type: string,
// int32, int64, bool or EnumValue. Enum values must use a variant name.
func (d Declaration) Decode(raw string) (any, error) {
	return d.decode(raw, false)
}

// DecodeStored is Decode for values read back from a backend. Enum values
// may also use their native literal.
func (d Declaration) DecodeStored(raw string) (any, error) {
	return d.decode(raw, true)
}

func (d Declaration) decode(raw string, stored bool) (any, error) {
	var (
		v   any
		err error
	)
	switch d.valueType {
	case String:
		return raw, nil
	case Integer:
		v, err = parseInt32(raw)
	case Long:
		v, err = parseInt64(raw)
	case Boolean:
		v, err = parseBool(raw)
	case Enum:
		lookup := d.enum.Lookup
		if stored {
			lookup = d.enum.LookupStored
		}
		ev, ok := lookup(raw)
		if !ok {
			err = fmt.Errorf("no variant of %s named %q", d.enum.Name, raw)
		}
		v = ev
	default:
		err = fmt.Errorf("unsupported value type %v", d.valueType)
	}
	if err != nil {
		return nil, metaerrors.TypeCoercion(d.name, raw, d.TypeName(), err)
	}
	return v, nil
}

// Encode is the inverse of Decode. Enum values encode to their variant name.
func (d Declaration) Encode(v any) (string, error) {
	switch d.valueType {
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Integer:
		if i, ok := v.(int32); ok {
			return strconv.FormatInt(int64(i), 10), nil
		}
	case Long:
		if i, ok := v.(int64); ok {
			return strconv.FormatInt(i, 10), nil
		}
	case Boolean:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	case Enum:
		if ev, ok := v.(EnumValue); ok {
			if _, known := d.enum.Lookup(ev.Name); known {
				return ev.Name, nil
			}
		}
	}
	return "", metaerrors.TypeCoercion(d.name, fmt.Sprint(v), d.TypeName(), nil)
}

// EncodeNative re-encodes raw into the form the backend expects. Only enum
// values change: they become the variant's native literal.
func (d Declaration) EncodeNative(raw string) (string, error) {
	if d.valueType != Enum {
		return raw, nil
	}
	v, err := d.DecodeStored(raw)
	if err != nil {
		return "", err
	}
	return v.(EnumValue).NativeOrName(), nil
}

// normalizeDefault converts a default given in any accepted form to the typed
// form Decode would produce.
func (d Declaration) normalizeDefault(v any) (any, error) {
	if s, ok := v.(string); ok {
		typed, err := d.DecodeStored(s)
		if err != nil {
			return nil, err
		}
		return typed, nil
	}
	switch d.valueType {
	case Integer:
		switch n := v.(type) {
		case int:
			return d.Decode(strconv.Itoa(n))
		case int64:
			return d.Decode(strconv.FormatInt(n, 10))
		}
	case Long:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		}
	case Enum:
		if ev, ok := v.(EnumValue); ok {
			if known, found := d.enum.Lookup(ev.Name); found {
				return known, nil
			}
		}
	}
	if _, err := d.Encode(v); err != nil {
		return nil, fmt.Errorf("default %v does not match type %s", v, d.TypeName())
	}
	return v, nil
}

// Convenience constructors for the common declaration families.

// StringRequired declares a mandatory string property.
func StringRequired(name, description string, immutable, hidden bool) Declaration {
	return MustDeclaration(name, description, String, flags(true, immutable, false, hidden)...)
}

// StringOptional declares an optional string property; an empty default
// means no default.
func StringOptional(name, description string, immutable bool, defaultValue string, hidden bool) Declaration {
	opts := flags(false, immutable, false, hidden)
	if defaultValue != "" {
		opts = append(opts, Default(defaultValue))
	}
	return MustDeclaration(name, description, String, opts...)
}

// StringReserved declares a system-managed string property.
func StringReserved(name, description string, hidden bool) Declaration {
	return MustDeclaration(name, description, String, flags(false, false, true, hidden)...)
}

// IntegerOptional declares an optional int32 property; a nil default means
// no default.
func IntegerOptional(name, description string, immutable bool, defaultValue *int32, hidden bool) Declaration {
	opts := flags(false, immutable, false, hidden)
	if defaultValue != nil {
		opts = append(opts, Default(*defaultValue))
	}
	return MustDeclaration(name, description, Integer, opts...)
}

// LongOptional declares an optional int64 property with a default.
func LongOptional(name, description string, immutable bool, defaultValue int64, hidden bool) Declaration {
	return MustDeclaration(name, description, Long, append(flags(false, immutable, false, hidden), Default(defaultValue))...)
}

// BooleanOptional declares an optional boolean property with a default.
func BooleanOptional(name, description string, immutable bool, defaultValue bool, hidden bool) Declaration {
	return MustDeclaration(name, description, Boolean, append(flags(false, immutable, false, hidden), Default(defaultValue))...)
}

// EnumImmutable declares an immutable enum property with a default variant.
func EnumImmutable(name, description string, e EnumType, defaultVariant string, hidden bool) Declaration {
	return MustDeclaration(name, description, Enum, append(flags(false, true, false, hidden), OfEnum(e), Default(defaultVariant))...)
}

func flags(required, immutable, reserved, hidden bool) []Option {
	var opts []Option
	if required {
		opts = append(opts, Required())
	}
	if immutable {
		opts = append(opts, Immutable())
	}
	if reserved {
		opts = append(opts, Reserved())
	}
	if hidden {
		opts = append(opts, Hidden())
	}
	return opts
}

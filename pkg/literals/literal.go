// Package literals provides typed constant values used as partition bounds and
// partition values.
package literals

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spaolacci/murmur3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DataType is the declared type of a literal.
type DataType int

const (
	Null DataType = iota
	Boolean
	Integer
	Long
	Double
	String
	Date
	Timestamp
)

var typeNames = map[DataType]string{
	Null:      "null",
	Boolean:   "boolean",
	Integer:   "integer",
	Long:      "long",
	Double:    "double",
	String:    "string",
	Date:      "date",
	Timestamp: "timestamp",
}

func (t DataType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// ParseDataType parses a type name as produced by DataType.String.
func ParseDataType(s string) (DataType, error) {
	for t, n := range typeNames {
		if n == strings.ToLower(s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("literals: unknown data type %q", s)
}

// Literal is a typed constant. The value is held in one of bool, int32,
// int64, float64 or string (dates and timestamps keep their ISO-8601 text).
// Compare with Equal: doubles compare by bit pattern, matching WriteHash.
type Literal struct {
	typ   DataType
	value any
}

func NullLiteral() Literal                { return Literal{typ: Null} }
func BooleanLiteral(v bool) Literal       { return Literal{typ: Boolean, value: v} }
func IntegerLiteral(v int32) Literal      { return Literal{typ: Integer, value: v} }
func LongLiteral(v int64) Literal         { return Literal{typ: Long, value: v} }
func DoubleLiteral(v float64) Literal     { return Literal{typ: Double, value: v} }
func StringLiteral(v string) Literal      { return Literal{typ: String, value: v} }
func DateLiteral(iso string) Literal      { return Literal{typ: Date, value: iso} }
func TimestampLiteral(iso string) Literal { return Literal{typ: Timestamp, value: iso} }

// Type returns the declared data type.
func (l Literal) Type() DataType { return l.typ }

// Value returns the Go value, nil for the null literal.
func (l Literal) Value() any { return l.value }

// String renders the value as text.
func (l Literal) String() string {
	switch v := l.value.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Parse builds a literal of type t from its text form.
func Parse(t DataType, text string) (Literal, error) {
	switch t {
	case Null:
		return NullLiteral(), nil
	case Boolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Literal{}, fmt.Errorf("literals: invalid boolean %q: %w", text, err)
		}
		return BooleanLiteral(b), nil
	case Integer:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return Literal{}, fmt.Errorf("literals: invalid integer %q: %w", text, err)
		}
		return IntegerLiteral(int32(n)), nil
	case Long:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Literal{}, fmt.Errorf("literals: invalid long %q: %w", text, err)
		}
		return LongLiteral(n), nil
	case Double:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Literal{}, fmt.Errorf("literals: invalid double %q: %w", text, err)
		}
		return DoubleLiteral(f), nil
	case String:
		return StringLiteral(text), nil
	case Date:
		return DateLiteral(text), nil
	case Timestamp:
		return TimestampLiteral(text), nil
	}
	return Literal{}, fmt.Errorf("literals: unsupported data type %v", t)
}

// Equal reports whether two literals have the same type and value. Doubles
// are equal when their bits are, so -0 differs from +0 and NaN equals
// itself.
func (l Literal) Equal(o Literal) bool {
	a, aok := l.value.(float64)
	b, bok := o.value.(float64)
	if aok && bok {
		return l.typ == o.typ && math.Float64bits(a) == math.Float64bits(b)
	}
	return l == o
}

// Hash returns a 64-bit murmur3 hash of type and value.
func (l Literal) Hash() uint64 {
	h := murmur3.New64()
	l.WriteHash(h)
	return h.Sum64()
}

// WriteHash feeds a stable encoding of the literal into w.
func (l Literal) WriteHash(w io.Writer) {
	var buf [9]byte
	buf[0] = byte(l.typ)
	switch v := l.value.(type) {
	case float64:
		binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v))
		w.Write(buf[:])
	default:
		w.Write(buf[:1])
		text := l.String()
		binary.BigEndian.PutUint64(buf[1:], uint64(len(text)))
		w.Write(buf[1:])
		w.Write([]byte(text))
	}
}

type wireLiteral struct {
	Type  string  `json:"type"`
	Value *string `json:"value,omitempty"`
}

// MarshalJSON encodes the literal as {"type": ..., "value": ...}.
func (l Literal) MarshalJSON() ([]byte, error) {
	w := wireLiteral{Type: l.typ.String()}
	if l.typ != Null {
		s := l.String()
		w.Value = &s
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (l *Literal) UnmarshalJSON(data []byte) error {
	var w wireLiteral
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t, err := ParseDataType(w.Type)
	if err != nil {
		return err
	}
	text := ""
	if w.Value != nil {
		text = *w.Value
	}
	parsed, err := Parse(t, text)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

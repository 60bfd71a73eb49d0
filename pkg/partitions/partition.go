// Package partitions provides the immutable partition descriptors shared by all
// catalog backends: range, list and identity partitions.
//
// Partitions compare and hash structurally. Two partitions are equal when they
// have the same variant, name, properties and element-wise equal bounds or
// values.
package partitions

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/arkilian/catalogmeta/pkg/literals"
	"github.com/spaolacci/murmur3"
)

// ErrInvalidShape matches errors returned for malformed list or identity
// partitions.
var ErrInvalidShape = metaerrors.ErrInvalidPartitionShape

// Kind identifies the partition variant.
type Kind string

const (
	KindRange    Kind = "range"
	KindList     Kind = "list"
	KindIdentity Kind = "identity"
)

// Partition is implemented by RangePartition, ListPartition and
// IdentityPartition.
type Partition interface {
	Name() string
	Properties() map[string]string
	Kind() Kind
	Equal(other Partition) bool
	Hash() uint64

	structure() (header, nested)
}

// header holds the fields every variant carries.
type header struct {
	kind       Kind
	name       string
	properties map[string]string
}

// nested is the variant-specific content as sequences of sequences. Range
// bounds, list tuples and identity values live in literals; identity field
// paths live in strings.
type nested struct {
	literals [][]literals.Literal
	strings  [][]string
}

func newHeader(kind Kind, name string, properties map[string]string) header {
	return header{kind: kind, name: name, properties: copyProperties(properties)}
}

func (h header) Name() string { return h.name }
func (h header) Kind() Kind   { return h.kind }

// Properties returns a copy of the partition properties.
func (h header) Properties() map[string]string { return copyProperties(h.properties) }

// RangePartition is bounded by an upper and a lower literal. Whether the bounds
// are inclusive is up to the backend.
type RangePartition struct {
	header
	upper literals.Literal
	lower literals.Literal
}

// Range creates a range partition.
func Range(name string, upper, lower literals.Literal, properties map[string]string) *RangePartition {
	return &RangePartition{
		header: newHeader(KindRange, name, properties),
		upper:  upper,
		lower:  lower,
	}
}

func (p *RangePartition) Upper() literals.Literal { return p.upper }
func (p *RangePartition) Lower() literals.Literal { return p.lower }

func (p *RangePartition) structure() (header, nested) {
	return p.header, nested{literals: [][]literals.Literal{{p.upper}, {p.lower}}}
}

func (p *RangePartition) Equal(other Partition) bool { return equal(p, other) }
func (p *RangePartition) Hash() uint64              { return hash(p) }

// ListPartition holds tuples of values, one value per list-transform column.
type ListPartition struct {
	header
	lists [][]literals.Literal
}

// List creates a list partition. Every tuple in lists must have the same
// length.
func List(name string, lists [][]literals.Literal, properties map[string]string) (*ListPartition, error) {
	for i := 1; i < len(lists); i++ {
		if len(lists[i]) != len(lists[0]) {
			return nil, metaerrors.InvalidPartitionShape(
				fmt.Sprintf("lists[%d]", i),
				fmt.Sprintf("%d values", len(lists[0])),
				fmt.Sprintf("%d values", len(lists[i])),
			)
		}
	}
	return &ListPartition{
		header: newHeader(KindList, name, properties),
		lists:  copyLiterals(lists),
	}, nil
}

// Lists returns a copy of the value tuples.
func (p *ListPartition) Lists() [][]literals.Literal { return copyLiterals(p.lists) }

func (p *ListPartition) structure() (header, nested) {
	return p.header, nested{literals: p.lists}
}

func (p *ListPartition) Equal(other Partition) bool { return equal(p, other) }
func (p *ListPartition) Hash() uint64              { return hash(p) }

// IdentityPartition pairs each field path with the value it holds.
type IdentityPartition struct {
	header
	fieldNames [][]string
	values     []literals.Literal
}

// Identity creates an identity partition. fieldNames and values must have the
// same length.
func Identity(name string, fieldNames [][]string, values []literals.Literal, properties map[string]string) (*IdentityPartition, error) {
	if len(fieldNames) != len(values) {
		return nil, metaerrors.InvalidPartitionShape(
			"values",
			fmt.Sprintf("%d values", len(fieldNames)),
			fmt.Sprintf("%d values", len(values)),
		)
	}
	fields := make([][]string, len(fieldNames))
	for i, f := range fieldNames {
		fields[i] = append([]string(nil), f...)
	}
	return &IdentityPartition{
		header:     newHeader(KindIdentity, name, properties),
		fieldNames: fields,
		values:     append([]literals.Literal(nil), values...),
	}, nil
}

// FieldNames returns a copy of the field paths.
func (p *IdentityPartition) FieldNames() [][]string {
	out := make([][]string, len(p.fieldNames))
	for i, f := range p.fieldNames {
		out[i] = append([]string(nil), f...)
	}
	return out
}

// Values returns a copy of the values.
func (p *IdentityPartition) Values() []literals.Literal {
	return append([]literals.Literal(nil), p.values...)
}

func (p *IdentityPartition) structure() (header, nested) {
	return p.header, nested{
		literals: [][]literals.Literal{p.values},
		strings:  p.fieldNames,
	}
}

func (p *IdentityPartition) Equal(other Partition) bool { return equal(p, other) }
func (p *IdentityPartition) Hash() uint64              { return hash(p) }

func equal(a, b Partition) bool {
	if a == nil || b == nil {
		return a == b
	}
	ha, na := a.structure()
	hb, nb := b.structure()
	if ha.kind != hb.kind || ha.name != hb.name || len(ha.properties) != len(hb.properties) {
		return false
	}
	for k, v := range ha.properties {
		if w, ok := hb.properties[k]; !ok || v != w {
			return false
		}
	}
	if len(na.literals) != len(nb.literals) || len(na.strings) != len(nb.strings) {
		return false
	}
	for i := range na.literals {
		if len(na.literals[i]) != len(nb.literals[i]) {
			return false
		}
		for j := range na.literals[i] {
			if !na.literals[i][j].Equal(nb.literals[i][j]) {
				return false
			}
		}
	}
	for i := range na.strings {
		if len(na.strings[i]) != len(nb.strings[i]) {
			return false
		}
		for j := range na.strings[i] {
			if na.strings[i][j] != nb.strings[i][j] {
				return false
			}
		}
	}
	return true
}

func hash(p Partition) uint64 {
	h, n := p.structure()
	m := murmur3.New128()
	writeString(m, string(h.kind))
	writeString(m, h.name)

	keys := make([]string, 0, len(h.properties))
	for k := range h.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeLen(m, len(keys))
	for _, k := range keys {
		writeString(m, k)
		writeString(m, h.properties[k])
	}

	writeLen(m, len(n.literals))
	for _, seq := range n.literals {
		writeLen(m, len(seq))
		for _, l := range seq {
			l.WriteHash(m)
		}
	}
	writeLen(m, len(n.strings))
	for _, seq := range n.strings {
		writeLen(m, len(seq))
		for _, s := range seq {
			writeString(m, s)
		}
	}

	h1, h2 := m.Sum128()
	return h1 ^ h2
}

func writeLen(w io.Writer, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	w.Write(buf[:])
}

func writeString(w io.Writer, s string) {
	writeLen(w, len(s))
	io.WriteString(w, s)
}

func copyProperties(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyLiterals(in [][]literals.Literal) [][]literals.Literal {
	if in == nil {
		return nil
	}
	out := make([][]literals.Literal, len(in))
	for i, seq := range in {
		out[i] = append([]literals.Literal(nil), seq...)
	}
	return out
}

package property

import (
	"sort"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
)

// Schema is the immutable set of declarations accepted by one catalog or
// table kind. It is safe for concurrent use.
type Schema struct {
	entries map[string]Declaration
	names   []string
	strict  bool
}

// SchemaOption configures a Schema under construction.
type SchemaOption func(*Schema)

// WithStrictUnknownKeys makes validation reject undeclared keys instead of
// passing them through to the backend.
func WithStrictUnknownKeys(strict bool) SchemaOption {
	return func(s *Schema) { s.strict = strict }
}

// NewSchema merges the shared base declarations with the kind-specific ones.
// Specific entries shadow base entries of the same name. A name repeated
// within either list is a configuration defect.
func NewSchema(base, specific []Declaration, opts ...SchemaOption) (*Schema, error) {
	baseSet, err := index(base)
	if err != nil {
		return nil, err
	}
	specificSet, err := index(specific)
	if err != nil {
		return nil, err
	}

	s := &Schema{entries: make(map[string]Declaration, len(baseSet)+len(specificSet))}
	for name, d := range baseSet {
		s.entries[name] = d
	}
	for name, d := range specificSet {
		s.entries[name] = d
	}
	for _, opt := range opts {
		opt(s)
	}

	s.names = make([]string, 0, len(s.entries))
	for name := range s.entries {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s, nil
}

func index(decls []Declaration) (map[string]Declaration, error) {
	set := make(map[string]Declaration, len(decls))
	for _, d := range decls {
		if _, dup := set[d.Name()]; dup {
			return nil, metaerrors.DuplicatePropertyEntry(d.Name())
		}
		set[d.Name()] = d
	}
	return set, nil
}

// Entries returns a copy of the name to declaration mapping.
func (s *Schema) Entries() map[string]Declaration {
	out := make(map[string]Declaration, len(s.entries))
	for name, d := range s.entries {
		out[name] = d
	}
	return out
}

// Lookup returns the declaration for name.
func (s *Schema) Lookup(name string) (Declaration, bool) {
	d, ok := s.entries[name]
	return d, ok
}

// Names returns the declared property names in sorted order.
func (s *Schema) Names() []string {
	return append([]string(nil), s.names...)
}

// Visible returns the non-hidden declarations sorted by name, for
// documentation and discovery endpoints.
func (s *Schema) Visible() []Declaration {
	var out []Declaration
	for _, name := range s.names {
		if d := s.entries[name]; !d.IsHidden() {
			out = append(out, d)
		}
	}
	return out
}

// Strict reports whether undeclared keys are rejected.
func (s *Schema) Strict() bool {
	return s.strict
}

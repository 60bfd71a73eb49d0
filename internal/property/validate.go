package property

import (
	"reflect"
	"sort"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
)

// ValidateForCreate checks raw against the schema and returns the normalized
// mapping: raw plus encoded defaults for absent declared properties. Hidden
// entries are kept; hiding happens in Display. The first failing rule aborts
// validation and raw is never modified.
//
// Rules run in this order over sorted keys: reserved, unknown (strict schemas
// only), type, missing required.
func (s *Schema) ValidateForCreate(raw map[string]string) (map[string]string, error) {
	keys := sortedKeys(raw)
	if err := s.checkSupplied(raw, keys); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(raw)+len(s.entries))
	for k, v := range raw {
		out[k] = v
	}
	for _, name := range s.names {
		if _, present := raw[name]; present {
			continue
		}
		d := s.entries[name]
		if d.IsRequired() {
			return nil, metaerrors.MissingRequiredProperty(name)
		}
		if def, ok := d.EncodedDefault(); ok {
			out[name] = def
		}
	}
	return out, nil
}

// ValidateForAlter checks changes against the schema and the current
// properties, and returns current with changes merged in. A key absent from
// changes is left untouched; removal is not expressible.
//
// An immutable property may only be "changed" to a value that decodes equal
// to its current value. When current lacks it, the declared default stands in;
// with no default any value counts as a change.
func (s *Schema) ValidateForAlter(current, changes map[string]string) (map[string]string, error) {
	keys := sortedKeys(changes)
	if err := s.checkSupplied(changes, keys); err != nil {
		return nil, err
	}

	for _, k := range keys {
		d, declared := s.entries[k]
		if !declared || !d.IsImmutable() {
			continue
		}
		same, currentRaw, err := s.unchanged(d, current, changes[k])
		if err != nil {
			return nil, err
		}
		if !same {
			return nil, metaerrors.ImmutablePropertyChange(k, currentRaw, changes[k])
		}
	}

	out := make(map[string]string, len(current)+len(changes))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range changes {
		out[k] = v
	}
	return out, nil
}

// checkSupplied applies the rules shared by create and alter to the keys a
// caller supplied.
func (s *Schema) checkSupplied(props map[string]string, keys []string) error {
	for _, k := range keys {
		if d, ok := s.entries[k]; ok && d.IsReserved() {
			return metaerrors.ReservedPropertyAssigned(k)
		}
	}
	if s.strict {
		for _, k := range keys {
			if _, ok := s.entries[k]; !ok {
				return metaerrors.UnknownProperty(k)
			}
		}
	}
	for _, k := range keys {
		d, ok := s.entries[k]
		if !ok {
			continue
		}
		if _, err := d.Decode(props[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) unchanged(d Declaration, current map[string]string, proposed string) (bool, string, error) {
	next, err := d.Decode(proposed)
	if err != nil {
		return false, "", err
	}

	currentRaw, present := current[d.Name()]
	var prev any
	switch {
	case present:
		prev, err = d.DecodeStored(currentRaw)
		if err != nil {
			// Stored value no longer decodes; fall back to textual comparison.
			return currentRaw == proposed, currentRaw, nil
		}
	case d.HasDefault():
		prev = d.DefaultValue()
		currentRaw, _ = d.EncodedDefault()
	default:
		return false, "", nil
	}
	return reflect.DeepEqual(prev, next), currentRaw, nil
}

// Display prepares props for a caller: defaults are filled in for absent
// declared properties, hidden and reserved keys are removed. Undeclared keys
// pass through.
func (s *Schema) Display(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if d, ok := s.entries[k]; ok && (d.IsHidden() || d.IsReserved()) {
			continue
		}
		out[k] = v
	}
	for _, name := range s.names {
		d := s.entries[name]
		if d.IsHidden() || d.IsReserved() {
			continue
		}
		if _, present := out[name]; present {
			continue
		}
		if def, ok := d.EncodedDefault(); ok {
			out[name] = def
		}
	}
	return out
}

// NativeValues re-encodes declared enum values as their backend literals.
// Keys are not renamed; that is the translator's job.
func (s *Schema) NativeValues(props map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(props))
	for k, v := range props {
		d, ok := s.entries[k]
		if !ok {
			out[k] = v
			continue
		}
		native, err := d.EncodeNative(v)
		if err != nil {
			return nil, err
		}
		out[k] = native
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

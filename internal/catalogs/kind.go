// Package catalogs builds the property schemas and key translators for every
// supported catalog and table kind.
//
// Each kind has one construction function that composes a shared base set
// with its own declarations.
package catalogs

import (
	"sort"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/arkilian/catalogmeta/internal/property"
	"github.com/arkilian/catalogmeta/internal/translate"
)

// EntityType distinguishes catalog kinds from table kinds.
type EntityType string

const (
	EntityCatalog EntityType = "catalog"
	EntityTable   EntityType = "table"
)

// Kind is one registered catalog or table variant. Translator is nil when
// the backend uses the unified key names.
type Kind struct {
	Name        string
	Entity      EntityType
	Description string
	Schema      *property.Schema
	Translator  *translate.Translator
}

// Overrides adjusts a kind at registration time.
type Overrides struct {
	StrictUnknownKeys *bool
	UnmappedKeyPolicy *translate.Policy
}

// builder constructs a kind with overrides applied.
type builder func(o Overrides) (Kind, error)

var builders = map[string]builder{
	HiveCatalog:    newHiveCatalog,
	JDBCCatalog:    newJDBCCatalog,
	FilesetCatalog: newFilesetCatalog,
	MySQLTable:     newMySQLTable,
	HiveTable:      newHiveTable,
}

// Kind names.
const (
	HiveCatalog    = "hive-catalog"
	JDBCCatalog    = "jdbc-catalog"
	FilesetCatalog = "fileset-catalog"
	MySQLTable     = "mysql-table"
	HiveTable      = "hive-table"
)

// Registry is the immutable set of kinds available to lifecycle handlers.
type Registry struct {
	kinds map[string]Kind
	names []string
}

// NewRegistry builds a registry from kinds. Duplicate names are a
// configuration defect.
func NewRegistry(kinds ...Kind) (*Registry, error) {
	r := &Registry{kinds: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		if _, dup := r.kinds[k.Name]; dup {
			return nil, metaerrors.DuplicatePropertyEntry(k.Name)
		}
		r.kinds[k.Name] = k
		r.names = append(r.names, k.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Builtin builds every built-in kind, applying overrides by kind name.
func Builtin(overrides map[string]Overrides) (*Registry, error) {
	names := BuiltinNames()
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		k, err := builders[name](overrides[name])
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return NewRegistry(kinds...)
}

// Get returns the kind registered under name.
func (r *Registry) Get(name string) (Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return Kind{}, metaerrors.UnknownKind(name)
	}
	return k, nil
}

// Names returns the registered kind names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// assemble applies overrides and builds the kind.
func assemble(name string, entity EntityType, description string, base, specific []property.Declaration, tr *translate.Translator, o Overrides) (Kind, error) {
	var opts []property.SchemaOption
	if o.StrictUnknownKeys != nil {
		opts = append(opts, property.WithStrictUnknownKeys(*o.StrictUnknownKeys))
	}
	schema, err := property.NewSchema(base, specific, opts...)
	if err != nil {
		return Kind{}, err
	}
	if tr != nil && o.UnmappedKeyPolicy != nil {
		tr = tr.WithPolicy(*o.UnmappedKeyPolicy)
	}
	return Kind{
		Name:        name,
		Entity:      entity,
		Description: description,
		Schema:      schema,
		Translator:  tr,
	}, nil
}

// ToBackend prepares validated unified properties for the backend: enum
// values become native literals, then keys are renamed.
func (k Kind) ToBackend(props map[string]string) (map[string]string, error) {
	native, err := k.Schema.NativeValues(props)
	if err != nil {
		return nil, err
	}
	if k.Translator == nil {
		return native, nil
	}
	return k.Translator.ToBackend(native), nil
}

// FromBackend renames backend keys back to unified names.
func (k Kind) FromBackend(props map[string]string) map[string]string {
	if k.Translator == nil {
		out := make(map[string]string, len(props))
		for key, v := range props {
			out[key] = v
		}
		return out
	}
	return k.Translator.FromBackend(props)
}

// BuiltinNames returns the names of the built-in kinds, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

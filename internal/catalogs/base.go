package catalogs

import "github.com/arkilian/catalogmeta/internal/property"

// Shared property names.
const (
	CommentKey = "comment"
	PackageKey = "package"
)

// baseCatalogEntries are accepted by every catalog kind.
func baseCatalogEntries() []property.Declaration {
	return []property.Declaration{
		property.StringOptional(CommentKey, "The catalog comment", false, "", false),
		property.StringOptional(PackageKey, "The path of the catalog plugin package", true, "", true),
	}
}

// baseTableEntries are accepted by every table kind.
func baseTableEntries() []property.Declaration {
	return []property.Declaration{
		property.StringOptional(CommentKey, "The table comment", false, "", false),
	}
}

func int32Ptr(v int32) *int32 { return &v }

package catalogs

import (
	"time"

	"github.com/arkilian/catalogmeta/internal/property"
)

// Hive catalog property names and defaults.
const (
	MetastoreURIs                     = "metastore.uris"
	ClientPoolSize                    = "client.pool-size"
	ClientPoolCacheEvictionIntervalMs = "client.pool-cache.eviction-interval-ms"
	ImpersonationEnable               = "impersonation-enable"

	DefaultClientPoolSize                    = 1
	DefaultClientPoolCacheEvictionIntervalMs = int64(5 * time.Minute / time.Millisecond)
)

func newHiveCatalog(o Overrides) (Kind, error) {
	specific := []property.Declaration{
		property.StringRequired(MetastoreURIs, "The Hive metastore URIs", true, false),
		property.IntegerOptional(ClientPoolSize,
			"The maximum number of Hive metastore clients in the pool",
			true, int32Ptr(DefaultClientPoolSize), false),
		property.LongOptional(ClientPoolCacheEvictionIntervalMs,
			"The cache pool eviction interval",
			true, DefaultClientPoolCacheEvictionIntervalMs, false),
		property.BooleanOptional(ImpersonationEnable,
			"Enable user impersonation for Hive catalog",
			true, false, false),
	}
	return assemble(HiveCatalog, EntityCatalog, "Apache Hive metastore catalog",
		baseCatalogEntries(), specific, nil, o)
}

// Hive table property names.
const (
	Location  = "location"
	TableType = "table-type"
	Format    = "format"
	SerdeLib  = "serde-lib"
	External  = "external"
)

// TableTypes enumerates Hive table types.
var TableTypes = property.NewEnumType("TableType", "MANAGED_TABLE", "EXTERNAL_TABLE", "VIRTUAL_VIEW", "INDEX_TABLE", "VIRTUAL_INDEX")

// StorageFormats enumerates Hive storage formats.
var StorageFormats = property.NewEnumType("StorageFormat", "TEXTFILE", "SEQUENCEFILE", "ORC", "PARQUET", "AVRO", "RCFILE", "JSON")

func newHiveTable(o Overrides) (Kind, error) {
	specific := []property.Declaration{
		property.StringOptional(Location, "The location of the table data", true, "", false),
		property.MustDeclaration(TableType, "The Hive table type", property.Enum,
			property.OfEnum(TableTypes), property.Default("MANAGED_TABLE")),
		property.EnumImmutable(Format, "The storage format of the table", StorageFormats, "TEXTFILE", false),
		property.StringOptional(SerdeLib, "The serde library class", false, "", false),
		property.MustDeclaration(External, "Whether the table is external, derived from table-type",
			property.Boolean, property.Reserved()),
	}
	return assemble(HiveTable, EntityTable, "Apache Hive table",
		baseTableEntries(), specific, nil, o)
}

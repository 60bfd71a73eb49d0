package catalogs

import (
	"github.com/arkilian/catalogmeta/internal/property"
	"github.com/arkilian/catalogmeta/internal/translate"
)

// MySQL table property names, unified and native.
const (
	EngineKey             = "engine"
	MySQLEngineKey        = "ENGINE"
	AutoIncrementOffset   = "auto-increment-offset"
	MySQLAutoIncrementKey = "AUTO_INCREMENT"
)

// Engines enumerates MySQL storage engines with their native spelling.
var Engines = property.EnumType{
	Name: "ENGINE",
	Values: []property.EnumValue{
		{Name: "NDBCLUSTER", Native: "ndbcluster"},
		{Name: "FEDERATED", Native: "FEDERATED"},
		{Name: "MEMORY", Native: "MEMORY"},
		{Name: "INNODB", Native: "InnoDB"},
		{Name: "PERFORMANCE_SCHEMA", Native: "PERFORMANCE_SCHEMA"},
		{Name: "MYISAM", Native: "MyISAM"},
		{Name: "NDBINFO", Native: "ndbinfo"},
		{Name: "MRG_MYISAM", Native: "MRG_MYISAM"},
		{Name: "BLACKHOLE", Native: "BLACKHOLE"},
		{Name: "CSV", Native: "CSV"},
		{Name: "ARCHIVE", Native: "ARCHIVE"},
	},
}

var mysqlKeyMapping = []translate.Pair{
	{Unified: EngineKey, Native: MySQLEngineKey},
	{Unified: AutoIncrementOffset, Native: MySQLAutoIncrementKey},
}

func newMySQLTable(o Overrides) (Kind, error) {
	specific := []property.Declaration{
		property.StringReserved(CommentKey, "The table comment", true),
		property.EnumImmutable(EngineKey, "The table engine", Engines, "INNODB", false),
		// Only settable at creation.
		property.IntegerOptional(AutoIncrementOffset, "The table auto increment offset", true, nil, false),
	}
	// Table options MySQL does not know are not sent to it.
	tr, err := translate.New(translate.Drop, mysqlKeyMapping...)
	if err != nil {
		return Kind{}, err
	}
	return assemble(MySQLTable, EntityTable, "MySQL table",
		baseTableEntries(), specific, tr, o)
}

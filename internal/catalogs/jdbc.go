package catalogs

import (
	"github.com/arkilian/catalogmeta/internal/property"
	"github.com/arkilian/catalogmeta/internal/translate"
)

// JDBC catalog property names.
const (
	JDBCURL         = "jdbc-url"
	JDBCDriver      = "jdbc-driver"
	JDBCUser        = "jdbc-user"
	JDBCPassword    = "jdbc-password"
	JDBCPoolMinSize = "jdbc.pool.min-size"
	JDBCPoolMaxSize = "jdbc.pool.max-size"
)

// jdbcKeyMapping renames unified keys to the connection pool's configuration
// keys.
var jdbcKeyMapping = []translate.Pair{
	{Unified: JDBCURL, Native: "url"},
	{Unified: JDBCDriver, Native: "driverClassName"},
	{Unified: JDBCUser, Native: "username"},
	{Unified: JDBCPassword, Native: "password"},
	{Unified: JDBCPoolMinSize, Native: "minIdle"},
	{Unified: JDBCPoolMaxSize, Native: "maxTotal"},
}

func newJDBCCatalog(o Overrides) (Kind, error) {
	specific := []property.Declaration{
		property.StringRequired(JDBCURL, "The JDBC connection URL", true, false),
		property.StringRequired(JDBCDriver, "The JDBC driver class name", true, false),
		property.StringOptional(JDBCUser, "The user to connect as", false, "", false),
		property.StringOptional(JDBCPassword, "The password of the user", false, "", true),
		property.IntegerOptional(JDBCPoolMinSize, "The minimum number of idle connections", false, int32Ptr(2), false),
		property.IntegerOptional(JDBCPoolMaxSize, "The maximum number of connections", false, int32Ptr(10), false),
	}
	tr, err := translate.New(translate.Passthrough, jdbcKeyMapping...)
	if err != nil {
		return Kind{}, err
	}
	return assemble(JDBCCatalog, EntityCatalog, "Relational database catalog reached over JDBC",
		baseCatalogEntries(), specific, tr, o)
}

package catalogs

import (
	"github.com/arkilian/catalogmeta/internal/property"
	"github.com/arkilian/catalogmeta/internal/translate"
)

// Fileset catalog property names.
const (
	AuthenticationType = "authentication.type"
	KerberosPrincipal  = "authentication.kerberos.principal"
	KerberosKeytabURI  = "authentication.kerberos.keytab-uri"
)

// AuthenticatorTypes enumerates the supported authentication mechanisms.
var AuthenticatorTypes = property.NewEnumType("AuthenticatorType", "NONE", "SIMPLE", "OAUTH", "KERBEROS")

var filesetKeyMapping = []translate.Pair{
	{Unified: AuthenticationType, Native: "hadoop.security.authentication"},
	{Unified: KerberosPrincipal, Native: "hadoop.kerberos.principal"},
	{Unified: KerberosKeytabURI, Native: "hadoop.kerberos.keytab"},
}

func newFilesetCatalog(o Overrides) (Kind, error) {
	specific := []property.Declaration{
		property.StringOptional(Location, "The root storage location of managed filesets", true, "", false),
		property.MustDeclaration(AuthenticationType, "The authentication mechanism for the filesystem",
			property.Enum, property.OfEnum(AuthenticatorTypes), property.Default("SIMPLE")),
		property.StringOptional(KerberosPrincipal, "The Kerberos principal", false, "", false),
		property.StringOptional(KerberosKeytabURI, "The URI of the Kerberos keytab", false, "", true),
	}
	tr, err := translate.New(translate.Passthrough, filesetKeyMapping...)
	if err != nil {
		return Kind{}, err
	}
	return assemble(FilesetCatalog, EntityCatalog, "Filesystem-backed fileset catalog",
		baseCatalogEntries(), specific, tr, o)
}

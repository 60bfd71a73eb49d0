// Package sqlite stores entity properties and partition descriptors in a
// SQLite database. It serves as the connector for single-node deployments.
package sqlite

// CreateEntitiesTableSQL tracks which entities exist, so an entity with no
// properties is distinguishable from a missing one. version counts applies
// and guards conditional writes.
const CreateEntitiesTableSQL = `
CREATE TABLE IF NOT EXISTS entities (
    entity TEXT PRIMARY KEY,
    version INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
)`

// CreateEntityPropertiesTableSQL stores backend-native properties, one row
// per key.
const CreateEntityPropertiesTableSQL = `
CREATE TABLE IF NOT EXISTS entity_properties (
    entity TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (entity, key),
    FOREIGN KEY (entity) REFERENCES entities(entity)
)`

// CreatePartitionsTableSQL stores partitions in their snappy-compressed wire
// form.
const CreatePartitionsTableSQL = `
CREATE TABLE IF NOT EXISTS partitions (
    entity TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    payload BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (entity, name)
)`

// CreateEntityRevisionsTableSQL keeps every distinct property set an entity
// has held, numbered from 1.
const CreateEntityRevisionsTableSQL = `
CREATE TABLE IF NOT EXISTS entity_revisions (
    entity TEXT NOT NULL,
    revision INTEGER NOT NULL,
    properties_json TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (entity, revision)
)`

// AllSchemaSQL returns all schema statements in execution order.
func AllSchemaSQL() []string {
	return []string{
		CreateEntitiesTableSQL,
		CreateEntityPropertiesTableSQL,
		CreatePartitionsTableSQL,
		CreateEntityRevisionsTableSQL,
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Revision is one recorded property set of an entity, in backend-native
// form.
type Revision struct {
	Number     int
	Properties map[string]string
	CreatedAt  time.Time
}

// PropertyDiff lists how the properties changed between two revisions.
type PropertyDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether the two revisions hold the same properties.
func (d PropertyDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// recordRevision appends native as a new revision of entity unless it equals
// the latest one. It returns the current revision number.
func recordRevision(ctx context.Context, tx *sql.Tx, entity string, native map[string]string) (int, error) {
	var (
		current int
		latest  sql.NullString
	)
	err := tx.QueryRowContext(ctx,
		`SELECT revision, properties_json FROM entity_revisions
		 WHERE entity = ? ORDER BY revision DESC LIMIT 1`, entity,
	).Scan(&current, &latest)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("history: failed to read latest revision: %w", err)
	}

	if current > 0 && latest.Valid {
		var prev map[string]string
		if err := json.Unmarshal([]byte(latest.String), &prev); err != nil {
			return 0, fmt.Errorf("history: failed to decode revision %d: %w", current, err)
		}
		if propertiesEqual(prev, native) {
			return current, nil
		}
	}

	data, err := json.Marshal(native)
	if err != nil {
		return 0, fmt.Errorf("history: failed to encode properties: %w", err)
	}
	next := current + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entity_revisions (entity, revision, properties_json, created_at) VALUES (?, ?, ?, ?)`,
		entity, next, string(data), time.Now().Unix(),
	); err != nil {
		return 0, fmt.Errorf("history: failed to insert revision %d: %w", next, err)
	}
	return next, nil
}

// CurrentRevision returns the latest revision number of entity, 0 if it was
// never applied.
func (s *Store) CurrentRevision(ctx context.Context, entity string) (int, error) {
	var n int
	err := s.readDB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision), 0) FROM entity_revisions WHERE entity = ?`, entity,
	).Scan(&n)
	if err != nil {
		return 0, readFailed(entity, err)
	}
	return n, nil
}

// GetRevision returns revision n of entity.
func (s *Store) GetRevision(ctx context.Context, entity string, n int) (*Revision, error) {
	var (
		data      string
		createdAt int64
	)
	err := s.readDB.QueryRowContext(ctx,
		`SELECT properties_json, created_at FROM entity_revisions WHERE entity = ? AND revision = ?`,
		entity, n,
	).Scan(&data, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			e := metaerrors.ErrEntityNotFound.WithProperty(entity)
			e.Message = fmt.Sprintf("revision %d not found", n)
			return nil, e
		}
		return nil, readFailed(entity, err)
	}

	var props map[string]string
	if err := json.Unmarshal([]byte(data), &props); err != nil {
		return nil, readFailed(entity, err)
	}
	return &Revision{Number: n, Properties: props, CreatedAt: time.Unix(createdAt, 0)}, nil
}

// ListRevisions returns every revision of entity, oldest first.
func (s *Store) ListRevisions(ctx context.Context, entity string) ([]Revision, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT revision, properties_json, created_at FROM entity_revisions
		 WHERE entity = ? ORDER BY revision ASC`, entity)
	if err != nil {
		return nil, readFailed(entity, err)
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var (
			n         int
			data      string
			createdAt int64
		)
		if err := rows.Scan(&n, &data, &createdAt); err != nil {
			return nil, readFailed(entity, err)
		}
		var props map[string]string
		if err := json.Unmarshal([]byte(data), &props); err != nil {
			return nil, readFailed(entity, err)
		}
		out = append(out, Revision{Number: n, Properties: props, CreatedAt: time.Unix(createdAt, 0)})
	}
	if err := rows.Err(); err != nil {
		return nil, readFailed(entity, err)
	}
	return out, nil
}

// DiffRevisions compares revision from with revision to. Key lists are
// sorted.
func (s *Store) DiffRevisions(ctx context.Context, entity string, from, to int) (PropertyDiff, error) {
	a, err := s.GetRevision(ctx, entity, from)
	if err != nil {
		return PropertyDiff{}, err
	}
	b, err := s.GetRevision(ctx, entity, to)
	if err != nil {
		return PropertyDiff{}, err
	}
	return diffProperties(a.Properties, b.Properties), nil
}

func diffProperties(from, to map[string]string) PropertyDiff {
	var d PropertyDiff
	for k, v := range to {
		old, ok := from[k]
		switch {
		case !ok:
			d.Added = append(d.Added, k)
		case old != v:
			d.Changed = append(d.Changed, k)
		}
	}
	for k := range from {
		if _, ok := to[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}

func propertiesEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || v != w {
			return false
		}
	}
	return true
}

// PropertyHistory returns the property sets of entity, oldest first.
func (s *Store) PropertyHistory(ctx context.Context, entity string) ([]map[string]string, error) {
	revs, err := s.ListRevisions(ctx, entity)
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, metaerrors.ErrEntityNotFound.WithProperty(entity)
	}
	out := make([]map[string]string, len(revs))
	for i, rev := range revs {
		out[i] = rev.Properties
	}
	return out, nil
}

// Package objectstore keeps entity properties and partitions as JSON
// documents in object storage, local or S3.
//
// Layout:
//
//	entities/<entity>.json            properties document
//	partitions/<entity>/<name>.json   partition wire form
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/arkilian/catalogmeta/internal/storage"
	"github.com/arkilian/catalogmeta/pkg/partitions"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxConflictRetries bounds optimistic-concurrency retries in Apply.
const maxConflictRetries = 5

// document is the stored form of one entity.
type document struct {
	Entity     string            `json:"entity"`
	Revision   int64             `json:"revision"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Properties map[string]string `json:"properties"`
}

// Store implements the lifecycle connector and partition store over an
// ObjectStorage.
type Store struct {
	storage storage.ObjectStorage
	reader  *storage.BatchReader
}

// New creates a Store. concurrency bounds parallel partition reads.
func New(s storage.ObjectStorage, concurrency int) *Store {
	return &Store{
		storage: s,
		reader:  storage.NewBatchReader(s, concurrency),
	}
}

// anyRevision disables the revision check in write.
const anyRevision int64 = -1

// Apply replaces the stored properties of entity. Concurrent writers are
// serialized through the object's ETag; the last one wins.
func (s *Store) Apply(ctx context.Context, entity string, native map[string]string) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err := s.write(ctx, entity, native, anyRevision)
		if !errors.Is(err, storage.ErrPreconditionFailed) {
			return err
		}
		log.Printf("objectstore: concurrent update of %s, retrying (attempt %d)", entity, attempt+1)
	}
	return metaerrors.NewBackendError(metaerrors.CodeApplyFailed,
		fmt.Sprintf("objectstore: gave up after %d conflicting updates", maxConflictRetries),
		storage.ErrPreconditionFailed).WithProperty(entity)
}

// ApplyIfVersion replaces the stored properties of entity only if the
// document is still at revision version. Version 0 requires that no
// document exists.
func (s *Store) ApplyIfVersion(ctx context.Context, entity string, native map[string]string, version int64) error {
	err := s.write(ctx, entity, native, version)
	if errors.Is(err, storage.ErrPreconditionFailed) {
		return metaerrors.ErrVersionConflict.WithProperty(entity)
	}
	return err
}

// write puts a new revision of the entity document guarded by the ETag it
// read. A mismatch against expect is reported as ErrVersionConflict, a lost
// ETag race as storage.ErrPreconditionFailed.
func (s *Store) write(ctx context.Context, entity string, native map[string]string, expect int64) error {
	objectPath := entityPath(entity)
	current, etag, err := s.read(ctx, objectPath)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return err
	}
	if expect != anyRevision && current.Revision != expect {
		return metaerrors.ErrVersionConflict.WithProperty(entity)
	}

	doc := document{
		Entity:     entity,
		Revision:   current.Revision + 1,
		UpdatedAt:  time.Now().UTC(),
		Properties: native,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return metaerrors.NewBackendError(metaerrors.CodeApplyFailed, "objectstore: encode failed", err).WithProperty(entity)
	}
	_, err = s.storage.ConditionalPut(ctx, objectPath, data, etag)
	return err
}

// Load returns the stored properties of entity.
func (s *Store) Load(ctx context.Context, entity string) (map[string]string, error) {
	props, _, err := s.LoadVersion(ctx, entity)
	return props, err
}

// LoadVersion returns the stored properties of entity with the document
// revision they belong to.
func (s *Store) LoadVersion(ctx context.Context, entity string) (map[string]string, int64, error) {
	doc, _, err := s.read(ctx, entityPath(entity))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, 0, metaerrors.ErrEntityNotFound.WithProperty(entity)
		}
		return nil, 0, err
	}
	if doc.Properties == nil {
		return map[string]string{}, doc.Revision, nil
	}
	return doc.Properties, doc.Revision, nil
}

// Revision returns how many times entity has been applied.
func (s *Store) Revision(ctx context.Context, entity string) (int64, error) {
	doc, _, err := s.read(ctx, entityPath(entity))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return 0, metaerrors.ErrEntityNotFound.WithProperty(entity)
		}
		return 0, err
	}
	return doc.Revision, nil
}

// SavePartition stores p under entity, replacing a partition of the same
// name.
func (s *Store) SavePartition(ctx context.Context, entity string, p partitions.Partition) error {
	data, err := partitions.Marshal(p)
	if err != nil {
		return metaerrors.NewBackendError(metaerrors.CodeApplyFailed, "objectstore: encode failed", err).WithProperty(entity)
	}
	_, err = s.storage.Put(ctx, partitionPath(entity, p.Name()), data)
	return err
}

// ListPartitions returns the partitions of entity ordered by name.
func (s *Store) ListPartitions(ctx context.Context, entity string) ([]partitions.Partition, error) {
	paths, err := s.storage.List(ctx, partitionPrefix(entity))
	if err != nil {
		return nil, err
	}

	result := s.reader.Read(ctx, paths)
	for p, err := range result.Errors {
		// Deleted between List and Get.
		if errors.Is(err, storage.ErrObjectNotFound) {
			continue
		}
		return nil, metaerrors.NewBackendError(metaerrors.CodeReadFailed, "objectstore: read failed", err).WithProperty(p)
	}

	out := make([]partitions.Partition, 0, len(result.Objects))
	for p, data := range result.Objects {
		part, err := partitions.Unmarshal(data)
		if err != nil {
			return nil, metaerrors.NewBackendError(metaerrors.CodeReadFailed, "objectstore: decode failed", err).WithProperty(p)
		}
		out = append(out, part)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (s *Store) read(ctx context.Context, objectPath string) (document, string, error) {
	data, etag, err := s.storage.Get(ctx, objectPath)
	if err != nil {
		return document{}, "", err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, "", metaerrors.NewBackendError(metaerrors.CodeReadFailed, "objectstore: decode failed", err).WithProperty(objectPath)
	}
	return doc, etag, nil
}

func entityPath(entity string) string {
	return path.Join("entities", url.PathEscape(entity)+".json")
}

func partitionPrefix(entity string) string {
	return path.Join("partitions", url.PathEscape(entity)) + "/"
}

func partitionPath(entity, name string) string {
	return partitionPrefix(entity) + url.PathEscape(name) + ".json"
}

// entityFromPath is the inverse of entityPath.
func entityFromPath(objectPath string) (string, bool) {
	name, ok := strings.CutPrefix(objectPath, "entities/")
	if !ok {
		return "", false
	}
	name, ok = strings.CutSuffix(name, ".json")
	if !ok {
		return "", false
	}
	entity, err := url.PathUnescape(name)
	return entity, err == nil
}

// Entities returns the names of all stored entities, sorted.
func (s *Store) Entities(ctx context.Context) ([]string, error) {
	paths, err := s.storage.List(ctx, "entities/")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, p := range paths {
		if name, ok := entityFromPath(p); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

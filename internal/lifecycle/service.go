// Package lifecycle runs create, alter and describe requests through the
// property pipeline of a catalog kind and hands the result to a backend
// connector.
package lifecycle

import (
	"context"
	"errors"
	"log"

	"github.com/arkilian/catalogmeta/internal/catalogs"
	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/arkilian/catalogmeta/internal/events"
	"github.com/arkilian/catalogmeta/internal/observability"
	"github.com/arkilian/catalogmeta/pkg/partitions"
	"github.com/google/uuid"
)

// Operation names used in logs and metrics.
const (
	OpCreate   = "create"
	OpAlter    = "alter"
	OpDescribe = "describe"
)

// Connector persists entity properties in backend-native form.
type Connector interface {
	// Apply replaces the stored properties of entity.
	Apply(ctx context.Context, entity string, native map[string]string) error
	// Load returns the stored properties of entity. A missing entity is
	// reported with ErrEntityNotFound.
	Load(ctx context.Context, entity string) (map[string]string, error)
}

// VersionedConnector is implemented by connectors that can guard a write
// with the version observed when the properties were read. Version 0 stands
// for an entity that does not exist yet.
type VersionedConnector interface {
	// LoadVersion returns the stored properties of entity with their version.
	LoadVersion(ctx context.Context, entity string) (map[string]string, int64, error)
	// ApplyIfVersion replaces the stored properties only if the stored
	// version still equals version. Otherwise it fails with
	// ErrVersionConflict.
	ApplyIfVersion(ctx context.Context, entity string, native map[string]string, version int64) error
}

// maxAlterAttempts bounds how often Alter re-reads and re-validates after
// losing a race with another writer.
const maxAlterAttempts = 5

// PartitionStore persists partition descriptors of partitioned tables.
type PartitionStore interface {
	SavePartition(ctx context.Context, entity string, p partitions.Partition) error
	ListPartitions(ctx context.Context, entity string) ([]partitions.Partition, error)
}

// HistoryStore is implemented by connectors that keep every property set an
// entity has held.
type HistoryStore interface {
	// PropertyHistory returns backend-native property sets, oldest first.
	PropertyHistory(ctx context.Context, entity string) ([]map[string]string, error)
}

// EntityLister is implemented by connectors that can enumerate what they
// store.
type EntityLister interface {
	Entities(ctx context.Context) ([]string, error)
}

// Service validates property requests and forwards them to a Connector.
// It holds no mutable state and is safe for concurrent use.
type Service struct {
	registry   *catalogs.Registry
	connector  Connector
	partitions PartitionStore
	recorder   *observability.Recorder
	notifier   *events.Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithPartitionStore enables AddPartition and Partitions.
func WithPartitionStore(ps PartitionStore) Option {
	return func(s *Service) { s.partitions = ps }
}

// WithRecorder records validation outcomes.
func WithRecorder(r *observability.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithNotifier publishes committed changes to n.
func WithNotifier(n *events.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a Service over registry and connector.
func NewService(registry *catalogs.Registry, connector Connector, opts ...Option) *Service {
	s := &Service{registry: registry, connector: connector}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the kinds the service accepts.
func (s *Service) Registry() *catalogs.Registry { return s.registry }

// Create validates raw for a new entity of kind, stores it and returns the
// caller-facing view of the stored properties. Nothing reaches the connector
// when validation fails.
func (s *Service) Create(ctx context.Context, kind, entity string, raw map[string]string) (map[string]string, error) {
	opID := uuid.NewString()
	k, err := s.registry.Get(kind)
	if err != nil {
		s.observe(opID, kind, OpCreate, entity, err)
		return nil, err
	}

	normalized, err := k.Schema.ValidateForCreate(raw)
	if err != nil {
		s.observe(opID, kind, OpCreate, entity, err)
		return nil, err
	}
	if err := s.create(ctx, k, entity, normalized); err != nil {
		s.observe(opID, kind, OpCreate, entity, err)
		return nil, err
	}

	s.observe(opID, kind, OpCreate, entity, nil)
	shown := k.Schema.Display(normalized)
	s.notifier.Publish(events.Event{Type: events.EntityCreated, Kind: kind, Entity: entity, OperationID: opID, Properties: shown})
	return shown, nil
}

// Alter merges changes into the stored properties of entity. Keys absent
// from changes keep their stored value.
func (s *Service) Alter(ctx context.Context, kind, entity string, changes map[string]string) (map[string]string, error) {
	opID := uuid.NewString()
	k, err := s.registry.Get(kind)
	if err != nil {
		s.observe(opID, kind, OpAlter, entity, err)
		return nil, err
	}

	merged, err := s.alter(ctx, k, entity, changes)
	if err != nil {
		s.observe(opID, kind, OpAlter, entity, err)
		return nil, err
	}

	s.observe(opID, kind, OpAlter, entity, nil)
	shown := k.Schema.Display(merged)
	s.notifier.Publish(events.Event{Type: events.EntityAltered, Kind: kind, Entity: entity, OperationID: opID, Properties: shown})
	return shown, nil
}

// Describe returns the caller-facing view of the stored properties: unified
// keys, defaults filled in, hidden and reserved keys removed.
func (s *Service) Describe(ctx context.Context, kind, entity string) (map[string]string, error) {
	opID := uuid.NewString()
	k, err := s.registry.Get(kind)
	if err != nil {
		s.observe(opID, kind, OpDescribe, entity, err)
		return nil, err
	}
	current, err := s.load(ctx, k, entity)
	if err != nil {
		s.observe(opID, kind, OpDescribe, entity, err)
		return nil, err
	}
	s.observe(opID, kind, OpDescribe, entity, nil)
	return k.Schema.Display(current), nil
}

// History returns the caller-facing view of every recorded property set of
// entity, oldest first. It needs a connector that implements HistoryStore.
func (s *Service) History(ctx context.Context, kind, entity string) ([]map[string]string, error) {
	k, err := s.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	hs, ok := s.connector.(HistoryStore)
	if !ok {
		return nil, metaerrors.NewInternalError("backend does not keep property history", nil)
	}
	sets, err := hs.PropertyHistory(ctx, entity)
	if err != nil {
		return nil, backendError(metaerrors.CodeReadFailed, "failed to load property history", err)
	}
	out := make([]map[string]string, len(sets))
	for i, native := range sets {
		out[i] = k.Schema.Display(k.FromBackend(native))
	}
	return out, nil
}

// Entities returns the names of all stored entities, sorted. It needs a
// connector that implements EntityLister.
func (s *Service) Entities(ctx context.Context) ([]string, error) {
	lister, ok := s.connector.(EntityLister)
	if !ok {
		return nil, metaerrors.NewInternalError("backend cannot list entities", nil)
	}
	names, err := lister.Entities(ctx)
	if err != nil {
		return nil, backendError(metaerrors.CodeReadFailed, "failed to list entities", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// AddPartition stores p for entity. A partition with the same name is
// replaced.
func (s *Service) AddPartition(ctx context.Context, entity string, p partitions.Partition) error {
	if s.partitions == nil {
		return metaerrors.NewInternalError("partition store not configured", nil)
	}
	if err := s.partitions.SavePartition(ctx, entity, p); err != nil {
		return backendError(metaerrors.CodeApplyFailed, "failed to save partition", err)
	}
	opID := uuid.NewString()
	log.Printf("lifecycle: op=%s entity=%s added %s partition %q", opID, entity, p.Kind(), p.Name())
	s.notifier.Publish(events.Event{Type: events.PartitionAdded, Entity: entity, Partition: p.Name(), OperationID: opID})
	return nil
}

// Partitions lists the partitions stored for entity.
func (s *Service) Partitions(ctx context.Context, entity string) ([]partitions.Partition, error) {
	if s.partitions == nil {
		return nil, metaerrors.NewInternalError("partition store not configured", nil)
	}
	parts, err := s.partitions.ListPartitions(ctx, entity)
	if err != nil {
		return nil, backendError(metaerrors.CodeReadFailed, "failed to list partitions", err)
	}
	return parts, nil
}

// create stores props for an entity that must not exist yet.
func (s *Service) create(ctx context.Context, k catalogs.Kind, entity string, props map[string]string) error {
	native, err := k.ToBackend(props)
	if err != nil {
		return err
	}
	if vc, ok := s.connector.(VersionedConnector); ok {
		err := vc.ApplyIfVersion(ctx, entity, native, 0)
		if errors.Is(err, metaerrors.ErrVersionConflict) {
			return metaerrors.ErrEntityAlreadyExists.WithProperty(entity)
		}
		if err != nil {
			return backendError(metaerrors.CodeApplyFailed, "failed to apply properties", err)
		}
		return nil
	}

	_, err = s.connector.Load(ctx, entity)
	switch {
	case err == nil:
		return metaerrors.ErrEntityAlreadyExists.WithProperty(entity)
	case !errors.Is(err, metaerrors.ErrEntityNotFound):
		return backendError(metaerrors.CodeReadFailed, "failed to load properties", err)
	}
	if err := s.connector.Apply(ctx, entity, native); err != nil {
		return backendError(metaerrors.CodeApplyFailed, "failed to apply properties", err)
	}
	return nil
}

// alter validates changes against the stored properties and writes the
// merged set. With a VersionedConnector the write only lands if nobody
// else wrote in between; a lost race re-reads and validates again.
func (s *Service) alter(ctx context.Context, k catalogs.Kind, entity string, changes map[string]string) (map[string]string, error) {
	vc, versioned := s.connector.(VersionedConnector)
	for attempt := 1; ; attempt++ {
		var (
			native  map[string]string
			version int64
			err     error
		)
		if versioned {
			native, version, err = vc.LoadVersion(ctx, entity)
		} else {
			native, err = s.connector.Load(ctx, entity)
		}
		if err != nil {
			return nil, backendError(metaerrors.CodeReadFailed, "failed to load properties", err)
		}

		merged, err := k.Schema.ValidateForAlter(k.FromBackend(native), changes)
		if err != nil {
			return nil, err
		}
		updated, err := k.ToBackend(merged)
		if err != nil {
			return nil, err
		}

		if !versioned {
			err = s.connector.Apply(ctx, entity, updated)
		} else {
			err = vc.ApplyIfVersion(ctx, entity, updated, version)
			if errors.Is(err, metaerrors.ErrVersionConflict) && attempt < maxAlterAttempts {
				log.Printf("lifecycle: %s changed during alter, retrying (attempt %d)", entity, attempt)
				continue
			}
		}
		if err != nil {
			return nil, backendError(metaerrors.CodeApplyFailed, "failed to apply properties", err)
		}
		return merged, nil
	}
}

func (s *Service) load(ctx context.Context, k catalogs.Kind, entity string) (map[string]string, error) {
	native, err := s.connector.Load(ctx, entity)
	if err != nil {
		return nil, backendError(metaerrors.CodeReadFailed, "failed to load properties", err)
	}
	return k.FromBackend(native), nil
}

func (s *Service) observe(opID, kind, op, entity string, err error) {
	s.recorder.Observe(kind, op, err)
	if err != nil {
		log.Printf("lifecycle: op=%s %s %s entity=%s failed: %v", opID, op, kind, entity, err)
	}
}

// backendError wraps connector faults. Errors that already carry a category
// are returned unchanged.
func backendError(code, message string, err error) error {
	var me *metaerrors.MetaError
	if errors.As(err, &me) {
		return err
	}
	return metaerrors.NewBackendError(code, message, err)
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arkilian/catalogmeta/internal/backend/objectstore"
	"github.com/arkilian/catalogmeta/internal/backend/sqlite"
	"github.com/arkilian/catalogmeta/internal/catalogs"
	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/arkilian/catalogmeta/internal/events"
	"github.com/arkilian/catalogmeta/internal/observability"
	"github.com/arkilian/catalogmeta/internal/storage"
	"github.com/arkilian/catalogmeta/pkg/literals"
	"github.com/arkilian/catalogmeta/pkg/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memConnector keeps native properties and partitions in memory.
type memConnector struct {
	mu       sync.Mutex
	entities map[string]map[string]string
	parts    map[string][]partitions.Partition
	applies  int
	failWith error
}

func newMemConnector() *memConnector {
	return &memConnector{
		entities: make(map[string]map[string]string),
		parts:    make(map[string][]partitions.Partition),
	}
}

func (c *memConnector) Apply(_ context.Context, entity string, native map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.applies++
	stored := make(map[string]string, len(native))
	for k, v := range native {
		stored[k] = v
	}
	c.entities[entity] = stored
	return nil
}

func (c *memConnector) Load(_ context.Context, entity string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	props, ok := c.entities[entity]
	if !ok {
		return nil, metaerrors.ErrEntityNotFound
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out, nil
}

func (c *memConnector) SavePartition(_ context.Context, entity string, p partitions.Partition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parts[entity] = append(c.parts[entity], p)
	return nil
}

func (c *memConnector) ListPartitions(_ context.Context, entity string) ([]partitions.Partition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]partitions.Partition(nil), c.parts[entity]...), nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memConnector) {
	t.Helper()
	registry, err := catalogs.Builtin(nil)
	require.NoError(t, err)
	conn := newMemConnector()
	return NewService(registry, conn, opts...), conn
}

func TestCreate_MySQLEngineDefault(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	shown, err := svc.Create(ctx, catalogs.MySQLTable, "db.orders", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{catalogs.EngineKey: "INNODB"}, shown)
	assert.Equal(t, map[string]string{catalogs.MySQLEngineKey: "InnoDB"}, conn.entities["db.orders"])

	described, err := svc.Describe(ctx, catalogs.MySQLTable, "db.orders")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{catalogs.EngineKey: "InnoDB"}, described)
}

func TestCreate_ValidationFailureSkipsConnector(t *testing.T) {
	svc, conn := newTestService(t)

	_, err := svc.Create(context.Background(), catalogs.HiveCatalog, "hive", map[string]string{})
	require.Error(t, err)
	assert.ErrorIs(t, err, metaerrors.ErrMissingRequiredProperty)
	assert.Equal(t, catalogs.MetastoreURIs, metaerrors.GetProperty(err))
	assert.Zero(t, conn.applies)
}

func TestCreate_UnknownKind(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), "iceberg-catalog", "x", nil)
	assert.ErrorIs(t, err, metaerrors.ErrUnknownKind)
}

func TestCreate_ConnectorFailureIsBackendError(t *testing.T) {
	svc, conn := newTestService(t)
	conn.failWith = errors.New("connection refused")

	_, err := svc.Create(context.Background(), catalogs.HiveCatalog, "hive", map[string]string{catalogs.MetastoreURIs: "thrift://h:9083"})
	require.Error(t, err)
	assert.Equal(t, metaerrors.ErrCategoryBackend, metaerrors.GetCategory(err))
	assert.Equal(t, metaerrors.CodeApplyFailed, metaerrors.GetCode(err))
}

func TestAlter(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, catalogs.HiveCatalog, "hive", map[string]string{catalogs.MetastoreURIs: "thrift://h:9083"})
	require.NoError(t, err)

	shown, err := svc.Alter(ctx, catalogs.HiveCatalog, "hive", map[string]string{catalogs.CommentKey: "prod"})
	require.NoError(t, err)
	assert.Equal(t, "prod", shown[catalogs.CommentKey])
	assert.Equal(t, "thrift://h:9083", shown[catalogs.MetastoreURIs])
	assert.Equal(t, "1", shown[catalogs.ClientPoolSize])

	_, err = svc.Alter(ctx, catalogs.HiveCatalog, "hive", map[string]string{catalogs.MetastoreURIs: "thrift://other:9083"})
	assert.ErrorIs(t, err, metaerrors.ErrImmutablePropertyChange)
	assert.Equal(t, 2, conn.applies)
}

func TestAlter_MySQLEngineNativeSpelling(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, catalogs.MySQLTable, "db.t", map[string]string{catalogs.EngineKey: "MYISAM"})
	require.NoError(t, err)

	_, err = svc.Alter(ctx, catalogs.MySQLTable, "db.t", map[string]string{catalogs.EngineKey: "MYISAM"})
	assert.NoError(t, err)

	_, err = svc.Alter(ctx, catalogs.MySQLTable, "db.t", map[string]string{catalogs.EngineKey: "INNODB"})
	assert.ErrorIs(t, err, metaerrors.ErrImmutablePropertyChange)
}

func TestAlter_MissingEntity(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Alter(context.Background(), catalogs.HiveCatalog, "nope", map[string]string{catalogs.CommentKey: "x"})
	assert.ErrorIs(t, err, metaerrors.ErrEntityNotFound)
}

func TestDescribe_HidesSecrets(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, catalogs.JDBCCatalog, "pg", map[string]string{
		catalogs.JDBCURL:      "jdbc:postgresql://db/app",
		catalogs.JDBCDriver:   "org.postgresql.Driver",
		catalogs.JDBCPassword: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", conn.entities["pg"]["password"])

	shown, err := svc.Describe(ctx, catalogs.JDBCCatalog, "pg")
	require.NoError(t, err)
	assert.NotContains(t, shown, catalogs.JDBCPassword)
	assert.NotContains(t, shown, catalogs.PackageKey)
	assert.Equal(t, "jdbc:postgresql://db/app", shown[catalogs.JDBCURL])
}

func TestPartitions(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestService(t)
	err := svc.AddPartition(ctx, "db.t", partitions.Range("p0", literals.IntegerLiteral(10), literals.IntegerLiteral(0), nil))
	assert.Equal(t, metaerrors.ErrCategoryInternal, metaerrors.GetCategory(err))

	registry, err := catalogs.Builtin(nil)
	require.NoError(t, err)
	conn := newMemConnector()
	svc = NewService(registry, conn, WithPartitionStore(conn))

	p := partitions.Range("p0", literals.IntegerLiteral(10), literals.IntegerLiteral(0), map[string]string{"k": "v"})
	require.NoError(t, svc.AddPartition(ctx, "db.t", p))

	parts, err := svc.Partitions(ctx, "db.t")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.True(t, p.Equal(parts[0]))
}

func TestRecorderSeesOutcomes(t *testing.T) {
	stats := observability.NewValidationStats(time.Hour)
	svc, _ := newTestService(t, WithRecorder(&observability.Recorder{Stats: stats}))

	_, _ = svc.Create(context.Background(), catalogs.MySQLTable, "t", map[string]string{catalogs.EngineKey: "ROCKSDB"})

	top := stats.GetTopFailures(1)
	require.Len(t, top, 1)
	assert.Equal(t, catalogs.MySQLTable, top[0].Kind)
	assert.Equal(t, catalogs.EngineKey, top[0].Property)
	assert.Equal(t, 1, top[0].Codes[metaerrors.CodeTypeCoercion])
}

func TestConcurrentCreates(t *testing.T) {
	svc, conn := newTestService(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), catalogs.HiveCatalog, fmt.Sprintf("hive-%d", i), map[string]string{catalogs.MetastoreURIs: "thrift://h:9083"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, conn.applies)
}

// versionedBackends returns a fresh store of each kind that guards writes
// with a version.
func versionedBackends(t *testing.T) map[string]Connector {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return map[string]Connector{
		"sqlite":      db,
		"objectstore": objectstore.New(local, 2),
	}
}

func TestCreate_ExistingEntityRejected(t *testing.T) {
	registry, err := catalogs.Builtin(nil)
	require.NoError(t, err)

	backends := versionedBackends(t)
	backends["memory"] = newMemConnector()
	for name, conn := range backends {
		t.Run(name, func(t *testing.T) {
			svc := NewService(registry, conn)
			ctx := context.Background()

			_, err := svc.Create(ctx, catalogs.HiveCatalog, "c1", map[string]string{
				catalogs.MetastoreURIs:  "thrift://a:9083",
				catalogs.ClientPoolSize: "7",
			})
			require.NoError(t, err)

			_, err = svc.Alter(ctx, catalogs.HiveCatalog, "c1", map[string]string{catalogs.MetastoreURIs: "thrift://b:9083"})
			require.ErrorIs(t, err, metaerrors.ErrImmutablePropertyChange)

			_, err = svc.Create(ctx, catalogs.HiveCatalog, "c1", map[string]string{catalogs.MetastoreURIs: "thrift://b:9083"})
			require.ErrorIs(t, err, metaerrors.ErrEntityAlreadyExists)
			assert.Equal(t, "c1", metaerrors.GetProperty(err))

			shown, err := svc.Describe(ctx, catalogs.HiveCatalog, "c1")
			require.NoError(t, err)
			assert.Equal(t, "thrift://a:9083", shown[catalogs.MetastoreURIs])
			assert.Equal(t, "7", shown[catalogs.ClientPoolSize])
		})
	}
}

func TestCreate_ConcurrentSameEntityOneWins(t *testing.T) {
	registry, err := catalogs.Builtin(nil)
	require.NoError(t, err)

	for name, conn := range versionedBackends(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewService(registry, conn)

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
				existed   int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := svc.Create(context.Background(), catalogs.HiveCatalog, "shared",
						map[string]string{catalogs.MetastoreURIs: fmt.Sprintf("thrift://h%d:9083", i)})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						succeeded++
					case errors.Is(err, metaerrors.ErrEntityAlreadyExists):
						existed++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, 1, succeeded)
			assert.Equal(t, 7, existed)
		})
	}
}

func TestAlter_ConcurrentChangesAllLand(t *testing.T) {
	registry, err := catalogs.Builtin(nil)
	require.NoError(t, err)

	for name, conn := range versionedBackends(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewService(registry, conn)
			ctx := context.Background()

			_, err := svc.Create(ctx, catalogs.JDBCCatalog, "pg", map[string]string{
				catalogs.JDBCURL:    "jdbc:postgresql://a/db",
				catalogs.JDBCDriver: "org.postgresql.Driver",
			})
			require.NoError(t, err)

			changes := []map[string]string{
				{catalogs.JDBCUser: "etl"},
				{catalogs.JDBCPoolMinSize: "4"},
				{catalogs.CommentKey: "prod"},
			}
			var wg sync.WaitGroup
			for _, c := range changes {
				wg.Add(1)
				go func(c map[string]string) {
					defer wg.Done()
					_, err := svc.Alter(ctx, catalogs.JDBCCatalog, "pg", c)
					assert.NoError(t, err)
				}(c)
			}
			wg.Wait()

			shown, err := svc.Describe(ctx, catalogs.JDBCCatalog, "pg")
			require.NoError(t, err)
			assert.Equal(t, "etl", shown[catalogs.JDBCUser])
			assert.Equal(t, "4", shown[catalogs.JDBCPoolMinSize])
			assert.Equal(t, "prod", shown[catalogs.CommentKey])
		})
	}
}

// staleConnector reports a version that is always one behind, so every
// guarded write loses.
type staleConnector struct {
	*memConnector
}

func (c staleConnector) LoadVersion(ctx context.Context, entity string) (map[string]string, int64, error) {
	props, err := c.Load(ctx, entity)
	return props, 1, err
}

func (c staleConnector) ApplyIfVersion(context.Context, string, map[string]string, int64) error {
	return metaerrors.ErrVersionConflict
}

func TestAlter_GivesUpAfterRepeatedConflicts(t *testing.T) {
	registry, err := catalogs.Builtin(nil)
	require.NoError(t, err)
	mem := newMemConnector()
	require.NoError(t, mem.Apply(context.Background(), "hive", map[string]string{catalogs.MetastoreURIs: "thrift://h:9083"}))

	svc := NewService(registry, staleConnector{mem})
	_, err = svc.Alter(context.Background(), catalogs.HiveCatalog, "hive", map[string]string{catalogs.CommentKey: "x"})
	assert.ErrorIs(t, err, metaerrors.ErrVersionConflict)
	assert.Equal(t, 1, mem.applies)
}

func TestHistory(t *testing.T) {
	registry, err := catalogs.Builtin(nil)
	require.NoError(t, err)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	svc := NewService(registry, store)
	ctx := context.Background()

	_, err = svc.Create(ctx, catalogs.JDBCCatalog, "pg", map[string]string{
		catalogs.JDBCURL:      "jdbc:postgresql://a/db",
		catalogs.JDBCDriver:   "org.postgresql.Driver",
		catalogs.JDBCUser:     "svc",
		catalogs.JDBCPassword: "secret",
	})
	require.NoError(t, err)
	_, err = svc.Alter(ctx, catalogs.JDBCCatalog, "pg", map[string]string{catalogs.JDBCUser: "etl"})
	require.NoError(t, err)

	history, err := svc.History(ctx, catalogs.JDBCCatalog, "pg")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "svc", history[0][catalogs.JDBCUser])
	assert.Equal(t, "etl", history[1][catalogs.JDBCUser])
	assert.Equal(t, "jdbc:postgresql://a/db", history[1][catalogs.JDBCURL])
	assert.NotContains(t, history[1], catalogs.JDBCPassword)

	_, err = svc.History(ctx, catalogs.JDBCCatalog, "ghost")
	assert.True(t, errors.Is(err, metaerrors.ErrEntityNotFound))
}

func TestHistory_Unsupported(t *testing.T) {
	registry, err := catalogs.Builtin(nil)
	require.NoError(t, err)
	svc := NewService(registry, newMemConnector())

	_, err = svc.History(context.Background(), catalogs.JDBCCatalog, "pg")
	assert.Equal(t, metaerrors.ErrCategoryInternal, metaerrors.GetCategory(err))
}

func TestNotifierReceivesCommittedChanges(t *testing.T) {
	ctx := context.Background()
	registry, err := catalogs.Builtin(nil)
	require.NoError(t, err)
	conn := newMemConnector()
	n := events.NewNotifier(8)
	sub := n.Subscribe("audit")
	svc := NewService(registry, conn, WithPartitionStore(conn), WithNotifier(n))

	_, err = svc.Create(ctx, catalogs.HiveCatalog, "hive", map[string]string{})
	require.Error(t, err)

	_, err = svc.Create(ctx, catalogs.HiveCatalog, "hive", map[string]string{catalogs.MetastoreURIs: "thrift://h:9083"})
	require.NoError(t, err)
	_, err = svc.Alter(ctx, catalogs.HiveCatalog, "hive", map[string]string{catalogs.CommentKey: "prod"})
	require.NoError(t, err)
	require.NoError(t, svc.AddPartition(ctx, "hive", partitions.Range("p0", literals.IntegerLiteral(10), literals.IntegerLiteral(0), nil)))

	var got []events.Event
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.Ch:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	assert.Equal(t, events.EntityCreated, got[0].Type)
	assert.Equal(t, catalogs.HiveCatalog, got[0].Kind)
	assert.Equal(t, "thrift://h:9083", got[0].Properties[catalogs.MetastoreURIs])
	assert.NotEmpty(t, got[0].OperationID)
	assert.Equal(t, events.EntityAltered, got[1].Type)
	assert.Equal(t, "prod", got[1].Properties[catalogs.CommentKey])
	assert.Equal(t, events.PartitionAdded, got[2].Type)
	assert.Equal(t, "p0", got[2].Partition)

	select {
	case ev := <-sub.Ch:
		t.Fatalf("unexpected event %v", ev.Type)
	default:
	}
}

func TestEntities(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestService(t)
	_, err := svc.Entities(ctx)
	assert.Equal(t, metaerrors.ErrCategoryInternal, metaerrors.GetCategory(err))

	registry, err := catalogs.Builtin(nil)
	require.NoError(t, err)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	svc = NewService(registry, store)

	names, err := svc.Entities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{}, names)

	for _, e := range []string{"hive-b", "hive-a"} {
		_, err := svc.Create(ctx, catalogs.HiveCatalog, e, map[string]string{catalogs.MetastoreURIs: "thrift://h:9083"})
		require.NoError(t, err)
	}
	names, err = svc.Entities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hive-a", "hive-b"}, names)
}

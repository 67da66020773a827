package docstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-api/internal/core/database"
	"quiz-api/pkg/utils"
)

func newSQLiteStore(t *testing.T) *Gorm {
	t.Helper()
	db, err := database.NewGorm(database.Opts{
		Driver:       "sqlite",
		DSN:          "file:" + utils.NewID() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	s := NewGorm(db)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newSQLiteFileStore 文件库 + WAL + 多连接，并发事务之间会真正互相抢锁
func newSQLiteFileStore(t *testing.T) *Gorm {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "docs.db") +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := database.NewGorm(database.Opts{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxOpenConns: 8,
		MaxIdleConns: 8,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	s := NewGorm(db)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return newSQLiteStore(t) })
}

func TestGormStoreOnFileWithManyConns(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return newSQLiteFileStore(t) })
}

func TestBusyAsConflict(t *testing.T) {
	cases := map[string]struct {
		err      error
		conflict bool
	}{
		"locked":         {errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		"stale snapshot": {errors.New("database is locked (517)"), true},
		"shared cache":   {errors.New("database table is locked: documents (262)"), true},
		"wrapped":        {fmt.Errorf("commit: %w", errors.New("SQLITE_BUSY")), true},
		"other":          {errors.New("no such table: documents"), false},
		"nil":            {nil, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := busyAsConflict(tc.err)
			assert.Equal(t, tc.conflict, errors.Is(got, ErrConflict))
			if !tc.conflict {
				assert.Equal(t, tc.err, got)
			}
		})
	}

	already := fmt.Errorf("%w: x", ErrConflict)
	assert.Same(t, already, busyAsConflict(already))
}

func TestGormReplaceWithStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	doc, err := s.Create(ctx, "quizzes", Fields{"userCount": 0})
	require.NoError(t, err)

	b := &gormBackend{db: s.db.WithContext(ctx)}
	next, err := pendingWrite{ref: doc.Ref, op: opUpdate, data: Fields{"userCount": 1}}.apply(doc, s.now())
	require.NoError(t, err)
	next.Version = 3
	require.ErrorIs(t, b.replace(next, 2), ErrConflict)
	require.ErrorIs(t, b.remove(doc.Ref, 7), ErrConflict)

	next.Version = 2
	require.NoError(t, b.replace(next, 1))
	got, err := s.Get(ctx, doc.Ref)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.Version)
}

func TestGormInsertDuplicateConflicts(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	doc, err := s.Create(ctx, "users", Fields{"name": "a"})
	require.NoError(t, err)
	err = (&gormBackend{db: s.db.WithContext(ctx)}).insert(doc)
	require.ErrorIs(t, err, ErrConflict)
}

package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
)

const (
	// busyTimeout is how long a connection waits on a locked database
	busyTimeout = 30 * time.Second

	// compactAttempts bounds the Compact loop
	compactAttempts = 50
	compactBackoff  = 100 * time.Millisecond
)

// Store is the persistent record of managed state
type Store struct {
	db     *bun.DB
	path   string
	user   string
	ops    *filesystem.Ops
	logger zerolog.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func dsn(path, journal string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=journal_mode(%s)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)",
		path, journal, busyTimeout.Milliseconds(),
	)
}

// Open opens or creates the store at path. ops is used to read and
// restore backups.
func Open(ctx context.Context, path string, ops *filesystem.Ops) (*Store, error) {
	logger := logging.GetLogger("store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrStore, "failed to create store directory for %s", path)
	}

	sqlDB, err := sql.Open("sqlite", dsn(path, "WAL"))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrStore, "failed to open store %s", path)
	}

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, errors.ErrStore, "failed to initialize schema in %s", path)
		}
	}

	username := os.Getenv("USER")
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	logger.Debug().Str("path", path).Msg("Store opened")

	return &Store{
		db:     db,
		path:   path,
		user:   username,
		ops:    ops,
		logger: logger,
	}, nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// begin registers an in-flight operation; the returned func ends it
func (s *Store) begin() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New(errors.ErrStore, "store is closed")
	}
	s.inflight.Add(1)
	return s.inflight.Done, nil
}

// Close waits for in-flight operations, optimizes and closes the pool
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()

	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		s.logger.Warn().Err(err).Msg("Store optimize failed")
	}
	if err := s.db.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrStore, "failed to close store %s", s.path)
	}
	s.logger.Debug().Str("path", s.path).Msg("Store closed")
	return nil
}

// Compact checkpoints and vacuums the closed store at path until its
// -wal and -shm files are gone.
func Compact(ctx context.Context, path string) error {
	logger := logging.GetLogger("store")

	for attempt := 1; attempt <= compactAttempts; attempt++ {
		if err := compactOnce(ctx, path); err != nil {
			return err
		}
		if !exists(path+"-wal") && !exists(path+"-shm") {
			logger.Debug().Int("attempts", attempt).Msg("Store compacted")
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrStore, "compaction interrupted")
		case <-time.After(compactBackoff):
		}
	}
	return errors.Newf(errors.ErrStore, "secondary log files of %s still present after %d compactions", path, compactAttempts)
}

func compactOnce(ctx context.Context, path string) error {
	sqlDB, err := sql.Open("sqlite", dsn(path, "DELETE"))
	if err != nil {
		return errors.Wrapf(err, errors.ErrStore, "failed to open store %s", path)
	}
	defer func() { _ = sqlDB.Close() }()

	if _, err := sqlDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.Wrap(err, errors.ErrStore, "checkpoint failed")
	}
	if _, err := sqlDB.ExecContext(ctx, "VACUUM"); err != nil {
		return errors.Wrap(err, errors.ErrStore, "vacuum failed")
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func isNoRows(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}

func storeErr(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, errors.ErrStore, format, args...)
}

// moduleID returns the row id of a stored module
func (s *Store) moduleID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.NewSelect().
		Model((*moduleRow)(nil)).
		Column("id").
		Where("name = ?", name).
		Scan(ctx, &id)
	if isNoRows(err) {
		return 0, errors.Newf(errors.ErrModuleNotFound, "module %s is not in the store", name).
			WithDetail("module", name)
	}
	if err != nil {
		return 0, storeErr(err, "failed to look up module %s", name)
	}
	return id, nil
}

// Package db persists user accounts, prediction history and the training
// audit log. Every Store operation starts with an ensure-connected guard.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"cancersense/apperr"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver string
	DSN    string
	// UserCacheSize bounds the username to id cache.
	UserCacheSize int
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Store struct {
	opts   Options
	logger *zap.Logger

	mu sync.Mutex
	db *sqlx.DB

	userIDs *lru.Cache[string, int64]
	now     func() time.Time
}

// Open validates opts and returns a Store. No connection is made until the
// first operation.
func Open(opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Driver {
	case "":
		opts.Driver = DriverSQLite
	case DriverSQLite, DriverPostgres:
	default:
		return nil, apperr.Configuration(fmt.Sprintf("unsupported database driver %q", opts.Driver), nil)
	}
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, apperr.Configuration("database dsn is required", nil)
	}
	if opts.UserCacheSize <= 0 {
		opts.UserCacheSize = 256
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	cache, err := lru.New[string, int64](opts.UserCacheSize)
	if err != nil {
		return nil, apperr.Configuration("failed to create user cache", err)
	}
	return &Store{
		opts:    opts,
		logger:  logger.With(zap.String("component", "store"), zap.String("driver", opts.Driver)),
		userIDs: cache,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// ensureConnected returns a live handle, connecting on first use and
// replacing a handle whose ping fails.
func (s *Store) ensureConnected(ctx context.Context) (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.PingContext(ctx)
		if err == nil {
			return s.db, nil
		}
		s.logger.Warn("database connection lost, reconnecting", zap.Error(err))
		if cerr := s.db.Close(); cerr != nil {
			s.logger.Debug("closing stale handle", zap.Error(cerr))
		}
		s.db = nil
	}

	db, err := s.connect(ctx)
	if err != nil {
		s.logger.Error("database connection failed", zap.Error(err))
		return nil, apperr.Storage("failed to connect to database", err)
	}
	s.db = db
	return db, nil
}

func (s *Store) connect(ctx context.Context) (*sqlx.DB, error) {
	if s.opts.Driver == DriverSQLite && !strings.HasPrefix(s.opts.DSN, "file:") && s.opts.DSN != ":memory:" {
		if dir := filepath.Dir(s.opts.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	db, err := sqlx.Open(s.opts.Driver, s.opts.DSN)
	if err != nil {
		return nil, err
	}
	if s.opts.Driver == DriverSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	if err := createSchema(ctx, db, s.opts.Driver); err != nil {
		return nil, multierr.Append(fmt.Errorf("create schema: %w", err), db.Close())
	}
	s.logger.Info("database connected")
	return db, nil
}

// Close releases the handle. A later operation reconnects.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.ensureConnected(ctx)
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// Copyright Project Flowplane Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store is the SQL repository. It owns the schema, runs embedded
// migrations, and exposes per-entity data access with a shared contract:
// duplicate identity maps to a conflict, row-version mismatches map to a
// conflict, deletes blocked by referents map to in-use, and listings are
// clamped and stably ordered by (created_at, id).
//
// Every repository method lives on the embedded queries type, so the same
// method set is available on the pool-backed Store and inside a Tx. Writes
// that must be atomic with their audit rows run through WithTx.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	"github.com/flowplane/flowplane/internal/errs"
)

// queries is the shared repository surface. It runs against either the
// connection pool or an open transaction.
type queries struct {
	q      sqlx.ExtContext
	cipher *secretCipher
}

// Store wraps the database handle. All repository methods hang off it.
type Store struct {
	queries
	db      *sqlx.DB
	dialect string

	logrus.FieldLogger
}

// Tx exposes the repository surface inside one transaction.
type Tx struct {
	queries
	tx *sqlx.Tx
}

// Option mutates a Store during Open.
type Option func(*Store)

// WithSecretCipherKey enables encryption at rest for inline secret
// material. The key may be any string; it is stretched to 256 bits.
func WithSecretCipherKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.cipher = newSecretCipher(key)
		}
	}
}

// ParseDatabaseURL splits a DATABASE_URL into driver name and DSN.
// Supported schemes: postgres://, postgresql:// and sqlite://.
func ParseDatabaseURL(raw string) (driver, dsn string, err error) {
	switch {
	case raw == "":
		return "", "", errs.Validation("DATABASE_URL must be set")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return "postgres", raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return "", "", errs.Validation("sqlite DATABASE_URL %q names no file", raw)
		}
		if path == ":memory:" {
			return "sqlite3", memoryDSN(), nil
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return "sqlite3", path + sep + "_foreign_keys=on", nil
	default:
		return "", "", errs.Validation("unsupported DATABASE_URL scheme in %q", raw)
	}
}

// memoryDSN names a fresh shared-cache in-memory database. The random name
// keeps stores opened in the same process from seeing each other's tables.
func memoryDSN() string {
	return fmt.Sprintf("file:mem-%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
}

// Open connects to the database named by databaseURL and verifies the
// connection.
func Open(ctx context.Context, log logrus.FieldLogger, databaseURL string, opts ...Option) (*Store, error) {
	driver, dsn, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errs.DependencyUnavailable("opening database: %v", err)
	}
	if driver == "sqlite3" {
		// A shared in-memory database disappears when its last
		// connection closes, and SQLite files single-write anyway.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errs.DependencyUnavailable("database unreachable: %v", err)
	}

	s := &Store{
		queries:     queries{q: db},
		db:          db,
		dialect:     driver,
		FieldLogger: log.WithField("context", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenMemory opens a fresh in-memory SQLite store with migrations applied.
// It backs tests and the zero-configuration demo mode.
func OpenMemory(ctx context.Context, log logrus.FieldLogger, opts ...Option) (*Store, error) {
	s, err := Open(ctx, log, "sqlite://:memory:", opts...)
	if err != nil {
		return nil, err
	}
	if err := s.RunMigrations(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// RunMigrations applies any pending schema migrations. It is idempotent:
// applying an up-to-date schema is a no-op.
func (s *Store) RunMigrations(ctx context.Context) error {
	n, err := migrate.ExecContext(ctx, s.db.DB, s.dialect, migrationSource(), migrate.Up)
	if err != nil {
		return errs.DependencyUnavailable("running migrations: %v", err)
	}
	s.WithField("applied", n).Info("database migrations up to date")
	return nil
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error. Audit rows written through the same Tx share its atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	if err := fn(&Tx{queries: queries{q: tx, cipher: s.cipher}, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

// now returns the canonical write timestamp: UTC, microsecond resolution,
// so values survive a round trip through either backend unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// translate maps driver errors onto the shared error kinds. Unique
// constraint violations become conflicts; connection failures become
// dependency errors; everything else stays internal.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return errs.Conflict("duplicate identity").WithCause(err)
		case sqlite3.ErrConstraintForeignKey:
			return errs.Conflict("referenced row is missing or still referenced").WithCause(err)
		}
		return errs.Internal(err, "database error")
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return errs.Conflict("duplicate identity").WithCause(err)
		case "23503": // foreign_key_violation
			return errs.Conflict("referenced row is missing or still referenced").WithCause(err)
		case "40001": // serialization_failure
			return errs.Conflict("transaction serialization failure").WithCause(err)
		}
		return errs.Internal(err, "database error")
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return errs.DependencyUnavailable("database unavailable: %v", err)
	}
	return errs.Internal(err, "database error")
}

// isConflict reports whether err translates to a duplicate-identity
// conflict, for callers that turn constraint hits into richer messages.
func isConflict(err error) bool {
	return errs.IsKind(translate(err), errs.KindConflict)
}

// notFound wraps sql.ErrNoRows into the shared not-found kind.
func notFound(err error, entity, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound(entity, key)
	}
	return translate(err)
}

// checkVersionedUpdate interprets the outcome of an optimistic-concurrency
// UPDATE: zero rows means either the row vanished or the version moved.
func (r *queries) checkVersionedUpdate(ctx context.Context, res sql.Result, table, id string, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	query := r.q.Rebind(fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE id = ?", table))
	if err := sqlx.GetContext(ctx, r.q, &exists, query, id); err != nil {
		return translate(err)
	}
	if exists == 0 {
		return errs.NotFound(table, id)
	}
	return errs.Conflict("row version %d is stale", version)
}

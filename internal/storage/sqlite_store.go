// Package storage keeps the route catalog and the permanent flight log in a
// SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/survey-transfer/internal/flightlog"
	"github.com/roman-kulish/survey-transfer/internal/route"
)

var (
	_ route.Backend    = (*SqliteStore)(nil)
	_ flightlog.Ledger = (*SqliteStore)(nil)
)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) func(*SqliteStore) {
	return func(s *SqliteStore) {
		s.logger = logger.With(slog.String("component", "sqliteStore"))
	}
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	logger *slog.Logger

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store for the database at dbPath. The database
// and its schema are created on first use.
func NewSqliteStore(dbPath string, options ...func(*SqliteStore)) *SqliteStore {
	s := SqliteStore{
		dbPath: dbPath,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// the schema must exist before a read-only connection can see it
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// LoadRoutes returns the route catalog in registration order.
func (s *SqliteStore) LoadRoutes(ctx context.Context) (entries []route.Entry, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRoutesSQL)
	if err != nil {
		err = fmt.Errorf("querying routes: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var e route.Entry
		if err = rows.Scan(&e.FlightRoute, &e.BasePath, &e.BaseName, &e.BaseDrone, &e.BaseHeight, &e.BaseType, &e.BaseOverlap); err != nil {
			err = fmt.Errorf("scanning route: %w", err)
			return
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating routes: %w", err)
	}
	return
}

// SaveRoute inserts e. The full table is not needed, rows are never rewritten.
func (s *SqliteStore) SaveRoute(ctx context.Context, e route.Entry, _ []route.Entry) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertRouteSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, e.FlightRoute, e.BasePath, e.BaseName, e.BaseDrone, e.BaseHeight, e.BaseType, e.BaseOverlap); err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

// Append inserts entries in a single transaction. Entries already logged for
// the same date, flight and folders are ignored.
func (s *SqliteStore) Append(ctx context.Context, entries []flightlog.Entry) (appended int, err error) {
	if len(entries) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer func() {
		if err != nil {
			appended = 0
			rollbackWithError(tx, &err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertFlightLogSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	for i := range entries {
		var result sql.Result
		if result, err = stmt.ExecContext(ctx, toArgs(&entries[i])...); err != nil {
			err = fmt.Errorf("inserting flight %s: %w", entries[i].FlightName, err)
			return
		}

		var n int64
		if n, err = result.RowsAffected(); err != nil {
			err = fmt.Errorf("getting affected rows: %w", err)
			return
		}
		if n == 0 {
			s.logger.Warn("flight already logged, skipping",
				slog.String("date", entries[i].Date), slog.String("flight", entries[i].FlightName))
		}
		appended += int(n)
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
	}
	return
}

// Entries returns every logged flight.
func (s *SqliteStore) Entries(ctx context.Context) (entries []flightlog.Entry, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFlightLogSQL)
	if err != nil {
		err = fmt.Errorf("querying flight log: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		values := make([]string, len(flightlog.Columns))
		dest := make([]any, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err = rows.Scan(dest...); err != nil {
			err = fmt.Errorf("scanning flight: %w", err)
			return
		}

		var e flightlog.Entry
		if e, err = flightlog.EntryFromValues(values); err != nil {
			err = fmt.Errorf("decoding flight: %w", err)
			return
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating flight log: %w", err)
	}
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

package flightlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// WithLedgerLogger sets the logger for the CSV ledger
func WithLedgerLogger(logger *slog.Logger) func(*CSVLedger) {
	return func(l *CSVLedger) {
		l.logger = logger.With(slog.String("component", "ledger"))
	}
}

// CSVLedger is the permanent flight log kept as a CSV table.
//
// Rows are never updated or removed. An entry whose date, flight name and
// folder list are already logged is skipped, so committing the same staged
// batch twice (after a crash before the wipe, say) does not log it twice.
type CSVLedger struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewCSVLedger creates a ledger for the table at path
func NewCSVLedger(path string, options ...func(*CSVLedger)) *CSVLedger {
	l := CSVLedger{
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// Entries returns every logged flight.
func (l *CSVLedger) Entries(_ context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := readEntries(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return entries, err
}

func (l *CSVLedger) Append(ctx context.Context, entries []Entry) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	logged, err := readEntries(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("reading flight log: %w", err)
	}

	seen := make(map[ledgerKey]struct{}, len(logged))
	for i := range logged {
		seen[keyOf(&logged[i])] = struct{}{}
	}

	var appended int
	for i := range entries {
		k := keyOf(&entries[i])
		if _, ok := seen[k]; ok {
			l.logger.Warn("flight already logged, skipping",
				slog.String("date", k.date), slog.String("flight", k.flightName), slog.String("folders", k.dirName))
			continue
		}
		seen[k] = struct{}{}
		logged = append(logged, entries[i])
		appended++
	}

	if appended == 0 {
		return 0, nil
	}
	if err = writeEntries(l.path, logged); err != nil {
		return 0, fmt.Errorf("writing flight log: %w", err)
	}
	return appended, nil
}

type ledgerKey struct {
	date, flightName, dirName string
}

func keyOf(e *Entry) ledgerKey {
	return ledgerKey{date: e.Date, flightName: e.FlightName, dirName: e.DirName()}
}

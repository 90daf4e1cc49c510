package flightlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/roman-kulish/survey-transfer/internal/flight"
)

// Ledger is the permanent, append-only flight log.
type Ledger interface {
	// Append durably adds entries and returns how many were written.
	Append(ctx context.Context, entries []Entry) (int, error)
}

// WithLogger sets the logger for the pending log
func WithLogger(logger *slog.Logger) func(*PendingLog) {
	return func(p *PendingLog) {
		p.logger = logger.With(slog.String("component", "pendingLog"))
	}
}

// PendingLog holds flights staged during a session and not yet committed to
// the permanent log. It is persisted after every change so a crash mid-batch
// keeps what was staged.
type PendingLog struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries []Entry
	index   map[Key]int
}

// OpenPendingLog loads the staged entries at path. A missing file is an empty
// log and is created on first write.
func OpenPendingLog(path string, options ...func(*PendingLog)) (*PendingLog, error) {
	p := PendingLog{
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		index:  make(map[Key]int),
	}

	for _, option := range options {
		option(&p)
	}

	entries, err := readEntries(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading pending log: %w", err)
	}
	for _, e := range entries {
		if i, ok := p.index[e.Key()]; ok {
			p.logger.Warn("merging repeated flight in pending log",
				slog.String("date", e.Date), slog.String("flight", e.FlightName), slog.Int("row", i+1))
			p.entries[i].Absorb(&e)
			continue
		}
		p.index[e.Key()] = len(p.entries)
		p.entries = append(p.entries, e)
	}

	if len(p.entries) > 0 {
		p.logger.Info("resuming pending log", slog.Int("entries", len(p.entries)))
	}
	return &p, nil
}

// Stage merges resolved records into the log by (date, route) and persists
// it. Records without an output path or route are skipped, and staging a
// folder that is already in the log leaves its entry unchanged. Returns the
// number of records staged.
func (p *PendingLog) Stage(records []*flight.Record) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var staged int
	for _, r := range records {
		if r.OutputPath == "" || r.EffectiveRoute() == "" {
			p.logger.Warn("not staging unresolved folder", slog.String("folder", r.DirName))
			continue
		}

		e := NewEntry(r)
		if i, ok := p.index[e.Key()]; ok {
			if !p.entries[i].Merge(r) {
				p.logger.Debug("folder already staged", slog.String("folder", r.DirName))
			}
		} else {
			p.index[e.Key()] = len(p.entries)
			p.entries = append(p.entries, e)
		}
		staged++
	}

	if err := writeEntries(p.path, p.entries); err != nil {
		return staged, fmt.Errorf("saving pending log: %w", err)
	}

	p.logger.Info("staged flights", slog.Int("folders", staged), slog.Int("entries", len(p.entries)))
	return staged, nil
}

// Entries returns a copy of the staged entries.
func (p *PendingLog) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Entry(nil), p.entries...)
}

func (p *PendingLog) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.entries)
}

// Commit appends every staged entry to ledger and clears the log. When the
// ledger fails the staged entries are kept.
func (p *PendingLog) Commit(ctx context.Context, ledger Ledger) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return 0, nil
	}

	n, err := ledger.Append(ctx, p.entries)
	if err != nil {
		return 0, fmt.Errorf("committing flight log: %w", err)
	}

	p.entries = p.entries[:0]
	clear(p.index)
	if err = writeEntries(p.path, p.entries); err != nil {
		return n, fmt.Errorf("clearing pending log: %w", err)
	}

	p.logger.Info("committed flight log", slog.Int("entries", n))
	return n, nil
}

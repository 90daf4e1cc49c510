// Package csvfile reads and atomically rewrites the header-first CSV tables
// the route catalog and the flight logs are kept in.
package csvfile

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ErrMissingColumn is returned when a table lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// Row is a table row keyed by column name.
type Row map[string]string

// Read loads the table at path. A missing file is reported through
// os.ErrNotExist so callers can create it.
func Read(path string, columns []string) (rows []Row, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithError(f, &err)

	r := csv.NewReader(skipBOM(f))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty file, header row required", path)
		}
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, name := range columns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%s: %w %q", path, ErrMissingColumn, name)
		}
	}

	for {
		record, rErr := r.Read()
		if errors.Is(rErr, io.EOF) {
			break
		}
		if rErr != nil {
			return nil, fmt.Errorf("reading %s: %w", path, rErr)
		}

		row := make(Row, len(header))
		for name, i := range index {
			if i < len(record) {
				row[name] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// Write replaces the table at path with columns as the header followed by
// rows. The file is written to a temporary file, synced and renamed over the
// old one, so readers see either the old or the new table.
func Write(path string, columns []string, rows []Row) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("creating pending file for %s: %w", path, err)
	}
	defer func() {
		if cErr := pending.Cleanup(); cErr != nil && err == nil {
			err = fmt.Errorf("cleaning up pending file for %s: %w", path, cErr)
		}
	}()

	w := csv.NewWriter(pending)
	if err = w.Write(columns); err != nil {
		return fmt.Errorf("writing header of %s: %w", path, err)
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, name := range columns {
			record[i] = row[name]
		}
		if err = w.Write(record); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}

	w.Flush()
	if err = w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}

	if err = pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// skipBOM drops the byte order mark Windows spreadsheet tools put in front
// of the header.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if p, err := br.Peek(len(bom)); err == nil && bytes.Equal(p, bom) {
		_, _ = br.Discard(len(bom))
	}
	return br
}

var bom = []byte{0xEF, 0xBB, 0xBF}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

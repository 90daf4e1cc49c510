// Package flightlog stages resolved flights and commits them to the
// permanent flight log.
package flightlog

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roman-kulish/survey-transfer/internal/csvfile"
	"github.com/roman-kulish/survey-transfer/internal/flight"
)

// listSeparator joins the per-folder values of a merged entry.
const listSeparator = ", "

// Columns is the header of the pending and permanent flight log tables.
var Columns = []string{
	"dir_name", "flight_name", "date", "folder_ID", "start_time", "end_time",
	"type", "num_files", "num_dir", "output_path", "height",
}

// Key identifies one logical flight.
type Key struct {
	Date       string
	FlightName string
}

// Entry is one logical flight: every folder captured for a route on a day,
// e.g. an MS flight and its panel.
type Entry struct {
	DirNames   []string
	FlightName string
	Date       string
	FolderIDs  []string
	StartTime  flight.Clock
	EndTime    flight.Clock
	Types      []string
	NumFiles   []int
	NumDir     int
	OutputPath string
	Height     string
}

// NewEntry creates the entry for a single resolved record.
func NewEntry(r *flight.Record) Entry {
	return Entry{
		DirNames:   []string{r.DirName},
		FlightName: r.EffectiveRoute(),
		Date:       r.Date,
		FolderIDs:  []string{r.FolderID},
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		Types:      []string{string(r.CaptureType)},
		NumFiles:   []int{r.FileCount},
		NumDir:     r.DirCount,
		OutputPath: r.OutputPath,
		Height:     r.Height,
	}
}

func (e *Entry) Key() Key {
	return Key{Date: e.Date, FlightName: e.FlightName}
}

// Merge folds another folder of the same flight into e: the time range
// widens and the descriptive lists grow. A folder already listed is not
// added again. Reports whether e changed.
func (e *Entry) Merge(r *flight.Record) bool {
	return e.add(r.DirName, r.FolderID, string(r.CaptureType), r.FileCount, r.DirCount, r.StartTime, r.EndTime)
}

// Absorb merges the folders of o, an entry with the same key, into e.
func (e *Entry) Absorb(o *Entry) {
	for i, dir := range o.DirNames {
		e.add(dir, at(o.FolderIDs, i), at(o.Types, i), at(o.NumFiles, i), 1, o.StartTime, o.EndTime)
	}
}

func (e *Entry) add(dir, folderID, typ string, files, dirs int, start, end flight.Clock) bool {
	if slices.Contains(e.DirNames, dir) {
		return false
	}

	e.DirNames = append(e.DirNames, dir)
	e.FolderIDs = append(e.FolderIDs, folderID)
	e.Types = append(e.Types, typ)
	e.NumFiles = append(e.NumFiles, files)
	e.NumDir += dirs
	e.StartTime = flight.MinClock(e.StartTime, start)
	e.EndTime = flight.MaxClock(e.EndTime, end)
	return true
}

func at[T any](values []T, i int) T {
	var zero T
	if i < len(values) {
		return values[i]
	}
	return zero
}

// DirName is the dir_name column value.
func (e *Entry) DirName() string {
	return strings.Join(e.DirNames, listSeparator)
}

func (e *Entry) row() csvfile.Row {
	files := make([]string, len(e.NumFiles))
	for i, n := range e.NumFiles {
		files[i] = strconv.Itoa(n)
	}

	return csvfile.Row{
		"dir_name":    e.DirName(),
		"flight_name": e.FlightName,
		"date":        e.Date,
		"folder_ID":   strings.Join(e.FolderIDs, listSeparator),
		"start_time":  e.StartTime.Field(),
		"end_time":    e.EndTime.Field(),
		"type":        strings.Join(e.Types, listSeparator),
		"num_files":   strings.Join(files, listSeparator),
		"num_dir":     strconv.Itoa(e.NumDir),
		"output_path": e.OutputPath,
		"height":      e.Height,
	}
}

func entryFromRow(row csvfile.Row) (e Entry, err error) {
	e.FlightName = row["flight_name"]
	e.Date = row["date"]
	e.OutputPath = row["output_path"]
	e.Height = row["height"]
	e.DirNames = splitList(row["dir_name"])
	e.FolderIDs = splitList(row["folder_ID"])
	e.Types = splitList(row["type"])

	if e.StartTime, err = flight.ParseClock(row["start_time"]); err != nil {
		return Entry{}, fmt.Errorf("start_time: %w", err)
	}
	if e.EndTime, err = flight.ParseClock(row["end_time"]); err != nil {
		return Entry{}, fmt.Errorf("end_time: %w", err)
	}

	for _, s := range splitList(row["num_files"]) {
		n, aErr := strconv.Atoi(s)
		if aErr != nil {
			return Entry{}, fmt.Errorf("num_files %q: %w", row["num_files"], aErr)
		}
		e.NumFiles = append(e.NumFiles, n)
	}

	if s := strings.TrimSpace(row["num_dir"]); s != "" {
		if e.NumDir, err = strconv.Atoi(s); err != nil {
			return Entry{}, fmt.Errorf("num_dir %q: %w", s, err)
		}
	}
	return e, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func readEntries(path string) ([]Entry, error) {
	rows, err := csvfile.Read(path, Columns)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		e, err := entryFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func writeEntries(path string, entries []Entry) error {
	rows := make([]csvfile.Row, len(entries))
	for i := range entries {
		rows[i] = entries[i].row()
	}
	return csvfile.Write(path, Columns, rows)
}

// Values returns the entry's column values in Columns order.
func (e *Entry) Values() []string {
	row := e.row()
	values := make([]string, len(Columns))
	for i, c := range Columns {
		values[i] = row[c]
	}
	return values
}

// EntryFromValues is the inverse of Values.
func EntryFromValues(values []string) (Entry, error) {
	if len(values) != len(Columns) {
		return Entry{}, fmt.Errorf("want %d values, got %d", len(Columns), len(values))
	}

	row := make(csvfile.Row, len(Columns))
	for i, c := range Columns {
		row[c] = values[i]
	}
	return entryFromRow(row)
}

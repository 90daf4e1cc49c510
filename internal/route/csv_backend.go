package route

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roman-kulish/survey-transfer/internal/csvfile"
)

// Columns is the header of the route catalog table.
var Columns = []string{"FlightRoute", "BasePath", "BaseName", "BaseDrone", "BaseHeight", "BaseType", "BaseOverlap"}

// CSVBackend keeps the catalog in a CSV file that is rewritten atomically on
// every registration.
type CSVBackend struct {
	path string
}

// NewCSVBackend creates a backend for the table at path
func NewCSVBackend(path string) *CSVBackend {
	return &CSVBackend{path: path}
}

func (b *CSVBackend) LoadRoutes(_ context.Context) ([]Entry, error) {
	rows, err := csvfile.Read(b.path, Columns)
	if errors.Is(err, os.ErrNotExist) {
		if err = csvfile.Write(b.path, Columns, nil); err != nil {
			return nil, fmt.Errorf("creating route catalog: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			FlightRoute: row["FlightRoute"],
			BasePath:    row["BasePath"],
			BaseName:    row["BaseName"],
			BaseDrone:   row["BaseDrone"],
			BaseHeight:  row["BaseHeight"],
			BaseType:    row["BaseType"],
			BaseOverlap: row["BaseOverlap"],
		})
	}
	return entries, nil
}

func (b *CSVBackend) SaveRoute(_ context.Context, _ Entry, all []Entry) error {
	rows := make([]csvfile.Row, 0, len(all))
	for _, e := range all {
		rows = append(rows, csvfile.Row{
			"FlightRoute": e.FlightRoute,
			"BasePath":    e.BasePath,
			"BaseName":    e.BaseName,
			"BaseDrone":   e.BaseDrone,
			"BaseHeight":  e.BaseHeight,
			"BaseType":    e.BaseType,
			"BaseOverlap": e.BaseOverlap,
		})
	}
	return csvfile.Write(b.path, Columns, rows)
}

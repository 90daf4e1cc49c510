// Package reflectance pairs calibration panel captures with the multispectral
// flights they were taken for.
package reflectance

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/survey-transfer/internal/flight"
)

// RequiredBands are the calibration captures a panel folder must contain:
// green, red, near-infrared and red-edge.
var RequiredBands = []string{"G.TIF", "R.TIF", "NIR.TIF", "RE.TIF"}

// WithLogger sets the logger for the matcher
func WithLogger(logger *slog.Logger) func(*Matcher) {
	return func(m *Matcher) {
		m.logger = logger.With(slog.String("component", "reflectance"))
	}
}

// WithBands overrides the band files a panel must contain
func WithBands(bands ...string) func(*Matcher) {
	return func(m *Matcher) {
		m.bands = bands
	}
}

// Matcher assigns every valid panel to the temporally nearest MS flight that
// has no panel yet. Panels are visited in start time order and each takes the
// best flight still available; the assignment is greedy, not globally optimal,
// and historical flight logs depend on that.
type Matcher struct {
	logger *slog.Logger
	bands  []string
}

// New creates a new Matcher with a discard logger
func New(options ...func(*Matcher)) *Matcher {
	m := Matcher{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		bands:  RequiredBands,
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Match validates and pairs panels in place and returns records. Running it
// again over its own output changes nothing.
func (m *Matcher) Match(records []*flight.Record) []*flight.Record {
	var panels, flights int
	for _, r := range records {
		switch r.CaptureType {
		case flight.CaptureReflectance:
			panels++
			if !r.Paired() {
				m.validate(r)
			}
		case flight.CaptureMS:
			flights++
		}
	}

	switch {
	case panels == 0 && flights > 0:
		m.logger.Warn("no reflectance panel folders found for the MS flights")
	case panels < flights:
		m.logger.Warn("more MS flights than reflectance panels, some may need a duplicated panel",
			slog.Int("panels", panels), slog.Int("flights", flights))
	}

	ordered := byStartTime(records)

	for _, panel := range ordered {
		if panel.CaptureType != flight.CaptureReflectance || !panel.Valid || panel.Paired() {
			continue
		}
		if !panel.StartTime.IsSet() {
			m.logger.Warn("panel has no capture time, skipping", slog.String("folder", panel.DirName))
			continue
		}

		ms, gap := nearestFlight(panel, ordered)
		if ms == nil {
			m.logger.Warn("no unassigned MS flight left for panel", slog.String("folder", panel.DirName))
			continue
		}

		panel.RouteID = ms.RouteID
		panel.PairedWith = ms.UID
		ms.ReflectanceAssigned = true

		m.logger.Info("paired reflectance panel",
			slog.String("panel", panel.DirName),
			slog.String("flight", ms.DirName),
			slog.String("route", ms.RouteID),
			slog.Duration("gap", gap))
	}

	return records
}

// validate marks a panel invalid when one of the required bands is missing.
func (m *Matcher) validate(panel *flight.Record) {
	entries, err := os.ReadDir(panel.SourcePath())
	if err != nil {
		m.logger.Warn(fmt.Sprintf("listing panel folder: %s", err.Error()), slog.String("folder", panel.DirName))
		panel.Valid = false
		return
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	var missing []string
	for _, band := range m.bands {
		if !slices.ContainsFunc(names, func(name string) bool { return isBandFile(name, band) }) {
			missing = append(missing, band)
		}
	}

	panel.Valid = len(missing) == 0
	if !panel.Valid {
		m.logger.Warn("panel is missing calibration bands",
			slog.String("folder", panel.DirName),
			slog.String("missing", strings.Join(missing, ",")))
	}
}

// isBandFile matches "R.TIF" against "DJI_..._MS_R.TIF" but not "..._NIR.TIF".
func isBandFile(name, band string) bool {
	name = strings.ToUpper(name)
	band = strings.ToUpper(band)
	return name == band || strings.HasSuffix(name, "_"+band)
}

// byStartTime returns the MS and panel records ordered by start time. Records
// without a start time go last, in their original order.
func byStartTime(records []*flight.Record) []*flight.Record {
	ordered := make([]*flight.Record, 0, len(records))
	for _, r := range records {
		if r.CaptureType == flight.CaptureMS || r.CaptureType == flight.CaptureReflectance {
			ordered = append(ordered, r)
		}
	}

	slices.SortStableFunc(ordered, func(a, b *flight.Record) int {
		switch {
		case a.StartTime.Before(b.StartTime):
			return -1
		case b.StartTime.Before(a.StartTime):
			return 1
		}
		return 0
	})
	return ordered
}

// nearestFlight scans the unassigned MS flights and returns the closest one.
// Ties go to the first flight found.
func nearestFlight(panel *flight.Record, ordered []*flight.Record) (*flight.Record, time.Duration) {
	var best *flight.Record
	var bestGap int

	for _, ms := range ordered {
		if ms.CaptureType != flight.CaptureMS || ms.ReflectanceAssigned || !ms.StartTime.IsSet() {
			continue
		}

		gap := distance(panel, ms)
		if best == nil || gap < bestGap {
			best, bestGap = ms, gap
		}
	}

	return best, time.Duration(bestGap) * time.Second
}

// distance is zero when the two capture intervals overlap, otherwise the
// number of seconds between the end of the earlier and the start of the later.
func distance(a, b *flight.Record) int {
	as, ae := interval(a)
	bs, be := interval(b)

	switch {
	case as <= be && bs <= ae:
		return 0
	case ae < bs:
		return bs - ae
	default:
		return as - be
	}
}

func interval(r *flight.Record) (start, end int) {
	start = r.StartTime.Seconds()
	end = start
	if r.EndTime.IsSet() {
		end = max(start, r.EndTime.Seconds())
	}
	return
}

// Suggestion proposes duplicating a panel for an MS flight that was left
// without one.
type Suggestion struct {
	Panel  uuid.UUID
	Flight uuid.UUID
	Gap    time.Duration
}

// SuggestDuplicates returns, for every MS flight without a panel, the nearest
// valid panel. Nothing is suggested when the batch has no valid panel.
func SuggestDuplicates(records []*flight.Record) []Suggestion {
	var panels []*flight.Record
	for _, r := range records {
		if r.CaptureType == flight.CaptureReflectance && r.Valid && r.StartTime.IsSet() {
			panels = append(panels, r)
		}
	}
	if len(panels) == 0 {
		return nil
	}

	var suggestions []Suggestion
	for _, ms := range records {
		if ms.CaptureType != flight.CaptureMS || ms.ReflectanceAssigned || !ms.StartTime.IsSet() {
			continue
		}

		nearest := slices.MinFunc(panels, func(a, b *flight.Record) int {
			return cmp.Compare(distance(a, ms), distance(b, ms))
		})
		suggestions = append(suggestions, Suggestion{
			Panel:  nearest.UID,
			Flight: ms.UID,
			Gap:    time.Duration(distance(nearest, ms)) * time.Second,
		})
	}

	return suggestions
}

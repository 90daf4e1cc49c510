package route

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/roman-kulish/survey-transfer/internal/flight"
)

const (
	// NoMatchDir collects captures without a route.
	NoMatchDir = "_NO_MATCH"
	// TrashDir collects captures an operator discarded.
	TrashDir = "_TRASHCAN"
	// SkylineDir collects captures re-routed out of the field tree.
	SkylineDir = "_SKYLINE"

	// NoMatchRoute is the route recorded for captures without one.
	NoMatchRoute = "no_matching_name"
	// NoMatchHeight is the height recorded for captures without a route.
	NoMatchHeight = "0m"

	trashedSuffix = "_trashed-flight"
	skylineSuffix = "_skyline-flight"
)

// WithResolverLogger sets the logger for the resolver
func WithResolverLogger(logger *slog.Logger) func(*Resolver) {
	return func(r *Resolver) {
		r.logger = logger.With(slog.String("component", "resolver"))
	}
}

// Resolver computes output folders from the route catalog and applies the
// operator's manual overrides.
type Resolver struct {
	outputRoot string
	catalog    *Catalog
	logger     *slog.Logger
}

// NewResolver creates a new Resolver writing under outputRoot
func NewResolver(outputRoot string, catalog *Catalog, options ...func(*Resolver)) *Resolver {
	r := Resolver{
		outputRoot: outputRoot,
		catalog:    catalog,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Resolve sets the output path and height of every unresolved record and
// returns the routes missing from the catalog, in the order first seen.
// Records on a missing route stay unresolved until the route is registered
// and Resolve is called again. Records that already have an output path,
// including manual overrides, are left alone.
func (r *Resolver) Resolve(records []*flight.Record) []string {
	var missing []string
	seen := make(map[string]struct{})

	for _, rec := range records {
		if rec.OutputPath != "" {
			continue
		}

		if rec.RouteID == "" {
			rec.RouteID = NoMatchRoute
			rec.OutputPath = filepath.Join(r.outputRoot, NoMatchDir)
			rec.Height = NoMatchHeight
			r.logger.Warn("no route for folder", slog.String("folder", rec.DirName))
			continue
		}

		e, ok := r.catalog.Lookup(rec.RouteID)
		if !ok {
			if _, dup := seen[rec.RouteID]; !dup {
				seen[rec.RouteID] = struct{}{}
				missing = append(missing, rec.RouteID)
				r.logger.Info("new flight route detected", slog.String("route", rec.RouteID))
			}
			continue
		}

		rec.OutputPath = r.routePath(e, rec.Date)
		rec.Height = e.BaseHeight
	}

	return missing
}

func (r *Resolver) routePath(e Entry, date string) string {
	return filepath.Join(r.outputRoot, e.BasePath, e.FolderName(date))
}

// Move points the record at from to the output folder of the record at to.
func (r *Resolver) Move(b *flight.Batch, from, to int) bool {
	src, dst, ok := r.pair(b, from, to)
	if !ok {
		return false
	}

	src.OutputPath = dst.OutputPath
	r.logger.Info("moved flight", slog.String("folder", src.DirName), slog.String("destination", src.OutputPath))
	return true
}

// Duplicate appends a copy of the record at from that goes to the output
// folder of the record at to. A duplicated panel is logged with the flight it
// was copied to and, when that is an MS flight, paired with it.
func (r *Resolver) Duplicate(b *flight.Batch, from, to int) bool {
	src, dst, ok := r.pair(b, from, to)
	if !ok {
		return false
	}

	c := src.Clone()
	c.OutputPath = dst.OutputPath
	if c.CaptureType == flight.CaptureReflectance {
		c.RouteID = dst.RouteID
		c.Marker = dst.Marker
		c.Height = dst.Height
		c.PairedWith = uuid.Nil
		if dst.CaptureType == flight.CaptureMS {
			c.PairedWith = dst.UID
			dst.ReflectanceAssigned = true
		}
	}
	b.Append(c)

	r.logger.Info("duplicated flight",
		slog.String("folder", c.DirName),
		slog.String("destination", c.OutputPath),
		slog.Int("index", b.Len()-1))
	return true
}

// Trash re-routes the record at index under the trash folder.
func (r *Resolver) Trash(b *flight.Batch, index int) bool {
	return r.divert(b, index, TrashDir, trashedSuffix)
}

// Skyline re-routes the record at index under the skyline folder.
func (r *Resolver) Skyline(b *flight.Batch, index int) bool {
	return r.divert(b, index, SkylineDir, skylineSuffix)
}

// divert rebuilds the record's path under dir from its original route and
// tags it with suffix in the flight log. Only the addressed record changes,
// its paired panel or flight keeps its own path.
func (r *Resolver) divert(b *flight.Batch, index int, dir, suffix string) bool {
	rec, err := b.At(index)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("ignoring %s: %s", dir, err.Error()))
		return false
	}

	if e, ok := r.catalog.Lookup(rec.RouteID); ok {
		rec.OutputPath = filepath.Join(r.outputRoot, dir, e.BasePath, e.FolderName(rec.Date))
	} else {
		rec.OutputPath = filepath.Join(r.outputRoot, dir, NoMatchDir)
	}
	rec.Marker = rec.RouteID + suffix

	r.logger.Info("re-routed flight", slog.String("folder", rec.DirName), slog.String("destination", rec.OutputPath))
	return true
}

func (r *Resolver) pair(b *flight.Batch, from, to int) (src, dst *flight.Record, ok bool) {
	var err error
	if src, err = b.At(from); err != nil {
		r.logger.Warn(fmt.Sprintf("ignoring edit: from %s", err.Error()))
		return nil, nil, false
	}
	if dst, err = b.At(to); err != nil {
		r.logger.Warn(fmt.Sprintf("ignoring edit: to %s", err.Error()))
		return nil, nil, false
	}
	return src, dst, true
}

// Package route maps flight route tokens to output folders.
package route

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrMalformedRouteDescriptor is returned when an operator supplied route
	// description has fewer than six fields.
	ErrMalformedRouteDescriptor = errors.New("malformed route descriptor")

	// ErrRouteExists is returned when registering a route already in the catalog.
	ErrRouteExists = errors.New("route already registered")
)

// descriptorFields is the number of fields in "name drone height type overlap1 overlap2".
const descriptorFields = 6

// Entry is one row of the route catalog.
type Entry struct {
	FlightRoute string `json:"flightRoute"`
	BasePath    string `json:"basePath"`
	BaseName    string `json:"baseName"`
	BaseDrone   string `json:"baseDrone"`
	BaseHeight  string `json:"baseHeight"`
	BaseType    string `json:"baseType"`
	BaseOverlap string `json:"baseOverlap"`
}

// FolderName is the output folder name for a flight of this route on date.
func (e Entry) FolderName(date string) string {
	return strings.Join([]string{date, e.BaseName, e.BaseDrone, e.BaseHeight, e.BaseType, e.BaseOverlap}, " ")
}

// ParseDescriptor builds an Entry for routeID from the space delimited
// "name drone height type overlap1 overlap2" description. The base path is
// {name}/{type}.
func ParseDescriptor(routeID, descriptor string) (Entry, error) {
	fields := strings.Fields(descriptor)
	if len(fields) < descriptorFields {
		return Entry{}, fmt.Errorf("%w: want %d fields (name drone height type overlap1 overlap2), got %d",
			ErrMalformedRouteDescriptor, descriptorFields, len(fields))
	}

	return Entry{
		FlightRoute: routeID,
		BasePath:    filepath.Join(fields[0], fields[3]),
		BaseName:    fields[0],
		BaseDrone:   fields[1],
		BaseHeight:  fields[2],
		BaseType:    fields[3],
		BaseOverlap: fields[4] + " " + fields[5],
	}, nil
}

// Backend persists the catalog.
type Backend interface {
	// LoadRoutes returns every stored route. A missing store is created empty.
	LoadRoutes(ctx context.Context) ([]Entry, error)

	// SaveRoute durably adds e. all is the full catalog including e, for
	// backends that rewrite the whole table.
	SaveRoute(ctx context.Context, e Entry, all []Entry) error
}

// WithLogger sets the logger for the catalog
func WithLogger(logger *slog.Logger) func(*Catalog) {
	return func(c *Catalog) {
		c.logger = logger.With(slog.String("component", "catalog"))
	}
}

// Catalog is the in-memory route table. It is read by the resolver and
// mutated only through Register, which persists before returning.
type Catalog struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.RWMutex
	entries []Entry
	index   map[string]int
}

// NewCatalog creates an empty catalog backed by backend
func NewCatalog(backend Backend, options ...func(*Catalog)) *Catalog {
	c := Catalog{
		backend: backend,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		index:   make(map[string]int),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Load replaces the in-memory table with the persisted one.
func (c *Catalog) Load(ctx context.Context) error {
	entries, err := c.backend.LoadRoutes(ctx)
	if err != nil {
		return fmt.Errorf("loading routes: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = c.entries[:0]
	clear(c.index)
	for _, e := range entries {
		if _, ok := c.index[e.FlightRoute]; ok {
			c.logger.Warn("duplicate route in catalog, keeping the first", slog.String("route", e.FlightRoute))
			continue
		}
		c.index[e.FlightRoute] = len(c.entries)
		c.entries = append(c.entries, e)
	}

	c.logger.Info("route catalog loaded", slog.Int("routes", len(c.entries)))
	return nil
}

// Lookup returns the entry whose route exactly matches routeID.
func (c *Catalog) Lookup(routeID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[routeID]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Entries returns a copy of the table.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]Entry(nil), c.entries...)
}

// Register parses descriptor, adds the route and persists the catalog. The
// route is durable once Register returns without error.
func (c *Catalog) Register(ctx context.Context, routeID, descriptor string) (Entry, error) {
	if routeID == "" {
		return Entry{}, fmt.Errorf("%w: empty route", ErrMalformedRouteDescriptor)
	}

	e, err := ParseDescriptor(routeID, descriptor)
	if err != nil {
		return Entry{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[routeID]; ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrRouteExists, routeID)
	}

	all := append(append([]Entry(nil), c.entries...), e)
	if err = c.backend.SaveRoute(ctx, e, all); err != nil {
		return Entry{}, fmt.Errorf("saving route %s: %w", routeID, err)
	}

	c.index[routeID] = len(c.entries)
	c.entries = append(c.entries, e)

	c.logger.Info("registered flight route",
		slog.String("route", routeID),
		slog.String("basePath", e.BasePath),
		slog.String("folder", e.FolderName("{date}")))
	return e, nil
}

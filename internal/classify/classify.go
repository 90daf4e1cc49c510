// Package classify turns raw capture folders found on a storage device into
// flight records.
package classify

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/survey-transfer/internal/flight"
)

const (
	// DefaultPhantomRoute is assigned to Phantom captures until a sibling
	// folder lends them a real route token.
	DefaultPhantomRoute = "phantom-phenocrop-2024"

	// timestampFileIndex is the position, in the sorted listing, of the file
	// the capture start time is read from. The first files of a DJI folder are
	// not always images of the flight itself.
	timestampFileIndex = 4
)

var (
	// ErrUnrecognizedFolder is returned for folder names that do not follow
	// the {tag}_{YYYYMMDD...}_{folderID}[_{route...}] convention.
	ErrUnrecognizedFolder = errors.New("unrecognized folder name")

	// ErrTooFewFiles is returned when a folder has too few files to read the
	// capture times from.
	ErrTooFewFiles = errors.New("too few files to read capture times")

	// phantomMarkers identify folders written by the Phantom drone family.
	phantomMarkers = []string{"FPLAN", "MEDIA"}
)

// WithLogger sets the logger for the classifier
func WithLogger(logger *slog.Logger) func(*Classifier) {
	return func(c *Classifier) {
		c.logger = logger.With(slog.String("component", "classifier"))
	}
}

// WithPhantomRoute overrides the placeholder route given to Phantom captures
func WithPhantomRoute(route string) func(*Classifier) {
	return func(c *Classifier) {
		if route != "" {
			c.phantomRoute = route
		}
	}
}

// Classifier parses capture folders into flight records. Classification is
// best-effort per folder: a folder that cannot be parsed is logged and left
// out of the batch, it never fails the device as a whole.
type Classifier struct {
	logger       *slog.Logger
	phantomRoute string
}

// New creates a new Classifier with a discard logger
func New(options ...func(*Classifier)) *Classifier {
	c := Classifier{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		phantomRoute: DefaultPhantomRoute,
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// PhantomRoute returns the placeholder route of Phantom captures.
func (c *Classifier) PhantomRoute() string {
	return c.phantomRoute
}

// ClassifyDevice classifies every folder directly under deviceRoot, in
// directory listing order.
func (c *Classifier) ClassifyDevice(deviceRoot string) (*flight.Batch, error) {
	entries, err := os.ReadDir(deviceRoot)
	if err != nil {
		return nil, fmt.Errorf("listing device %s: %w", deviceRoot, err)
	}

	batch := flight.NewBatch(deviceRoot)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		record, err := c.Classify(deviceRoot, entry.Name())
		if err != nil {
			c.logger.Error(fmt.Sprintf("skipping folder: %s", err.Error()), slog.String("folder", entry.Name()))
			continue
		}
		batch.Append(record)
	}

	c.logger.Info("classified device",
		slog.String("root", deviceRoot),
		slog.Int("folders", batch.Len()),
		slog.Group("types",
			slog.Int("MS", batch.Count(flight.CaptureMS)),
			slog.Int("3D", batch.Count(flight.CaptureThreeD)),
			slog.Int("reflectance", batch.Count(flight.CaptureReflectance)),
			slog.Int("phantomMS", batch.Count(flight.CapturePhantomMS)),
		))

	return batch, nil
}

// Classify parses a single folder.
func (c *Classifier) Classify(deviceRoot, dirName string) (*flight.Record, error) {
	if isPhantom(dirName) {
		return c.classifyPhantom(deviceRoot, dirName)
	}
	return c.classifyStandard(deviceRoot, dirName)
}

func (c *Classifier) classifyStandard(deviceRoot, dirName string) (*flight.Record, error) {
	tokens := strings.Split(dirName, "_")
	if len(tokens) < 3 || len(tokens[1]) < 8 {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedFolder, dirName)
	}

	record, err := flight.NewRecord(dirName, deviceRoot, captureType(dirName), tokens[1][:8])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnrecognizedFolder, dirName, err)
	}
	record.FolderID = tokens[2]
	record.RouteID = routeToken(tokens)

	files, err := listFiles(record.SourcePath())
	if err != nil {
		return nil, err
	}
	record.FileCount = len(files)

	if record.StartTime, record.EndTime, err = captureTimes(files); err != nil {
		c.logger.Error(fmt.Sprintf("reading capture times: %s", err.Error()), slog.String("folder", dirName))
	}

	return record, nil
}

func (c *Classifier) classifyPhantom(deviceRoot, dirName string) (*flight.Record, error) {
	dir := filepath.Join(deviceRoot, dirName)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []os.DirEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrTooFewFiles, dirName)
	}

	first, err := files[0].Info()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", files[0].Name(), err)
	}
	last, err := files[len(files)-1].Info()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", files[len(files)-1].Name(), err)
	}

	start := first.ModTime()
	end := last.ModTime()

	record, err := flight.NewRecord(dirName, deviceRoot, flight.CapturePhantomMS, start.Format(flight.DateLayout))
	if err != nil {
		return nil, err
	}

	record.FolderID = dirName[:min(3, len(dirName))]
	record.FileCount = len(files)
	record.StartTime = flight.MustClock(start.Hour(), start.Minute(), start.Second())
	record.EndTime = flight.MustClock(end.Hour(), end.Minute(), end.Second())

	record.RouteID = routeToken(strings.Split(dirName, "_"))
	if record.RouteID == "" {
		record.RouteID = c.phantomRoute
	}

	return record, nil
}

func isPhantom(dirName string) bool {
	for _, marker := range phantomMarkers {
		if strings.Contains(dirName, marker) {
			return true
		}
	}
	return false
}

func captureType(dirName string) flight.CaptureType {
	switch {
	case strings.Contains(dirName, "MS"):
		return flight.CaptureMS
	case strings.Count(dirName, "_") == 2:
		return flight.CaptureReflectance
	default:
		return flight.CaptureThreeD
	}
}

// routeToken joins the name tokens after the folder ID. Empty when the folder
// carries no route, as with reflectance panels.
func routeToken(tokens []string) string {
	if len(tokens) < 4 {
		return ""
	}
	return strings.Join(tokens[3:], "_")
}

// listFiles returns the sorted names of the regular files in dir.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// captureTimes reads start and end times from the names of the fifth and the
// second to last file, e.g. DJI_20240614090012_0005_MS_G.TIF.
func captureTimes(files []string) (start, end flight.Clock, err error) {
	if len(files) <= timestampFileIndex {
		err = fmt.Errorf("%w: %d files", ErrTooFewFiles, len(files))
		return
	}

	if start, err = fileTimestamp(files[timestampFileIndex]); err != nil {
		return flight.Clock{}, flight.Clock{}, err
	}
	if end, err = fileTimestamp(files[len(files)-2]); err != nil {
		return flight.Clock{}, flight.Clock{}, err
	}
	return
}

func fileTimestamp(name string) (flight.Clock, error) {
	parts := strings.Split(name, "_")
	if len(parts) < 2 || len(parts[1]) < 14 {
		return flight.Clock{}, fmt.Errorf("no timestamp in file name %q", name)
	}

	c, err := flight.ParseClock(parts[1][8:14])
	if err != nil {
		return flight.Clock{}, fmt.Errorf("file name %q: %w", name, err)
	}
	return c, nil
}

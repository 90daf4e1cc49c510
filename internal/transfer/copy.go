package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MaxWorkers caps the number of concurrent folder copies.
const MaxWorkers = 10

// CopyTask copies one flight folder.
type CopyTask struct {
	UID         uuid.UUID `json:"uid"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
}

// CopyResult is the outcome of a single task.
type CopyResult struct {
	Task     CopyTask      `json:"task"`
	Files    int           `json:"files"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

func (r CopyResult) Failed() bool {
	return r.Err != ""
}

// CopyReport collects the results of a copy run in task order.
type CopyReport struct {
	Results []CopyResult `json:"results"`
}

// OK reports whether every task succeeded.
func (r *CopyReport) OK() bool {
	return r != nil && len(r.Failures()) == 0
}

func (r *CopyReport) Failures() []CopyResult {
	var failed []CopyResult
	for _, res := range r.Results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Bytes is the total size copied by successful tasks.
func (r *CopyReport) Bytes() int64 {
	var n int64
	for _, res := range r.Results {
		if !res.Failed() {
			n += res.Bytes
		}
	}
	return n
}

// Copier runs copy tasks on a bounded pool of workers.
type Copier struct {
	workers int
	logger  *slog.Logger
	copy    func(ctx context.Context, src, dst string) (files int, bytes int64, err error)
}

// NewCopier creates a copier with at most workers concurrent copies, capped at
// MaxWorkers.
func NewCopier(workers int, logger *slog.Logger) *Copier {
	if workers < 1 || workers > MaxWorkers {
		workers = MaxWorkers
	}
	return &Copier{
		workers: workers,
		logger:  logger.With(slog.String("component", "copier")),
		copy:    copyDir,
	}
}

// Run copies every task. A failed task is logged and recorded in the report
// without stopping the others; the pool drains before Run returns. Tasks not
// started when ctx is canceled fail with the context error.
func (c *Copier) Run(ctx context.Context, tasks []CopyTask) *CopyReport {
	report := CopyReport{Results: make([]CopyResult, len(tasks))}
	if len(tasks) == 0 {
		return &report
	}

	var g errgroup.Group
	g.SetLimit(min(c.workers, len(tasks)))

	c.logger.Info("copying flight folders", slog.Int("folders", len(tasks)), slog.Int("workers", min(c.workers, len(tasks))))

	for i, task := range tasks {
		g.Go(func() error {
			res := CopyResult{Task: task}
			started := time.Now()

			var err error
			if err = ctx.Err(); err == nil {
				res.Files, res.Bytes, err = c.copy(ctx, task.Source, task.Destination)
			}
			res.Duration = time.Since(started)

			if err != nil {
				res.Err = err.Error()
				c.logger.Error(fmt.Sprintf("copy failed: %s", err.Error()),
					slog.String("source", task.Source),
					slog.String("destination", task.Destination))
			} else {
				c.logger.Info("copied flight folder",
					slog.String("source", task.Source),
					slog.String("destination", task.Destination),
					slog.Int("files", res.Files),
					slog.String("size", humanize.Bytes(uint64(res.Bytes))),
					slog.Duration("took", res.Duration))
			}

			report.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Info("copy finished",
		slog.Int("failed", len(report.Failures())),
		slog.String("copied", humanize.Bytes(uint64(report.Bytes()))))
	return &report
}

// copyDir recursively copies src into dst, creating dst and overwriting
// files that already exist there. The source is never modified.
func copyDir(ctx context.Context, src, dst string) (files int, bytes int64, err error) {
	fi, err := os.Stat(src)
	if err != nil {
		return 0, 0, err
	}
	if !fi.IsDir() {
		return 0, 0, fmt.Errorf("%s is not a directory", src)
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, wErr error) error {
		if wErr != nil {
			return wErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode().IsRegular():
			n, err := copyFile(path, target, info)
			if err != nil {
				return fmt.Errorf("copying %s: %w", rel, err)
			}
			files++
			bytes += n
			return nil
		default:
			// devices, sockets and links have no place on camera storage
			return nil
		}
	})
	return files, bytes, err
}

func copyFile(src, dst string, info fs.FileInfo) (n int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer closeWithError(in, &err)

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	defer closeWithError(out, &err)

	if n, err = io.Copy(out, in); err != nil {
		return n, err
	}
	if err = out.Sync(); err != nil {
		return n, err
	}
	return n, os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// wipeDir removes everything inside dir, keeping dir itself.
func wipeDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package testutil builds device folder trees for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// CaptureFolder creates root/name holding one DJI style image per stamp:
// DJI_{date}{stamp}_{seq}_{suffix}. Stamps are HHMMSS strings and should be
// ascending so the sorted listing follows capture order.
func CaptureFolder(t testing.TB, root, name, date, suffix string, stamps ...string) string {
	t.Helper()

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating %s: %v", dir, err)
	}

	for i, stamp := range stamps {
		file := fmt.Sprintf("DJI_%s%s_%04d_%s", date, stamp, i+1, suffix)
		WriteFile(t, filepath.Join(dir, file), "img")
	}
	return dir
}

// PanelFolder creates a reflectance panel folder with one capture per band
// for every stamp.
func PanelFolder(t testing.TB, root, name, date string, bands []string, stamps ...string) string {
	t.Helper()

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating %s: %v", dir, err)
	}

	seq := 1
	for _, stamp := range stamps {
		for _, band := range bands {
			file := fmt.Sprintf("DJI_%s%s_%04d_MS_%s", date, stamp, seq, band)
			WriteFile(t, filepath.Join(dir, file), "band")
		}
		seq++
	}
	return dir
}

// PhantomFolder creates a Phantom style folder whose files carry the given
// modification times.
func PhantomFolder(t testing.TB, root, name string, times ...time.Time) string {
	t.Helper()

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating %s: %v", dir, err)
	}

	for i, mt := range times {
		path := filepath.Join(dir, fmt.Sprintf("DJI_%04d.JPG", i+1))
		WriteFile(t, path, "img")
		if err := os.Chtimes(path, mt, mt); err != nil {
			t.Fatalf("setting times on %s: %v", path, err)
		}
	}
	return dir
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

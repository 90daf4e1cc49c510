// Package device finds removable drone storage holding a DCIM folder.
package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// DefaultDCIMFolder is the camera folder name on drone storage.
const DefaultDCIMFolder = "DCIM"

// DefaultMountPoints are the directories removable volumes appear under on
// Linux and macOS.
var DefaultMountPoints = []string{"/media", "/Volumes", "/mnt"}

// Device is a mounted volume with a DCIM folder.
type Device struct {
	// Mount is the volume root.
	Mount string
	// DCIM is the camera folder scanned for flight folders.
	DCIM string
}

// Scanner enumerates devices.
type Scanner struct {
	dcimFolder  string
	mountPoints []string
}

// WithDCIMFolder overrides the camera folder name
func WithDCIMFolder(name string) func(*Scanner) {
	return func(s *Scanner) {
		s.dcimFolder = name
	}
}

// WithMountPoints overrides the directories searched for volumes
func WithMountPoints(mountPoints ...string) func(*Scanner) {
	return func(s *Scanner) {
		s.mountPoints = mountPoints
	}
}

func NewScanner(options ...func(*Scanner)) *Scanner {
	s := Scanner{
		dcimFolder:  DefaultDCIMFolder,
		mountPoints: DefaultMountPoints,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Scan returns every volume under the mount points that carries a DCIM
// folder. Volumes may sit directly under a mount point (/Volumes/SD) or one
// level deeper (/media/user/SD). Missing mount points are ignored.
func (s *Scanner) Scan() ([]Device, error) {
	var devices []Device
	for _, mp := range s.mountPoints {
		found, err := s.scanMountPoint(mp)
		if err != nil {
			return nil, err
		}
		devices = append(devices, found...)
	}

	slices.SortFunc(devices, func(a, b Device) int {
		switch {
		case a.DCIM < b.DCIM:
			return -1
		case a.DCIM > b.DCIM:
			return 1
		}
		return 0
	})
	return slices.CompactFunc(devices, func(a, b Device) bool { return a.DCIM == b.DCIM }), nil
}

func (s *Scanner) scanMountPoint(mp string) ([]Device, error) {
	volumes, err := subdirs(mp)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", mp, err)
	}

	var devices []Device
	for _, vol := range volumes {
		if d, ok := s.probe(vol); ok {
			devices = append(devices, d)
			continue
		}

		nested, err := subdirs(vol)
		if err != nil {
			// unreadable volumes are common under /media
			continue
		}
		for _, n := range nested {
			if d, ok := s.probe(n); ok {
				devices = append(devices, d)
			}
		}
	}
	return devices, nil
}

// FromRoots turns explicitly configured paths into devices. A root may be
// the volume or its DCIM folder.
func (s *Scanner) FromRoots(roots ...string) ([]Device, error) {
	devices := make([]Device, 0, len(roots))
	for _, root := range roots {
		if filepath.Base(root) == s.dcimFolder && isDir(root) {
			devices = append(devices, Device{Mount: filepath.Dir(root), DCIM: root})
			continue
		}
		d, ok := s.probe(root)
		if !ok {
			return nil, fmt.Errorf("%s has no %s folder", root, s.dcimFolder)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (s *Scanner) probe(vol string) (Device, bool) {
	dcim := filepath.Join(vol, s.dcimFolder)
	if !isDir(dcim) {
		return Device{}, false
	}
	return Device{Mount: vol, DCIM: dcim}, true
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(dir, e.Name()))
		}
	}
	return dirs, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

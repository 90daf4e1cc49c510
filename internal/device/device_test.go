package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	dir := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func TestScan(t *testing.T) {
	media := t.TempDir()
	volumes := t.TempDir()

	direct := mkdir(t, volumes, "SD_A", "DCIM")
	nested := mkdir(t, media, "pilot", "SD_B", "DCIM")
	mkdir(t, media, "pilot", "USB_STICK", "docs")

	s := NewScanner(WithMountPoints(media, volumes, filepath.Join(media, "missing")))
	devices, err := s.Scan()
	require.NoError(t, err)

	var dcims []string
	for _, d := range devices {
		dcims = append(dcims, d.DCIM)
	}
	assert.ElementsMatch(t, []string{direct, nested}, dcims)
}

func TestScan_CustomFolder(t *testing.T) {
	media := t.TempDir()
	mkdir(t, media, "SD", "DCIM")
	want := mkdir(t, media, "CARD", "PHOTOS")

	devices, err := NewScanner(WithMountPoints(media), WithDCIMFolder("PHOTOS")).Scan()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, want, devices[0].DCIM)
	assert.Equal(t, filepath.Join(media, "CARD"), devices[0].Mount)
}

func TestFromRoots(t *testing.T) {
	root := t.TempDir()
	dcim := mkdir(t, root, "SD", "DCIM")

	s := NewScanner()
	devices, err := s.FromRoots(filepath.Join(root, "SD"), dcim)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, dcim, devices[0].DCIM)
	assert.Equal(t, devices[0], devices[1])

	_, err = s.FromRoots(root)
	assert.Error(t, err)
}

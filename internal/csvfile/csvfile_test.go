package csvfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "routes.csv")
	columns := []string{"FlightRoute", "BaseName"}

	require.NoError(t, Write(path, columns, []Row{
		{"FlightRoute": "ROUTE7", "BaseName": "Field1"},
		{"FlightRoute": "ROUTE9", "BaseName": "Field, with comma"},
	}))

	rows, err := Read(path, columns)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Field, with comma", rows[1]["BaseName"])

	p, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(p), "FlightRoute,BaseName\n")
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.csv"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRead_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	_, err := Read(path, []string{"a", "c"})
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestRead_ShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1\n"), 0o644))

	rows, err := Read(path, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0]["a"])
	assert.Equal(t, "", rows[0]["b"])
}

func TestWrite_HeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, Write(path, []string{"a", "b"}, nil))

	rows, err := Read(path, []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRead_ByteOrderMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight_routes.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeff\"FlightRoute\",BaseName\r\nROUTE7,Field1\r\n"), 0o644))

	rows, err := Read(path, []string{"FlightRoute", "BaseName"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ROUTE7", rows[0]["FlightRoute"])
}

package route

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/survey-transfer/internal/flight"
)

const outputRoot = "/data/1_flights"

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	ctx := context.Background()

	c := NewCatalog(NewCSVBackend(filepath.Join(t.TempDir(), "flight_routes.csv")))
	require.NoError(t, c.Load(ctx))
	_, err := c.Register(ctx, "ROUTE7", "Field1 M3M 30m MS 70 75")
	require.NoError(t, err)
	_, err = c.Register(ctx, "ROUTE9", "Field1 M3M 30m 3D 70 75")
	require.NoError(t, err)
	return c
}

func testRecord(t *testing.T, name string, ct flight.CaptureType, route string) *flight.Record {
	t.Helper()
	r, err := flight.NewRecord(name, "/media/sd/DCIM", ct, "20240614")
	require.NoError(t, err)
	r.RouteID = route
	return r
}

// scenarioBatch is the MS flight, its paired panel and a 3D flight.
func scenarioBatch(t *testing.T) *flight.Batch {
	b := flight.NewBatch("/media/sd/DCIM")
	b.Append(
		testRecord(t, "MS_20240614_F01_ROUTE7", flight.CaptureMS, "ROUTE7"),
		testRecord(t, "R_20240614_F02", flight.CaptureReflectance, "ROUTE7"),
		testRecord(t, "3D_20240614_F03_ROUTE9", flight.CaptureThreeD, "ROUTE9"),
	)
	return b
}

func TestResolve_KnownRoutes(t *testing.T) {
	b := scenarioBatch(t)
	r := NewResolver(outputRoot, testCatalog(t))

	missing := r.Resolve(b.Records)
	assert.Empty(t, missing)

	msPath := filepath.Join(outputRoot, "Field1", "MS", "20240614 Field1 M3M 30m MS 70 75")
	assert.Equal(t, msPath, b.Records[0].OutputPath)
	assert.Equal(t, msPath, b.Records[1].OutputPath)
	assert.Equal(t, filepath.Join(outputRoot, "Field1", "3D", "20240614 Field1 M3M 30m 3D 70 75"), b.Records[2].OutputPath)
	assert.Equal(t, "30m", b.Records[0].Height)
}

func TestResolve_EmptyRouteGoesToNoMatch(t *testing.T) {
	rec := testRecord(t, "R_20240614_F02", flight.CaptureReflectance, "")
	r := NewResolver(outputRoot, testCatalog(t))

	assert.Empty(t, r.Resolve([]*flight.Record{rec}))
	assert.Equal(t, filepath.Join(outputRoot, NoMatchDir), rec.OutputPath)
	assert.Equal(t, NoMatchRoute, rec.RouteID)
	assert.Equal(t, NoMatchHeight, rec.Height)
}

func TestResolve_UnknownRouteIsReportedOnce(t *testing.T) {
	ctx := context.Background()
	c := testCatalog(t)
	a := testRecord(t, "MS_20240614_F04_NEW", flight.CaptureMS, "NEW")
	b := testRecord(t, "R_20240614_F05", flight.CaptureReflectance, "NEW")
	known := testRecord(t, "MS_20240614_F01_ROUTE7", flight.CaptureMS, "ROUTE7")
	records := []*flight.Record{a, b, known}

	r := NewResolver(outputRoot, c)
	assert.Equal(t, []string{"NEW"}, r.Resolve(records))
	assert.Empty(t, a.OutputPath)
	assert.Empty(t, b.OutputPath)
	assert.NotEmpty(t, known.OutputPath)

	_, err := c.Register(ctx, "NEW", "Field2 M3M 40m MS 80 80")
	require.NoError(t, err)

	assert.Empty(t, r.Resolve(records))
	assert.Equal(t, filepath.Join(outputRoot, "Field2", "MS", "20240614 Field2 M3M 40m MS 80 80"), a.OutputPath)
	assert.Equal(t, a.OutputPath, b.OutputPath)
	assert.Equal(t, "40m", a.Height)
}

func TestResolve_KeepsManualOverrides(t *testing.T) {
	b := scenarioBatch(t)
	r := NewResolver(outputRoot, testCatalog(t))
	r.Resolve(b.Records)

	require.True(t, r.Move(b, 2, 0))
	r.Resolve(b.Records)
	assert.Equal(t, b.Records[0].OutputPath, b.Records[2].OutputPath)
}

func TestMove(t *testing.T) {
	b := scenarioBatch(t)
	r := NewResolver(outputRoot, testCatalog(t))
	r.Resolve(b.Records)

	assert.True(t, r.Move(b, 0, 2))
	assert.Equal(t, b.Records[2].OutputPath, b.Records[0].OutputPath)
}

func TestDuplicate(t *testing.T) {
	b := scenarioBatch(t)
	r := NewResolver(outputRoot, testCatalog(t))
	r.Resolve(b.Records)

	assert.True(t, r.Duplicate(b, 1, 2))
	require.Equal(t, 4, b.Len())

	dup := b.Records[3]
	assert.Equal(t, "R_20240614_F02", dup.DirName)
	assert.Equal(t, b.Records[2].OutputPath, dup.OutputPath)
	assert.NotEqual(t, b.Records[1].UID, dup.UID)
	assert.NotEqual(t, dup.OutputPath, b.Records[1].OutputPath, "the original keeps its path")
	assert.Equal(t, "ROUTE9", dup.RouteID)
	assert.Equal(t, "ROUTE7", b.Records[1].RouteID)
}

func TestDuplicate_PanelPairsWithTargetFlight(t *testing.T) {
	b := scenarioBatch(t)
	second := testRecord(t, "MS_20240614_F04_ROUTE9", flight.CaptureMS, "ROUTE9")
	b.Append(second)

	r := NewResolver(outputRoot, testCatalog(t))
	r.Resolve(b.Records)

	require.True(t, r.Duplicate(b, 1, 3))
	dup := b.Records[b.Len()-1]

	assert.Equal(t, second.OutputPath, dup.OutputPath)
	assert.Equal(t, "ROUTE9", dup.RouteID)
	assert.Equal(t, "30m", dup.Height)
	assert.Equal(t, second.UID, dup.PairedWith)
	assert.True(t, second.ReflectanceAssigned)
}

func TestDuplicate_FlightKeepsItsRoute(t *testing.T) {
	b := scenarioBatch(t)
	r := NewResolver(outputRoot, testCatalog(t))
	r.Resolve(b.Records)

	require.True(t, r.Duplicate(b, 0, 2))
	dup := b.Records[b.Len()-1]

	assert.Equal(t, b.Records[2].OutputPath, dup.OutputPath)
	assert.Equal(t, "ROUTE7", dup.RouteID)
}

func TestTrash_OnlyTargetedRecord(t *testing.T) {
	b := scenarioBatch(t)
	r := NewResolver(outputRoot, testCatalog(t))
	r.Resolve(b.Records)
	panelPath := b.Records[1].OutputPath

	assert.True(t, r.Trash(b, 0))

	assert.Equal(t,
		filepath.Join(outputRoot, TrashDir, "Field1", "MS", "20240614 Field1 M3M 30m MS 70 75"),
		b.Records[0].OutputPath)
	assert.Equal(t, "ROUTE7_trashed-flight", b.Records[0].EffectiveRoute())
	assert.Equal(t, "ROUTE7", b.Records[0].RouteID)
	assert.Equal(t, panelPath, b.Records[1].OutputPath)
}

func TestSkyline(t *testing.T) {
	b := scenarioBatch(t)
	r := NewResolver(outputRoot, testCatalog(t))
	r.Resolve(b.Records)

	assert.True(t, r.Skyline(b, 2))
	assert.Equal(t,
		filepath.Join(outputRoot, SkylineDir, "Field1", "3D", "20240614 Field1 M3M 30m 3D 70 75"),
		b.Records[2].OutputPath)
	assert.Equal(t, "ROUTE9_skyline-flight", b.Records[2].EffectiveRoute())

	// trashing after a skyline move keeps a single suffix
	assert.True(t, r.Trash(b, 2))
	assert.Equal(t, "ROUTE9_trashed-flight", b.Records[2].EffectiveRoute())
}

func TestTrash_NoMatchRecord(t *testing.T) {
	b := flight.NewBatch("/sd")
	b.Append(testRecord(t, "R_20240614_F02", flight.CaptureReflectance, ""))
	r := NewResolver(outputRoot, testCatalog(t))
	r.Resolve(b.Records)

	assert.True(t, r.Trash(b, 0))
	assert.Equal(t, filepath.Join(outputRoot, TrashDir, NoMatchDir), b.Records[0].OutputPath)
}

func TestOverrides_OutOfRangeAreNoOps(t *testing.T) {
	b := scenarioBatch(t)
	r := NewResolver(outputRoot, testCatalog(t))
	r.Resolve(b.Records)
	before := b.Records[0].OutputPath

	assert.False(t, r.Move(b, 0, 3))
	assert.False(t, r.Move(b, -1, 0))
	assert.False(t, r.Duplicate(b, 5, 0))
	assert.False(t, r.Trash(b, 3))
	assert.False(t, r.Skyline(b, -2))

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, before, b.Records[0].OutputPath)
}

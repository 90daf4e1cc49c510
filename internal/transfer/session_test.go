package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/survey-transfer/internal/flight"
	"github.com/roman-kulish/survey-transfer/internal/flightlog"
	"github.com/roman-kulish/survey-transfer/internal/route"
	"github.com/roman-kulish/survey-transfer/internal/testutil"
)

const (
	date     = "20240614"
	msFolder = "MS_20240614_F01_ROUTE7"
	rFolder  = "R_20240614_F02"
	tdFolder = "3D_20240614_F03_ROUTE9"
)

var msPathName = filepath.Join("Field1", "MS", "20240614 Field1 M3M 30m MS 70 75")

type env struct {
	dcim   string
	out    string
	dir    string
	stores Stores
	ledger *flightlog.CSVLedger
}

// newEnv builds a device holding an MS flight, its panel and a 3D flight,
// and a catalog with the given routes registered.
func newEnv(t *testing.T, routes map[string]string) *env {
	t.Helper()
	ctx := context.Background()

	e := env{
		dcim: filepath.Join(t.TempDir(), "SD", "DCIM"),
		out:  filepath.Join(t.TempDir(), "1_flights"),
		dir:  t.TempDir(),
	}

	testutil.CaptureFolder(t, e.dcim, msFolder, date, "MS_G.TIF",
		"085950", "085955", "085958", "085959", "090000", "090100", "090500", "090510")
	testutil.PanelFolder(t, e.dcim, rFolder, date, []string{"G.TIF", "R.TIF", "NIR.TIF", "RE.TIF"},
		"085500", "085500", "085700")
	testutil.CaptureFolder(t, e.dcim, tdFolder, date, "D.JPG",
		"090950", "090955", "090958", "090959", "091000", "091200", "091500", "091510")

	catalog := route.NewCatalog(route.NewCSVBackend(filepath.Join(e.dir, "flight_routes.csv")))
	require.NoError(t, catalog.Load(ctx))
	for id, descriptor := range routes {
		_, err := catalog.Register(ctx, id, descriptor)
		require.NoError(t, err)
	}

	pending, err := flightlog.OpenPendingLog(filepath.Join(e.dir, "pending_log.csv"))
	require.NoError(t, err)

	e.ledger = flightlog.NewCSVLedger(filepath.Join(e.dir, "flight_log.csv"))
	e.stores = Stores{Catalog: catalog, Pending: pending, Ledger: e.ledger}
	return &e
}

var bothRoutes = map[string]string{
	"ROUTE7": "Field1 M3M 30m MS 70 75",
	"ROUTE9": "Field1 M3M 30m 3D 70 75",
}

func record(t *testing.T, b *flight.Batch, name string) *flight.Record {
	t.Helper()
	for _, r := range b.Records {
		if r.DirName == name {
			return r
		}
	}
	t.Fatalf("no record for %s", name)
	return nil
}

func TestSession_EndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, bothRoutes)
	s := NewSession(e.out, e.stores)

	require.NoError(t, s.Start(e.dcim))
	require.NoError(t, s.Prepare(ctx))
	require.Equal(t, StatePrepared, s.State())

	b := s.Batch()
	require.Equal(t, 3, b.Len())
	ms, panel, td := record(t, b, msFolder), record(t, b, rFolder), record(t, b, tdFolder)

	assert.Equal(t, "ROUTE7", panel.RouteID)
	assert.Equal(t, ms.UID, panel.PairedWith)
	assert.True(t, ms.ReflectanceAssigned)
	assert.Equal(t, filepath.Join(e.out, msPathName), ms.OutputPath)
	assert.Equal(t, ms.OutputPath, panel.OutputPath)
	assert.Equal(t, filepath.Join(e.out, "Field1", "3D", "20240614 Field1 M3M 30m 3D 70 75"), td.OutputPath)

	n, err := s.Confirm()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, StateStaged, s.State())
	assert.Equal(t, 2, e.stores.Pending.Len())

	report, err := s.Copy(ctx)
	require.NoError(t, err)
	require.True(t, report.OK())
	assert.Len(t, report.Results, 3)
	assert.DirExists(t, filepath.Join(e.out, msPathName, msFolder))
	assert.DirExists(t, filepath.Join(e.out, msPathName, rFolder))

	committed, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, committed)
	assert.Zero(t, e.stores.Pending.Len())

	logged, err := e.ledger.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, logged, 2)

	require.NoError(t, s.Wipe(ctx))
	assert.Equal(t, StateWiped, s.State())
	entries, err := os.ReadDir(e.dcim)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSession_TrashOnlyTouchesTarget(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, bothRoutes)
	s := NewSession(e.out, e.stores)

	require.NoError(t, s.Start(e.dcim))
	require.NoError(t, s.Prepare(ctx))

	b := s.Batch()
	index := -1
	for i, r := range b.Records {
		if r.DirName == msFolder {
			index = i
		}
	}
	require.NotEqual(t, -1, index)

	ok, err := s.Trash(index)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateEditing, s.State())

	assert.Equal(t, filepath.Join(e.out, route.TrashDir, msPathName), record(t, b, msFolder).OutputPath)
	assert.Equal(t, filepath.Join(e.out, msPathName), record(t, b, rFolder).OutputPath)

	ok, err = s.Move(99, 0)
	require.NoError(t, err)
	assert.False(t, ok, "out of range edits are ignored")

	_, err = s.Confirm()
	require.NoError(t, err)

	var names []string
	for _, entry := range e.stores.Pending.Entries() {
		names = append(names, entry.FlightName)
	}
	assert.ElementsMatch(t, []string{"ROUTE7_trashed-flight", "ROUTE7", "ROUTE9"}, names)
}

func TestSession_RegisterMissingRoute(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, map[string]string{"ROUTE9": bothRoutes["ROUTE9"]})
	s := NewSession(e.out, e.stores)

	require.NoError(t, s.Start(e.dcim))
	require.NoError(t, s.Prepare(ctx))
	require.Equal(t, StateAwaitingDecision, s.State())

	d, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, DecisionRegisterRoute, d.Kind)
	assert.Equal(t, "ROUTE7", d.RouteID)
	assert.ElementsMatch(t, []string{msFolder, rFolder}, d.Folders)

	_, err := s.Confirm()
	require.ErrorIs(t, err, ErrInvalidState)

	err = s.RegisterRoute(ctx, "Field1 M3M 30m")
	require.ErrorIs(t, err, route.ErrMalformedRouteDescriptor)
	assert.Equal(t, StateAwaitingDecision, s.State())

	require.NoError(t, s.RegisterRoute(ctx, "Field1 M3M 30m MS 70 75"))
	assert.Equal(t, StatePrepared, s.State())
	assert.Equal(t, filepath.Join(e.out, msPathName), record(t, s.Batch(), rFolder).OutputPath)

	_, found := e.stores.Catalog.Lookup("ROUTE7")
	assert.True(t, found)
}

func TestSession_DeclineRouteInteractiveKeepsDecision(t *testing.T) {
	e := newEnv(t, map[string]string{"ROUTE9": bothRoutes["ROUTE9"]})
	s := NewSession(e.out, e.stores)

	require.NoError(t, s.Start(e.dcim))
	require.NoError(t, s.Prepare(context.Background()))

	err := s.DeclineRoute()
	require.ErrorIs(t, err, route.ErrUnregisteredRoute)
	assert.Equal(t, StateAwaitingDecision, s.State())
}

func TestSession_DeclineRouteInBatchModeAborts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, map[string]string{"ROUTE9": bothRoutes["ROUTE9"]})
	s := NewSession(e.out, e.stores, WithBatchMode())

	require.NoError(t, s.Start(e.dcim))
	require.NoError(t, s.Prepare(ctx))

	err := s.DeclineRoute()
	var unregistered *route.UnregisteredRouteError
	require.True(t, errors.As(err, &unregistered))
	assert.Equal(t, "ROUTE7", unregistered.RouteID)
	assert.Equal(t, StateAborted, s.State())

	require.ErrorIs(t, s.Wipe(ctx), ErrWipeUnsafe)
	assert.DirExists(t, filepath.Join(e.dcim, msFolder))
}

func TestSession_DuplicatePanelSuggestion(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, bothRoutes)
	testutil.CaptureFolder(t, e.dcim, "MS_20240614_F04_ROUTE7", date, "MS_G.TIF",
		"100000", "100010", "100020", "100030", "100040", "100500", "101000", "101010")
	s := NewSession(e.out, e.stores)

	require.NoError(t, s.Start(e.dcim))
	require.NoError(t, s.Prepare(ctx))

	d, ok := s.Pending()
	require.True(t, ok)
	require.Equal(t, DecisionDuplicatePanel, d.Kind)

	b := s.Batch()
	before := b.Len()
	second := record(t, b, "MS_20240614_F04_ROUTE7")
	assert.Equal(t, second.UID, d.Flight)
	assert.Equal(t, record(t, b, rFolder).UID, d.Panel)

	require.NoError(t, s.AcceptSuggestion())
	assert.Equal(t, StatePrepared, s.State())
	require.Equal(t, before+1, b.Len())

	dup := b.Records[b.Len()-1]
	assert.Equal(t, rFolder, dup.DirName)
	assert.Equal(t, second.UID, dup.PairedWith)
	assert.Equal(t, second.OutputPath, dup.OutputPath)
	assert.True(t, second.ReflectanceAssigned)
}

func TestSession_CopyFailureBlocksWipe(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, bothRoutes)
	s := NewSession(e.out, e.stores, WithWorkers(2))

	require.NoError(t, s.Start(e.dcim))
	require.NoError(t, s.Prepare(ctx))
	_, err := s.Confirm()
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(e.dcim, tdFolder)))

	report, err := s.Copy(ctx)
	require.NoError(t, err)
	require.Len(t, report.Failures(), 1)
	assert.DirExists(t, filepath.Join(e.out, msPathName, msFolder))

	// the log is committed regardless
	n, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.ErrorIs(t, s.Wipe(ctx), ErrWipeUnsafe)
	assert.DirExists(t, filepath.Join(e.dcim, msFolder))
}

func TestSession_CanceledCopyAborts(t *testing.T) {
	e := newEnv(t, bothRoutes)
	s := NewSession(e.out, e.stores)

	require.NoError(t, s.Start(e.dcim))
	require.NoError(t, s.Prepare(context.Background()))
	_, err := s.Confirm()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Copy(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, s.State())
	assert.Equal(t, 2, e.stores.Pending.Len(), "staged entries survive")

	_, err = s.Commit(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, s.Wipe(context.Background()), ErrWipeUnsafe)
}

func TestSession_OutOfOrder(t *testing.T) {
	e := newEnv(t, bothRoutes)
	s := NewSession(e.out, e.stores)

	_, err := s.Copy(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = s.Trash(0)
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, s.Prepare(context.Background()), ErrInvalidState)
	require.ErrorIs(t, s.RejectSuggestion(), ErrInvalidState)
}

func TestSession_SnapshotResume(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, map[string]string{"ROUTE9": bothRoutes["ROUTE9"]})
	snapshot := filepath.Join(e.dir, "session.json")

	s := NewSession(e.out, e.stores, WithSnapshot(snapshot))
	require.NoError(t, s.Start(e.dcim))
	require.NoError(t, s.Prepare(ctx))
	require.Equal(t, StateAwaitingDecision, s.State())

	resumed := NewSession(e.out, e.stores, WithSnapshot(snapshot))
	ok, err := resumed.Restore()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateAwaitingDecision, resumed.State())

	d, ok := resumed.Pending()
	require.True(t, ok)
	assert.Equal(t, "ROUTE7", d.RouteID)

	require.NoError(t, resumed.RegisterRoute(ctx, "Field1 M3M 30m MS 70 75"))
	_, err = resumed.Confirm()
	require.NoError(t, err)
	assert.Equal(t, 2, e.stores.Pending.Len())
	assert.Equal(t, msFolder, record(t, resumed.st.Staged[0], msFolder).DirName)
}

func TestSession_RestoreWithoutSnapshot(t *testing.T) {
	e := newEnv(t, bothRoutes)
	s := NewSession(e.out, e.stores, WithSnapshot(filepath.Join(e.dir, "none.json")))

	ok, err := s.Restore()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_ManualPanelDuplicateIsLoggedWithTarget(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, map[string]string{
		"ROUTE7": bothRoutes["ROUTE7"],
		"ROUTE8": "Field2 M3M 30m MS 70 75",
		"ROUTE9": bothRoutes["ROUTE9"],
	})
	const other = "MS_20240614_F04_ROUTE8"
	testutil.CaptureFolder(t, e.dcim, other, date, "MS_G.TIF",
		"100000", "100010", "100020", "100030", "100040", "100500", "101000", "101010")
	s := NewSession(e.out, e.stores)

	require.NoError(t, s.Start(e.dcim))
	require.NoError(t, s.Prepare(ctx))

	// F04 has no panel of its own, decline the suggestion and duplicate by hand
	d, ok := s.Pending()
	require.True(t, ok)
	require.Equal(t, DecisionDuplicatePanel, d.Kind)
	require.NoError(t, s.RejectSuggestion())

	b := s.Batch()
	from, to := indexOf(b, record(t, b, rFolder).UID), indexOf(b, record(t, b, other).UID)
	ok, err := s.Duplicate(from, to)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Confirm()
	require.NoError(t, err)

	byRoute := make(map[string]flightlog.Entry)
	for _, entry := range e.stores.Pending.Entries() {
		byRoute[entry.FlightName] = entry
	}
	require.Contains(t, byRoute, "ROUTE8")
	assert.Equal(t, []string{other, rFolder}, byRoute["ROUTE8"].DirNames)
	assert.Equal(t, []string{"MS", "Reflectance"}, byRoute["ROUTE8"].Types)
	assert.Equal(t, filepath.Join(e.out, "Field2", "MS", "20240614 Field2 M3M 30m MS 70 75"), byRoute["ROUTE8"].OutputPath)
	assert.Equal(t, []string{msFolder, rFolder}, byRoute["ROUTE7"].DirNames)
}

// Package transfer drives a device offload: classification, panel matching
// and route resolution per device, operator decisions and edits, staging,
// the bulk copy, the flight log commit and the final source wipe.
//
// A Session never blocks on the operator. Whenever input is needed it stops
// in StateAwaitingDecision and exposes the question through Pending; any
// front end answers it and calls the next operation.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/survey-transfer/internal/classify"
	"github.com/roman-kulish/survey-transfer/internal/flight"
	"github.com/roman-kulish/survey-transfer/internal/flightlog"
	"github.com/roman-kulish/survey-transfer/internal/reflectance"
	"github.com/roman-kulish/survey-transfer/internal/route"
)

var (
	// ErrInvalidState is returned by operations called out of order.
	ErrInvalidState = errors.New("operation not valid in the current state")

	// ErrWipeUnsafe is returned when a wipe is requested before every folder
	// was copied and the flight log committed.
	ErrWipeUnsafe = errors.New("refusing to wipe source devices")
)

type State string

const (
	StateIdle             State = "idle"
	StatePrepared         State = "prepared"
	StateAwaitingDecision State = "awaiting-decision"
	StateEditing          State = "editing"
	StateStaged           State = "staged"
	StateCopied           State = "copied"
	StateCommitted        State = "committed"
	StateWiped            State = "wiped"
	StateAborted          State = "aborted"
)

type DecisionKind string

const (
	// DecisionRegisterRoute asks for the descriptor of a route missing from
	// the catalog.
	DecisionRegisterRoute DecisionKind = "register-route"

	// DecisionDuplicatePanel offers to duplicate a panel for an MS flight
	// that has none.
	DecisionDuplicatePanel DecisionKind = "duplicate-panel"
)

// Decision is a question the session needs answered before it can go on.
type Decision struct {
	Kind DecisionKind `json:"kind"`

	// RouteID and Folders describe an unregistered route.
	RouteID string   `json:"routeID,omitempty"`
	Folders []string `json:"folders,omitempty"`

	// Panel, Flight and Gap describe a duplicate panel suggestion.
	Panel  uuid.UUID     `json:"panel,omitzero"`
	Flight uuid.UUID     `json:"flight,omitzero"`
	Gap    time.Duration `json:"gap,omitempty"`
}

// Stores are the persistent collaborators of a session.
type Stores struct {
	Catalog *route.Catalog
	Pending *flightlog.PendingLog
	Ledger  flightlog.Ledger
}

// WithLogger sets the logger for the session and the components it creates
func WithLogger(logger *slog.Logger) func(*Session) {
	return func(s *Session) {
		s.logger = logger.With(slog.String("component", "session"))
		s.baseLogger = logger
	}
}

// WithPhantomRoute sets the placeholder route of Phantom folders
func WithPhantomRoute(route string) func(*Session) {
	return func(s *Session) {
		s.phantomRoute = route
	}
}

// WithWorkers sets the number of concurrent copies
func WithWorkers(workers int) func(*Session) {
	return func(s *Session) {
		s.workers = workers
	}
}

// WithBatchMode makes a declined route fatal for the whole run.
func WithBatchMode() func(*Session) {
	return func(s *Session) {
		s.batchMode = true
	}
}

// WithSnapshot persists the session to path after every change.
func WithSnapshot(path string) func(*Session) {
	return func(s *Session) {
		s.snapshotPath = path
	}
}

// sessionState is everything needed to resume a paused session.
type sessionState struct {
	State     State           `json:"state"`
	Devices   []string        `json:"devices"`
	Next      int             `json:"next"`
	Batch     *flight.Batch   `json:"batch,omitempty"`
	Decisions []Decision      `json:"decisions,omitempty"`
	Staged    []*flight.Batch `json:"staged,omitempty"`
	Report    *CopyReport     `json:"report,omitempty"`
}

// Session is a paused state machine over one offload run.
type Session struct {
	stores       Stores
	outputRoot   string
	phantomRoute string
	workers      int
	batchMode    bool
	snapshotPath string

	logger     *slog.Logger
	baseLogger *slog.Logger

	classifier *classify.Classifier
	matcher    *reflectance.Matcher
	resolver   *route.Resolver
	copier     *Copier

	mu sync.Mutex
	st sessionState
}

// NewSession creates an idle session writing flights under outputRoot.
func NewSession(outputRoot string, stores Stores, options ...func(*Session)) *Session {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := Session{
		stores:       stores,
		outputRoot:   outputRoot,
		phantomRoute: classify.DefaultPhantomRoute,
		workers:      MaxWorkers,
		logger:       discard,
		baseLogger:   discard,
		st:           sessionState{State: StateIdle},
	}

	for _, option := range options {
		option(&s)
	}

	s.classifier = classify.New(classify.WithLogger(s.baseLogger), classify.WithPhantomRoute(s.phantomRoute))
	s.matcher = reflectance.New(reflectance.WithLogger(s.baseLogger))
	s.resolver = route.NewResolver(outputRoot, stores.Catalog, route.WithResolverLogger(s.baseLogger))
	s.copier = NewCopier(s.workers, s.baseLogger)

	return &s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.st.State
}

// Batch returns the records of the device being prepared, nil between
// devices.
func (s *Session) Batch() *flight.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.st.Batch
}

// Remaining is the number of devices not yet staged.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.st.Devices) - s.st.Next
}

// Report returns the result of the copy, nil before it ran.
func (s *Session) Report() *CopyReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.st.Report
}

// Pending returns the decision the session is waiting for.
func (s *Session) Pending() (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.State != StateAwaitingDecision || len(s.st.Decisions) == 0 {
		return Decision{}, false
	}
	return s.st.Decisions[0], true
}

// Start sets the device roots to offload, in order.
func (s *Session) Start(devices ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateIdle); err != nil {
		return err
	}
	if len(s.st.Devices) > 0 {
		return fmt.Errorf("%w: session already started", ErrInvalidState)
	}
	if len(devices) == 0 {
		return errors.New("no devices to offload")
	}

	s.st.Devices = slices.Clone(devices)
	s.logger.Info("session started", slog.Int("devices", len(devices)))
	return s.persist()
}

// Prepare classifies the next device, pairs its reflectance panels and
// resolves output paths. The session then waits for decisions, if any, or
// for edits. An unreadable device is skipped and its error returned.
func (s *Session) Prepare(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateIdle, StateStaged); err != nil {
		return err
	}
	if s.st.Next >= len(s.st.Devices) {
		return fmt.Errorf("%w: no device left to prepare", ErrInvalidState)
	}

	root := s.st.Devices[s.st.Next]
	batch, err := s.classifier.ClassifyDevice(root)
	if err != nil {
		s.st.Next++
		return errors.Join(fmt.Errorf("preparing device: %w", err), s.persist())
	}

	s.matcher.Match(batch.Records)
	suggestions := reflectance.SuggestDuplicates(batch.Records)
	if n := reflectance.BackfillPhantomRoutes(batch.Records, s.classifier.PhantomRoute()); n > 0 {
		s.logger.Info("borrowed routes for Phantom folders", slog.Int("folders", n))
	}
	missing := s.resolver.Resolve(batch.Records)

	s.st.Batch = batch
	s.st.Decisions = s.st.Decisions[:0]
	for _, routeID := range missing {
		s.st.Decisions = append(s.st.Decisions, Decision{
			Kind:    DecisionRegisterRoute,
			RouteID: routeID,
			Folders: foldersOnRoute(batch, routeID),
		})
	}
	for _, sg := range suggestions {
		s.st.Decisions = append(s.st.Decisions, Decision{
			Kind:   DecisionDuplicatePanel,
			Panel:  sg.Panel,
			Flight: sg.Flight,
			Gap:    sg.Gap,
		})
	}

	s.advance()
	s.logger.Info("device prepared",
		slog.String("root", root),
		slog.Int("folders", batch.Len()),
		slog.Int("decisions", len(s.st.Decisions)))
	return s.persist()
}

// RegisterRoute answers a DecisionRegisterRoute with the operator's
// "name drone height type overlap1 overlap2" descriptor. A malformed
// descriptor leaves the decision pending.
func (s *Session) RegisterRoute(ctx context.Context, descriptor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.head(DecisionRegisterRoute)
	if err != nil {
		return err
	}

	if _, err = s.stores.Catalog.Register(ctx, d.RouteID, descriptor); err != nil {
		if !errors.Is(err, route.ErrRouteExists) {
			s.logger.Warn(fmt.Sprintf("route not registered: %s", err.Error()), slog.String("route", d.RouteID))
			return err
		}
	}

	s.resolver.Resolve(s.st.Batch.Records)
	s.pop()
	return s.persist()
}

// DeclineRoute refuses to register the pending route. In batch mode the
// session is aborted; otherwise the decision stays pending. The returned
// error is an *route.UnregisteredRouteError either way.
func (s *Session) DeclineRoute() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.head(DecisionRegisterRoute)
	if err != nil {
		return err
	}

	unregistered := &route.UnregisteredRouteError{RouteID: d.RouteID}
	if !s.batchMode {
		s.logger.Warn("route must be registered before the device can be staged", slog.String("route", d.RouteID))
		return unregistered
	}

	s.st.State = StateAborted
	s.logger.Error("aborting run", slog.String("route", d.RouteID))
	return errors.Join(unregistered, s.persist())
}

// AcceptSuggestion duplicates the suggested panel into the flight's output
// folder and pairs the copy with the flight.
func (s *Session) AcceptSuggestion() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.head(DecisionDuplicatePanel)
	if err != nil {
		return err
	}

	b := s.st.Batch
	from, to := indexOf(b, d.Panel), indexOf(b, d.Flight)
	if !s.resolver.Duplicate(b, from, to) {
		s.pop()
		return errors.Join(fmt.Errorf("%w: suggested folders are gone", flight.ErrIndexOutOfRange), s.persist())
	}

	s.pop()
	return s.persist()
}

// RejectSuggestion drops the pending duplicate panel suggestion.
func (s *Session) RejectSuggestion() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.head(DecisionDuplicatePanel); err != nil {
		return err
	}

	s.pop()
	return s.persist()
}

// Move points the folder at from to the output folder of the one at to.
// Out of range indices are logged and ignored.
func (s *Session) Move(from, to int) (bool, error) {
	return s.edit(func(b *flight.Batch) bool { return s.resolver.Move(b, from, to) })
}

// Duplicate copies the folder at from into the output folder of the one at to.
func (s *Session) Duplicate(from, to int) (bool, error) {
	return s.edit(func(b *flight.Batch) bool { return s.resolver.Duplicate(b, from, to) })
}

// Trash sends the folder at index to the trash folder.
func (s *Session) Trash(index int) (bool, error) {
	return s.edit(func(b *flight.Batch) bool { return s.resolver.Trash(b, index) })
}

// Skyline sends the folder at index to the skyline folder.
func (s *Session) Skyline(index int) (bool, error) {
	return s.edit(func(b *flight.Batch) bool { return s.resolver.Skyline(b, index) })
}

func (s *Session) edit(apply func(*flight.Batch) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StatePrepared, StateEditing); err != nil {
		return false, err
	}

	s.st.State = StateEditing
	ok := apply(s.st.Batch)
	return ok, s.persist()
}

// Confirm stages the prepared device in the pending log.
func (s *Session) Confirm() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StatePrepared, StateEditing); err != nil {
		return 0, err
	}

	n, err := s.stores.Pending.Stage(s.st.Batch.Records)
	if err != nil {
		return n, fmt.Errorf("staging device: %w", err)
	}

	s.st.Staged = append(s.st.Staged, s.st.Batch)
	s.st.Batch = nil
	s.st.Next++
	s.st.State = StateStaged
	return n, s.persist()
}

// Copy copies every staged folder to its destination once all devices are
// staged. Individual failures end up in the report; a canceled ctx aborts
// the session.
func (s *Session) Copy(ctx context.Context) (*CopyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateStaged); err != nil {
		return nil, err
	}
	if s.st.Next < len(s.st.Devices) {
		return nil, fmt.Errorf("%w: %d devices not staged yet", ErrInvalidState, len(s.st.Devices)-s.st.Next)
	}

	var tasks []CopyTask
	for _, b := range s.st.Staged {
		for _, r := range b.Records {
			dst := r.DestinationPath()
			if dst == "" {
				continue
			}
			tasks = append(tasks, CopyTask{UID: r.UID, Source: r.SourcePath(), Destination: dst})
		}
	}

	report := s.copier.Run(ctx, tasks)
	s.st.Report = report

	if err := ctx.Err(); err != nil {
		s.st.State = StateAborted
		s.logger.Warn("copy canceled, sources will not be wiped")
		return report, errors.Join(err, s.persist())
	}

	s.st.State = StateCopied
	return report, s.persist()
}

// Commit moves the staged flights to the permanent flight log.
func (s *Session) Commit(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateCopied); err != nil {
		return 0, err
	}
	if !s.st.Report.OK() {
		s.logger.Warn("committing with failed copies", slog.Int("failed", len(s.st.Report.Failures())))
	}

	n, err := s.stores.Pending.Commit(ctx, s.stores.Ledger)
	if err != nil {
		return 0, err
	}

	s.st.State = StateCommitted
	return n, s.persist()
}

// Wipe empties every offloaded device. It is refused unless every folder was
// copied and the flight log committed.
func (s *Session) Wipe(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.State != StateCommitted {
		return fmt.Errorf("%w: session is %s", ErrWipeUnsafe, s.st.State)
	}
	if !s.st.Report.OK() {
		return fmt.Errorf("%w: %d folders failed to copy", ErrWipeUnsafe, len(s.st.Report.Failures()))
	}

	var errs []error
	for _, b := range s.st.Staged {
		if err := wipeDir(b.Root); err != nil {
			errs = append(errs, fmt.Errorf("wiping %s: %w", b.Root, err))
			continue
		}
		s.logger.Info("wiped device", slog.String("root", b.Root))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.st.State = StateWiped
	return s.persist()
}

// Abort ends the session. Staged entries stay in the pending log.
func (s *Session) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.State == StateWiped || s.st.State == StateAborted {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, s.st.State)
	}

	s.st.State = StateAborted
	s.logger.Info("session aborted")
	return s.persist()
}

func (s *Session) expect(states ...State) error {
	if slices.Contains(states, s.st.State) {
		return nil
	}
	return fmt.Errorf("%w: session is %s", ErrInvalidState, s.st.State)
}

func (s *Session) head(kind DecisionKind) (Decision, error) {
	if err := s.expect(StateAwaitingDecision); err != nil {
		return Decision{}, err
	}
	if len(s.st.Decisions) == 0 || s.st.Decisions[0].Kind != kind {
		return Decision{}, fmt.Errorf("%w: pending decision is not %s", ErrInvalidState, kind)
	}
	return s.st.Decisions[0], nil
}

func (s *Session) pop() {
	s.st.Decisions = s.st.Decisions[1:]
	s.advance()
}

func (s *Session) advance() {
	if len(s.st.Decisions) > 0 {
		s.st.State = StateAwaitingDecision
		return
	}
	s.st.Decisions = nil
	s.st.State = StatePrepared
}

func foldersOnRoute(b *flight.Batch, routeID string) []string {
	var folders []string
	for _, r := range b.Records {
		if r.RouteID == routeID {
			folders = append(folders, r.DirName)
		}
	}
	return folders
}

func indexOf(b *flight.Batch, uid uuid.UUID) int {
	return slices.IndexFunc(b.Records, func(r *flight.Record) bool { return r.UID == uid })
}

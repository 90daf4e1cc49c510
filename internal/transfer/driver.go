package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/survey-transfer/internal/flight"
	"github.com/roman-kulish/survey-transfer/internal/route"
)

type EditOp string

const (
	EditDone      EditOp = "done"
	EditMove      EditOp = "move"
	EditDuplicate EditOp = "duplicate"
	EditTrash     EditOp = "trash"
	EditSkyline   EditOp = "skyline"
)

// Edit is one manual override requested by the operator. To is unused by
// trash and skyline.
type Edit struct {
	Op   EditOp
	From int
	To   int
}

// Question is a yes/no confirmation asked by Drive.
type Question string

const (
	QuestionAbort  Question = "abort"
	QuestionCopy   Question = "copy"
	QuestionCommit Question = "commit"
	QuestionWipe   Question = "wipe"
)

// Operator answers the questions a session stops on.
type Operator interface {
	// DescribeRoute returns the descriptor for an unregistered route, or
	// false to decline it.
	DescribeRoute(ctx context.Context, d Decision) (string, bool, error)

	// AcceptDuplicate answers a duplicate panel suggestion.
	AcceptDuplicate(ctx context.Context, d Decision, b *flight.Batch) (bool, error)

	// NextEdit returns the next manual override, EditDone to stage the device.
	NextEdit(ctx context.Context, b *flight.Batch) (Edit, error)

	Confirm(ctx context.Context, q Question, report *CopyReport) (bool, error)
}

// Drive runs the session to completion, asking op whenever input is
// needed. It picks up wherever a restored session stopped.
func Drive(ctx context.Context, s *Session, op Operator, logger *slog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch s.State() {
		case StateIdle, StateStaged:
			if s.Remaining() == 0 {
				return finish(ctx, s, op, logger)
			}
			if err := s.Prepare(ctx); err != nil {
				if errors.Is(err, ErrInvalidState) {
					return err
				}
				logger.Error(err.Error())
			}

		case StateAwaitingDecision:
			if err := decide(ctx, s, op, logger); err != nil {
				return err
			}

		case StatePrepared, StateEditing:
			if err := edit(ctx, s, op, logger); err != nil {
				return err
			}

		case StateCopied, StateCommitted:
			return finish(ctx, s, op, logger)

		default:
			return fmt.Errorf("%w: session is %s", ErrInvalidState, s.State())
		}
	}
}

func decide(ctx context.Context, s *Session, op Operator, logger *slog.Logger) error {
	d, ok := s.Pending()
	if !ok {
		return fmt.Errorf("%w: no pending decision", ErrInvalidState)
	}

	switch d.Kind {
	case DecisionRegisterRoute:
		descriptor, accept, err := op.DescribeRoute(ctx, d)
		if err != nil {
			return err
		}
		if accept {
			if err = s.RegisterRoute(ctx, descriptor); err != nil && !errors.Is(err, route.ErrMalformedRouteDescriptor) {
				return err
			}
			return nil
		}

		if err = s.DeclineRoute(); s.State() == StateAborted {
			return err
		}
		abort, err := op.Confirm(ctx, QuestionAbort, nil)
		if err != nil {
			return err
		}
		if abort {
			if err = s.Abort(); err != nil {
				return err
			}
			return &route.UnregisteredRouteError{RouteID: d.RouteID}
		}
		return nil

	case DecisionDuplicatePanel:
		accept, err := op.AcceptDuplicate(ctx, d, s.Batch())
		if err != nil {
			return err
		}
		if accept {
			if err = s.AcceptSuggestion(); err != nil && !errors.Is(err, flight.ErrIndexOutOfRange) {
				return err
			}
			return nil
		}
		return s.RejectSuggestion()
	}

	logger.Warn("unknown decision, skipping", slog.String("kind", string(d.Kind)))
	return s.RejectSuggestion()
}

func edit(ctx context.Context, s *Session, op Operator, logger *slog.Logger) error {
	for {
		e, err := op.NextEdit(ctx, s.Batch())
		if err != nil {
			return err
		}

		switch e.Op {
		case EditDone:
			_, err = s.Confirm()
			return err
		case EditMove:
			_, err = s.Move(e.From, e.To)
		case EditDuplicate:
			_, err = s.Duplicate(e.From, e.To)
		case EditTrash:
			_, err = s.Trash(e.From)
		case EditSkyline:
			_, err = s.Skyline(e.From)
		default:
			logger.Warn("unknown edit, ignoring", slog.String("op", string(e.Op)))
		}
		if err != nil {
			return err
		}
	}
}

// finish copies, commits and wipes, each step only when the operator agrees.
func finish(ctx context.Context, s *Session, op Operator, logger *slog.Logger) error {
	if s.State() == StateStaged {
		ok, err := op.Confirm(ctx, QuestionCopy, nil)
		if err != nil || !ok {
			return err
		}
		report, err := s.Copy(ctx)
		if err != nil {
			return err
		}
		for _, f := range report.Failures() {
			logger.Error("folder not copied", slog.String("source", f.Task.Source), slog.String("error", f.Err))
		}
	}

	if s.State() == StateCopied {
		ok, err := op.Confirm(ctx, QuestionCommit, s.Report())
		if err != nil || !ok {
			return err
		}
		if _, err = s.Commit(ctx); err != nil {
			return err
		}
	}

	if s.State() == StateCommitted {
		if !s.Report().OK() {
			logger.Warn("some folders failed to copy, devices are left untouched")
			return nil
		}
		ok, err := op.Confirm(ctx, QuestionWipe, s.Report())
		if err != nil || !ok {
			return err
		}
		return s.Wipe(ctx)
	}
	return nil
}

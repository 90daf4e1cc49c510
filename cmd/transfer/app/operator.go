package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/survey-transfer/internal/flight"
	"github.com/roman-kulish/survey-transfer/internal/transfer"
)

// batchOperator answers without asking: new routes are declined, duplicate
// suggestions ignored, copy and commit always confirmed and the wipe only
// when enabled.
type batchOperator struct {
	wipe   bool
	logger *slog.Logger
}

func (o *batchOperator) DescribeRoute(_ context.Context, d transfer.Decision) (string, bool, error) {
	o.logger.Error("unregistered flight route in batch mode", slog.String("route", d.RouteID),
		slog.String("folders", strings.Join(d.Folders, ", ")))
	return "", false, nil
}

func (o *batchOperator) AcceptDuplicate(context.Context, transfer.Decision, *flight.Batch) (bool, error) {
	return false, nil
}

func (o *batchOperator) NextEdit(context.Context, *flight.Batch) (transfer.Edit, error) {
	return transfer.Edit{Op: transfer.EditDone}, nil
}

func (o *batchOperator) Confirm(_ context.Context, q transfer.Question, _ *transfer.CopyReport) (bool, error) {
	switch q {
	case transfer.QuestionCopy, transfer.QuestionCommit, transfer.QuestionAbort:
		return true, nil
	case transfer.QuestionWipe:
		return o.wipe, nil
	}
	return false, nil
}

// terminalOperator prompts on a terminal.
type terminalOperator struct {
	in  *bufio.Scanner
	out io.Writer
}

func newTerminalOperator(in io.Reader, out io.Writer) *terminalOperator {
	return &terminalOperator{in: bufio.NewScanner(in), out: out}
}

func (o *terminalOperator) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fmt.Fprint(o.out, prompt)
	if !o.in.Scan() {
		if err := o.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(o.in.Text()), nil
}

func (o *terminalOperator) yesNo(ctx context.Context, prompt string) (bool, error) {
	answer, err := o.ask(ctx, prompt+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (o *terminalOperator) DescribeRoute(ctx context.Context, d transfer.Decision) (string, bool, error) {
	fmt.Fprintf(o.out, "\nNew flight route %q used by: %s\n", d.RouteID, strings.Join(d.Folders, ", "))

	ok, err := o.yesNo(ctx, "Register it?")
	if err != nil || !ok {
		return "", false, err
	}

	descriptor, err := o.ask(ctx, "Describe it as 'name drone height type overlap1 overlap2': ")
	if err != nil {
		return "", false, err
	}
	return descriptor, true, nil
}

func (o *terminalOperator) AcceptDuplicate(ctx context.Context, d transfer.Decision, b *flight.Batch) (bool, error) {
	panel, ok := b.Lookup(d.Panel)
	if !ok {
		return false, nil
	}
	ms, ok := b.Lookup(d.Flight)
	if !ok {
		return false, nil
	}

	fmt.Fprintf(o.out, "\nMS flight %s has no reflectance panel. Nearest panel is %s (%s away).\n",
		ms.DirName, panel.DirName, d.Gap)
	return o.yesNo(ctx, "Duplicate the panel for it?")
}

func (o *terminalOperator) NextEdit(ctx context.Context, b *flight.Batch) (transfer.Edit, error) {
	o.printBatch(b)

	for {
		line, err := o.ask(ctx, "Edit (move F T, dupe F T, trash I, skyline I, done): ")
		if err != nil {
			return transfer.Edit{}, err
		}

		e, err := parseEdit(line)
		if err == nil {
			return e, nil
		}
		fmt.Fprintf(o.out, "  %s\n", err.Error())
	}
}

func (o *terminalOperator) Confirm(ctx context.Context, q transfer.Question, report *transfer.CopyReport) (bool, error) {
	switch q {
	case transfer.QuestionAbort:
		return o.yesNo(ctx, "Abort the run?")
	case transfer.QuestionCopy:
		return o.yesNo(ctx, "\nCopy all staged folders?")
	case transfer.QuestionCommit:
		if report != nil {
			fmt.Fprintf(o.out, "\nCopied %s, %d of %d folders failed.\n",
				humanize.Bytes(uint64(report.Bytes())), len(report.Failures()), len(report.Results))
		}
		return o.yesNo(ctx, "Commit the flight log?")
	case transfer.QuestionWipe:
		return o.yesNo(ctx, "\nWipe the source devices? This cannot be undone.")
	}
	return false, nil
}

func (o *terminalOperator) printBatch(b *flight.Batch) {
	fmt.Fprintln(o.out)
	w := tabwriter.NewWriter(o.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tfolder\ttype\troute\tstart\tend\tfiles\toutput")
	for i, r := range b.Records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			i, r.DirName, r.CaptureType, r.EffectiveRoute(), r.StartTime, r.EndTime, r.FileCount, r.OutputPath)
	}
	_ = w.Flush()
}

var errBadEdit = errors.New("unrecognized edit")

func parseEdit(line string) (transfer.Edit, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return transfer.Edit{}, errBadEdit
	}

	var op transfer.EditOp
	var want int
	switch fields[0] {
	case "done":
		return transfer.Edit{Op: transfer.EditDone}, nil
	case "move":
		op, want = transfer.EditMove, 2
	case "dupe", "duplicate":
		op, want = transfer.EditDuplicate, 2
	case "trash":
		op, want = transfer.EditTrash, 1
	case "skyline":
		op, want = transfer.EditSkyline, 1
	default:
		return transfer.Edit{}, fmt.Errorf("%w: %s", errBadEdit, fields[0])
	}

	if len(fields)-1 != want {
		return transfer.Edit{}, fmt.Errorf("%w: %s takes %d index(es)", errBadEdit, op, want)
	}

	idx := make([]int, want)
	for i := range idx {
		n, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return transfer.Edit{}, fmt.Errorf("%w: index %q is not a number", errBadEdit, fields[i+1])
		}
		idx[i] = n
	}

	e := transfer.Edit{Op: op, From: idx[0]}
	if want == 2 {
		e.To = idx[1]
	}
	return e, nil
}

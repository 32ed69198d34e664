package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"helixhub/internal/lifecycle"
	"helixhub/internal/output"
	"helixhub/internal/router"
	"helixhub/internal/stream"
	"helixhub/internal/workflow"
)

// operationFlags are shared by every streaming operation command.
type operationFlags struct {
	retries int
	dryRun  bool
}

func (f *operationFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.retries, "retry", 0, "retry the whole operation up to N times if it does not fully succeed")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "show what would be sent without calling the server")
}

func newOperationCommand(app *App, op router.Operation, short string) *cobra.Command {
	var flags operationFlags
	cmd := &cobra.Command{
		Use:   string(op) + " <client-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, app, op, args[0], lifecycle.Options{Retries: flags.retries}, flags.dryRun)
		},
	}
	flags.bind(cmd)
	return cmd
}

func newCCLDateCommand(app *App) *cobra.Command {
	var flags operationFlags
	cmd := &cobra.Command{
		Use:   "ccl-date <client-id> <YYYY-MM-DD>",
		Short: "Push a CCL date to every matter of a client",
		Long: `Push a CCL date to every matter of a client.

The notice status is left unchanged; the date is recorded locally once every
matter has been updated.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := lifecycle.Options{CCLDate: args[1], Retries: flags.retries}
			return runOperation(cmd, app, router.OpCCLDate, args[0], opts, flags.dryRun)
		},
	}
	flags.bind(cmd)
	return cmd
}

func runOperation(cmd *cobra.Command, app *App, op router.Operation, clientID string, opts lifecycle.Options, dryRun bool) error {
	if opts.Retries < 0 {
		return fmt.Errorf("--retry must not be negative")
	}

	exec := app.executor()
	printer := app.Printer

	if op == router.OpCCLDate {
		if err := lifecycle.ValidateCCLDate(opts.CCLDate); err != nil {
			printer.Banner(err)
			return NewExitError(1)
		}
	}

	plan, err := exec.Plan(op, clientID)
	if err != nil {
		printer.Banner(err)
		return NewExitError(1)
	}

	if dryRun {
		printer.Plan(string(op), clientID, string(plan.Transition.From), string(plan.Transition.Next),
			plan.Method, plan.URL, plan.Matters)
		return nil
	}

	printer.RunHeader(string(op), clientID, len(plan.Matters))
	exec.SetEventCallback(printer.Event)
	exec.SetAttemptCallback(printer.Attempt)

	outcome, err := exec.Execute(cmd.Context(), op, clientID, opts)
	if outcome == nil {
		printer.Banner(err)
		return NewExitError(1)
	}

	result := outcome.Result
	hint := output.HintFor(outcome.Committed, err == nil)
	switch {
	case err != nil:
		// The server committed but the local store did not.
		printer.Final(result.Table, serverTally(result), err.Error(), hint)
		return NewExitError(1)
	case outcome.Partial():
		printer.Final(result.Table, serverTally(result), partialReason(outcome), hint)
		return NewExitError(2)
	}

	printer.Final(result.Table, serverTally(result), "", hint)
	if outcome.NextStatus != "" {
		printer.Success("%s is now %s", clientID, outcome.NextStatus)
	} else if opts.CCLDate != "" {
		printer.Success("%s CCL date set to %s", clientID, opts.CCLDate)
	}
	return nil
}

// serverTally prefers the final tally over the last running one.
func serverTally(result *workflow.Result) *stream.Tally {
	if result.State.Summary != nil {
		return result.State.Summary
	}
	return result.Table.Tally()
}

// partialReason explains why a run that got a response was not committed.
func partialReason(o *lifecycle.Outcome) string {
	state := o.Result.State
	switch {
	case o.StreamErr != nil && errors.Is(o.StreamErr, context.Canceled):
		return "cancelled"
	case o.StreamErr != nil:
		return o.StreamErr.Error()
	case state.Errored:
		return state.ErrorMessage
	case !state.Complete:
		return "stream ended before completion"
	case state.Summary == nil:
		return "server did not report a tally"
	default:
		return fmt.Sprintf("%d of %d matters failed", state.Summary.Failed, state.Summary.Total)
	}
}

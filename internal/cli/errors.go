package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"codeberg.org/mentalblood/cnvyr/internal/store"
)

// NewErrorsCommand creates the errors command.
func NewErrorsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "errors",
		Short: "List failing operations from the error log",
		Long: `List failing operations from the error log.

Each row aggregates the failures of one operation sharing an error kind and
message. Rows disappear once the operation succeeds again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runErrors(rootOpts, cmd)
		},
	}
}

func runErrors(opts *RootOptions, cmd *cobra.Command) error {
	s, err := opts.openStore(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.Errors(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read error log", err)
	}

	return opts.formatter(cmd).Success(records, func(w io.Writer) {
		writeErrorsText(w, records, time.Now())
	})
}

func writeErrorsText(w io.Writer, records []store.ErrorRecord, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No errors recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tKIND\tCOUNT\tFIRST SEEN\tLAST SEEN\tMESSAGE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Operation, r.Kind, humanize.Comma(r.Count),
			humanize.RelTime(r.FirstSeen, now, "ago", "from now"),
			humanize.RelTime(r.LastSeen, now, "ago", "from now"),
			r.Message)
	}
	tw.Flush()
}

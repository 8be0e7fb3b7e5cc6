package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/mentalblood/cnvyr/internal/store"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <type> <id>",
		Short: "Show the audit trail of one item",
		Long: `Show the audit trail of one item: every field change, oldest first,
with the operation that made it.

Examples:
  cnvyr audit Document 42
  cnvyr audit Document 42 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runAudit(opts *RootOptions, cmd *cobra.Command, itemType, idArg string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid item id", err)
	}

	s, err := opts.openStore(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.AuditLog(cmd.Context(), itemType, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read audit log", err)
	}

	return opts.formatter(cmd).Success(entries, func(w io.Writer) {
		writeAuditText(w, itemType, id, entries)
	})
}

func writeAuditText(w io.Writer, itemType string, id int64, entries []store.LogEntry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No audit entries for %s %d\n", itemType, id)
		return
	}
	fmt.Fprintf(w, "Audit trail for %s %d (%d changes)\n\n", itemType, id, len(entries))
	for _, e := range entries {
		value := "null"
		if e.Value != nil {
			value = strconv.Quote(*e.Value)
		}
		fmt.Fprintf(w, "  %s  %-16s %s = %s\n",
			e.Datetime.Format(time.RFC3339), e.Operation, e.Key, value)
	}
}

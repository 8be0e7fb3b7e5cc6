package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// WipeOptions holds flags for the wipe command.
type WipeOptions struct {
	*RootOptions
	Yes bool
}

// NewWipeCommand creates the wipe command.
func NewWipeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WipeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Drop every table of the store",
		Long: `Drop every item table, both logs and the enum catalog.

Blobs on disk are left untouched. Requires --yes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWipe(opts, cmd)
		},
	}
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm dropping all data")
	return cmd
}

func runWipe(opts *WipeOptions, cmd *cobra.Command) error {
	if !opts.Yes {
		return NewExitError(ExitCommandError, "refusing to wipe without --yes")
	}

	s, err := opts.openStore(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Wipe(cmd.Context()); err != nil {
		return WrapExitError(ExitFailure, "failed to wipe store", err)
	}
	return opts.formatter(cmd).Success(map[string]bool{"wiped": true}, func(w io.Writer) {
		fmt.Fprintln(w, "Store wiped")
	})
}

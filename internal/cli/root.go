package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"codeberg.org/mentalblood/cnvyr/internal/blob"
	"codeberg.org/mentalblood/cnvyr/internal/config"
	"codeberg.org/mentalblood/cnvyr/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to a YAML config; defaults apply when empty
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cnvyr CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cnvyr",
		Short: "cnvyr - audited item persistence",
		Long:  "Inspect and maintain a cnvyr store: content-addressed blobs, the audit trail and the error log.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to config file")

	cmd.AddCommand(NewBlobCommand(opts))
	cmd.AddCommand(NewErrorsCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewWipeCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) loadConfig() (config.Config, error) {
	if o.Config == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(o.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

func (o *RootOptions) openStore(ctx context.Context, cmd *cobra.Command) (*store.Store, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	sc, err := cfg.Store()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid database config", err)
	}
	o.formatter(cmd).VerboseLog("Opening %s database %s", sc.Dialect.Name(), cfg.Redacted())
	s, err := store.Open(ctx, sc, store.WithLogger(o.logger(cmd.ErrOrStderr())))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return s, nil
}

func (o *RootOptions) openFiles() (*blob.Files, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	files, err := cfg.Files()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid blob config", err)
	}
	return files, nil
}

package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"codeberg.org/mentalblood/cnvyr/internal/blob"
)

// BlobResult describes one stored blob.
type BlobResult struct {
	Created    time.Time `json:"created"`
	Digest     string    `json:"digest"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
}

// NewBlobCommand creates the blob command group.
func NewBlobCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Store and fetch content-addressed blobs",
		Long: `Blobs are keyed by their creation second and the digest of their
content. Digests are printed and accepted as unpadded base64url.`,
	}
	cmd.AddCommand(newBlobPutCommand(rootOpts))
	cmd.AddCommand(newBlobGetCommand(rootOpts))
	return cmd
}

func newBlobPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <file>",
		Short: "Store a file as a blob and print its key",
		Long: `Store a file as a blob and print its key.

Use "-" to read from standard input.

Examples:
  cnvyr blob put report.xml
  cat report.xml | cnvyr blob put - --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlobPut(rootOpts, cmd, args[0])
		},
	}
}

func runBlobPut(opts *RootOptions, cmd *cobra.Command, path string) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	files, err := opts.openFiles()
	if err != nil {
		return err
	}

	created, digest, err := files.Save(cmd.Context(), data)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to save blob", err)
	}
	stored, err := files.Size(created, digest)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to stat blob", err)
	}

	result := BlobResult{
		Created:    created,
		Digest:     base64.RawURLEncoding.EncodeToString(digest),
		Path:       files.Path(created, digest),
		Size:       int64(len(data)),
		StoredSize: stored,
	}
	return opts.formatter(cmd).Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "created: %s\n", result.Created.Format(time.RFC3339))
		fmt.Fprintf(w, "digest:  %s\n", result.Digest)
		fmt.Fprintf(w, "path:    %s\n", result.Path)
		fmt.Fprintf(w, "size:    %s (%s stored, %s)\n",
			humanize.IBytes(uint64(result.Size)),
			humanize.IBytes(uint64(result.StoredSize)),
			files.Codec().Name())
	})
}

// BlobGetOptions holds flags for the blob get command.
type BlobGetOptions struct {
	*RootOptions
	Output string
}

func newBlobGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BlobGetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <created> <digest>",
		Short: "Fetch a blob, verifying its digest",
		Long: `Fetch a blob, verifying its digest.

created is the RFC 3339 timestamp printed by "blob put". The content is
written to standard output unless --output is given.

Exit codes:
  0 - blob written
  1 - blob missing or corrupted
  2 - bad arguments`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlobGet(opts, cmd, args[0], args[1])
		},
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the blob to a file")
	return cmd
}

func runBlobGet(opts *BlobGetOptions, cmd *cobra.Command, createdArg, digestArg string) error {
	created, err := time.Parse(time.RFC3339, createdArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid created timestamp", err)
	}
	digest, err := base64.RawURLEncoding.DecodeString(digestArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid digest", err)
	}

	files, err := opts.openFiles()
	if err != nil {
		return err
	}

	data, err := files.Load(cmd.Context(), created, digest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return WrapExitError(ExitFailure, "blob not found", err)
	case blob.IsDigestMismatch(err):
		return WrapExitError(ExitFailure, "blob corrupted", err)
	case err != nil:
		return WrapExitError(ExitFailure, "failed to load blob", err)
	}

	out := opts.formatter(cmd)
	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	out.VerboseLog("Wrote %s to %s", humanize.IBytes(uint64(len(data))), opts.Output)
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/blogchain/internal/archive"
)

// archiveView reports the objects moved by export or import.
type archiveView struct {
	Op   string `json:"op"`
	Path string `json:"path"`
	archive.Stats
}

func (v archiveView) String() string {
	s := fmt.Sprintf("%s %s: %d entries, %d actions", v.Op, v.Path, v.Entries, v.Actions)
	if v.Skipped > 0 {
		s += fmt.Sprintf(" (%d already present)", v.Skipped)
	}
	return s + "\n"
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export --out <file>",
		Short: "Write every stored object to an archive",
		Long: `Write every entry and action to a zstd-compressed CBOR archive.

Archives are portable between drivers that share a hash algorithm.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return NewExitError(ExitCommandError, "--out is required")
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				f := newFormatter(rootOpts, cmd)
				file, err := os.Create(out)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to create archive", err)
				}
				stats, err := archive.Export(ctx, s.backend, file)
				if cerr := file.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					os.Remove(out)
					return WrapExitError(ExitCommandError, "export failed", err)
				}
				f.VerboseLog("exported to %s", out)
				return f.Success(archiveView{Op: "exported", Path: out, Stats: stats})
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "archive file to write")

	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "import --in <file>",
		Short: "Load an archive into the store",
		Long: `Load an archive written by export. Every address is recomputed before
it is stored; objects already present are skipped.

Exit codes:
  0 - Imported
  1 - The archive is tampered or truncated
  2 - Command error (unreadable file, hash algorithm mismatch, store unavailable)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" {
				return NewExitError(ExitCommandError, "--in is required")
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				f := newFormatter(rootOpts, cmd)
				file, err := os.Open(in)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to open archive", err)
				}
				defer file.Close()

				stats, err := archive.Import(ctx, s.backend, file)
				if err != nil {
					if errors.Is(err, archive.ErrTampered) || errors.Is(err, archive.ErrTruncated) {
						f.Error("E_ARCHIVE", err.Error(), stats)
						return WrapExitError(ExitFailure, "import failed", err)
					}
					return WrapExitError(ExitCommandError, "import failed", err)
				}
				return f.Success(archiveView{Op: "imported", Path: in, Stats: stats})
			})
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "archive file to read")

	return cmd
}

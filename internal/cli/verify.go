package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/blogchain/internal/store"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every stored address and reference",
		Long: `Re-hash every stored entry and action and check that each action's
references point at objects of the right shape. The store is not modified.

Exit codes:
  0 - No problems found
  1 - One or more problems found
  2 - Command error (config, store unavailable)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				f := newFormatter(rootOpts, cmd)
				report, err := store.Verify(ctx, s.backend)
				if err != nil {
					return f.Fail("verify failed", err)
				}
				if report.OK() {
					return f.Success(verifyView{report})
				}

				msg := fmt.Sprintf("%d problem(s) found", len(report.Problems))
				if f.Format == "json" {
					if err := f.Error("E_VERIFY", msg, report); err != nil {
						return err
					}
				} else {
					fmt.Fprint(f.Writer, verifyView{report}.String())
				}
				return NewExitError(ExitFailure, msg)
			})
		},
	}
}

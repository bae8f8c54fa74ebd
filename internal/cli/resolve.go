package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/blogchain/internal/chain"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Step bool // single hop only
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <address>",
		Short: "Walk an action's chain to its current state",
		Long: `Walk the chain from an action to its head.

The result state is one of live, deleted, forked or not_found. With --step
only one hop is taken and the hop kind is printed instead.

Exit codes:
  0 - Resolved (any state)
  1 - The address holds something other than an action
  2 - Command error (config, store unavailable, chain too deep)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				f := newFormatter(rootOpts, cmd)
				if opts.Step {
					st, err := s.service.Step(ctx, addr)
					if err != nil {
						return f.Fail("step failed", err)
					}
					return f.Success(stepView{st})
				}
				res, err := s.service.Resolve(ctx, addr)
				if err != nil {
					return f.Fail("resolve failed", err)
				}
				return f.Success(resolutionView{res})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Step, "step", false, "take a single hop")

	return cmd
}

// NewDetailsCommand creates the details command.
func NewDetailsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "details <address>",
		Short: "Show a record and the records one hop away",
		Long: `Show the record at an address with its direct neighbours.

For an action: the updates and deletes that name it as predecessor.
For an entry: the actions that carry it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				f := newFormatter(rootOpts, cmd)
				d, err := s.service.Details(ctx, addr)
				if err != nil {
					return f.Fail("details failed", err)
				}
				if d == nil {
					return f.Fail("details failed",
						chain.NewError(chain.CodeNotFound, "details", addr, "nothing stored at address", nil))
				}
				return f.Success(newDetailsView(d))
			})
		},
	}
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/blogchain/internal/blog"
	"github.com/roach88/blogchain/internal/chain"
	"github.com/roach88/blogchain/internal/ir"
)

// payloadFlags holds the field flags of both kinds.
type payloadFlags struct {
	Title  string
	Body   string
	Text   string
	Target string
}

// entryCommands binds one entry kind's service methods to subcommands.
type entryCommands struct {
	noun   string
	flags  func(cmd *cobra.Command, p *payloadFlags)
	create func(ctx context.Context, svc *blog.Service, p payloadFlags) (ir.Record, error)
	update func(ctx context.Context, svc *blog.Service, prev ir.Address, p payloadFlags) (ir.Record, error)

	getOriginal func(*blog.Service, context.Context, ir.Address) (*ir.Record, error)
	latest      func(*blog.Service, context.Context, ir.Address) (*ir.Record, error)
	revisions   func(*blog.Service, context.Context, ir.Address) ([]ir.Record, error)
	deletes     func(*blog.Service, context.Context, ir.Address) ([]ir.Record, error)
	remove      func(*blog.Service, context.Context, ir.Address) (ir.Address, error)
}

var postCommands = entryCommands{
	noun: "post",
	flags: func(cmd *cobra.Command, p *payloadFlags) {
		cmd.Flags().StringVar(&p.Title, "title", "", "post title (required)")
		cmd.Flags().StringVar(&p.Body, "body", "", "post body")
	},
	create: func(ctx context.Context, svc *blog.Service, p payloadFlags) (ir.Record, error) {
		return svc.CreatePost(ctx, blog.Post{Title: p.Title, Body: p.Body})
	},
	update: func(ctx context.Context, svc *blog.Service, prev ir.Address, p payloadFlags) (ir.Record, error) {
		return svc.UpdatePost(ctx, prev, blog.Post{Title: p.Title, Body: p.Body})
	},
	getOriginal: (*blog.Service).GetOriginalPost,
	latest:      (*blog.Service).GetLatestPost,
	revisions:   (*blog.Service).GetPostRevisions,
	deletes:     (*blog.Service).GetPostDeletes,
	remove:      (*blog.Service).DeletePost,
}

var commentCommands = entryCommands{
	noun: "comment",
	flags: func(cmd *cobra.Command, p *payloadFlags) {
		cmd.Flags().StringVar(&p.Text, "text", "", "comment text (required)")
		cmd.Flags().StringVar(&p.Target, "target", "", "address of the post action commented on (required)")
	},
	create: func(ctx context.Context, svc *blog.Service, p payloadFlags) (ir.Record, error) {
		return svc.CreateComment(ctx, blog.Comment{Text: p.Text, Target: ir.Address(p.Target)})
	},
	update: func(ctx context.Context, svc *blog.Service, prev ir.Address, p payloadFlags) (ir.Record, error) {
		return svc.UpdateComment(ctx, prev, blog.Comment{Text: p.Text, Target: ir.Address(p.Target)})
	},
	getOriginal: (*blog.Service).GetOriginalComment,
	latest:      (*blog.Service).GetLatestComment,
	revisions:   (*blog.Service).GetCommentRevisions,
	deletes:     (*blog.Service).GetCommentDeletes,
	remove:      (*blog.Service).DeleteComment,
}

// NewPostCommand creates the post command group.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	return postCommands.command(rootOpts)
}

// NewCommentCommand creates the comment command group.
func NewCommentCommand(rootOpts *RootOptions) *cobra.Command {
	return commentCommands.command(rootOpts)
}

func (ec entryCommands) command(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   ec.noun,
		Short: fmt.Sprintf("Create, read, update and delete %ss", ec.noun),
	}
	cmd.AddCommand(
		ec.createCommand(rootOpts),
		ec.updateCommand(rootOpts),
		ec.deleteCommand(rootOpts),
		ec.readCommand(rootOpts, "get", "Show the record at an address", ec.getOriginal, true),
		ec.readCommand(rootOpts, "latest", "Resolve an address to the current revision", ec.latest, false),
		ec.listCommand(rootOpts, "history", "List revisions from an address to its head", ec.revisions),
		ec.listCommand(rootOpts, "deletes", "List deletes targeting an address", ec.deletes),
	)
	return cmd
}

func (ec entryCommands) createCommand(rootOpts *RootOptions) *cobra.Command {
	var p payloadFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: fmt.Sprintf("Create a %s", ec.noun),
		Long: fmt.Sprintf(`Create a %s. The printed address is the %s's original address.

Exit codes:
  0 - Created
  1 - Validation failed or a referenced address was not found
  2 - Command error (config, store unavailable)`, ec.noun, ec.noun),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				f := newFormatter(rootOpts, cmd)
				rec, err := ec.create(ctx, s.service, p)
				if err != nil {
					return f.Fail(fmt.Sprintf("create %s failed", ec.noun), err)
				}
				return f.Success(recordView{rec})
			})
		},
	}
	ec.flags(cmd, &p)
	return cmd
}

func (ec entryCommands) updateCommand(rootOpts *RootOptions) *cobra.Command {
	var p payloadFlags
	cmd := &cobra.Command{
		Use:   "update <previous>",
		Short: fmt.Sprintf("Append a revision of a %s", ec.noun),
		Long: fmt.Sprintf(`Append a revision superseding the action at <previous>.

Updating an action that already has a revision forks the %s; reads then
report the fork instead of picking a side.`, ec.noun),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				f := newFormatter(rootOpts, cmd)
				rec, err := ec.update(ctx, s.service, prev, p)
				if err != nil {
					return f.Fail(fmt.Sprintf("update %s failed", ec.noun), err)
				}
				return f.Success(recordView{rec})
			})
		},
	}
	ec.flags(cmd, &p)
	return cmd
}

func (ec entryCommands) deleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <address>",
		Short:         fmt.Sprintf("Append a delete of a %s", ec.noun),
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
				del, err := ec.remove(s.service, ctx, addr)
				if err != nil {
					return f.Fail(fmt.Sprintf("delete %s failed", ec.noun), err)
				}
				return f.Success(addressView{Address: del})
			})
		},
	}
}

// readCommand wraps a single-record read. A nil record is reported as
// NOT_FOUND; for latest that covers deleted records too.
func (ec entryCommands) readCommand(rootOpts *RootOptions, use, short string,
	read func(*blog.Service, context.Context, ir.Address) (*ir.Record, error), original bool) *cobra.Command {
	return &cobra.Command{
		Use:           use + " <address>",
		Short:         short,
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
				rec, err := read(s.service, ctx, addr)
				if err != nil {
					return f.Fail(fmt.Sprintf("%s %s failed", ec.noun, use), err)
				}
				if rec == nil {
					msg := fmt.Sprintf("no %s at %s", ec.noun, addr)
					if !original {
						msg = fmt.Sprintf("%s at %s is deleted or unknown", ec.noun, addr)
					}
					return f.Fail(fmt.Sprintf("%s %s failed", ec.noun, use),
						chain.NewError(chain.CodeNotFound, use, addr, msg, nil))
				}
				return f.Success(recordView{*rec})
			})
		},
	}
}

func (ec entryCommands) listCommand(rootOpts *RootOptions, use, short string,
	list func(*blog.Service, context.Context, ir.Address) ([]ir.Record, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use + " <address>",
		Short:         short,
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
				recs, err := list(s.service, ctx, addr)
				if err != nil {
					return f.Fail(fmt.Sprintf("%s %s failed", ec.noun, use), err)
				}
				return f.Success(recordsView(recs))
			})
		},
	}
}

// parseAddressArg rejects malformed addresses before a store is opened.
func parseAddressArg(s string) (ir.Address, error) {
	addr, err := ir.ParseAddress(s)
	if err != nil {
		return "", WrapExitError(ExitCommandError, fmt.Sprintf("invalid address %q", s), err)
	}
	return addr, nil
}

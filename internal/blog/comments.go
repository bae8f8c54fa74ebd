package blog

import (
	"context"

	"github.com/roach88/blogchain/internal/ir"
)

// CreateComment stores a new comment and returns its confirmed record. The
// record's address is the comment's original address.
func (s *Service) CreateComment(ctx context.Context, c Comment) (ir.Record, error) {
	return create(ctx, s, commentKind, c)
}

// GetOriginalComment returns the record at addr, or nil if addr is unknown.
func (s *Service) GetOriginalComment(ctx context.Context, addr ir.Address) (*ir.Record, error) {
	return getOriginal(ctx, s, commentKind, addr)
}

// UpdateComment appends a revision superseding previous.
func (s *Service) UpdateComment(ctx context.Context, previous ir.Address, c Comment) (ir.Record, error) {
	return update(ctx, s, commentKind, previous, c)
}

// DeleteComment appends a delete targeting addr and returns its address.
func (s *Service) DeleteComment(ctx context.Context, addr ir.Address) (ir.Address, error) {
	return remove(ctx, s, commentKind, addr)
}

// GetLatestComment returns the current revision reachable from addr, or nil
// if addr is unknown or the comment was deleted. A forked comment fails with
// chain.ErrForked.
func (s *Service) GetLatestComment(ctx context.Context, addr ir.Address) (*ir.Record, error) {
	return latest(ctx, s, commentKind, addr)
}

// GetCommentRevisions returns the chain from addr up to its head, deletion
// point or fork point.
func (s *Service) GetCommentRevisions(ctx context.Context, addr ir.Address) ([]ir.Record, error) {
	return revisions(ctx, s, commentKind, addr)
}

// GetCommentDeletes returns the deletes targeting addr.
func (s *Service) GetCommentDeletes(ctx context.Context, addr ir.Address) ([]ir.Record, error) {
	return deletes(ctx, s, commentKind, addr)
}

// DecodeComment extracts the comment payload from a record.
func DecodeComment(rec ir.Record) (Comment, error) {
	return decode(commentKind, rec)
}

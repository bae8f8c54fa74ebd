package blog

import (
	"context"

	"github.com/roach88/blogchain/internal/ir"
)

// CreatePost stores a new post and returns its confirmed record. The
// record's address is the post's original address.
func (s *Service) CreatePost(ctx context.Context, p Post) (ir.Record, error) {
	return create(ctx, s, postKind, p)
}

// GetOriginalPost returns the record at addr, or nil if addr is unknown.
func (s *Service) GetOriginalPost(ctx context.Context, addr ir.Address) (*ir.Record, error) {
	return getOriginal(ctx, s, postKind, addr)
}

// UpdatePost appends a revision superseding previous.
func (s *Service) UpdatePost(ctx context.Context, previous ir.Address, p Post) (ir.Record, error) {
	return update(ctx, s, postKind, previous, p)
}

// DeletePost appends a delete targeting addr and returns its address.
func (s *Service) DeletePost(ctx context.Context, addr ir.Address) (ir.Address, error) {
	return remove(ctx, s, postKind, addr)
}

// GetLatestPost returns the current revision reachable from addr, or nil
// if addr is unknown or the post was deleted. A forked post fails with
// chain.ErrForked.
func (s *Service) GetLatestPost(ctx context.Context, addr ir.Address) (*ir.Record, error) {
	return latest(ctx, s, postKind, addr)
}

// GetPostRevisions returns the chain from addr up to its head, deletion
// point or fork point.
func (s *Service) GetPostRevisions(ctx context.Context, addr ir.Address) ([]ir.Record, error) {
	return revisions(ctx, s, postKind, addr)
}

// GetPostDeletes returns the deletes targeting addr.
func (s *Service) GetPostDeletes(ctx context.Context, addr ir.Address) ([]ir.Record, error) {
	return deletes(ctx, s, postKind, addr)
}

// DecodePost extracts the post payload from a record.
func DecodePost(rec ir.Record) (Post, error) {
	return decode(postKind, rec)
}

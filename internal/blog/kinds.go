package blog

import (
	"context"

	"github.com/roach88/blogchain/internal/ir"
)

// Post is the payload of a post entry.
type Post struct {
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body,omitempty" yaml:"body,omitempty"`
}

// Comment is the payload of a comment entry. Target is the address of the
// post action the comment is attached to.
type Comment struct {
	Text   string     `json:"text" yaml:"text"`
	Target ir.Address `json:"target" yaml:"target"`
}

// kind describes how one payload type maps onto entries.
type kind[T any] struct {
	name   ir.EntryKind
	fields func(T) ir.Object
	decode func(ir.Object) T

	// check runs reference checks that need the store. Optional.
	check func(ctx context.Context, s *Service, op string, payload T) error
}

var postKind = kind[Post]{
	name: ir.KindPost,
	fields: func(p Post) ir.Object {
		obj := ir.Object{"title": ir.String(p.Title)}
		if p.Body != "" {
			obj["body"] = ir.String(p.Body)
		}
		return obj
	},
	decode: func(obj ir.Object) Post {
		return Post{Title: obj.Str("title"), Body: obj.Str("body")}
	},
}

var commentKind = kind[Comment]{
	name: ir.KindComment,
	fields: func(c Comment) ir.Object {
		return ir.Object{"text": ir.String(c.Text), "target": ir.String(c.Target)}
	},
	decode: func(obj ir.Object) Comment {
		return Comment{Text: obj.Str("text"), Target: ir.Address(obj.Str("target"))}
	},
	check: func(ctx context.Context, s *Service, op string, c Comment) error {
		_, err := s.requireAction(ctx, op, c.Target, ir.KindPost)
		return err
	},
}

// Package harness runs YAML scenarios against the entry operations.
//
// Each scenario executes on a fresh memory store with a deterministic clock
// and a fixed agent, so the same scenario always produces the same
// addresses. Traces name addresses by alias rather than by hash.
//
// # Scenario Format
//
//	name: post_lifecycle
//	description: "Create, revise and delete a post"
//	hash_algorithm: sha256      # optional
//	author: some-agent          # optional
//	steps:
//	  - op: create_post
//	    as: p1
//	    post: { title: A, body: B }
//	  - op: update_post
//	    ref: p1
//	    as: p2
//	    post: { title: A2 }
//	  - op: resolve
//	    ref: p1
//	    expect: { state: live, head: p2, hops: 1 }
//	  - op: delete_post
//	    ref: 0000000000000000000000000000000000000000000000000000000000000000
//	    expect: { error: NOT_FOUND }
//	assertions:
//	  - type: trace_count
//	    op: create_post
//	    count: 1
//	  - type: store_count
//	    actions: 2
//
// A ref is an alias bound by an earlier step's "as", "entry:<alias>" for
// the entry that action carries, or a literal address. A comment's target
// may be an alias too. Addresses reached without an alias are shown as
// "$1", "$2" and so on.
//
// A step without an expect clause must succeed. With one, "error" names the
// expected chain error code and every other field is compared against the
// step's result.
//
// # Assertion Types
//
//   - trace_contains: some step ran op, optionally on ref, optionally with outcome
//   - trace_order: the aliases were bound in the given order
//   - trace_count: op ran exactly count times
//   - store_count: the store holds exactly this many entries and/or actions
//
// # Golden Traces
//
// RunWithGolden compares the canonical JSON trace with
// testdata/golden/<name>.golden using goldie.
package harness

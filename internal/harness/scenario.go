package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/blogchain/internal/blog"
	"github.com/roach88/blogchain/internal/ir"
)

// Scenario is a scripted sequence of entry operations with expectations
// on each step and assertions on the final trace and store.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Author overrides the store agent. Defaults to testutil.FixedAgent.
	Author string `yaml:"author,omitempty"`

	// HashAlgorithm selects the address digest. Defaults to sha256.
	HashAlgorithm ir.HashAlgorithm `yaml:"hash_algorithm,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step invokes one operation.
//
// Ref names the operation's input address: the previous revision for an
// update, the target of a delete, the subject of a read. It is an alias
// bound by an earlier step's As, "entry:<alias>" for the entry carried by
// that action, or a literal 64-character address.
type Step struct {
	Op      string        `yaml:"op"`
	As      string        `yaml:"as,omitempty"`
	Ref     string        `yaml:"ref,omitempty"`
	Post    *blog.Post    `yaml:"post,omitempty"`
	Comment *blog.Comment `yaml:"comment,omitempty"`
	Expect  *Expect       `yaml:"expect,omitempty"`
}

// Expect checks a step's outcome. Unset fields are not checked. Address
// fields hold aliases.
type Expect struct {
	// Error is the expected chain error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	Found      *bool          `yaml:"found,omitempty"`
	Fields     map[string]any `yaml:"fields,omitempty"`
	State      string         `yaml:"state,omitempty"`
	Head       string         `yaml:"head,omitempty"`
	Hops       *int           `yaml:"hops,omitempty"`
	Next       string         `yaml:"next,omitempty"`
	Path       []string       `yaml:"path,omitempty"`
	Candidates []string       `yaml:"candidates,omitempty"`
	Updates    []string       `yaml:"updates,omitempty"`
	Deletes    []string       `yaml:"deletes,omitempty"`
	Actions    []string       `yaml:"actions,omitempty"`
}

// Operations a step can invoke.
const (
	OpCreatePost         = "create_post"
	OpGetOriginalPost    = "get_original_post"
	OpUpdatePost         = "update_post"
	OpDeletePost         = "delete_post"
	OpLatestPost         = "get_latest_post"
	OpPostRevisions      = "get_post_revisions"
	OpPostDeletes        = "get_post_deletes"
	OpCreateComment      = "create_comment"
	OpGetOriginalComment = "get_original_comment"
	OpUpdateComment      = "update_comment"
	OpDeleteComment      = "delete_comment"
	OpLatestComment      = "get_latest_comment"
	OpCommentRevisions   = "get_comment_revisions"
	OpCommentDeletes     = "get_comment_deletes"
	OpResolve            = "resolve"
	OpStep               = "step"
	OpDetails            = "details"
)

// opShape describes what a step must carry for an operation.
type opShape struct {
	kind  ir.EntryKind // payload kind, empty when no payload
	ref   bool         // needs Ref
	binds bool         // may bind As
}

var ops = map[string]opShape{
	OpCreatePost:         {kind: ir.KindPost, binds: true},
	OpGetOriginalPost:    {ref: true},
	OpUpdatePost:         {kind: ir.KindPost, ref: true, binds: true},
	OpDeletePost:         {ref: true, binds: true},
	OpLatestPost:         {ref: true},
	OpPostRevisions:      {ref: true},
	OpPostDeletes:        {ref: true},
	OpCreateComment:      {kind: ir.KindComment, binds: true},
	OpGetOriginalComment: {ref: true},
	OpUpdateComment:      {kind: ir.KindComment, ref: true, binds: true},
	OpDeleteComment:      {ref: true, binds: true},
	OpLatestComment:      {ref: true},
	OpCommentRevisions:   {ref: true},
	OpCommentDeletes:     {ref: true},
	OpResolve:            {ref: true},
	OpStep:               {ref: true},
	OpDetails:            {ref: true},
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := ir.NewHasher(s.HashAlgorithm); err != nil {
		return err
	}

	bound := make(map[string]bool)
	for i, step := range s.Steps {
		shape, ok := ops[step.Op]
		if !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if shape.ref && step.Ref == "" {
			return fmt.Errorf("steps[%d]: ref is required for %s", i, step.Op)
		}
		if !shape.ref && step.Ref != "" {
			return fmt.Errorf("steps[%d]: %s takes no ref", i, step.Op)
		}
		switch shape.kind {
		case ir.KindPost:
			if step.Post == nil || step.Comment != nil {
				return fmt.Errorf("steps[%d]: %s needs a post payload", i, step.Op)
			}
		case ir.KindComment:
			if step.Comment == nil || step.Post != nil {
				return fmt.Errorf("steps[%d]: %s needs a comment payload", i, step.Op)
			}
		default:
			if step.Post != nil || step.Comment != nil {
				return fmt.Errorf("steps[%d]: %s takes no payload", i, step.Op)
			}
		}
		if step.As != "" {
			if !shape.binds {
				return fmt.Errorf("steps[%d]: %s does not produce an address to bind", i, step.Op)
			}
			if strings.ContainsAny(step.As, ":$") {
				return fmt.Errorf("steps[%d]: alias %q may not contain ':' or '$'", i, step.As)
			}
			if bound[step.As] {
				return fmt.Errorf("steps[%d]: alias %q already bound", i, step.As)
			}
			bound[step.As] = true
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Aliases) < 2 {
			return fmt.Errorf("assertions[%d]: at least two aliases are required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertStoreCount:
		if a.Entries == nil && a.Actions == nil {
			return fmt.Errorf("assertions[%d]: entries or actions is required for store_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

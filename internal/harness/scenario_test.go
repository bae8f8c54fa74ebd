package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blogchain/internal/ir"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	content := `
name: simple
description: "one post"
hash_algorithm: blake3
steps:
  - op: create_post
    as: p1
    post: { title: Hi, body: there }
  - op: resolve
    ref: p1
    expect: { state: live, hops: 0 }
assertions:
  - type: trace_count
    op: create_post
    count: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "simple", scenario.Name)
	assert.Equal(t, ir.BLAKE3, scenario.HashAlgorithm)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, "Hi", scenario.Steps[0].Post.Title)
	assert.Equal(t, "there", scenario.Steps[0].Post.Body)
	require.NotNil(t, scenario.Steps[1].Expect)
	require.NotNil(t, scenario.Steps[1].Expect.Hops)
	assert.Equal(t, 0, *scenario.Steps[1].Expect.Hops)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		_, err := LoadScenario(path)
		assert.NoError(t, err, path)
	}
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\nstep: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			yaml:    "steps:\n  - op: create_post\n    post: { title: a }\n",
			wantErr: "name is required",
		},
		{
			name:    "no steps",
			yaml:    "name: x\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown op",
			yaml:    "name: x\nsteps:\n  - op: publish\n",
			wantErr: `unknown op "publish"`,
		},
		{
			name:    "missing ref",
			yaml:    "name: x\nsteps:\n  - op: resolve\n",
			wantErr: "ref is required for resolve",
		},
		{
			name:    "ref on create",
			yaml:    "name: x\nsteps:\n  - op: create_post\n    ref: a\n    post: { title: a }\n",
			wantErr: "create_post takes no ref",
		},
		{
			name:    "wrong payload",
			yaml:    "name: x\nsteps:\n  - op: create_post\n    comment: { text: a }\n",
			wantErr: "needs a post payload",
		},
		{
			name:    "payload on read",
			yaml:    "name: x\nsteps:\n  - op: create_post\n    as: a\n    post: { title: a }\n  - op: details\n    ref: a\n    post: { title: b }\n",
			wantErr: "details takes no payload",
		},
		{
			name:    "alias on read",
			yaml:    "name: x\nsteps:\n  - op: create_post\n    as: a\n    post: { title: a }\n  - op: details\n    ref: a\n    as: b\n",
			wantErr: "does not produce an address",
		},
		{
			name:    "duplicate alias",
			yaml:    "name: x\nsteps:\n  - op: create_post\n    as: a\n    post: { title: a }\n  - op: create_post\n    as: a\n    post: { title: b }\n",
			wantErr: `alias "a" already bound`,
		},
		{
			name:    "reserved alias",
			yaml:    "name: x\nsteps:\n  - op: create_post\n    as: entry:a\n    post: { title: a }\n",
			wantErr: "may not contain",
		},
		{
			name:    "unknown hash",
			yaml:    "name: x\nhash_algorithm: md5\nsteps:\n  - op: create_post\n    post: { title: a }\n",
			wantErr: "unknown hash algorithm",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\nsteps:\n  - op: create_post\n    post: { title: a }\nassertions:\n  - type: final_state\n",
			wantErr: `unknown assertion type "final_state"`,
		},
		{
			name:    "store_count without totals",
			yaml:    "name: x\nsteps:\n  - op: create_post\n    post: { title: a }\nassertions:\n  - type: store_count\n",
			wantErr: "entries or actions is required",
		},
		{
			name:    "trace_order with one alias",
			yaml:    "name: x\nsteps:\n  - op: create_post\n    post: { title: a }\nassertions:\n  - type: trace_order\n    aliases: [a]\n",
			wantErr: "at least two aliases",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Regenerate with: go test ./internal/harness -run TestGoldenScenarios -update
func TestGoldenScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalTrace_Canonical(t *testing.T) {
	result := NewResult()
	result.AddEvent(TraceEvent{
		Index:   1,
		Op:      OpCreatePost,
		As:      "p1",
		Outcome: OutcomeOK,
		Result:  map[string]any{"seq": int64(1), "address": "p1"},
	})
	result.AddEvent(TraceEvent{Index: 2, Op: OpDeletePost, Ref: "p9", Outcome: "NOT_FOUND"})

	data, err := MarshalTrace("t", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"t","trace":[`+
			`{"as":"p1","index":1,"op":"create_post","outcome":"ok","result":{"address":"p1","seq":1}},`+
			`{"index":2,"op":"delete_post","outcome":"NOT_FOUND","ref":"p9"}]}`,
		string(data))
}

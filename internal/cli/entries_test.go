package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

type jsonRecord struct {
	Address string `json:"address"`
	Action  *struct {
		Type         string `json:"type"`
		Seq          int64  `json:"seq"`
		EntryKind    string `json:"entry_kind"`
		EntryAddress string `json:"entry_address"`
		Predecessor  string `json:"predecessor"`
	} `json:"action"`
	Entry *struct {
		Kind   string         `json:"kind"`
		Fields map[string]any `json:"fields"`
	} `json:"entry"`
}

// cliRunner runs blogchain against one sqlite file with JSON output.
type cliRunner struct {
	t  *testing.T
	db string
}

func newCLI(t *testing.T) *cliRunner {
	return &cliRunner{t: t, db: filepath.Join(t.TempDir(), "blog.db")}
}

func (c *cliRunner) run(args ...string) (jsonResponse, error) {
	c.t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", c.db, "--format", "json"}, args...))
	err := cmd.Execute()

	var resp jsonResponse
	if out.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(out.Bytes(), &resp), out.String())
	}
	return resp, err
}

func (c *cliRunner) ok(target any, args ...string) {
	c.t.Helper()
	resp, err := c.run(args...)
	require.NoError(c.t, err)
	require.Equal(c.t, "ok", resp.Status)
	if target != nil {
		require.NoError(c.t, json.Unmarshal(resp.Data, target))
	}
}

func (c *cliRunner) fails(wantCode string, wantExit int, args ...string) jsonResponse {
	c.t.Helper()
	resp, err := c.run(args...)
	require.Error(c.t, err)
	assert.Equal(c.t, wantExit, GetExitCode(err))
	require.NotNil(c.t, resp.Error)
	assert.Equal(c.t, wantCode, resp.Error.Code)
	return resp
}

func TestPostLifecycle(t *testing.T) {
	c := newCLI(t)

	var created jsonRecord
	c.ok(&created, "post", "create", "--title", "First", "--body", "hello")
	require.NotNil(t, created.Action)
	assert.Equal(t, "create", created.Action.Type)
	assert.Equal(t, int64(1), created.Action.Seq)
	assert.Equal(t, "First", created.Entry.Fields["title"])

	var original jsonRecord
	c.ok(&original, "post", "get", created.Address)
	assert.Equal(t, created.Address, original.Address)

	var updated jsonRecord
	c.ok(&updated, "post", "update", created.Address, "--title", "First, edited")
	assert.Equal(t, "update", updated.Action.Type)
	assert.Equal(t, created.Address, updated.Action.Predecessor)
	assert.Equal(t, int64(2), updated.Action.Seq, "seq continues across invocations")

	var head jsonRecord
	c.ok(&head, "post", "latest", created.Address)
	assert.Equal(t, updated.Address, head.Address)
	assert.Equal(t, "First, edited", head.Entry.Fields["title"])
	_, hasBody := head.Entry.Fields["body"]
	assert.False(t, hasBody)

	var history []jsonRecord
	c.ok(&history, "post", "history", created.Address)
	require.Len(t, history, 2)
	assert.Equal(t, created.Address, history[0].Address)
	assert.Equal(t, updated.Address, history[1].Address)

	var del struct {
		Address string `json:"address"`
	}
	c.ok(&del, "post", "delete", updated.Address)
	require.NotEmpty(t, del.Address)

	c.fails("NOT_FOUND", ExitFailure, "post", "latest", created.Address)

	var deletes []jsonRecord
	c.ok(&deletes, "post", "deletes", updated.Address)
	require.Len(t, deletes, 1)
	assert.Equal(t, del.Address, deletes[0].Address)
	assert.Equal(t, "delete", deletes[0].Action.Type)
	assert.Nil(t, deletes[0].Entry)

	// History survives the delete.
	c.ok(&original, "post", "get", created.Address)
	assert.Equal(t, "First", original.Entry.Fields["title"])
}

func TestPostForkReportsCandidates(t *testing.T) {
	c := newCLI(t)

	var p1, a, b jsonRecord
	c.ok(&p1, "post", "create", "--title", "root")
	c.ok(&a, "post", "update", p1.Address, "--title", "left")
	c.ok(&b, "post", "update", p1.Address, "--title", "right")

	resp := c.fails("FORKED", ExitFailure, "post", "latest", p1.Address)
	assert.Equal(t, map[string]any{"candidates": []any{a.Address, b.Address}}, resp.Error.Details)

	var res struct {
		State string   `json:"state"`
		Forks []string `json:"forks"`
		Hops  int      `json:"hops"`
	}
	c.ok(&res, "resolve", p1.Address)
	assert.Equal(t, "forked", res.State)
	assert.Equal(t, []string{a.Address, b.Address}, res.Forks)
	assert.Equal(t, 0, res.Hops)

	var step struct {
		Kind       string   `json:"kind"`
		Candidates []string `json:"candidates"`
	}
	c.ok(&step, "resolve", "--step", p1.Address)
	assert.Equal(t, "forked", step.Kind)
	assert.Equal(t, []string{a.Address, b.Address}, step.Candidates)

	var details struct {
		Kind    string       `json:"kind"`
		Updates []jsonRecord `json:"updates"`
	}
	c.ok(&details, "details", p1.Address)
	assert.Equal(t, "action", details.Kind)
	require.Len(t, details.Updates, 2)
}

func TestResolveLiveChain(t *testing.T) {
	c := newCLI(t)

	var p1, p2 jsonRecord
	c.ok(&p1, "post", "create", "--title", "v1")
	c.ok(&p2, "post", "update", p1.Address, "--title", "v2")

	var res struct {
		State string   `json:"state"`
		Path  []string `json:"path"`
		Hops  int      `json:"hops"`
		Head  jsonRecord
	}
	c.ok(&res, "resolve", p1.Address)
	assert.Equal(t, "live", res.State)
	assert.Equal(t, []string{p1.Address, p2.Address}, res.Path)
	assert.Equal(t, 1, res.Hops)

	var step struct {
		Kind string `json:"kind"`
		Next string `json:"next"`
	}
	c.ok(&step, "resolve", "--step", p1.Address)
	assert.Equal(t, "advance", step.Kind)
	assert.Equal(t, p2.Address, step.Next)

	var entry struct {
		Kind    string       `json:"kind"`
		Actions []jsonRecord `json:"actions"`
	}
	c.ok(&entry, "details", p2.Action.EntryAddress)
	assert.Equal(t, "entry", entry.Kind)
	require.Len(t, entry.Actions, 1)
	assert.Equal(t, p2.Address, entry.Actions[0].Address)
}

func TestCommentCommands(t *testing.T) {
	c := newCLI(t)

	var post, comment, edited jsonRecord
	c.ok(&post, "post", "create", "--title", "host")
	c.ok(&comment, "comment", "create", "--text", "nice", "--target", post.Address)
	assert.Equal(t, "comment", comment.Action.EntryKind)
	assert.Equal(t, post.Address, comment.Entry.Fields["target"])

	c.ok(&edited, "comment", "update", comment.Address, "--text", "very nice", "--target", post.Address)

	var head jsonRecord
	c.ok(&head, "comment", "latest", comment.Address)
	assert.Equal(t, edited.Address, head.Address)

	// Kind checks.
	c.fails("VALIDATION", ExitFailure, "post", "get", comment.Address)
	c.fails("VALIDATION", ExitFailure, "comment", "update", post.Address, "--text", "x", "--target", post.Address)
	c.fails("VALIDATION", ExitFailure, "comment", "create", "--text", "reply", "--target", comment.Address)

	unknown := "0000000000000000000000000000000000000000000000000000000000000000"
	c.fails("NOT_FOUND", ExitFailure, "comment", "create", "--text", "orphan", "--target", unknown)
	c.fails("NOT_FOUND", ExitFailure, "comment", "get", unknown)
}

func TestCommandErrors(t *testing.T) {
	c := newCLI(t)

	c.fails("VALIDATION", ExitFailure, "post", "create", "--body", "no title")

	_, err := c.run("post", "get", "not-an-address")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid address")

	// A failed create consumes no seq.
	var p jsonRecord
	c.ok(&p, "post", "create", "--title", "ok")
	assert.Equal(t, int64(1), p.Action.Seq)
}

func TestVerifyAndArchiveRoundTrip(t *testing.T) {
	src := newCLI(t)

	var p1, p2, cm jsonRecord
	src.ok(&p1, "post", "create", "--title", "kept")
	src.ok(&p2, "post", "update", p1.Address, "--title", "kept, edited")
	src.ok(&cm, "comment", "create", "--text", "hi", "--target", p2.Address)

	var report struct {
		Entries  int   `json:"entries"`
		Actions  int   `json:"actions"`
		Problems []any `json:"problems"`
	}
	src.ok(&report, "verify")
	assert.Equal(t, 3, report.Entries)
	assert.Equal(t, 3, report.Actions)
	assert.Empty(t, report.Problems)

	archivePath := filepath.Join(t.TempDir(), "blog.bca")
	var exported struct {
		Entries int `json:"entries"`
		Actions int `json:"actions"`
	}
	src.ok(&exported, "export", "--out", archivePath)
	assert.Equal(t, 3, exported.Entries)
	assert.Equal(t, 3, exported.Actions)

	dst := newCLI(t)
	var imported struct {
		Entries int `json:"entries"`
		Actions int `json:"actions"`
		Skipped int `json:"skipped"`
	}
	dst.ok(&imported, "import", "--in", archivePath)
	assert.Equal(t, 3, imported.Entries)
	assert.Equal(t, 3, imported.Actions)
	assert.Equal(t, 0, imported.Skipped)

	var head jsonRecord
	dst.ok(&head, "post", "latest", p1.Address)
	assert.Equal(t, p2.Address, head.Address)

	dst.ok(&imported, "import", "--in", archivePath)
	assert.Equal(t, 6, imported.Skipped)

	dst.ok(&report, "verify")
	assert.Empty(t, report.Problems)
}

func TestArchiveFlagsRequired(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("export")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = c.run("import", "--in", filepath.Join(t.TempDir(), "missing.bca"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/storyrelay/internal/interface/cli/common"
)

const testSettings = `db_path: %s
log_level: error
archive:
  type: local
  dir: %s
agents:
  - name: implementer
    tier: 1
    priority: 5
    capabilities: [code]
  - name: reviewer
    tier: 2
    priority: 8
    capabilities: [code, review]
    tools: ["csv-*"]
`

// setupHome writes a setting file whose database and archive live under a temp dir
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	settings := fmt.Sprintf(testSettings, filepath.Join(home, "relay.db"), filepath.Join(home, "archive"))
	require.NoError(t, os.WriteFile(filepath.Join(home, "setting.yml"), []byte(settings), 0o600))
	return home
}

type result struct {
	stdout string
	stderr string
	err    error
}

func run(t *testing.T, home string, args ...string) result {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	root := NewRoot()
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(append([]string{"--home", home}, args...))
	err := root.Execute()
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// runJSON runs a command with JSON output and decodes the single result document
func runJSON(t *testing.T, home string, args ...string) map[string]any {
	t.Helper()
	res := run(t, home, append(args, "--json")...)
	require.NoError(t, res.err, "stdout: %s\nstderr: %s", res.stdout, res.stderr)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc), res.stdout)
	require.Equal(t, true, doc["success"], res.stdout)
	return doc
}

func dataMap(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	m, ok := doc["data"].(map[string]any)
	require.True(t, ok, "data is %T", doc["data"])
	return m
}

func TestStoryLifecycle(t *testing.T) {
	home := setupHome(t)

	created := dataMap(t, runJSON(t, home, "story", "create",
		"--agent", "implementer", "--pending", "write parser", "--set", "tool=csv-parser", "--tag", "csv"))
	id := created["id"].(string)
	assert.Equal(t, "PLANNING", created["phase"])
	assert.Equal(t, "DRAFT", created["status"])
	assert.Equal(t, float64(1), created["version"])

	handed := dataMap(t, runJSON(t, home, "story", "handover", id, "reviewer",
		"--notes", "parser is done, header handling needs review"))
	assert.Equal(t, "reviewer", handed["currentAgent"])
	assert.Equal(t, []any{"implementer"}, handed["previousAgents"])

	doc := runJSON(t, home, "story", "list", "--agent", "reviewer")
	list, ok := doc["data"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	phased := dataMap(t, runJSON(t, home, "story", "phase", id, "implementation"))
	assert.Equal(t, "IMPLEMENTATION", phased["phase"])

	updated := dataMap(t, runJSON(t, home, "story", "update", id,
		"--completed", "write parser", "--pending", "review headers", "--expected-version", "3"))
	assert.Equal(t, []any{"write parser"}, updated["completedWork"])

	res := run(t, home, "story", "update", id, "--priority", "9", "--expected-version", "1", "--json")
	require.Error(t, res.err)
	assert.True(t, common.IsPresented(res.err))
	assert.Contains(t, res.stdout, `"kind":"version_conflict"`)

	runJSON(t, home, "story", "cleanup", "--all")

	archived := runJSON(t, home, "story", "archive", "list")
	assert.Equal(t, []any{id}, archived["data"])

	restored := dataMap(t, runJSON(t, home, "story", "archive", "show", id))
	assert.Equal(t, "reviewer", restored["currentAgent"])
}

func TestStoryShowMissing(t *testing.T) {
	home := setupHome(t)

	res := run(t, home, "story", "show", "story-missing", "--json")
	require.Error(t, res.err)
	assert.True(t, common.IsPresented(res.err))

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	assert.Equal(t, false, doc["success"])
	assert.Equal(t, "not_found", doc["kind"])
}

func TestTextOutput(t *testing.T) {
	home := setupHome(t)

	res := run(t, home, "story", "create", "--agent", "implementer", "--pending", "write parser")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Story file created")
	assert.Contains(t, res.stdout, "Agent: implementer")
	assert.Contains(t, res.stdout, "  - write parser")
}

func TestEscalate(t *testing.T) {
	home := setupHome(t)

	doc := runJSON(t, home, "escalate",
		"--tool", "csv-parser", "--source", "implementer", "--urgency", "high",
		"--message", "header handling needs a second pair of eyes",
		"--new-story", "--pending", "review header parsing")
	resp := dataMap(t, doc)
	assert.Equal(t, "reviewer", resp["handledBy"])
	storyID := resp["storyFileId"].(string)
	require.NotEmpty(t, storyID)

	sf := dataMap(t, runJSON(t, home, "story", "show", storyID))
	assert.Equal(t, "reviewer", sf["currentAgent"])

	requestPath := filepath.Join(home, "request.yaml")
	require.NoError(t, os.WriteFile(requestPath, []byte(`originalToolName: csv-parser
sourceAgent: reviewer
urgency: HIGH
message: nobody else can review this
requiredCapabilities: [review]
`), 0o600))
	res := run(t, home, "escalate", "-f", requestPath, "--json")
	require.Error(t, res.err, "the source agent never handles its own escalation")
	assert.Contains(t, res.stdout, `"success":false`)
	assert.Contains(t, res.stdout, "no agent available to handle tool csv-parser")

	res = run(t, home, "escalate", "--source", "implementer")
	require.Error(t, res.err)
	assert.Contains(t, res.stdout, "escalation needs a tool name")
}

func TestMemoryCommands(t *testing.T) {
	home := setupHome(t)

	first := dataMap(t, runJSON(t, home, "memory", "store", "--agent", "implementer", "--tag", "csv",
		"CSV header rows vary between exports"))
	second := dataMap(t, runJSON(t, home, "memory", "store", "--agent", "implementer",
		"retry flaky network tests once"))
	firstID, secondID := first["id"].(string), second["id"].(string)

	found := runJSON(t, home, "memory", "search", "--agent", "implementer", "csv", "header")
	hits, ok := found["data"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, hits)
	top := hits[0].(map[string]any)
	assert.Equal(t, firstID, top["memory"].(map[string]any)["id"])

	runJSON(t, home, "memory", "link", firstID, secondID, "--type", "related", "--weight", "0.7", "--by", "implementer")

	related := runJSON(t, home, "memory", "related", firstID)
	rel, ok := related["data"].([]any)
	require.True(t, ok)
	require.Len(t, rel, 1)

	stats := dataMap(t, runJSON(t, home, "memory", "stats", "--agent", "implementer"))
	assert.Equal(t, float64(2), stats["totalMemories"])
}

func TestSessionCommands(t *testing.T) {
	home := setupHome(t)

	created := dataMap(t, runJSON(t, home, "session", "create", "--agent", "implementer", "--type", "coding",
		"--state", "branch=feature/csv", "--expires-in", "90m"))
	id := created["id"].(string)

	runJSON(t, home, "session", "update", id, "--state", "step=2", "--op", "edit", "--op-data", "file=parser.go")

	s := dataMap(t, runJSON(t, home, "session", "show", id))
	state := s["stateData"].(map[string]any)
	assert.Equal(t, "feature/csv", state["branch"])
	assert.Equal(t, float64(2), state["step"])

	stats := dataMap(t, runJSON(t, home, "session", "stats", id))
	assert.Equal(t, float64(1), stats["totalOperations"])
	assert.Equal(t, false, stats["isExpired"])

	child := dataMap(t, runJSON(t, home, "session", "child", id, "--agent", "reviewer", "--context", "focus=headers"))
	assert.Equal(t, id, child["parentSessionId"])

	runJSON(t, home, "session", "end", id)
	res := run(t, home, "session", "show", id, "--json")
	require.Error(t, res.err)
	assert.Contains(t, res.stdout, `"kind":"not_found"`)
}

func TestInitAndVersionSkipSettings(t *testing.T) {
	home := filepath.Join(t.TempDir(), "fresh")

	res := run(t, home, "init")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "CREATE: "+filepath.Join(home, "setting.yml"))

	res = run(t, home, "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "storyrelay version")
}

func TestInvalidSettings(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "setting.yml"), []byte("cache_size: 0\n"), 0o600))

	res := run(t, home, "story", "list")
	require.Error(t, res.err)
	assert.False(t, common.IsPresented(res.err))
	assert.Contains(t, res.err.Error(), "cache_size must be positive")
}

func TestUnknownOutputFormat(t *testing.T) {
	home := setupHome(t)

	res := run(t, home, "story", "list", "--output", "xml")
	require.Error(t, res.err)
	assert.False(t, common.IsPresented(res.err))
	assert.Empty(t, res.stdout)
}

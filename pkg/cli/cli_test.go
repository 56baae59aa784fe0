package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/pocketmock/pkg/config"
	"github.com/getmockd/pocketmock/pkg/mock"
	"github.com/getmockd/pocketmock/pkg/store"
	"github.com/getmockd/pocketmock/pkg/template"
)

// resetFlags restores every flag of cmd and its subcommands to its default,
// since cobra keeps flag state between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func runWithInput(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runWithInput(t, "", args...)
}

// workdir moves the test into an empty directory so no stray config file
// is picked up.
func workdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeRules(t *testing.T, path string, rules ...*mock.Rule) {
	t.Helper()
	data, err := json.MarshalIndent(rules, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestVersion(t *testing.T) {
	workdir(t)

	out, err := run(t, "version", "--json")
	require.NoError(t, err)
	var v VersionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.NotEmpty(t, v.Version)
	assert.Equal(t, runtime.Version(), v.Go)

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pocketmock "))
}

func TestRules_AddListEditRemove(t *testing.T) {
	dir := workdir(t)
	rulesFile := filepath.Join(dir, "rules.json")

	out, err := run(t, "rules", "add", "/api/users", "--rules", rulesFile,
		"--method", "post", "--status", "201", "--response", `{"id":"@guid"}`,
		"--dynamic", "-H", "X-Trace=abc", "--delay", "5", "--json")
	require.NoError(t, err)
	var added mock.Rule
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, "POST", added.Method)
	assert.Equal(t, 201, added.Status)
	assert.Equal(t, 5, added.DelayMs)
	assert.True(t, added.Dynamic)
	assert.True(t, added.Enabled)
	assert.Equal(t, map[string]string{"X-Trace": "abc"}, added.Headers)
	assert.Equal(t, map[string]any{"id": "@guid"}, added.Response)

	out, err = run(t, "rules", "add", "/api/health", "--rules", rulesFile)
	require.NoError(t, err)
	assert.Contains(t, out, "GET /api/health")

	out, err = run(t, "rules", "list", "--rules", rulesFile, "--json")
	require.NoError(t, err)
	var listed []*mock.Rule
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, "/api/health", listed[0].URLPattern, "new rules go first")
	assert.Equal(t, added.ID, listed[1].ID)

	_, err = run(t, "rules", "disable", added.ID, "--rules", rulesFile)
	require.NoError(t, err)
	out, err = run(t, "rules", "ls", "--rules", rulesFile)
	require.NoError(t, err)
	assert.Contains(t, out, "false")
	assert.Contains(t, out, "ENABLED")

	_, err = run(t, "rules", "rm", added.ID, "missing", "--rules", rulesFile)
	require.ErrorIs(t, err, store.ErrNotFound)

	out, err = run(t, "rules", "list", "--rules", rulesFile, "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1, "the valid id was still removed")
	assert.Equal(t, "/api/health", listed[0].URLPattern)
}

func TestRules_ListMissingFileWritesNothing(t *testing.T) {
	dir := workdir(t)
	rulesFile := filepath.Join(dir, "none.json")

	out, err := run(t, "rules", "list", "--rules", rulesFile)
	require.NoError(t, err)
	assert.Contains(t, out, "No rules")

	_, err = os.Stat(rulesFile)
	assert.True(t, os.IsNotExist(err))
}

func TestRules_AddRejectsInvalidInput(t *testing.T) {
	dir := workdir(t)
	rulesFile := filepath.Join(dir, "rules.json")

	tests := []struct {
		name string
		args []string
	}{
		{"status out of range", []string{"--status", "999"}},
		{"response not JSON", []string{"--response", "{nope"}},
		{"malformed header", []string{"-H", "NoEquals"}},
		{"negative delay", []string{"--delay", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"rules", "add", "/api/x", "--rules", rulesFile}, tt.args...)
			_, err := run(t, args...)
			assert.Error(t, err)

			_, statErr := os.Stat(rulesFile)
			assert.True(t, os.IsNotExist(statErr), "nothing written")
		})
	}
}

func TestRules_Validate(t *testing.T) {
	dir := workdir(t)
	good := filepath.Join(dir, "good.json")
	writeRules(t, good, mock.DefaultRule())

	out, err := run(t, "rules", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "1 valid rules")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"id":"x","url":"/a","method":"GET","status":42}]`), 0o644))
	_, err = run(t, "rules", "validate", bad)
	assert.ErrorIs(t, err, mock.ErrInvalidRule)

	_, err = run(t, "rules", "validate", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestRules_Probe(t *testing.T) {
	dir := workdir(t)
	rulesFile := filepath.Join(dir, "rules.json")
	writeRules(t, rulesFile, &mock.Rule{
		ID:         "r1",
		URLPattern: "/api/x",
		Method:     "GET",
		Response:   map[string]any{"ok": true},
		Enabled:    true,
		Status:     404,
		Headers:    map[string]string{"X-Mock": "1"},
	}, &mock.Rule{
		ID:         "r2",
		URLPattern: "/x",
		Method:     "GET",
		Response:   "later",
		Enabled:    true,
		Status:     200,
		Headers:    map[string]string{},
	})

	out, err := run(t, "rules", "test", "get", "https://svc.test/api/x", "--rules", rulesFile, "--json", "--events")
	require.NoError(t, err)
	var got ProbeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "r1", got.RuleID)
	assert.Equal(t, 404, got.Status)
	assert.Equal(t, "Error", got.StatusText)
	assert.Equal(t, "application/json", got.Headers["content-type"])
	assert.Equal(t, "1", got.Headers["x-mock"])
	assert.JSONEq(t, `{"ok":true}`, got.Body)
	assert.Equal(t, []string{
		"readystatechange (OPENED)",
		"readystatechange (DONE)",
		"load (DONE)",
	}, got.Events)
	assert.Equal(t, []string{"r2"}, got.Shadowed)

	_, err = run(t, "rules", "test", "GET", "/api/other", "--rules", rulesFile)
	require.ErrorIs(t, err, errNoRule)
}

func TestExpand(t *testing.T) {
	dir := workdir(t)

	t.Run("repeat keys from stdin", func(t *testing.T) {
		out, err := runWithInput(t, `{"items|3": "a", "keep": 1}`, "expand")
		require.NoError(t, err)
		assert.JSONEq(t, `{"items":["a","a","a"],"keep":1}`, out)
	})

	t.Run("seed makes output reproducible", func(t *testing.T) {
		tmpl := `{"n": "@integer(1,1000000)", "id": "@guid"}`
		first, err := runWithInput(t, tmpl, "expand", "--seed", "7")
		require.NoError(t, err)
		second, err := runWithInput(t, tmpl, "expand", "--seed", "7")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("json path selection", func(t *testing.T) {
		out, err := runWithInput(t, `{"users|2": {"name": "x"}}`, "expand", "--path", "$.users[*].name")
		require.NoError(t, err)
		assert.JSONEq(t, `["x","x"]`, out)
	})

	t.Run("count", func(t *testing.T) {
		out, err := runWithInput(t, `{"v": 1}`, "expand", "-n", "2")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"v":1},{"v":1}]`, out)
	})

	t.Run("yaml template with aliases file", func(t *testing.T) {
		aliases := filepath.Join(dir, "aliases.yaml")
		require.NoError(t, os.WriteFile(aliases, []byte("\"@Person\":\n  name: Ann\n"), 0o644))
		tmpl := filepath.Join(dir, "who.yaml")
		require.NoError(t, os.WriteFile(tmpl, []byte("who: \"@Person\"\n"), 0o644))

		out, err := run(t, "expand", tmpl, "--aliases", aliases)
		require.NoError(t, err)
		assert.JSONEq(t, `{"who":{"name":"Ann"}}`, out)
	})

	t.Run("self-referencing alias fails", func(t *testing.T) {
		aliases := filepath.Join(dir, "loop.yaml")
		require.NoError(t, os.WriteFile(aliases, []byte("loop: \"@loop\"\n"), 0o644))

		_, err := runWithInput(t, `{"x": "@loop"}`, "expand", "--aliases", aliases, "--max-depth", "4")
		assert.Error(t, err)
	})

	t.Run("repeat over limit fails", func(t *testing.T) {
		_, err := runWithInput(t, `{"n|4": 1}`, "expand", "--max-repeat", "3")
		require.Error(t, err)
		assert.ErrorIs(t, err, template.ErrRepeatExceeded)

		out, err := runWithInput(t, `{"n|3": 1}`, "expand", "--max-repeat", "3")
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":[1,1,1]}`, out)
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := runWithInput(t, `{}`, "expand", "--path", "$[")
		assert.Error(t, err)
	})
}

func TestGenerate(t *testing.T) {
	workdir(t)

	out, err := run(t, "generate", "--json")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Contains(t, names, "guid")
	assert.Contains(t, names, "integer")

	out, err = run(t, "generate", "@integer", "5,5", "-n", "3")
	require.NoError(t, err)
	assert.Equal(t, "5\n5\n5\n", out)

	_, err = run(t, "generate", "nope")
	assert.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	dir := workdir(t)

	out, err := run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "pocketmock.yaml")

	_, err = run(t, "config", "init")
	assert.Error(t, err, "refuses to overwrite")

	out, err = run(t, "config", "show", "--json", "--config", filepath.Join(dir, "pocketmock.yaml"))
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, config.DefaultListen, cfg.Listen)
	assert.Equal(t, store.DefaultRulesFile, cfg.RulesFile)

	out, err = run(t, "config", "show", "--rules", "other.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "rulesFile: other.yaml")
}

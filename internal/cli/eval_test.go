package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/humane/internal/capture"
	"github.com/roach88/humane/internal/harness"
)

const testPage = `<html><body><h1 class="title">Hello</h1><ul><li>a</li><li>b</li></ul></body></html>`

func writePage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(testPage), 0644))
	return path
}

// executeEval runs the eval command and returns stdout.
func executeEval(t *testing.T, format, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewEvalCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// evalResponse mirrors the JSON output of the eval command.
type evalResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result  harness.Result                `json:"result"`
		Console map[capture.Category][]string `json:"console"`
	} `json:"data"`
	Error *CLIError `json:"error"`
}

func TestEval_TextSuccess(t *testing.T) {
	page := writePage(t)

	tests := []struct {
		name    string
		snippet string
		want    string
	}{
		{"text content", `return document.querySelector("h1").textContent;`, "\"Hello\"\n"},
		{"no return", `humane.assert_eq(1, 1);`, "null\n"},
		{"awaited query", `const items = await humane.querySelectorAll("li"); return items.length;`, "2\n"},
		{"object", `return {b: 1, a: [true]};`, "{\"b\":1,\"a\":[true]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeEval(t, "text", "", "--page", page, "-e", tt.snippet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestEval_JSONSuccess(t *testing.T) {
	page := writePage(t)

	out, err := executeEval(t, "json", "", "--page", page, "-e", `console.warn("careful"); return 5;`)
	require.NoError(t, err)

	var resp evalResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Empty(t, resp.Data.Result.HumaneErrs)
	assert.Equal(t, float64(5), resp.Data.Result.InnerResponse)
	assert.Nil(t, resp.Data.Result.Logs)
	assert.Equal(t, []string{"careful"}, resp.Data.Console[capture.WRN])
	assert.Equal(t, []string{"careful"}, resp.Data.Console[capture.ALL])
}

func TestEval_TextFailure(t *testing.T) {
	page := writePage(t)

	out, err := executeEval(t, "text", "", "--page", page, "-e",
		`console.log("about to fail"); humane.assert_eq(1, 2); return 3;`)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "1 humane error(s)", err.Error())
	assert.Equal(t,
		"✗ Equality Assertion failed. Left: 1, Right: 2\nLogs:\n  about to fail\n",
		out)
}

func TestEval_JSONFailure(t *testing.T) {
	page := writePage(t)

	out, err := executeEval(t, "json", "", "--page", page, "--timeout", "30", "--poll", "10",
		"-e", `console.log("looking"); await humane.querySelector(".missing");`)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp evalResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeHumane, resp.Error.Code)
	assert.Equal(t,
		[]string{`querySelector timed out at 30ms, no elements matching ".missing"`},
		resp.Data.Result.HumaneErrs)
	require.NotNil(t, resp.Data.Result.Logs)
	assert.Equal(t, "looking", *resp.Data.Result.Logs)
}

func TestEval_SnippetSources(t *testing.T) {
	page := writePage(t)
	script := filepath.Join(t.TempDir(), "check.js")
	require.NoError(t, os.WriteFile(script, []byte(`return "from file";`), 0644))

	out, err := executeEval(t, "text", "", "--page", page, "--script", script)
	require.NoError(t, err)
	assert.Equal(t, "\"from file\"\n", out)

	out, err = executeEval(t, "text", `return "from stdin";`, "--page", page)
	require.NoError(t, err)
	assert.Equal(t, "\"from stdin\"\n", out)
}

func TestEval_CommandErrors(t *testing.T) {
	page := writePage(t)

	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantErr string
		code    int
	}{
		{
			name:    "missing page flag",
			args:    []string{"-e", "return 1;"},
			wantErr: `required flag(s) "page" not set`,
			code:    ExitFailure,
		},
		{
			name:    "page not found",
			args:    []string{"--page", "/nonexistent/page.html", "-e", "return 1;"},
			wantErr: "failed to read page",
			code:    ExitCommandError,
		},
		{
			name:    "script not found",
			args:    []string{"--page", page, "--script", "/nonexistent/check.js"},
			wantErr: "failed to read snippet",
			code:    ExitCommandError,
		},
		{
			name:    "empty stdin",
			stdin:   "  \n",
			args:    []string{"--page", page},
			wantErr: "no snippet given",
			code:    ExitCommandError,
		},
		{
			name:    "negative timeout",
			args:    []string{"--page", page, "-e", "return 1;", "--timeout", "-1"},
			wantErr: "must be non-negative",
			code:    ExitCommandError,
		},
		{
			name:    "script and expr",
			args:    []string{"--page", page, "-e", "return 1;", "--script", "x.js"},
			wantErr: "none of the others can be",
			code:    ExitFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeEval(t, "text", tt.stdin, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.code, GetExitCode(err))
		})
	}
}

func TestEval_NoResult(t *testing.T) {
	page := writePage(t)

	out, err := executeEval(t, "json", "", "--page", page, "-e", `return (;`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "snippet produced no result")
	assert.Contains(t, err.Error(), "snippet failed to parse")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeEval, resp.Error.Code)
}

func TestEval_InputErrorJSON(t *testing.T) {
	out, err := executeEval(t, "json", "", "--page", "/nonexistent/page.html", "-e", "return 1;")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInput, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "failed to read page")
}

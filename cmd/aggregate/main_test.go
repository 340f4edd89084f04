package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhinds/crush-tools/internal/core"
	"github.com/jeremyhinds/crush-tools/internal/sink"
)

// cleanEnv clears every variable the configuration reads so tests do not
// depend on the caller's environment.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DELIMITER", "AGG_LOCALE", "LC_ALL", "LC_COLLATE", "LANG",
		"AGG_MAX_GROUPS", "AGG_MAX_LINE_BYTES", "AGG_EMPTY_AVERAGE", "AGG_STRICT",
		"DATABASE_URL", "DB_URL",
	} {
		t.Setenv(name, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRun_Sums(t *testing.T) {
	cleanEnv(t)

	got := runCLI(t, "b,2\na,1.5\na,1\n", "-k", "1", "-s", "2", "-d", ",")

	require.Equal(t, core.ExitOK, got.code, got.stderr)
	assert.Equal(t, "a,2.5\nb,2.0\n", got.stdout)
}

func TestRun_DelimiterFromEnv(t *testing.T) {
	cleanEnv(t)
	t.Setenv("DELIMITER", `\t`)

	got := runCLI(t, "x\t3\nx\t4\n", "-k", "1", "-c", "2", "-a", "2")

	require.Equal(t, core.ExitOK, got.code, got.stderr)
	assert.Equal(t, "x\t2\t3.50\n", got.stdout)
}

func TestRun_FlagOverridesEnvDelimiter(t *testing.T) {
	cleanEnv(t)
	t.Setenv("DELIMITER", `\t`)

	got := runCLI(t, "x|3\n", "--keys", "1", "--sums", "2", "--delim", "|")

	require.Equal(t, core.ExitOK, got.code, got.stderr)
	assert.Equal(t, "x|3\n", got.stdout)
}

func TestRun_DefaultDelimiter(t *testing.T) {
	cleanEnv(t)

	got := runCLI(t, "k\xfe1\nk\xfe2\n", "-k", "1", "-s", "2")

	require.Equal(t, core.ExitOK, got.code, got.stderr)
	assert.Equal(t, "k\xfe3\n", got.stdout)
}

func TestRun_LabelsAndHeader(t *testing.T) {
	cleanEnv(t)
	input := "region,amount,note\nwest,4,x\neast,1,\nwest,,y\n"

	got := runCLI(t, input,
		"--key-labels", "region", "--sum-labels", "amount", "--count-labels", "note",
		"--auto-label", "--nosort", "-d", ",")

	require.Equal(t, core.ExitOK, got.code, got.stderr)
	assert.Equal(t, "region,amount-Sum,note-Count\nwest,4,2\neast,1,0\n", got.stdout)
}

func TestRun_CustomLabels(t *testing.T) {
	cleanEnv(t)

	got := runCLI(t, "k,v\na,1\n", "-k", "1", "-s", "2", "-l", "Total", "-d", ",")

	require.Equal(t, core.ExitOK, got.code, got.stderr)
	assert.Equal(t, "k,Total\na,1\n", got.stdout)
}

func TestRun_Files(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.txt")
	second := filepath.Join(dir, "second.txt")
	require.NoError(t, os.WriteFile(first, []byte("a,1\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("b,2\na,3"), 0o644))

	got := runCLI(t, "c,5\n", "-k", "1", "-s", "2", "-d", ",", first, "-", second)

	require.Equal(t, core.ExitOK, got.code, got.stderr)
	assert.Equal(t, "a,4\nb,2\nc,5\n", got.stdout)
}

func TestRun_OptionsAfterFiles(t *testing.T) {
	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("a,1\nb,2\na,3\n"), 0o644))

	got := runCLI(t, "c,9\n", path, "-k", "1", "-", "--sums", "2", "-d", ",")

	require.Equal(t, core.ExitOK, got.code, got.stderr)
	assert.Equal(t, "a,4\nb,2\nc,9\n", got.stdout)
}

func TestRun_DoubleDashEndsOptions(t *testing.T) {
	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("a,1\n"), 0o644))

	got := runCLI(t, "", "-k", "1", "-d", ",", "--", path, "-s")

	assert.Equal(t, core.ExitFileErr, got.code)
	assert.Contains(t, got.stderr, "IN002")
	assert.Empty(t, got.stdout)
}

func TestRun_JSON(t *testing.T) {
	cleanEnv(t)

	got := runCLI(t, "a,1\na,\n", "-k", "1", "-a", "2", "-c", "2", "-d", ",", "--format", "json")
	require.Equal(t, core.ExitOK, got.code, got.stderr)

	var doc sink.Document
	require.NoError(t, json.Unmarshal([]byte(got.stdout), &doc))
	require.Len(t, doc.Rows, 1)
	assert.Equal(t, []uint64{1}, doc.Rows[0].Counts)
	require.NotNil(t, doc.Rows[0].Averages[0])
	assert.InDelta(t, 1.0, *doc.Rows[0].Averages[0], 1e-9)
}

func TestRun_ParquetFile(t *testing.T) {
	cleanEnv(t)
	out := filepath.Join(t.TempDir(), "out.parquet")

	got := runCLI(t, "a,1\nb,2\n", "-k", "1", "-s", "2", "-d", ",", "--format", "parquet", "-o", out)
	require.Equal(t, core.ExitOK, got.code, got.stderr)
	assert.Empty(t, got.stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PAR1")), "missing parquet magic")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		stdin    string
		args     []string
		wantCode int
		wantErr  string
	}{
		{
			name:     "no key fields",
			args:     []string{"-s", "1"},
			wantCode: core.ExitHelp,
			wantErr:  "USE001",
		},
		{
			name:     "bad field list",
			args:     []string{"-k", "1-"},
			wantCode: core.ExitHelp,
			wantErr:  "USE002",
		},
		{
			name:     "unknown format",
			args:     []string{"-k", "1", "--format", "xml"},
			wantCode: core.ExitHelp,
			wantErr:  "USE007",
		},
		{
			name:     "bad delimiter escape",
			args:     []string{"-k", "1", "-d", `\q`},
			wantCode: core.ExitHelp,
			wantErr:  "USE005",
		},
		{
			name:     "unknown flag",
			args:     []string{"--bogus"},
			wantCode: core.ExitHelp,
			wantErr:  "flag provided but not defined",
		},
		{
			name:     "help",
			args:     []string{"-h"},
			wantCode: core.ExitHelp,
			wantErr:  "Usage: aggregate",
		},
		{
			name:     "missing file",
			args:     []string{"-k", "1", filepath.Join(os.TempDir(), "does-not-exist.txt")},
			wantCode: core.ExitFileErr,
			wantErr:  "IN002",
		},
		{
			name:     "header expected on empty input",
			args:     []string{"-K", "region"},
			wantCode: core.ExitFileErr,
			wantErr:  "IN001",
		},
		{
			name:     "strict malformed number",
			stdin:    "a,x\n",
			args:     []string{"-k", "1", "-s", "2", "-d", ",", "--strict"},
			wantCode: core.ExitFileErr,
			wantErr:  "IN003",
		},
		{
			name:     "line too long",
			env:      map[string]string{"AGG_MAX_LINE_BYTES": "4"},
			stdin:    "abcdefgh\n",
			args:     []string{"-k", "1"},
			wantCode: core.ExitMemErr,
			wantErr:  "MEM001",
		},
		{
			name:     "postgres without database url",
			args:     []string{"-k", "1", "--pg-table", "totals"},
			wantCode: core.ExitHelp,
			wantErr:  "SNK001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got := runCLI(t, tt.stdin, tt.args...)

			assert.Equal(t, tt.wantCode, got.code, got.stderr)
			assert.Contains(t, got.stderr, tt.wantErr)
			assert.Empty(t, got.stdout)
		})
	}
}

func TestRun_MalformedNumberTolerated(t *testing.T) {
	cleanEnv(t)

	got := runCLI(t, "a,12abc\na,1\n", "-k", "1", "-s", "2", "-d", ",")

	require.Equal(t, core.ExitOK, got.code, got.stderr)
	assert.Equal(t, "a,13\n", got.stdout)
}

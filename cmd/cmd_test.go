package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfigDir writes an mkimg.ini using the mock process backend. With
// no scripted behavior every mock script exits 0 without printing the
// readiness marker, so every build attempt fails.
func testConfigDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	ini := fmt.Sprintf(`[Global Configuration]
Directory_scripts = %s
Directory_logs = %s
Process_backend = mock
Retry = 2
`, filepath.Join(dir, "scripts"), filepath.Join(dir, "logs"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mkimg.ini"), []byte(ini), 0644))
	return dir
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run("1.2.3", args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runCmd(t, "version")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "mkimg version 1.2.3\n", out)
}

func TestBuild_FailureExitCode(t *testing.T) {
	dir := testConfigDir(t)
	img := filepath.Join(t.TempDir(), "disk.img")

	code, out, _ := runCmd(t, "-C", dir, "build", img, t.TempDir())
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "[attempt 2/2] failed")
	assert.Contains(t, out, "Failed to build "+img+" after 2 attempt(s)")
}

func TestBuild_HiddenRetryFlag(t *testing.T) {
	dir := testConfigDir(t)

	code, out, _ := runCmd(t, "-C", dir, "build", "--retry", "1", filepath.Join(t.TempDir(), "disk.img"), t.TempDir())
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "[attempt 1/1]")
	assert.NotContains(t, out, "[attempt 2/")

	_, help, _ := runCmd(t, "build", "--help")
	assert.NotContains(t, help, "--retry")
	assert.Contains(t, help, "--tmpdir")
}

func TestBuild_InvalidArguments(t *testing.T) {
	dir := testConfigDir(t)
	content := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"missing content", []string{"build", "disk.img"}},
		{"content not a directory", []string{"build", "disk.img", filepath.Join(content, "missing")}},
		{"non-positive size", []string{"build", "--size", "0", "disk.img", content}},
		{"unparsable size", []string{"build", "--size", "big", "disk.img", content}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCmd(t, append([]string{"-C", dir}, tt.args...)...)
			assert.Equal(t, ExitFailure, code)
			assert.Contains(t, stderr, "Error:")
		})
	}
}

func TestStatusAfterBuild(t *testing.T) {
	dir := testConfigDir(t)
	img := filepath.Join(t.TempDir(), "disk.img")
	runCmd(t, "-C", dir, "build", img, t.TempDir())

	code, out, _ := runCmd(t, "-C", dir, "status")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, img)
	assert.Contains(t, out, "Result:      failed")
	assert.Contains(t, out, "Attempts:    2/2")
}

func TestStatus_Empty(t *testing.T) {
	code, out, _ := runCmd(t, "-C", testConfigDir(t), "status")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "No build history available")
}

func TestUnmount_Yes(t *testing.T) {
	code, out, _ := runCmd(t, "-C", testConfigDir(t), "-y", "unmount")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Unmounted")
}

func TestLogs_List(t *testing.T) {
	dir := testConfigDir(t)
	runCmd(t, "-C", dir, "build", filepath.Join(t.TempDir(), "disk.img"), t.TempDir())

	code, out, _ := runCmd(t, "-C", dir, "logs")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Summary logs:")
	assert.Contains(t, out, "disk.img.attempt-01.log")

	code, out, _ = runCmd(t, "-C", dir, "logs", "--no-pager", "failure")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "attempt=2 status=failed")
}

func TestInit(t *testing.T) {
	code, out, _ := runCmd(t, "-C", testConfigDir(t), "init")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Database:")
}

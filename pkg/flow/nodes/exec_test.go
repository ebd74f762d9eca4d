package nodes_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/manifold-flow/manifold/pkg/flow/nodes"
	"github.com/manifold-flow/manifold/pkg/value"
)

func TestExecNodeCapturesOutput(t *testing.T) {
	t.Parallel()
	out := mustRun(t, &nodes.ExecNode{}, value.MapOf("cmd", "printf hello; printf warn >&2"))
	if out.GetString("stdout") != "hello" {
		t.Errorf("stdout = %q", out.GetString("stdout"))
	}
	if out.GetString("stderr") != "warn" {
		t.Errorf("stderr = %q", out.GetString("stderr"))
	}
	if v, _ := out.Get("exit_code"); !v.Equal(value.Int(0)) {
		t.Errorf("exit_code = %v", v)
	}
}

func TestExecNodeNonZeroExitFails(t *testing.T) {
	t.Parallel()
	_, err := runNode(t, &nodes.ExecNode{}, value.MapOf("cmd", "echo oops >&2; exit 3"))
	if err == nil {
		t.Fatal("expected failure for exit 3")
	}
	if !strings.Contains(err.Error(), "code 3") {
		t.Errorf("error should carry the exit code: %v", err)
	}
}

func TestExecNodeFailOnErrorFalse(t *testing.T) {
	t.Parallel()
	out := mustRun(t, &nodes.ExecNode{}, value.MapOf("cmd", "exit 3", "fail_on_error", "false"))
	if v, _ := out.Get("exit_code"); !v.Equal(value.Int(3)) {
		t.Errorf("exit_code = %v, want 3", v)
	}
}

func TestExecNodeWorkdir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := mustRun(t, &nodes.ExecNode{Workdir: dir}, value.MapOf("cmd", "ls"))
	if !strings.Contains(out.GetString("stdout"), "marker") {
		t.Errorf("stdout = %q, want marker listing", out.GetString("stdout"))
	}

	// Per-node workdir param overrides the configured one.
	other := t.TempDir()
	out = mustRun(t, &nodes.ExecNode{Workdir: dir}, value.MapOf("cmd", "pwd", "workdir", other))
	if !strings.Contains(out.GetString("stdout"), filepath.Base(other)) {
		t.Errorf("pwd = %q, want %q", out.GetString("stdout"), other)
	}
}

func TestExecNodeValidation(t *testing.T) {
	t.Parallel()
	if _, err := runNode(t, &nodes.ExecNode{}, value.NewMap()); err == nil {
		t.Error("expected error for missing cmd")
	}
	if _, err := runNode(t, &nodes.ExecNode{}, value.MapOf("cmd", "true", "timeout", "forever")); err == nil {
		t.Error("expected error for bad timeout")
	}
}

func TestWriteThenReadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	out := mustRun(t, &nodes.WriteFileNode{Workdir: dir},
		value.MapOf("path", "sub/result.txt", "content", "payload"))
	wrote := out.GetString("path")
	if !strings.HasPrefix(wrote, dir) {
		t.Errorf("path = %q, want under %q", wrote, dir)
	}
	if v, _ := out.Get("bytes"); !v.Equal(value.Int(7)) {
		t.Errorf("bytes = %v", v)
	}

	read := mustRun(t, &nodes.ReadFileNode{Workdir: dir}, value.MapOf("path", "sub/result.txt"))
	if read.GetString("content") != "payload" {
		t.Errorf("content = %q", read.GetString("content"))
	}
}

func TestWriteFileStringifiesStructuredContent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	content := value.FromMap(value.MapOf("a", 1))
	mustRun(t, &nodes.WriteFileNode{Workdir: dir},
		value.MapOf("path", "data.json", "content", content))

	data, err := os.ReadFile(filepath.Join(dir, "data.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("file = %s", data)
	}
}

func TestReadFileMissing(t *testing.T) {
	t.Parallel()
	if _, err := runNode(t, &nodes.ReadFileNode{Workdir: t.TempDir()}, value.MapOf("path", "ghost.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileNodeValidation(t *testing.T) {
	t.Parallel()
	if _, err := runNode(t, &nodes.ReadFileNode{}, value.NewMap()); err == nil {
		t.Error("read_file: expected error for missing path")
	}
	if _, err := runNode(t, &nodes.WriteFileNode{}, value.MapOf("path", "x")); err == nil {
		t.Error("write_file: expected error for missing content")
	}
}

package nodes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/manifold-flow/manifold/pkg/flow"
	"github.com/manifold-flow/manifold/pkg/value"
)

// ReadFileNode reads a file and reports its content.
type ReadFileNode struct {
	Workdir string
}

func (n *ReadFileNode) Prep(_ context.Context, in *flow.Invocation) (any, error) {
	path := in.Params.GetString("path")
	if path == "" {
		return nil, fmt.Errorf("read_file: missing 'path' param")
	}
	return resolvePath(n.Workdir, path), nil
}

func (n *ReadFileNode) Exec(_ context.Context, prep any) (any, error) {
	path := prep.(string)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}
	return string(data), nil
}

func (n *ReadFileNode) Post(_ context.Context, _ *flow.Invocation, _, exec any) (flow.Outcome, error) {
	out := value.NewMap()
	out.Set("content", value.String(exec.(string)))
	return flow.Outcome{Outputs: out}, nil
}

// WriteFileNode writes the "content" param to the "path" param, creating
// parent directories.
type WriteFileNode struct {
	Workdir string
}

type writePrep struct {
	path    string
	content string
}

func (n *WriteFileNode) Prep(_ context.Context, in *flow.Invocation) (any, error) {
	path := in.Params.GetString("path")
	if path == "" {
		return nil, fmt.Errorf("write_file: missing 'path' param")
	}
	content, ok := in.Params.Get("content")
	if !ok {
		return nil, fmt.Errorf("write_file: missing 'content' param")
	}
	return writePrep{path: resolvePath(n.Workdir, path), content: content.Stringify()}, nil
}

func (n *WriteFileNode) Exec(_ context.Context, prep any) (any, error) {
	p := prep.(writePrep)
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("write_file: mkdir: %w", err)
		}
	}
	if err := os.WriteFile(p.path, []byte(p.content), 0o644); err != nil {
		return nil, fmt.Errorf("write_file: %w", err)
	}
	return p, nil
}

func (n *WriteFileNode) Post(_ context.Context, _ *flow.Invocation, _, exec any) (flow.Outcome, error) {
	p := exec.(writePrep)
	out := value.NewMap()
	out.Set("path", value.String(p.path))
	out.Set("bytes", value.Int(int64(len(p.content))))
	return flow.Outcome{Outputs: out}, nil
}

func resolvePath(workdir, path string) string {
	if filepath.IsAbs(path) || workdir == "" {
		return path
	}
	return filepath.Join(workdir, path)
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

package nodes

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/manifold-flow/manifold/pkg/flow"
	"github.com/manifold-flow/manifold/pkg/value"
)

// ExecNode runs a shell command and reports stdout, stderr, and the exit
// code as outputs. A non-zero exit fails the node unless the
// "fail_on_error" param is the string "false".
type ExecNode struct {
	Workdir string
}

type execPrep struct {
	cmd         string
	workdir     string
	timeout     time.Duration
	failOnError bool
}

type execResult struct {
	stdout   string
	stderr   string
	exitCode int
}

func (n *ExecNode) Prep(_ context.Context, in *flow.Invocation) (any, error) {
	cmd := in.Params.GetString("cmd")
	if cmd == "" {
		return nil, fmt.Errorf("exec: missing 'cmd' param")
	}
	p := execPrep{cmd: cmd, workdir: n.Workdir, failOnError: true}
	if wd := in.Params.GetString("workdir"); wd != "" {
		p.workdir = wd
	}
	if ts := in.Params.GetString("timeout"); ts != "" {
		d, err := time.ParseDuration(ts)
		if err != nil {
			return nil, fmt.Errorf("exec: invalid timeout %q: %w", ts, err)
		}
		p.timeout = d
	}
	if in.Params.GetString("fail_on_error") == "false" {
		p.failOnError = false
	}
	return p, nil
}

func (n *ExecNode) Exec(ctx context.Context, prep any) (any, error) {
	p := prep.(execPrep)

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", p.cmd)
	if p.workdir != "" {
		cmd.Dir = p.workdir
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	res := execResult{
		stdout: stdoutBuf.String(),
		stderr: stderrBuf.String(),
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			res.exitCode = exitErr.ExitCode()
		} else {
			// Context deadline or spawn failure — non-numeric sentinel.
			res.exitCode = -1
		}
		if p.failOnError {
			return res, fmt.Errorf("command exited with code %d: %s", res.exitCode, firstLine(res.stderr))
		}
	}
	return res, nil
}

func (n *ExecNode) Post(_ context.Context, _ *flow.Invocation, _, exec any) (flow.Outcome, error) {
	res := exec.(execResult)
	out := value.NewMap()
	out.Set("stdout", value.String(res.stdout))
	out.Set("stderr", value.String(res.stderr))
	out.Set("exit_code", value.Int(int64(res.exitCode)))
	return flow.Outcome{Outputs: out}, nil
}

package system

import (
	"bufio"
	"context"
	"os/exec"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:generate mockgen -package=system -destination=runner_mock.go --build_flags=--mod=mod . Runner

// Runner executes external commands. Every remediation step goes through it
// so the whole provisioning sequence can be exercised against a mock.
type Runner interface {
	// Run executes a short command and captures its combined output.
	Run(ctx context.Context, name string, args ...string) CmdResult

	// Stream executes a long-running command from dir, mirroring its output
	// line by line through the logger. An empty dir runs from the current
	// working directory.
	Stream(ctx context.Context, dir string, name string, args ...string) CmdResult

	// Exists reports whether name resolves in PATH.
	Exists(name string) bool
}

// CmdResult is the outcome of one external command.
type CmdResult struct {
	Code   int
	Output string
	Err    error
}

func (r CmdResult) Ok() bool {
	return r.Err == nil && r.Code == 0
}

type runner struct{}

func New() Runner {
	return &runner{}
}

func (r *runner) Run(ctx context.Context, name string, args ...string) CmdResult {
	zap.S().Debugw("running command", "cmd", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()

	res := CmdResult{Output: string(out)}
	if err != nil {
		res.Code = exitCode(err)
		res.Err = err
		zap.S().Debugw("command failed", "cmd", name, "code", res.Code, "output", strings.TrimSpace(res.Output))
	}

	return res
}

func (r *runner) Stream(ctx context.Context, dir string, name string, args ...string) CmdResult {
	zap.S().Infow("running command", "cmd", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return CmdResult{Code: -1, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return CmdResult{Code: -1, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return CmdResult{Code: exitCode(err), Err: err}
	}

	var sb strings.Builder
	var g errgroup.Group

	// collector serializes writes into the combined output buffer
	lines := make(chan string)
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for line := range lines {
			sb.WriteString(line)
			sb.WriteByte('\n')
			zap.S().Infof("  | %s", line)
		}
	}()

	g.Go(func() error { return forward(stdout, lines) })
	g.Go(func() error { return forward(stderr, lines) })

	readErr := g.Wait()
	close(lines)
	<-collectorDone

	waitErr := cmd.Wait()

	res := CmdResult{Output: sb.String()}
	switch {
	case waitErr != nil:
		res.Code = exitCode(waitErr)
		res.Err = waitErr
		zap.S().Warnw("command exited with error", "cmd", name, "code", res.Code)
	case readErr != nil:
		res.Err = readErr
	}

	return res
}

func (r *runner) Exists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func forward(src interface{ Read([]byte) (int, error) }, dst chan<- string) error {
	scanner := bufio.NewScanner(src)
	// dnf progress lines can get long
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		dst <- scanner.Text()
	}
	return scanner.Err()
}

func exitCode(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// ExecCommandRunner implements CommandRunner using os/exec.
type ExecCommandRunner struct{}

// Run executes a command and returns its stdout as bytes.
func (r *ExecCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.RunInput(ctx, nil, name, args...)
}

// RunInput executes a command with stdin attached and returns its stdout.
func (r *ExecCommandRunner) RunInput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if ok := errors.As(err, &exitErr); ok {
			return nil, fmt.Errorf("%s %s: %w: %s", name, summarize(args), err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("%s %s: %w", name, summarize(args), err)
	}
	return out, nil
}

// summarize joins args for error messages, eliding long values. Cuts land
// on a rune boundary.
func summarize(args []string) string {
	const maxArg = 80
	parts := make([]string, len(args))
	for i, a := range args {
		if len(a) > maxArg {
			n := maxArg
			for n > 0 && !utf8.RuneStart(a[n]) {
				n--
			}
			a = a[:n] + "..."
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}

package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// maxErrorOutput bounds how much of ffmpeg's log ends up in an error message.
const maxErrorOutput = 4096

// Runner executes a built command.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

type execRunner struct {
	bin string
}

func NewRunner(bin string) Runner {
	return &execRunner{bin: bin}
}

// Run executes the command and returns its combined output. On failure the
// partial output file is removed and the log tail is attached to the error.
func (r *execRunner) Run(ctx context.Context, cmd Command) (string, error) {
	c := exec.CommandContext(ctx, r.bin, cmd.Args...)
	var outputBuf bytes.Buffer
	c.Stdout = &outputBuf
	c.Stderr = &outputBuf

	err := c.Run()
	output := outputBuf.String()
	if err != nil {
		if cmd.Output != "" {
			_ = os.Remove(cmd.Output)
		}
		return output, fmt.Errorf("ffmpeg %s failed: %w\n%s", cmd.Step, err, tail(output, maxErrorOutput))
	}
	return output, nil
}

// Probe checks that the configured binary can be executed at all.
func Probe(ctx context.Context, bin string, r Runner) (string, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return "", fmt.Errorf("ffmpeg binary not found: %s: %w", bin, err)
	}
	out, err := r.Run(ctx, Version())
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(line), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

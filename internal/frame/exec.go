package frame

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

const maxStderrBytes = 8 * 1024 // tail of stderr kept for diagnostics

type commandResult struct {
	ExitCode   int
	StderrTail string
	Duration   time.Duration
}

func (r commandResult) IsSuccess() bool { return r.ExitCode == 0 }

// runCommand executes bin with args, writing stdout to out (discarded if nil)
// and keeping only a bounded tail of stderr.
func runCommand(ctx context.Context, bin string, args []string, out io.Writer) commandResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	if out != nil {
		cmd.Stdout = out
	} else {
		cmd.Stdout = io.Discard
	}

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			if stderrBuf.Len() == 0 {
				stderrBuf.WriteString(err.Error())
			}
		}
	}

	return commandResult{
		ExitCode:   exitCode,
		StderrTail: stderrBuf.String(),
		Duration:   time.Since(start),
	}
}

// resolveBinary finds name on PATH unless an explicit path is configured.
func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH", name)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}

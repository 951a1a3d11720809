package whitebox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// tailLines is how much tool output an error carries.
const tailLines = 20

// runFunc executes the engine binary in dir and returns the tail of its
// output.
type runFunc func(ctx context.Context, bin, dir string, args []string) (string, error)

// tail keeps the last n lines written to it.
type tail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// execRunner starts the binary and forwards both streams into logger line
// by line, stdout at debug and stderr at warn.
func execRunner(logger *slog.Logger) runFunc {
	return func(ctx context.Context, bin, dir string, args []string) (string, error) {
		cmd := exec.CommandContext(ctx, bin, args...)
		cmd.Dir = dir

		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return "", fmt.Errorf("whitebox: stdout pipe: %w", err)
		}
		stderrPipe, err := cmd.StderrPipe()
		if err != nil {
			stdoutPipe.Close()
			return "", fmt.Errorf("whitebox: stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			stdoutPipe.Close()
			stderrPipe.Close()
			return "", fmt.Errorf("whitebox: start: %w", err)
		}

		out := &tail{n: tailLines}
		var wg sync.WaitGroup
		forward := func(pipe io.Reader, stream string) {
			defer wg.Done()
			level := slog.LevelDebug
			if stream == "stderr" {
				level = slog.LevelWarn
			}
			scanner := bufio.NewScanner(pipe)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				out.add(line)
				logger.LogAttrs(ctx, level, line, slog.String("stream", stream))
			}
			if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
				logger.LogAttrs(ctx, slog.LevelWarn, "whitebox log stream error",
					slog.String("stream", stream), slog.Any("error", err))
			}
		}
		wg.Add(2)
		go forward(stdoutPipe, "stdout")
		go forward(stderrPipe, "stderr")
		wg.Wait()

		return out.String(), cmd.Wait()
	}
}

// BinaryPath resolves an executable path using the system PATH.
func BinaryPath(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("whitebox: binary name required")
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("whitebox: locate %s: %w", name, err)
	}
	return filepath.Clean(path), nil
}

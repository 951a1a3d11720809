package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/siorconsulting/nrip-jamaica-open-source/internal/taskqueue"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/worker"
)

// batchFile is the YAML job list read by "nrip batch".
type batchFile struct {
	Parallel int        `yaml:"parallel"`
	Retries  int        `yaml:"retries"`
	Jobs     []batchJob `yaml:"jobs"`
}

type batchJob struct {
	Name    string            `yaml:"name"`
	Dir     string            `yaml:"dir"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Flags   map[string]string `yaml:"flags"`
}

// batchCommands are the subcommands a job may run.
var batchCommands = map[string]bool{
	"hydro": true, "flood-hazard": true, "steep": true, "clip": true,
	"inundation": true, "inundation-between": true, "distance": true,
	"hotspots": true, "zonal": true, "intersect": true, "interpolate": true,
	"summarize": true,
}

func loadBatch(path string) (*batchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	var bf batchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(bf.Jobs) == 0 {
		return nil, fmt.Errorf("batch file %s has no jobs", path)
	}

	base := filepath.Dir(path)
	for i := range bf.Jobs {
		j := &bf.Jobs[i]
		if j.Name == "" {
			j.Name = fmt.Sprintf("job-%d", i+1)
		}
		if !batchCommands[j.Command] {
			return nil, fmt.Errorf("job %s: unknown command %q", j.Name, j.Command)
		}
		if j.Dir == "" {
			return nil, fmt.Errorf("job %s: dir is required", j.Name)
		}
		if !filepath.IsAbs(j.Dir) {
			j.Dir = filepath.Join(base, j.Dir)
		}
	}
	return &bf, nil
}

// checkDirs rejects jobs that would run in the same directory at once.
func (bf *batchFile) checkDirs(parallel int) error {
	if parallel <= 1 {
		return nil
	}
	seen := make(map[string]string, len(bf.Jobs))
	for _, j := range bf.Jobs {
		dir := filepath.Clean(j.Dir)
		if other, ok := seen[dir]; ok {
			return fmt.Errorf("jobs %s and %s share %s; run them with --parallel 1", other, j.Name, dir)
		}
		seen[dir] = j.Name
	}
	return nil
}

// args renders the job's flags after its explicit arguments, sorted so the
// command line is stable.
func (j batchJob) args() []string {
	out := append([]string(nil), j.Args...)
	keys := make([]string, 0, len(j.Flags))
	for k := range j.Flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("--%s=%s", strings.TrimPrefix(k, "--"), j.Flags[k]))
	}
	return out
}

func (a *app) batchCmd() *cobra.Command {
	var parallel, retries int
	cmd := &cobra.Command{
		Use:   "batch <jobs.yaml>",
		Short: "Run many workflows, each in its own process and directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bf, err := loadBatch(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("parallel") || bf.Parallel == 0 {
				bf.Parallel = parallel
			}
			if cmd.Flags().Changed("retries") {
				bf.Retries = retries
			}
			if err := bf.checkDirs(bf.Parallel); err != nil {
				return err
			}

			launch, err := a.launcher()
			if err != nil {
				return err
			}
			return a.runBatch(cmd, bf, launch)
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "jobs to run at once")
	cmd.Flags().IntVar(&retries, "retries", 0, "extra attempts for a failing job")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, bf *batchFile, launch worker.Handler) error {
	ctx := cmd.Context()
	q := taskqueue.NewInMemoryQueue(len(bf.Jobs))
	// Retries re-launch a whole job process from scratch. Runs themselves
	// never retry a step.
	w := worker.NewWithConfig(q, launch, worker.Config{
		MaxAttempts: bf.Retries + 1,
		Backoff:     time.Second,
		Parallel:    bf.Parallel,
		Logger:      a.logger,
	})
	for _, j := range bf.Jobs {
		if _, err := w.Enqueue(ctx, taskqueue.Task{
			Name:    j.Name,
			Command: j.Command,
			Args:    j.args(),
			Dir:     j.Dir,
		}); err != nil {
			return err
		}
	}
	q.Close()

	results, err := w.Drain(ctx)
	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		state := "ok"
		if r.Err != nil {
			state = "FAILED"
			failed++
		}
		fmt.Fprintf(out, "%-20s %-6s %8s  %s\n", r.Task.Name, state, r.Duration.Round(time.Millisecond), r.Task.Dir)
		if r.Err != nil {
			fmt.Fprintf(out, "  %v\n", r.Err)
		}
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(results))
	}
	return nil
}

// launcher returns a handler that re-executes this binary for each task.
func (a *app) launcher() (worker.Handler, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate nrip executable: %w", err)
	}
	configPath := a.configPath
	if configPath != "" {
		if configPath, err = filepath.Abs(configPath); err != nil {
			return nil, err
		}
	}
	logger := a.logger

	return func(ctx context.Context, t taskqueue.Task) error {
		args := []string{"--wd", t.Dir}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		args = append(args, t.Command)
		args = append(args, t.Args...)

		c := exec.CommandContext(ctx, self, args...)
		c.Dir = t.Dir
		jl := logger.With(slog.String("job", t.Name))
		stdout := &lineLogger{logger: jl, level: slog.LevelInfo}
		stderr := &lineLogger{logger: jl, level: slog.LevelWarn}
		c.Stdout, c.Stderr = stdout, stderr

		err := c.Run()
		stdout.Flush()
		stderr.Flush()
		if err != nil {
			return fmt.Errorf("%s %s: %w", t.Command, t.Name, err)
		}
		return nil
	}, nil
}

// lineLogger forwards each complete line written to it as one log record.
type lineLogger struct {
	mu     sync.Mutex
	logger *slog.Logger
	level  slog.Level
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			l.buf.Reset()
			l.buf.WriteString(line)
			return len(p), nil
		}
		l.emit(strings.TrimRight(line, "\r\n"))
	}
}

// Flush logs any trailing partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineLogger) emit(line string) {
	if line == "" {
		return
	}
	l.logger.Log(context.Background(), l.level, line)
}

// Package session owns the working directory shared by the process and the
// geoprocessing engine.
//
// Both the process cwd and the engine's working directory can be changed as
// a side effect of external tools. A Session re-asserts them around every
// operation so relative artifact names always resolve against one place.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

// DirectoryAware is the slice of the geoprocessing engine a Session drives.
type DirectoryAware interface {
	WorkingDir() string
	SetWorkingDir(dir string) error
	SetVerbose(verbose bool)
}

// Option configures a Session.
type Option func(*Session)

// WithVerbose sets the engine's verbose flag at construction.
func WithVerbose(v bool) Option {
	return func(s *Session) { s.verbose = v }
}

// WithLogger sets the logger used to report directory drift.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Session binds one working directory to one engine.
type Session struct {
	mu      sync.Mutex
	dir     string
	verbose bool
	engine  DirectoryAware
	logger  *slog.Logger
}

// New creates a session rooted at dir. An empty dir means the current
// process directory. The directory must exist and be writable.
func New(dir string, eng DirectoryAware, opts ...Option) (*Session, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", api.ErrDirectoryUnavailable, err)
		}
		dir = wd
	}
	abs, err := absDir(dir)
	if err != nil {
		return nil, err
	}

	s := &Session{
		dir:    abs,
		engine: eng,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	if err := s.Check(); err != nil {
		return nil, err
	}
	if eng != nil {
		if err := eng.SetWorkingDir(abs); err != nil {
			return nil, fmt.Errorf("set engine working dir: %w", err)
		}
		eng.SetVerbose(s.verbose)
	}
	return s, nil
}

// Dir returns the absolute session directory.
func (s *Session) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Verbose reports the engine verbose flag last set through the session.
func (s *Session) Verbose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verbose
}

// SetDir moves the session to dir after checking it.
func (s *Session) SetDir(dir string) error {
	abs, err := absDir(dir)
	if err != nil {
		return err
	}
	if err := checkDir(abs); err != nil {
		return err
	}
	s.mu.Lock()
	s.dir = abs
	s.mu.Unlock()
	return s.Ensure()
}

// SetVerbose toggles the engine's verbose output.
func (s *Session) SetVerbose(v bool) {
	s.mu.Lock()
	s.verbose = v
	s.mu.Unlock()
	if s.engine != nil {
		s.engine.SetVerbose(v)
	}
}

// Ensure points the process and the engine at the session directory.
// Afterwards os.Getwd and the engine's WorkingDir both equal Dir.
func (s *Session) Ensure() error {
	dir := s.Dir()

	if wd, err := os.Getwd(); err != nil || wd != dir {
		if wd != "" && wd != dir {
			s.logger.Debug("restoring process directory", slog.String("from", wd), slog.String("to", dir))
		}
		if err := os.Chdir(dir); err != nil {
			return fmt.Errorf("%w: %v", api.ErrDirectoryUnavailable, err)
		}
	}

	if s.engine == nil {
		return nil
	}
	if got := s.engine.WorkingDir(); got != dir {
		if got != "" {
			s.logger.Debug("restoring engine directory", slog.String("from", got), slog.String("to", dir))
		}
		if err := s.engine.SetWorkingDir(dir); err != nil {
			return fmt.Errorf("set engine working dir: %w", err)
		}
	}
	return nil
}

// Scope runs fn with the directories asserted before and after. The
// trailing Ensure also runs when fn returns an error or panics.
func (s *Session) Scope(fn func() error) (err error) {
	if err := s.Ensure(); err != nil {
		return err
	}
	defer func() {
		if rerr := s.Ensure(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn()
}

// Check verifies the session directory exists, is a directory and is
// writable.
func (s *Session) Check() error {
	return checkDir(s.Dir())
}

// Resolve returns the absolute path of name relative to the session
// directory. Absolute names are returned cleaned.
func (s *Session) Resolve(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(s.Dir(), name)
}

func checkDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", api.ErrDirectoryUnavailable, dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", api.ErrDirectoryUnavailable, dir)
	}
	probe, err := os.CreateTemp(dir, ".nrip-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %s is not writable: %v", api.ErrDirectoryUnavailable, dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// absDir makes dir absolute and resolves symlinks so it compares equal to
// what os.Getwd reports after a Chdir.
func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", api.ErrDirectoryUnavailable, dir, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return abs, nil
}

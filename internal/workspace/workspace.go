// Package workspace manages the on-disk area crashdice keeps inside a fuzzing
// directory: reports, compressed raw coverage, filtered crashes and the log.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/crashdice/pkg/persist"
)

// Directory and file names below the fuzzing directory.
const (
	DirName        = "sancov"
	DeltaDiffName  = "delta-diff"
	RawName        = ".raw"
	FilterName     = ".filter"
	LogName        = "crashdice.log"
	statusBasename = "crashdice-status"
	tempPattern    = "cov-*"
	dirPerm        = 0o755
	logPerm        = 0o644
)

// ErrWorkspaceExists is returned by [Layout.Prepare] when a previous run left
// its workspace behind and overwriting was not requested.
var ErrWorkspaceExists = errors.New("workspace already exists, use --overwrite to replace it")

// Layout holds the paths of one workspace.
type Layout struct {
	Root      string
	DeltaDiff string
	Raw       string
	FilterDir string
	LogFile   string
}

// Status describes the run that owns a workspace.
type Status struct {
	PID       int       `yaml:"pid"`
	Version   string    `yaml:"version"`
	Command   []string  `yaml:"command"`
	FuzzDir   string    `yaml:"fuzz_dir"`
	CrashDir  string    `yaml:"crash_dir"`
	DDNum     int       `yaml:"dd_num"`
	RunID     string    `yaml:"run_id,omitempty"`
	StartedAt time.Time `yaml:"started_at"`
}

var statusCodec = persist.NewYAMLCodec()

// NewLayout computes the workspace paths below fuzzDir.
func NewLayout(fuzzDir string) Layout {
	root := filepath.Join(fuzzDir, DirName)
	deltaDiff := filepath.Join(root, DeltaDiffName)

	return Layout{
		Root:      root,
		DeltaDiff: deltaDiff,
		Raw:       filepath.Join(deltaDiff, RawName),
		FilterDir: filepath.Join(deltaDiff, FilterName),
		LogFile:   filepath.Join(root, LogName),
	}
}

// Exists reports whether the delta-diff directory is already present.
func (l Layout) Exists() bool {
	info, err := os.Stat(l.DeltaDiff)

	return err == nil && info.IsDir()
}

// Prepare creates the workspace directories. An existing workspace is removed
// first when overwrite is set, and refused otherwise.
func (l Layout) Prepare(overwrite bool) error {
	if l.Exists() {
		if !overwrite {
			return l.existsError()
		}

		removeErr := os.RemoveAll(l.Root)
		if removeErr != nil {
			return fmt.Errorf("remove workspace %s: %w", l.Root, removeErr)
		}
	}

	for _, dir := range []string{l.Root, l.DeltaDiff, l.Raw, l.FilterDir} {
		mkErr := os.MkdirAll(dir, dirPerm)
		if mkErr != nil {
			return fmt.Errorf("create %s: %w", dir, mkErr)
		}
	}

	return nil
}

func (l Layout) existsError() error {
	st, err := l.ReadStatus()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrWorkspaceExists, l.DeltaDiff)
	}

	return fmt.Errorf("%w: %s (created by pid %d at %s)",
		ErrWorkspaceExists, l.DeltaDiff, st.PID, st.StartedAt.Format(time.RFC3339))
}

// OpenLog opens the workspace log file in append mode.
func (l Layout) OpenLog() (*os.File, error) {
	f, err := os.OpenFile(l.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logPerm)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", l.LogFile, err)
	}

	return f, nil
}

// WriteStatus records the owner of the workspace.
func (l Layout) WriteStatus(st *Status) error {
	err := persist.WriteFile(l.StatusPath(), statusCodec, st)
	if err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	return nil
}

// ReadStatus loads the owner record written by [Layout.WriteStatus].
func (l Layout) ReadStatus() (*Status, error) {
	var st Status

	err := persist.ReadFile(l.StatusPath(), statusCodec, &st)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}

	return &st, nil
}

// StatusPath returns the path of the status file.
func (l Layout) StatusPath() string {
	return filepath.Join(l.Root, statusBasename+statusCodec.Extension())
}

// TempDir creates a fresh directory for one coverage extraction.
// The caller removes it.
func (l Layout) TempDir() (string, error) {
	dir, err := os.MkdirTemp(l.DeltaDiff, tempPattern)
	if err != nil {
		return "", fmt.Errorf("create extraction dir: %w", err)
	}

	return dir, nil
}

// Filter moves a crash that does not reproduce out of the crash directory
// into the filter area and returns its new path.
func (l Layout) Filter(path string) (string, error) {
	dst := filepath.Join(l.FilterDir, filepath.Base(path))

	err := moveFile(path, dst)
	if err != nil {
		return "", fmt.Errorf("filter %s: %w", path, err)
	}

	return dst, nil
}

// moveFile renames src to dst, copying across filesystems when needed.
func moveFile(src, dst string) error {
	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}

	copyErr := copyFile(src, dst)
	if copyErr != nil {
		return errors.Join(renameErr, copyErr)
	}

	return os.Remove(src)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, out.Close())
	}()

	_, err = io.Copy(out, in)

	return err
}

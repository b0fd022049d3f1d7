package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pierrec/lz4/v4"
)

// StashExtension is appended to the names of stashed artifacts.
const StashExtension = ".lz4"

// Stash keeps LZ4-compressed copies of raw sancov artifacts. A nil *Stash
// discards everything.
type Stash struct {
	dir      string
	maxBytes uint64
	logger   *slog.Logger
}

// NewStash creates a stash writing into dir. maxBytes of zero disables the
// size limit.
func NewStash(dir string, maxBytes uint64, logger *slog.Logger) *Stash {
	if logger == nil {
		logger = slog.Default()
	}

	return &Stash{dir: dir, maxBytes: maxBytes, logger: logger}
}

// Put compresses the file at path into the stash. Files above the size limit
// are skipped. It returns the stashed path, or "" when nothing was written.
func (s *Stash) Put(path string) (string, error) {
	if s == nil {
		return "", nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stash %s: %w", path, err)
	}

	size := uint64(max(info.Size(), 0))
	if s.maxBytes > 0 && size > s.maxBytes {
		s.logger.Debug("artifact too large for stash",
			"path", path, "size", humanize.Bytes(size), "limit", humanize.Bytes(s.maxBytes))

		return "", nil
	}

	dst := filepath.Join(s.dir, filepath.Base(path)+StashExtension)

	err = compressFile(path, dst)
	if err != nil {
		return "", fmt.Errorf("stash %s: %w", path, err)
	}

	s.logger.Debug("stashed artifact", "path", dst, "size", humanize.Bytes(size))

	return dst, nil
}

func compressFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, out.Close())
	}()

	zw := lz4.NewWriter(out)

	_, err = io.Copy(zw, in)
	if err != nil {
		return err
	}

	return zw.Close()
}

// Restore decompresses a stashed artifact into w.
func Restore(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open stashed artifact: %w", err)
	}
	defer f.Close()

	_, err = io.Copy(w, lz4.NewReader(f))
	if err != nil {
		return fmt.Errorf("decompress %s: %w", path, err)
	}

	return nil
}

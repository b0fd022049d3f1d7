// Package ancestry walks the lineage AFL encodes in corpus file names: every
// entry names the queue entry it was mutated from, possibly in another
// fuzzer's queue.
package ancestry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/Sumatoshi-tech/crashdice/pkg/corpus"
)

// queueDirName is the AFL directory holding the non-crashing corpus.
const queueDirName = "queue"

var (
	// ErrNotFound is returned when no parent entry can be located.
	ErrNotFound = errors.New("parent not found")
	// ErrNoSession is returned for a crash name without a fuzzer session prefix.
	ErrNoSession = errors.New("crash name carries no session")
	// ErrAncestryExhausted is returned when the climb hits its depth bound or
	// runs into a cycle.
	ErrAncestryExhausted = errors.New("ancestry exhausted")
)

// Resolver finds the parent of a corpus entry, one generation at a time.
type Resolver struct {
	fuzzRoot string
	logger   *slog.Logger
}

// NewResolver creates a resolver for the AFL sync directory fuzzRoot.
func NewResolver(fuzzRoot string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{fuzzRoot: fuzzRoot, logger: logger}
}

// Parent returns the path of the queue entry path was derived from.
func (r *Resolver) Parent(path string) (string, error) {
	base := filepath.Base(path)

	name, err := corpus.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if !name.HasSource() {
		return "", fmt.Errorf("%w: %s has no source id", ErrNotFound, base)
	}

	dir, err := r.searchDir(path, name)
	if err != nil {
		return "", err
	}

	return r.findByID(dir, name.Source)
}

func (r *Resolver) searchDir(path string, name corpus.Name) (string, error) {
	if name.Kind == corpus.KindCrash {
		if name.Session == "" {
			return "", fmt.Errorf("%w: %s", ErrNoSession, filepath.Base(path))
		}

		return filepath.Join(r.fuzzRoot, name.Session, queueDirName), nil
	}

	dir := filepath.Dir(path)

	if name.Sync != "" {
		return filepath.Join(dir, "..", "..", name.Sync, queueDirName), nil
	}

	return dir, nil
}

// findByID returns the entry of dir whose leading id equals id. Several
// matches resolve to the lexicographically first one.
func (r *Resolver) findByID(dir string, id int) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrNotFound, dir, err)
	}

	var matches []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		entryID, ok := corpus.ID(entry.Name())
		if ok && entryID == id {
			matches = append(matches, entry.Name())
		}
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("%w: id %06d in %s", ErrNotFound, id, dir)
	}

	slices.Sort(matches)

	if len(matches) > 1 {
		r.logger.Warn("ambiguous parent id, using first match",
			"dir", dir, "id", id, "matches", len(matches), "chosen", matches[0])
	}

	return filepath.Clean(filepath.Join(dir, matches[0])), nil
}

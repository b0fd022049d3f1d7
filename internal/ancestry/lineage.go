package ancestry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// Rejection records a candidate the gate turned down.
type Rejection struct {
	Path   string
	Reason Reason
}

// Lineage climbs the ancestry of one crash file. It is not safe for
// concurrent use and is discarded once the file is done.
type Lineage struct {
	resolver *Resolver
	gate     *Gate
	crash    string
	maxDepth int

	current  string
	lookups  int
	returned int
	visited  map[string]struct{}
	rejected []Rejection
}

// NewLineage starts a climb at crash. At most maxDepth parent lookups are
// performed over the lifetime of the lineage.
func NewLineage(resolver *Resolver, gate *Gate, crash string, maxDepth int) *Lineage {
	crash = filepath.Clean(crash)

	return &Lineage{
		resolver: resolver,
		gate:     gate,
		crash:    crash,
		maxDepth: maxDepth,
		current:  crash,
		visited:  map[string]struct{}{crash: {}},
	}
}

// Next returns the closest valid ancestor above the last one returned.
// Rejected candidates are skipped and their own parents tried instead.
func (l *Lineage) Next(ctx context.Context) (string, error) {
	for {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return "", ctxErr
		}

		if l.lookups >= l.maxDepth {
			return "", fmt.Errorf("%w: depth bound %d reached", ErrAncestryExhausted, l.maxDepth)
		}

		l.lookups++

		parent, err := l.resolver.Parent(l.current)
		if err != nil {
			return "", err
		}

		if _, seen := l.visited[parent]; seen {
			return "", fmt.Errorf("%w: cycle at %s", ErrAncestryExhausted, filepath.Base(parent))
		}

		l.visited[parent] = struct{}{}
		l.current = parent

		validateErr := l.gate.Validate(ctx, l.crash, parent)

		var rejected *RejectedError
		if errors.As(validateErr, &rejected) {
			l.rejected = append(l.rejected, Rejection{Path: rejected.Path, Reason: rejected.Reason})

			continue
		}

		if validateErr != nil {
			return "", validateErr
		}

		l.returned++

		return parent, nil
	}
}

// Rejected returns the candidates skipped so far.
func (l *Lineage) Rejected() []Rejection {
	return l.rejected
}

// Depth returns the number of ancestors returned so far.
func (l *Lineage) Depth() int {
	return l.returned
}

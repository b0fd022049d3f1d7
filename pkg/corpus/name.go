// Package corpus parses the file-naming conventions of an AFL fuzzing corpus.
//
// Queue entries are named "id:NNNNNN,[sync:NAME,]src:NNNNNN,..." and crash
// entries "[HARDEN:N,|ASAN:N,][SESSION:]id:NNNNNN,sig:NN,[sync:NAME,]src:NNNNNN,...".
// The source id names the queue entry the file was mutated from.
package corpus

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Kind tells crash entries from queue entries.
type Kind int

// Entry kinds.
const (
	KindQueue Kind = iota
	KindCrash
)

// String returns the role name used in logs and metrics.
func (k Kind) String() string {
	if k == KindCrash {
		return "crash"
	}

	return "queue"
}

// ErrMalformedName is returned for a basename that is not a corpus entry.
var ErrMalformedName = errors.New("malformed corpus file name")

var (
	crashRe = regexp.MustCompile(
		`^((HARDEN:|ASAN:)\d+,)?(([\w|\-]+):)?id:(\d+),sig:(\d+),(sync:([\w|\-]+),)?src:(\d+).*$`)
	queueRe = regexp.MustCompile(`^id:(\d+),(sync:([\w|\-]+),)?src:(\d+).*$`)
	idRe    = regexp.MustCompile(`id:(\d+)`)
	leadRe  = regexp.MustCompile(`^id:(\d+)`)
	sigRe   = regexp.MustCompile(`sig:\d+`)
)

// Submatch indexes of crashRe.
const (
	crashTag     = 2
	crashSession = 4
	crashID      = 5
	crashSignal  = 6
	crashSync    = 8
	crashSource  = 9
)

// Submatch indexes of queueRe.
const (
	queueID     = 1
	queueSync   = 3
	queueSource = 4
)

// Name is the metadata carried by a corpus file name.
type Name struct {
	Kind    Kind
	Tag     string // "HARDEN:" or "ASAN:" prefix of hardened crash names.
	Session string
	Sync    string
	ID      int
	Signal  int
	Source  int

	hasSource bool
}

// HasSource reports whether the name carries lineage metadata. Names without
// it still identify a corpus entry but have no parent.
func (n Name) HasSource() bool {
	return n.hasSource
}

// Parse extracts the metadata of a corpus file basename.
func Parse(basename string) (Name, error) {
	if m := crashRe.FindStringSubmatch(basename); m != nil {
		return parseCrash(basename, m)
	}

	if m := queueRe.FindStringSubmatch(basename); m != nil {
		return parseQueue(basename, m)
	}

	if m := idRe.FindStringSubmatch(basename); m != nil {
		id, err := atoi(basename, m[1])
		if err != nil {
			return Name{}, err
		}

		return Name{Kind: kindOf(basename), ID: id}, nil
	}

	return Name{}, fmt.Errorf("%w: %q", ErrMalformedName, basename)
}

// IsCrashName reports whether basename follows the crash grammar.
func IsCrashName(basename string) bool {
	return crashRe.MatchString(basename)
}

// ID returns the leading numeric id of a queue entry basename.
func ID(basename string) (int, bool) {
	m := leadRe.FindStringSubmatch(basename)
	if m == nil {
		return 0, false
	}

	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}

	return id, true
}

func parseCrash(basename string, m []string) (Name, error) {
	id, err := atoi(basename, m[crashID])
	if err != nil {
		return Name{}, err
	}

	sig, err := atoi(basename, m[crashSignal])
	if err != nil {
		return Name{}, err
	}

	src, err := atoi(basename, m[crashSource])
	if err != nil {
		return Name{}, err
	}

	return Name{
		Kind:      KindCrash,
		Tag:       m[crashTag],
		Session:   m[crashSession],
		Sync:      m[crashSync],
		ID:        id,
		Signal:    sig,
		Source:    src,
		hasSource: true,
	}, nil
}

func parseQueue(basename string, m []string) (Name, error) {
	id, err := atoi(basename, m[queueID])
	if err != nil {
		return Name{}, err
	}

	src, err := atoi(basename, m[queueSource])
	if err != nil {
		return Name{}, err
	}

	return Name{
		Kind:      KindQueue,
		Sync:      m[queueSync],
		ID:        id,
		Source:    src,
		hasSource: true,
	}, nil
}

// kindOf classifies a name without lineage metadata. AFL writes "sig:" only
// into crash names.
func kindOf(basename string) Kind {
	if sigRe.MatchString(basename) {
		return KindCrash
	}

	return KindQueue
}

func atoi(basename, digits string) (int, error) {
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrMalformedName, basename, err)
	}

	return v, nil
}

package coverage

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// maxSymbolizedLine bounds a single line of symbolizer output.
const maxSymbolizedLine = 1 << 20

var (
	// symbolFuncRe matches the function line of an llvm-symbolizer record.
	// Demangled names with spaces or templates do not match and are skipped.
	symbolFuncRe = regexp.MustCompile(`^[\w|\-:]+$`)

	// symbolPosRe matches the "file:line:column" line that follows it.
	symbolPosRe = regexp.MustCompile(`^([^:]+):(\d+):(\d+)$`)
)

// ParseSymbolized reads llvm-symbolizer output, where every covered address is
// rendered as a function line followed by a "file:line:column" line, and
// returns the set of locations found. Unknown frames ("??") are skipped.
func ParseSymbolized(r io.Reader) (Set, error) {
	set := make(Set)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxSymbolizedLine)

	var function string

	for scanner.Scan() {
		line := scanner.Text()

		match := symbolPosRe.FindStringSubmatch(line)
		if match != nil && function != "" {
			loc, err := newLocation(match, function)
			if err != nil {
				return nil, err
			}

			set.Add(loc)

			function = ""

			continue
		}

		if symbolFuncRe.MatchString(line) {
			function = line
		} else {
			function = ""
		}
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("read symbolizer output: %w", scanErr)
	}

	return set, nil
}

func newLocation(match []string, function string) (Location, error) {
	line, err := strconv.Atoi(match[2])
	if err != nil {
		return Location{}, fmt.Errorf("line number %q: %w", match[2], err)
	}

	column, err := strconv.Atoi(match[3])
	if err != nil {
		return Location{}, fmt.Errorf("column number %q: %w", match[3], err)
	}

	return Location{
		File:     match[1],
		Function: function,
		Line:     line,
		Column:   column,
	}, nil
}

// Package coverage defines source-level coverage locations and the set algebra
// used to compare the executions of a crashing input and its ancestors.
package coverage

import (
	"cmp"
	"strconv"
	"strings"
)

// locationSep joins the fields of a serialized location.
const locationSep = ":"

// Location identifies one executed source position.
// It is a comparable value: two locations are equal when all four fields are.
type Location struct {
	File     string `json:"file" yaml:"file"`
	Function string `json:"function" yaml:"function"`
	Line     int    `json:"line" yaml:"line"`
	Column   int    `json:"column" yaml:"column"`
}

// Compare orders locations by file, line, column and finally function.
// It returns a negative number when l sorts before other, zero when equal.
func (l Location) Compare(other Location) int {
	if c := cmp.Compare(l.File, other.File); c != 0 {
		return c
	}

	if c := cmp.Compare(l.Line, other.Line); c != 0 {
		return c
	}

	if c := cmp.Compare(l.Column, other.Column); c != 0 {
		return c
	}

	return cmp.Compare(l.Function, other.Function)
}

// String renders the location as "file:function:line:column", the form used
// in the diff-node-spec of a report.
func (l Location) String() string {
	var sb strings.Builder

	sb.WriteString(l.File)
	sb.WriteString(locationSep)
	sb.WriteString(l.Function)
	sb.WriteString(locationSep)
	sb.WriteString(strconv.Itoa(l.Line))
	sb.WriteString(locationSep)
	sb.WriteString(strconv.Itoa(l.Column))

	return sb.String()
}

// ParseLocation is the inverse of [Location.String]. Function names may contain
// colons (C++ scopes), so line and column are taken from the right and the file
// from the left.
func ParseLocation(s string) (Location, error) {
	fileEnd := strings.Index(s, locationSep)
	if fileEnd < 0 {
		return Location{}, &ParseError{Input: s}
	}

	rest := s[fileEnd+1:]

	colStart := strings.LastIndex(rest, locationSep)
	if colStart < 0 {
		return Location{}, &ParseError{Input: s}
	}

	lineStart := strings.LastIndex(rest[:colStart], locationSep)
	if lineStart < 0 {
		return Location{}, &ParseError{Input: s}
	}

	line, lineErr := strconv.Atoi(rest[lineStart+1 : colStart])
	if lineErr != nil {
		return Location{}, &ParseError{Input: s, Err: lineErr}
	}

	column, colErr := strconv.Atoi(rest[colStart+1:])
	if colErr != nil {
		return Location{}, &ParseError{Input: s, Err: colErr}
	}

	return Location{
		File:     s[:fileEnd],
		Function: rest[:lineStart],
		Line:     line,
		Column:   column,
	}, nil
}

// ParseError reports a malformed serialized location.
type ParseError struct {
	Input string
	Err   error
}

// Error implements error.
func (e *ParseError) Error() string {
	if e.Err != nil {
		return "coverage: malformed location " + strconv.Quote(e.Input) + ": " + e.Err.Error()
	}

	return "coverage: malformed location " + strconv.Quote(e.Input)
}

// Unwrap returns the underlying conversion error, if any.
func (e *ParseError) Unwrap() error {
	return e.Err
}

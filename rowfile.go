package austrianelevation

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var errMissingSeparator = errors.New("missing separator")

// A ParseError is returned when a row file contains a malformed line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// A RowFile holds the elevations of a single raster line, indexed by raster
// column.
type RowFile struct {
	elevations map[int]int
}

// NewRowFile parses a row file from data.
func NewRowFile(data []byte) (*RowFile, error) {
	return ParseRowFile(bytes.NewReader(data))
}

// ParseRowFile parses a row file from r. Each line consists of a raster column
// and an elevation separated by the first space. If a raster column occurs
// more than once then its first elevation is used.
//
// The whole file is validated before it is used: a malformed line anywhere is
// an error, even if it follows the line of the column being looked up. A row
// file that fails to parse is never stored, so a truncated download is
// fetched again instead of being served partially.
func ParseRowFile(r io.Reader) (*RowFile, error) {
	f := &RowFile{
		elevations: make(map[int]int),
	}
	scanner := bufio.NewScanner(r)
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := scanner.Text()
		x, elevation, err := parseRowFileLine(line)
		if err != nil {
			return nil, &ParseError{
				Line: lineNumber,
				Text: line,
				Err:  err,
			}
		}
		if _, ok := f.elevations[x]; !ok {
			f.elevations[x] = elevation
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// Lookup returns the elevation at raster column x and whether it was found.
func (f *RowFile) Lookup(x int) (int, bool) {
	elevation, ok := f.elevations[x]
	return elevation, ok
}

// Len returns the number of raster columns in f.
func (f *RowFile) Len() int {
	return len(f.elevations)
}

func parseRowFileLine(line string) (int, int, error) {
	xStr, elevationStr, ok := strings.Cut(line, " ")
	if !ok {
		return 0, 0, errMissingSeparator
	}
	x, err := strconv.Atoi(strings.TrimSpace(xStr))
	if err != nil {
		return 0, 0, err
	}
	elevation, err := strconv.Atoi(strings.TrimSpace(elevationStr))
	if err != nil {
		return 0, 0, err
	}
	return x, elevation, nil
}

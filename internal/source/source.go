// Package source provides line-oriented access to monitoring event logs.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxLineSize bounds a single log line. Plugin output embedded in alert
// lines can be long.
const maxLineSize = 1024 * 1024

// ErrUnavailable is returned when a log source cannot be opened.
var ErrUnavailable = errors.New("log source unavailable")

// Source is a readable event log. Implementations include log files and
// in-memory readers used by tests.
type Source interface {
	// Name identifies the source in logs and reports.
	Name() string

	// Open returns a reader positioned at the start of the log. The caller
	// closes it.
	Open() (io.ReadCloser, error)
}

// File is a log file on disk. The path "-" reads standard input.
type File struct {
	Path string
}

// NewFile creates a file-backed Source.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Name() string {
	if f.Path == "-" {
		return "stdin"
	}
	return f.Path
}

func (f *File) Open() (io.ReadCloser, error) {
	if f.Path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fh, nil
}

// String is an in-memory Source.
type String struct {
	name string
	text string
}

// NewString creates a Source over text.
func NewString(name, text string) *String {
	return &String{name: name, text: text}
}

func (s *String) Name() string { return s.name }

func (s *String) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.text)), nil
}

// Lines calls fn for every line of r with its 1-based line number. Line
// terminators are stripped; surrounding whitespace is left to the caller.
// Iteration stops at the first error returned by fn.
func Lines(r io.Reader, fn func(lineNo int, line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n := 0
	for scanner.Scan() {
		n++
		if err := fn(n, scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading line %d: %w", n+1, err)
	}
	return nil
}

// Package textio reads and writes plain-text documents as line slices.
//
// OCR exports and manual transcriptions arrive as UTF-8 text files whose
// lines carry meaning for the alignment engine, so the package keeps line
// boundaries intact instead of treating input as one blob. Reading options
// cover the usual cleanup needed before alignment: trimming surrounding
// whitespace and dropping lines that are empty after trimming.
package textio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadOption adjusts how [ReadLines] post-processes each line.
type ReadOption func(*readConfig)

type readConfig struct {
	trimSpace  bool
	skipEmpty  bool
	collapseWS bool
}

// WithTrimSpace strips leading and trailing whitespace from every line.
func WithTrimSpace() ReadOption {
	return func(c *readConfig) { c.trimSpace = true }
}

// WithSkipEmpty drops lines that are empty after any trimming.
func WithSkipEmpty() ReadOption {
	return func(c *readConfig) { c.skipEmpty = true }
}

// WithCollapseSpaces replaces runs of whitespace inside a line with a
// single space. Useful for OCR exports that pad columns with spaces.
func WithCollapseSpaces() ReadOption {
	return func(c *readConfig) { c.collapseWS = true }
}

// ReadLines reads r to EOF and returns its lines. Line endings are
// stripped; both "\n" and "\r\n" are accepted. A trailing newline does
// not produce a final empty line.
func ReadLines(r io.Reader, opts ...ReadOption) ([]string, error) {
	var cfg readConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if cfg.collapseWS {
			line = strings.Join(strings.Fields(line), " ")
		}
		if cfg.trimSpace {
			line = strings.TrimSpace(line)
		}
		if cfg.skipEmpty && line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("textio: read lines: %w", err)
	}
	return lines, nil
}

// ReadFile reads a text file from disk and returns its lines.
func ReadFile(path string, opts ...ReadOption) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("textio: open %q: %w", path, err)
	}
	defer f.Close()

	lines, err := ReadLines(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("textio: read %q: %w", path, err)
	}
	return lines, nil
}

// WriteLines writes lines to w separated and terminated by "\n".
func WriteLines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := bw.WriteString(line); err != nil {
			return fmt.Errorf("textio: write line: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("textio: write line: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("textio: flush: %w", err)
	}
	return nil
}

// WriteFile writes lines to a file, creating or truncating it.
func WriteFile(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("textio: create %q: %w", path, err)
	}
	if err := WriteLines(f, lines); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("textio: close %q: %w", path, err)
	}
	return nil
}

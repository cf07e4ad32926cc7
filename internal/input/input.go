// Package input provides helpers for reading flag values from stdin and files
// (@file syntax).
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Stdin is the reader "-" values are read from.
var Stdin io.Reader = os.Stdin

// ReadValue expands a single flag value. "-" reads all of stdin, "@path"
// reads the file at path, anything else is returned unchanged. Surrounding
// whitespace is trimmed from expanded values.
func ReadValue(v string) (string, error) {
	switch {
	case v == "-":
		b, err := io.ReadAll(Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	case strings.HasPrefix(v, "@") && len(v) > 1:
		path := strings.TrimPrefix(v, "@")
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return v, nil
}

// ExpandList expands a list flag value. "-" and "@file" sources contribute
// one entry per non-empty line and accept commas within a line; plain values
// are split on commas.
func ExpandList(v string) ([]string, error) {
	var lines []string
	switch {
	case v == "-":
		lines = ReadLinesFromReader(Stdin)
	case strings.HasPrefix(v, "@") && len(v) > 1:
		path := strings.TrimPrefix(v, "@")
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		lines = ReadLinesFromReader(file)
		file.Close()
	default:
		lines = []string{v}
	}

	var result []string
	for _, line := range lines {
		for _, part := range strings.Split(line, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result, nil
}

// ReadLinesFromReader reads non-empty lines from a reader.
func ReadLinesFromReader(r io.Reader) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

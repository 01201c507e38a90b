// Package input provides helpers for reading flag and argument values from
// stdin ("-") and files ("@path").
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ExpandText expands a single text value: "-" reads all of stdin, "@path"
// reads the named file, anything else passes through unchanged. Leading and
// trailing whitespace is trimmed for expanded sources.
func ExpandText(value string) (string, error) {
	switch {
	case value == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case strings.HasPrefix(value, "@"):
		path := strings.TrimPrefix(value, "@")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return value, nil
	}
}

// ExpandFlagValues expands each value in a list flag with the same "-" and
// "@path" rules, splitting expanded sources into lines. stdinUsed guards
// against reading stdin twice; the updated flag is returned.
func ExpandFlagValues(values []string, stdinUsed bool) ([]string, bool, error) {
	var result []string
	for _, v := range values {
		switch {
		case v == "-":
			if stdinUsed {
				return nil, stdinUsed, fmt.Errorf("stdin already consumed by an earlier flag")
			}
			stdinUsed = true
			result = append(result, ReadLinesFromReader(os.Stdin)...)
		case strings.HasPrefix(v, "@"):
			path := strings.TrimPrefix(v, "@")
			file, err := os.Open(path)
			if err != nil {
				return nil, stdinUsed, fmt.Errorf("read %s: %w", path, err)
			}
			result = append(result, ReadLinesFromReader(file)...)
			file.Close()
		default:
			result = append(result, v)
		}
	}
	return result, stdinUsed, nil
}

// ReadLinesFromReader reads non-empty trimmed lines from a reader.
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

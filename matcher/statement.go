package matcher

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const maxStatementLine = 4 * 1024 * 1024

// AssembleStatement reads the statement file at path and joins its non-blank lines.
func AssembleStatement(path string) (TargetStatement, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", notFound("statement", path, err)
		}
		return "", fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	stmt, err := ReadStatement(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return stmt, nil
}

// ReadStatement trims every line of r, drops the blank ones and joins the rest
// with single spaces in their original order.
func ReadStatement(r io.Reader) (TargetStatement, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStatementLine)
	scanner.Split(scanAnyLines)
	lines := make([]string, 0)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan statement: %w", err)
	}
	return TargetStatement(strings.Join(lines, " ")), nil
}

// scanAnyLines is bufio.ScanLines that also ends a line at a lone \r, so files
// saved with old Mac line endings split the same way as \n and \r\n files.
func scanAnyLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// A trailing \r may be the first half of \r\n.
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
